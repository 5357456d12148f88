package lsvc

import (
	"bytes"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xzl01/dlm/lib/dlm"
	"golang.org/x/sys/unix"
)

// --------------------------------------------------------------------------
// Helper Functions
// --------------------------------------------------------------------------

func attach(t *testing.T, svc dlm.Service, name string) dlm.LockspaceHandle {
	t.Helper()
	h, rc := svc.CreateLockspace(name, dlm.DefaultMode)
	if rc != 0 || h == 0 {
		t.Fatalf("CreateLockspace(%s) failed: handle=%d rc=%d", name, h, rc)
	}
	return h
}

func request(svc dlm.Service, h dlm.LockspaceHandle, mode dlm.LockMode, flags dlm.LockFlag, name string) (*dlm.LKSB, int) {
	lksb := &dlm.LKSB{}
	rc := svc.LockWait(h, mode, lksb, flags, []byte(name), 0, 0, nil)
	return lksb, rc
}

func mustLock(t *testing.T, svc dlm.Service, h dlm.LockspaceHandle, mode dlm.LockMode, flags dlm.LockFlag, name string) *dlm.LKSB {
	t.Helper()
	lksb, rc := request(svc, h, mode, flags, name)
	if rc != 0 {
		t.Fatalf("LockWait(%s, %s) failed: rc=%d", name, mode, rc)
	}
	if lksb.LockID == 0 {
		t.Fatalf("LockWait(%s) returned lock id 0", name)
	}
	return lksb
}

func mustUnlock(t *testing.T, svc dlm.Service, h dlm.LockspaceHandle, lkid uint32, flags dlm.LockFlag) *dlm.LKSB {
	t.Helper()
	lksb := &dlm.LKSB{}
	if rc := svc.UnlockWait(h, lkid, flags, lksb); rc != 0 {
		t.Fatalf("UnlockWait(%d) failed: rc=%d", lkid, rc)
	}
	return lksb
}

// async runs fn in a goroutine and returns a channel carrying its rc.
func async(fn func() int) <-chan int {
	ch := make(chan int, 1)
	go func() { ch <- fn() }()
	return ch
}

func expectPending(t *testing.T, ch <-chan int) {
	t.Helper()
	select {
	case rc := <-ch:
		t.Fatalf("request completed early with rc=%d", rc)
	case <-time.After(50 * time.Millisecond):
	}
}

func expectDone(t *testing.T, ch <-chan int, want int) {
	t.Helper()
	select {
	case rc := <-ch:
		if rc != want {
			t.Fatalf("expected rc=%d, got %d", want, rc)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("request did not complete")
	}
}

// --------------------------------------------------------------------------
// Lockspaces
// --------------------------------------------------------------------------

func TestLockspaces(t *testing.T) {
	t.Run("CreateAndRelease", func(t *testing.T) {
		mgr := New()
		a, b := mgr.NewSession(), mgr.NewSession()

		ha := attach(t, a, "ls1")
		hb := attach(t, b, "ls1")
		if ha == hb {
			t.Fatal("expected distinct handles per attachment")
		}
		if names := mgr.Lockspaces(); len(names) != 1 || names[0] != "ls1" {
			t.Fatalf("unexpected lockspaces: %v", names)
		}

		if rc := a.ReleaseLockspace("ls1", ha, dlm.ForceNone); rc != 0 {
			t.Fatalf("release failed: rc=%d", rc)
		}
		if len(mgr.Lockspaces()) != 1 {
			t.Fatal("lockspace removed while still attached")
		}
		if rc := b.ReleaseLockspace("ls1", hb, dlm.ForceNone); rc != 0 {
			t.Fatalf("release failed: rc=%d", rc)
		}
		if len(mgr.Lockspaces()) != 0 {
			t.Fatal("lockspace not removed after last release")
		}
	})

	t.Run("InvalidHandle", func(t *testing.T) {
		mgr := New()
		a, b := mgr.NewSession(), mgr.NewSession()
		h := attach(t, a, "ls1")

		if rc := b.ReleaseLockspace("ls1", h, dlm.ForceNone); rc != -int(unix.EINVAL) {
			t.Errorf("foreign handle: expected -EINVAL, got %d", rc)
		}
		if rc := a.ReleaseLockspace("other", h, dlm.ForceNone); rc != -int(unix.EINVAL) {
			t.Errorf("wrong name: expected -EINVAL, got %d", rc)
		}
		if rc := a.ReleaseLockspace("ls1", h, 3); rc != -int(unix.EINVAL) {
			t.Errorf("bad force: expected -EINVAL, got %d", rc)
		}
		if rc := a.ReleaseLockspace("ls1", h, dlm.ForceNone); rc != 0 {
			t.Fatalf("release failed: rc=%d", rc)
		}
		if rc := a.ReleaseLockspace("ls1", h, dlm.ForceNone); rc != -int(unix.EINVAL) {
			t.Errorf("second release: expected -EINVAL, got %d", rc)
		}
	})

	t.Run("InvalidName", func(t *testing.T) {
		svc := New().NewSession()
		if _, rc := svc.CreateLockspace("", dlm.DefaultMode); rc != -int(unix.EINVAL) {
			t.Errorf("empty name: expected -EINVAL, got %d", rc)
		}
		long := string(bytes.Repeat([]byte("x"), dlm.MaxLockspaceNameLen+1))
		if _, rc := svc.CreateLockspace(long, dlm.DefaultMode); rc != -int(unix.EINVAL) {
			t.Errorf("long name: expected -EINVAL, got %d", rc)
		}
	})

	t.Run("MaxLockspaces", func(t *testing.T) {
		svc := New(WithMaxLockspaces(1)).NewSession()
		attach(t, svc, "ls1")
		attach(t, svc, "ls1")
		if h, rc := svc.CreateLockspace("ls2", dlm.DefaultMode); h != 0 || rc != -int(unix.ENOMEM) {
			t.Errorf("expected -ENOMEM, got handle=%d rc=%d", h, rc)
		}
	})

	t.Run("ForceSemantics", func(t *testing.T) {
		mgr := New()
		svc := mgr.NewSession()
		h := attach(t, svc, "ls1")
		mustLock(t, svc, h, dlm.ModeEX, 0, "res1")

		if rc := svc.ReleaseLockspace("ls1", h, dlm.ForceNone); rc != -int(unix.EBUSY) {
			t.Fatalf("expected -EBUSY with held locks, got %d", rc)
		}
		if rc := svc.ReleaseLockspace("ls1", h, dlm.ForceLocal); rc != 0 {
			t.Fatalf("ForceLocal release failed: rc=%d", rc)
		}
		if mgr.LockCount("ls1") != -1 {
			t.Fatal("expected lockspace to be gone")
		}
	})

	t.Run("ForceLocalKeepsOtherLocks", func(t *testing.T) {
		mgr := New()
		a, b := mgr.NewSession(), mgr.NewSession()
		ha, hb := attach(t, a, "ls1"), attach(t, b, "ls1")
		mustLock(t, a, ha, dlm.ModePR, 0, "res1")
		mustLock(t, b, hb, dlm.ModePR, 0, "res1")

		if rc := a.ReleaseLockspace("ls1", ha, dlm.ForceAll); rc != 0 {
			t.Fatalf("release failed: rc=%d", rc)
		}
		if n := mgr.LockCount("ls1"); n != 1 {
			t.Fatalf("expected the other session's lock to survive, got %d locks", n)
		}
	})
}

// --------------------------------------------------------------------------
// Requests
// --------------------------------------------------------------------------

func TestRequests(t *testing.T) {
	t.Run("Compatibility", func(t *testing.T) {
		mgr := New()
		a, b := mgr.NewSession(), mgr.NewSession()
		ha, hb := attach(t, a, "ls1"), attach(t, b, "ls1")

		first := mustLock(t, a, ha, dlm.ModePR, 0, "res1")
		second := mustLock(t, b, hb, dlm.ModePR, 0, "res1")
		if first.LockID == second.LockID {
			t.Fatal("expected unique lock ids")
		}

		lksb, rc := request(b, hb, dlm.ModeEX, dlm.FlagNoQueue, "res1")
		if rc != -int(unix.EAGAIN) || lksb.Status != -int32(unix.EAGAIN) {
			t.Fatalf("expected -EAGAIN, got rc=%d status=%d", rc, lksb.Status)
		}
		mustLock(t, b, hb, dlm.ModeEX, dlm.FlagNoQueue, "res2")
	})

	t.Run("InvalidArguments", func(t *testing.T) {
		svc := New().NewSession()
		h := attach(t, svc, "ls1")

		cases := []struct {
			name  string
			mode  dlm.LockMode
			flags dlm.LockFlag
			res   string
		}{
			{"InvalidMode", dlm.ModeIV, 0, "res1"},
			{"EmptyName", dlm.ModeEX, 0, ""},
			{"CancelFlag", dlm.ModeEX, dlm.FlagCancel, "res1"},
			{"ExpediteNotNL", dlm.ModeEX, dlm.FlagExpedite, "res1"},
			{"ConvertUnknown", dlm.ModeEX, dlm.FlagConvert, "res1"},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				if _, rc := request(svc, h, tc.mode, tc.flags, tc.res); rc != -int(unix.EINVAL) {
					t.Errorf("expected -EINVAL, got %d", rc)
				}
			})
		}
		if rc := svc.LockWait(h, dlm.ModeEX, nil, 0, []byte("res1"), 0, 0, nil); rc != -int(unix.EINVAL) {
			t.Errorf("nil lksb: expected -EINVAL, got %d", rc)
		}
		if _, rc := request(svc, h+100, dlm.ModeEX, 0, "res1"); rc != -int(unix.EINVAL) {
			t.Errorf("unknown handle: expected -EINVAL, got %d", rc)
		}
	})

	t.Run("FIFO", func(t *testing.T) {
		mgr := New()
		a, b, c := mgr.NewSession(), mgr.NewSession(), mgr.NewSession()
		ha, hb, hc := attach(t, a, "ls1"), attach(t, b, "ls1"), attach(t, c, "ls1")

		held := mustLock(t, a, ha, dlm.ModeEX, 0, "res1")

		lksbB := &dlm.LKSB{}
		waitB := async(func() int {
			return b.LockWait(hb, dlm.ModeEX, lksbB, 0, []byte("res1"), 0, 0, nil)
		})
		expectPending(t, waitB)

		// compatible with nothing held after A, but queued behind B
		waitC := async(func() int {
			_, rc := request(c, hc, dlm.ModeNL, 0, "res1")
			return rc
		})
		expectPending(t, waitC)

		mustUnlock(t, a, ha, held.LockID, 0)
		expectDone(t, waitB, 0)
		expectDone(t, waitC, 0)
		if lksbB.LockID == 0 || lksbB.Status != 0 {
			t.Fatalf("unexpected lksb after grant: %+v", lksbB)
		}
	})

	t.Run("Expedite", func(t *testing.T) {
		mgr := New()
		a, b := mgr.NewSession(), mgr.NewSession()
		ha, hb := attach(t, a, "ls1"), attach(t, b, "ls1")

		held := mustLock(t, a, ha, dlm.ModeEX, 0, "res1")
		waitB := async(func() int {
			_, rc := request(b, hb, dlm.ModeEX, 0, "res1")
			return rc
		})
		expectPending(t, waitB)

		mustLock(t, a, ha, dlm.ModeNL, dlm.FlagExpedite, "res1")
		mustUnlock(t, a, ha, held.LockID, 0)
		expectDone(t, waitB, 0)
	})

	t.Run("AlternateMode", func(t *testing.T) {
		mgr := New()
		a, b := mgr.NewSession(), mgr.NewSession()
		ha, hb := attach(t, a, "ls1"), attach(t, b, "ls1")

		mustLock(t, a, ha, dlm.ModeCR, 0, "res1")
		mustLock(t, a, ha, dlm.ModePR, 0, "res1")

		lksb := mustLock(t, b, hb, dlm.ModePW, dlm.FlagAltPR|dlm.FlagNoQueue, "res1")
		if dlm.StatusFlag(lksb.Flags)&dlm.SBFAltMode == 0 {
			t.Errorf("expected ALTMODE in status flags, got %s", dlm.StatusFlag(lksb.Flags))
		}
	})

	t.Run("Timeout", func(t *testing.T) {
		mgr := New(WithLockTimeout(30 * time.Millisecond))
		a, b := mgr.NewSession(), mgr.NewSession()
		ha, hb := attach(t, a, "ls1"), attach(t, b, "ls1")

		mustLock(t, a, ha, dlm.ModeEX, 0, "res1")
		if _, rc := request(b, hb, dlm.ModeEX, dlm.FlagTimeout, "res1"); rc != -int(unix.ETIMEDOUT) {
			t.Fatalf("expected -ETIMEDOUT, got %d", rc)
		}
		if n := mgr.LockCount("ls1"); n != 1 {
			t.Fatalf("timed out request left behind: %d locks", n)
		}
	})

	t.Run("Cancel", func(t *testing.T) {
		mgr := New()
		a, b := mgr.NewSession(), mgr.NewSession()
		ha, hb := attach(t, a, "ls1"), attach(t, b, "ls1")

		mustLock(t, a, ha, dlm.ModeEX, 0, "res1")
		lksbB := &dlm.LKSB{}
		waitB := async(func() int {
			return b.LockWait(hb, dlm.ModeEX, lksbB, 0, []byte("res1"), 0, 0, nil)
		})
		expectPending(t, waitB)

		// the lock id is known to the service once the request is queued
		var lkid uint32
		mgr.mu.Lock()
		for id, lk := range mgr.lockspaces["ls1"].locks {
			if lk.att == hb {
				lkid = id
			}
		}
		mgr.mu.Unlock()

		cancel := mustUnlock(t, b, hb, lkid, dlm.FlagCancel)
		if cancel.Status != -dlm.ECANCEL {
			t.Errorf("expected -ECANCEL status, got %d", cancel.Status)
		}
		expectDone(t, waitB, -int(unix.ECANCELED))
	})
}

// --------------------------------------------------------------------------
// Conversions
// --------------------------------------------------------------------------

func TestConversions(t *testing.T) {
	t.Run("UpAndDown", func(t *testing.T) {
		svc := New().NewSession()
		h := attach(t, svc, "ls1")

		lksb := mustLock(t, svc, h, dlm.ModeNL, 0, "res1")
		id := lksb.LockID
		if rc := svc.LockWait(h, dlm.ModeEX, lksb, dlm.FlagConvert, []byte("res1"), 0, 0, nil); rc != 0 {
			t.Fatalf("up conversion failed: rc=%d", rc)
		}
		if rc := svc.LockWait(h, dlm.ModePR, lksb, dlm.FlagConvert, []byte("res1"), 0, 0, nil); rc != 0 {
			t.Fatalf("down conversion failed: rc=%d", rc)
		}
		if lksb.LockID != id {
			t.Fatalf("conversion changed the lock id: %d != %d", lksb.LockID, id)
		}
	})

	t.Run("BeforeWaiters", func(t *testing.T) {
		mgr := New()
		a, b, c := mgr.NewSession(), mgr.NewSession(), mgr.NewSession()
		ha, hb, hc := attach(t, a, "ls1"), attach(t, b, "ls1"), attach(t, c, "ls1")

		lksbA := mustLock(t, a, ha, dlm.ModePR, 0, "res1")
		lksbB := mustLock(t, b, hb, dlm.ModePR, 0, "res1")

		waitC := async(func() int {
			_, rc := request(c, hc, dlm.ModeEX, 0, "res1")
			return rc
		})
		expectPending(t, waitC)

		convA := async(func() int {
			return a.LockWait(ha, dlm.ModeEX, lksbA, dlm.FlagConvert, []byte("res1"), 0, 0, nil)
		})
		expectPending(t, convA)

		mustUnlock(t, b, hb, lksbB.LockID, 0)
		expectDone(t, convA, 0)
		expectPending(t, waitC)
		mustUnlock(t, a, ha, lksbA.LockID, 0)
		expectDone(t, waitC, 0)
	})

	t.Run("Deadlock", func(t *testing.T) {
		mgr := New()
		a, b := mgr.NewSession(), mgr.NewSession()
		ha, hb := attach(t, a, "ls1"), attach(t, b, "ls1")

		lksbA := mustLock(t, a, ha, dlm.ModePR, 0, "res1")
		lksbB := mustLock(t, b, hb, dlm.ModePR, 0, "res1")

		convA := async(func() int {
			return a.LockWait(ha, dlm.ModeEX, lksbA, dlm.FlagConvert, []byte("res1"), 0, 0, nil)
		})
		expectPending(t, convA)

		if rc := b.LockWait(hb, dlm.ModeEX, lksbB, dlm.FlagConvert, []byte("res1"), 0, 0, nil); rc != -int(unix.EDEADLK) {
			t.Fatalf("expected -EDEADLK, got %d", rc)
		}

		convB := async(func() int {
			return b.LockWait(hb, dlm.ModeEX, lksbB, dlm.FlagConvert|dlm.FlagConvDeadlk, []byte("res1"), 0, 0, nil)
		})
		expectDone(t, convA, 0)
		expectPending(t, convB)

		mustUnlock(t, a, ha, lksbA.LockID, 0)
		expectDone(t, convB, 0)
		if dlm.StatusFlag(lksbB.Flags)&dlm.SBFDemoted == 0 {
			t.Errorf("expected DEMOTED in status flags, got %s", dlm.StatusFlag(lksbB.Flags))
		}
	})

	t.Run("UnlockPendingConversion", func(t *testing.T) {
		mgr := New()
		a, b := mgr.NewSession(), mgr.NewSession()
		ha, hb := attach(t, a, "ls1"), attach(t, b, "ls1")

		mustLock(t, a, ha, dlm.ModePR, 0, "res1")
		lksbB := mustLock(t, b, hb, dlm.ModePR, 0, "res1")
		id := lksbB.LockID

		convB := async(func() int {
			return b.LockWait(hb, dlm.ModeEX, lksbB, dlm.FlagConvert, []byte("res1"), 0, 0, nil)
		})
		expectPending(t, convB)

		if rc := b.UnlockWait(hb, id, 0, &dlm.LKSB{}); rc != -int(unix.EBUSY) {
			t.Fatalf("expected -EBUSY, got %d", rc)
		}
		mustUnlock(t, b, hb, id, dlm.FlagForceUnlock)
		expectDone(t, convB, -int(unix.ECANCELED))
	})
}

// --------------------------------------------------------------------------
// Notifications and Value Blocks
// --------------------------------------------------------------------------

func TestBlockingNotifications(t *testing.T) {
	t.Run("DeliveredToBlockingHolder", func(t *testing.T) {
		mgr := New()
		a, b := mgr.NewSession(), mgr.NewSession()
		ha, hb := attach(t, a, "ls1"), attach(t, b, "ls1")

		var got atomic.Uint64
		bast := func(arg uint64) { got.Store(arg) }
		lksb := &dlm.LKSB{}
		if rc := a.LockWait(ha, dlm.ModeEX, lksb, 0, []byte("res1"), 0, 42, bast); rc != 0 {
			t.Fatalf("lock failed: rc=%d", rc)
		}

		if _, rc := request(b, hb, dlm.ModePR, dlm.FlagNoQueue, "res1"); rc != -int(unix.EAGAIN) {
			t.Fatalf("expected -EAGAIN, got %d", rc)
		}
		if got.Load() != 42 {
			t.Fatalf("expected bast with arg 42, got %d", got.Load())
		}
	})

	t.Run("NoQueueBast", func(t *testing.T) {
		mgr := New()
		a, b := mgr.NewSession(), mgr.NewSession()
		ha, hb := attach(t, a, "ls1"), attach(t, b, "ls1")

		var calls atomic.Int32
		lksb := &dlm.LKSB{}
		a.LockWait(ha, dlm.ModeEX, lksb, 0, []byte("res1"), 0, 1, func(uint64) { calls.Add(1) })

		request(b, hb, dlm.ModeEX, dlm.FlagNoQueue|dlm.FlagNoQueueBast, "res1")
		if calls.Load() != 0 {
			t.Fatalf("expected no bast, got %d", calls.Load())
		}
	})
}

func TestValueBlock(t *testing.T) {
	svc := New().NewSession()
	h := attach(t, svc, "ls1")

	lksb := &dlm.LKSB{}
	if rc := svc.LockWait(h, dlm.ModeEX, lksb, dlm.FlagValBlk, []byte("res1"), 0, 0, nil); rc != 0 {
		t.Fatalf("lock failed: rc=%d", rc)
	}
	if dlm.StatusFlag(lksb.Flags)&dlm.SBFValNotValid == 0 {
		t.Error("expected VALNOTVALID for a fresh resource")
	}

	value := make([]byte, dlm.LVBLen)
	copy(value, "hello")
	unlock := &dlm.LKSB{LVB: value}
	if rc := svc.UnlockWait(h, lksb.LockID, dlm.FlagValBlk, unlock); rc != 0 {
		t.Fatalf("unlock failed: rc=%d", rc)
	}
	if unlock.Status != -dlm.EUNLOCK {
		t.Errorf("expected -EUNLOCK status, got %d", unlock.Status)
	}

	again := &dlm.LKSB{}
	if rc := svc.LockWait(h, dlm.ModePR, again, dlm.FlagValBlk, []byte("res1"), 0, 0, nil); rc != 0 {
		t.Fatalf("lock failed: rc=%d", rc)
	}
	if !bytes.Equal(again.LVB, value) {
		t.Errorf("expected value block %q, got %q", value, again.LVB)
	}
	if again.Flags != 0 {
		t.Errorf("expected no status flags, got %s", dlm.StatusFlag(again.Flags))
	}
}

func TestOrphans(t *testing.T) {
	mgr := New()
	a, b := mgr.NewSession(), mgr.NewSession()
	ha := attach(t, a, "ls1")
	hb := attach(t, b, "ls1")

	mustLock(t, a, ha, dlm.ModeEX, dlm.FlagPersistent, "res1")
	if rc := a.ReleaseLockspace("ls1", ha, dlm.ForceLocal); rc != 0 {
		t.Fatalf("release failed: rc=%d", rc)
	}
	if n := mgr.LockCount("ls1"); n != 1 {
		t.Fatalf("expected orphan to survive, got %d locks", n)
	}

	if _, rc := request(b, hb, dlm.ModePR, dlm.FlagOrphan, "res1"); rc != -int(unix.ENOENT) {
		t.Fatalf("expected -ENOENT for a mode mismatch, got %d", rc)
	}
	adopted := mustLock(t, b, hb, dlm.ModeEX, dlm.FlagOrphan, "res1")
	mustUnlock(t, b, hb, adopted.LockID, 0)
	if n := mgr.LockCount("ls1"); n != 0 {
		t.Fatalf("expected no locks after unlocking the adopted lock, got %d", n)
	}
}
