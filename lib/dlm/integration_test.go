package dlm_test

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/xzl01/dlm/lib/dlm"
	"github.com/xzl01/dlm/lib/dlm/lsvc"
	"golang.org/x/sys/unix"
)

func createLockspace(t *testing.T, svc dlm.Service, name string) *dlm.Lockspace {
	t.Helper()
	ls, err := dlm.CreateLockspace(svc, name, dlm.DefaultMode)
	if err != nil {
		t.Fatalf("CreateLockspace(%s) failed: %v", name, err)
	}
	t.Cleanup(func() { ls.Close() })
	return ls
}

func TestEndToEnd(t *testing.T) {
	ls := createLockspace(t, lsvc.New().NewSession(), "default")

	lock := ls.CreateLock("testlock1")
	defer lock.Close()

	if err := lock.Acquire(dlm.ModeEX, dlm.FlagNoQueue); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	sb := lock.Status()
	if sb.Status != 0 || sb.LockID == 0 {
		t.Fatalf("unexpected status after Acquire: %s", sb)
	}

	if err := lock.Release(0); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if lock.Status().Status != -dlm.EUNLOCK {
		t.Fatalf("expected -EUNLOCK after Release, got %s", lock.Status())
	}
	if lock.Locked() {
		t.Fatal("lock still locked after Release")
	}

	// a released lock can be acquired again
	if err := lock.Acquire(dlm.ModePR, 0); err != nil {
		t.Fatalf("second Acquire failed: %v", err)
	}
}

func TestContention(t *testing.T) {
	mgr := lsvc.New()
	lsA := createLockspace(t, mgr.NewSession(), "default")
	lsB := createLockspace(t, mgr.NewSession(), "default")

	holder := lsA.CreateLock("res1")
	if err := holder.Acquire(dlm.ModeEX, 0); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lock := lsB.CreateLock("res1")
			defer lock.Close()
			errs <- lock.Acquire(dlm.ModeEX, dlm.FlagNoQueue)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if !dlm.IsNotAvailable(err) {
			t.Errorf("expected lock not available, got %v", err)
		}
	}
}

func TestReleaseWithoutAcquire(t *testing.T) {
	ls := createLockspace(t, lsvc.New().NewSession(), "default")
	lock := ls.CreateLock("testlock1")

	for i := 0; i < 2; i++ {
		if err := lock.Acquire(dlm.ModeEX, 0); err != nil {
			t.Fatalf("Acquire %d failed: %v", i, err)
		}
		if err := lock.Release(0); err != nil {
			t.Fatalf("Release %d failed: %v", i, err)
		}
	}

	err := lock.Release(0)
	if dlm.Errno(err) != unix.EINVAL {
		t.Fatalf("expected EINVAL for a release without acquire, got %v", err)
	}
	if lock.Locked() {
		t.Error("failed release changed the locked state")
	}
}

func TestContentionSameLockspace(t *testing.T) {
	ls := createLockspace(t, lsvc.New().NewSession(), "default")

	first := ls.CreateLock("testlock1")
	defer first.Close()
	if err := first.Acquire(dlm.ModeEX, 0); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	errs := make(chan error, 1)
	go func() {
		second := ls.CreateLock("testlock1")
		defer second.Close()
		errs <- second.Acquire(dlm.ModeEX, dlm.FlagNoQueue)
	}()

	select {
	case err := <-errs:
		if !dlm.IsNotAvailable(err) {
			t.Fatalf("expected lock not available, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("NOQUEUE request blocked")
	}
	if !first.Locked() {
		t.Error("holder lost its lock")
	}
}

func TestConversion(t *testing.T) {
	ls := createLockspace(t, lsvc.New().NewSession(), "default")
	lock := ls.CreateLock("res1")

	if err := lock.Acquire(dlm.ModeNL, 0); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	id := lock.Status().LockID
	if err := lock.Acquire(dlm.ModeEX, dlm.FlagConvert); err != nil {
		t.Fatalf("conversion failed: %v", err)
	}
	if lock.LastMode() != dlm.ModeEX || lock.Status().LockID != id {
		t.Fatalf("unexpected state after conversion:\n%s", lock)
	}
}

func TestValueBlock(t *testing.T) {
	mgr := lsvc.New()
	writer := createLockspace(t, mgr.NewSession(), "default").CreateLock("res1")
	reader := createLockspace(t, mgr.NewSession(), "default").CreateLock("res1")

	if err := writer.Acquire(dlm.ModeEX, dlm.FlagValBlk); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if writer.Status().ValueValid() {
		t.Error("expected an invalid value block on a fresh resource")
	}
	writer.SetValue([]byte("generation-1"))
	if err := writer.Release(dlm.FlagValBlk); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	if err := reader.Acquire(dlm.ModePR, dlm.FlagValBlk); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	sb := reader.Status()
	if !sb.ValueValid() || !bytes.HasPrefix(sb.Value, []byte("generation-1")) {
		t.Fatalf("unexpected value block: %s", sb)
	}
}

func TestBlockingNotification(t *testing.T) {
	mgr := lsvc.New()
	lsA := createLockspace(t, mgr.NewSession(), "default")
	lsB := createLockspace(t, mgr.NewSession(), "default")
	lsC := createLockspace(t, mgr.NewSession(), "default")

	a := lsA.CreateLock("res1")
	c := lsC.CreateLock("res1")
	if err := a.Acquire(dlm.ModePR, 0); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if err := c.Acquire(dlm.ModePR, 0); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	// A blocks converting to EX while C holds PR
	notified := make(chan struct{}, 1)
	converted := make(chan error, 1)
	go func() {
		converted <- a.Acquire(dlm.ModeEX, dlm.FlagConvert, dlm.WithNotify(func() {
			select {
			case notified <- struct{}{}:
			default:
			}
		}))
	}()
	time.Sleep(50 * time.Millisecond)

	// B's request is blocked by A's granted PR, A is in its blocking window
	if err := lsB.CreateLock("res1").Acquire(dlm.ModeEX, dlm.FlagNoQueue); !dlm.IsNotAvailable(err) {
		t.Fatalf("expected lock not available, got %v", err)
	}
	select {
	case <-notified:
	case <-time.After(time.Second):
		t.Fatal("blocking notification not delivered")
	}

	if err := c.Release(0); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	select {
	case err := <-converted:
		if err != nil {
			t.Fatalf("conversion failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("conversion not granted")
	}

	// the window is closed, later notifications are dropped
	if err := lsB.CreateLock("res1").Acquire(dlm.ModePR, dlm.FlagNoQueue); !dlm.IsNotAvailable(err) {
		t.Fatalf("expected lock not available, got %v", err)
	}
	select {
	case <-notified:
		t.Fatal("notification delivered outside the blocking window")
	default:
	}
}

func TestLockspaceReleaseReclaimsLocks(t *testing.T) {
	mgr := lsvc.New()
	ls, err := dlm.CreateLockspace(mgr.NewSession(), "default", dlm.DefaultMode)
	if err != nil {
		t.Fatalf("CreateLockspace failed: %v", err)
	}
	lock := ls.CreateLock("res1")
	if err := lock.Acquire(dlm.ModeEX, 0); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	if err := ls.Release(dlm.ForceNone); err == nil {
		t.Fatal("expected ForceNone release to fail with a held lock")
	}
	if err := ls.Release(dlm.ForceLocal); err != nil {
		t.Fatalf("ForceLocal release failed: %v", err)
	}
	if lock.Locked() {
		t.Fatal("lock still locked after lockspace release")
	}
	if names := mgr.Lockspaces(); len(names) != 0 {
		t.Fatalf("expected lockspace to be removed, got %v", names)
	}
	lock.Close()
}
