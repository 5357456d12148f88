package dlm

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// Lock is the client side state of one named lock in a Lockspace.
//
// State machine: Unlocked -> Acquire -> Locked -> (Acquire with
// FlagConvert) -> Locked[new mode] -> Release -> Unlocked. A Lock is used by
// at most one goroutine at a time.
type Lock struct {
	ls        *Lockspace
	name      string
	lastMode  LockMode
	lastFlags LockFlag
	locked    bool
	closed    bool
	sb        StatusBlock
	value     []byte // pending value block to send with FlagValBlk
}

// Acquire requests the lock in mode and blocks until the service grants or
// refuses it. mode and flags are passed to the service verbatim; with
// FlagConvert the currently held lock is converted.
//
// On failure the returned error is an *Error and the local state is left
// unchanged.
func (l *Lock) Acquire(mode LockMode, flags LockFlag, opts ...AcquireOption) error {
	ls := l.ls
	if l.closed || ls.handle == 0 {
		return errnoError(unix.EBADF)
	}

	o := acquireOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	lksb := l.newLKSB(flags)

	start := time.Now()
	rc := l.lockWait(mode, flags, lksb, o.notify)

	if rc = completionCode(rc, lksb); rc != 0 {
		ls.metrics.acquireFailed.Inc(1)
		ls.opts.logger.Debugf("acquire %s/%s %s (%s) failed: rc=%d", ls.name, l.name, mode, flags, rc)
		return NewError(rc)
	}
	ls.metrics.acquire.UpdateSince(start)

	l.sb = decodeLKSB(lksb)
	l.lastMode = mode
	l.lastFlags = flags
	l.locked = true
	ls.locks.Store(l, struct{}{})
	return nil
}

// lockWait calls the service with a bridge registration that stays live
// exactly for the blocking window, also when the service panics.
func (l *Lock) lockWait(mode LockMode, flags LockFlag, lksb *LKSB, notify func()) int {
	ls := l.ls
	token, expire := ls.bridge.register(notify)
	defer expire()
	return ls.svc.LockWait(ls.handle, mode, lksb, flags, []byte(l.name), 0, token, ls.bridge.dispatch)
}

// Release unlocks the currently held lock id and blocks until the service
// confirms. On failure the returned error is an *Error and the local state
// is left unchanged.
//
// Releasing with FlagCancel cancels a pending request or conversion; the
// granted lock stays held and Locked() keeps its value.
//
// Release on a closed Lock fails with EBADF.
func (l *Lock) Release(flags LockFlag) error {
	if l.closed {
		return errnoError(unix.EBADF)
	}
	return l.release(flags)
}

func (l *Lock) release(flags LockFlag) error {
	ls := l.ls
	if ls.handle == 0 {
		return errnoError(unix.EBADF)
	}

	lksb := l.newLKSB(flags)
	start := time.Now()
	rc := ls.svc.UnlockWait(ls.handle, l.sb.LockID, flags, lksb)

	if rc = completionCode(rc, lksb); rc != 0 {
		ls.metrics.releaseFailed.Inc(1)
		ls.opts.logger.Debugf("release %s/%s (%s) failed: rc=%d", ls.name, l.name, flags, rc)
		return NewError(rc)
	}
	ls.metrics.release.UpdateSince(start)

	l.sb = decodeLKSB(lksb)
	l.lastFlags = flags
	if flags&FlagValBlk != 0 {
		l.value = nil
	}
	if flags&FlagCancel == 0 {
		l.locked = false
		ls.locks.Delete(l)
	}
	return nil
}

// Hold acquires the lock and returns a Guard whose Release performs the
// matching unlock.
//
// Usage:
//
//	g, err := lock.Hold(dlm.ModeEX, dlm.FlagNoQueue)
//	if err != nil {
//		return err
//	}
//	defer g.Release()
func (l *Lock) Hold(mode LockMode, flags LockFlag, opts ...AcquireOption) (*Guard, error) {
	if err := l.Acquire(mode, flags, opts...); err != nil {
		return nil, err
	}
	return &Guard{lock: l}, nil
}

// Close destroys the Lock. If it is still locked, one implicit Release is
// attempted; a failure is handled by the lockspace cleanup policy and never
// returned. Close is idempotent.
func (l *Lock) Close() {
	if l.closed {
		return
	}
	l.closed = true
	l.ls.locks.Delete(l)

	if !l.locked {
		return
	}
	l.ls.cleanup(fmt.Sprintf("%s/%s", l.ls.name, l.name), func() error {
		return l.release(0)
	})
}

// SetValue sets the value block sent with the next FlagValBlk request that
// writes it (unlock or down-conversion from PW/EX). At most LVBLen bytes
// are kept.
func (l *Lock) SetValue(value []byte) {
	if len(value) > LVBLen {
		value = value[:LVBLen]
	}
	l.value = make([]byte, LVBLen)
	copy(l.value, value)
}

// --------------------------------------------------------------------------
// Accessors
// --------------------------------------------------------------------------

// Status returns a copy of the status block of the last successful operation.
func (l *Lock) Status() StatusBlock {
	return l.sb.clone()
}

// Locked reports whether the lock is held according to the local state.
func (l *Lock) Locked() bool {
	return l.locked
}

// Name returns the resource name.
func (l *Lock) Name() string {
	return l.name
}

// Lockspace returns the lockspace the lock is bound to.
func (l *Lock) Lockspace() *Lockspace {
	return l.ls
}

// LastMode returns the mode of the last successful Acquire (ModeIV if none).
func (l *Lock) LastMode() LockMode {
	return l.lastMode
}

// LastFlags returns the flags of the last successful operation.
func (l *Lock) LastFlags() LockFlag {
	return l.lastFlags
}

// String returns a multi-line dump of the lock state.
func (l *Lock) String() string {
	return fmt.Sprintf("name: %s\nlast_mode: %s\nlast_flags: %s\nlocal_locked: %t\nlast_sb: %s",
		l.name, l.lastMode, l.lastFlags, l.locked, l.sb)
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// newLKSB prepares the raw status block for a service call. It carries the
// current lock id and, for value block requests, a buffer seeded with the
// pending or last known value.
func (l *Lock) newLKSB(flags LockFlag) *LKSB {
	lksb := &LKSB{LockID: l.sb.LockID}
	if flags&FlagValBlk != 0 {
		lksb.LVB = make([]byte, LVBLen)
		if l.value != nil {
			copy(lksb.LVB, l.value)
		} else {
			copy(lksb.LVB, l.sb.Value)
		}
	}
	return lksb
}

// invalidate marks the lock as reclaimed by a lockspace release.
func (l *Lock) invalidate() {
	l.locked = false
}

// completionCode folds the completion status of the lksb into rc: a call
// that returned 0 but left a failure status is a failure.
func completionCode(rc int, lksb *LKSB) int {
	if rc != 0 {
		return rc
	}
	switch s := lksb.Status; {
	case s == 0, s == -EUNLOCK, s == -ECANCEL:
		return 0
	case s > 0:
		return -int(s)
	default:
		return int(s)
	}
}

// --------------------------------------------------------------------------
// Guard
// --------------------------------------------------------------------------

// Guard is a held lock whose Release performs the unlock. Failures are
// handled by the lockspace cleanup policy.
type Guard struct {
	lock     *Lock
	released bool
}

// Lock returns the guarded lock.
func (g *Guard) Lock() *Lock {
	return g.lock
}

// Release unlocks the guarded lock once. Further calls are no-ops.
func (g *Guard) Release() {
	if g.released {
		return
	}
	g.released = true
	if g.lock.closed || !g.lock.locked || g.lock.ls.handle == 0 {
		return
	}
	g.lock.ls.cleanup(fmt.Sprintf("%s/%s", g.lock.ls.name, g.lock.name), func() error {
		return g.lock.Release(0)
	})
}
