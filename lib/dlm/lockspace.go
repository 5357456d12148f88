package dlm

import (
	"fmt"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	gometrics "github.com/rcrowley/go-metrics"
	"golang.org/x/sys/unix"
)

// Lockspace is an attached, named lockspace of a Service and the factory
// for the Locks bound to it.
//
// Lockspace lifecycle operations must not run concurrently with operations
// on its Locks; the caller serializes them.
type Lockspace struct {
	name    string
	mode    uint32
	svc     Service
	handle  LockspaceHandle
	bridge  *bridge
	locks   *xsync.MapOf[*Lock, struct{}]
	opts    lockspaceOptions
	metrics *lockspaceMetrics
}

// CreateLockspace attaches to (or creates, if absent) the lockspace name of
// svc with the permission bits mode.
//
// Usage:
//
//	ls, err := dlm.CreateLockspace(svc, "default", dlm.DefaultMode)
//	if err != nil {
//		return err
//	}
//	defer ls.Close()
func CreateLockspace(svc Service, name string, mode uint32, opts ...Option) (*Lockspace, error) {
	if svc == nil {
		panic("dlm: CreateLockspace called with nil service")
	}
	if name == "" || len(name) > MaxLockspaceNameLen {
		return nil, errnoError(unix.EINVAL)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = gometrics.NewRegistry()
	}

	handle, rc := svc.CreateLockspace(name, mode)
	if handle == 0 {
		// a null handle without a reason is an allocation failure in the service
		if rc >= 0 {
			rc = -int(unix.ENOMEM)
		}
		o.logger.Warningf("failed to create lockspace %s: rc=%d", name, rc)
		return nil, NewError(rc)
	}

	m := newLockspaceMetrics(o.registry)
	ls := &Lockspace{
		name:    name,
		mode:    mode,
		svc:     svc,
		handle:  handle,
		bridge:  newBridge(m.bastDelivered, m.bastDropped),
		locks:   xsync.NewMapOf[*Lock, struct{}](),
		opts:    o,
		metrics: m,
	}
	o.logger.Debugf("attached lockspace %s (mode %#o)", name, mode)
	return ls, nil
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

// Release detaches from the lockspace. force is one of ForceNone,
// ForceLocal or ForceAll. Releasing an already released lockspace is a
// no-op. On failure the lockspace stays attached.
//
// After a successful release no blocking notification is delivered for any
// lock of this lockspace and all its Locks report Locked() == false.
func (ls *Lockspace) Release(force int) error {
	if ls.handle == 0 {
		return nil
	}

	rc := ls.svc.ReleaseLockspace(ls.name, ls.handle, force)
	if rc != 0 {
		ls.opts.logger.Warningf("failed to release lockspace %s (force=%d): rc=%d", ls.name, force, rc)
		return NewError(rc)
	}

	ls.handle = 0
	ls.bridge.close()
	ls.locks.Range(func(l *Lock, _ struct{}) bool {
		l.invalidate()
		return true
	})
	ls.locks.Clear()

	ls.opts.logger.Debugf("released lockspace %s (force=%d)", ls.name, force)
	return nil
}

// Close releases the lockspace with ForceAll.
func (ls *Lockspace) Close() error {
	return ls.Release(ForceAll)
}

// CreateLock returns a new, unlocked Lock for the resource name. The
// service is not contacted and nothing is registered until the Lock is
// acquired, so Close is optional for a Lock that was released.
//
// Lock names are passed to the service byte by byte; prefer names whose
// length is a multiple of 8 for interoperability.
func (ls *Lockspace) CreateLock(name string) *Lock {
	l := &Lock{
		ls:       ls,
		name:     name,
		lastMode: ModeIV,
	}
	return l
}

// --------------------------------------------------------------------------
// Accessors
// --------------------------------------------------------------------------

// Name returns the lockspace name.
func (ls *Lockspace) Name() string {
	return ls.name
}

// Mode returns the permission bits the lockspace was created with.
func (ls *Lockspace) Mode() uint32 {
	return ls.mode
}

// Released reports whether the lockspace has been released.
func (ls *Lockspace) Released() bool {
	return ls.handle == 0
}

// Metrics returns the registry holding the lockspace metrics.
func (ls *Lockspace) Metrics() gometrics.Registry {
	return ls.opts.registry
}

// String implements fmt.Stringer.
func (ls *Lockspace) String() string {
	return fmt.Sprintf("Lockspace: %s", ls.name)
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// cleanup runs an implicit release according to the cleanup policy. It
// never panics and never returns an error.
func (ls *Lockspace) cleanup(what string, release func() error) {
	attempts := 1
	if ls.opts.policy == CleanupRetry {
		attempts += ls.opts.retries
	}

	var err error
	for i := 0; i < attempts; i++ {
		if err = safeCall(release); err == nil {
			return
		}
		if i+1 < attempts {
			ls.opts.logger.Debugf("implicit release of %s failed (attempt %d/%d): %v", what, i+1, attempts, err)
			time.Sleep(time.Duration(i+1) * 10 * time.Millisecond)
		}
	}

	ls.metrics.cleanupFailed.Inc(1)
	if ls.opts.policy == CleanupIgnore {
		return
	}
	ls.opts.logger.Errorf("implicit release of %s failed: %v", what, err)
	if ls.opts.sink != nil {
		ls.opts.sink(err)
	}
}

// safeCall runs fn and turns a panic into an error.
func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dlm: panic during release: %v", r)
		}
	}()
	return fn()
}
