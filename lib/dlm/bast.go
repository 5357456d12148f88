package dlm

import (
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
	gometrics "github.com/rcrowley/go-metrics"
)

// --------------------------------------------------------------------------
// Notification Options
// --------------------------------------------------------------------------

// AcquireOption configures a single Acquire call.
type AcquireOption func(*acquireOptions)

type acquireOptions struct {
	notify func()
}

// WithNotify installs fn as the blocking notification handler for the
// duration of one Acquire call.
func WithNotify(fn func()) AcquireOption {
	return func(o *acquireOptions) {
		o.notify = fn
	}
}

// Notify installs fn as the blocking notification handler and threads arg
// back to it unchanged on every notification.
//
// Usage:
//
//	err := lock.Acquire(dlm.ModeEX, 0, dlm.Notify(func(job *Job) {
//		job.Yield()
//	}, job))
func Notify[T any](fn func(T), arg T) AcquireOption {
	return WithNotify(func() { fn(arg) })
}

// --------------------------------------------------------------------------
// Callback Bridge
// --------------------------------------------------------------------------

// bastRegistration is a handler that is live between register and expire.
type bastRegistration struct {
	mu     sync.RWMutex
	active bool
	fn     func()
}

// bridge hands out opaque tokens to the service and maps them back to typed
// Go closures. A token is only honoured while its registration is active;
// notifications for expired or unknown tokens are dropped.
type bridge struct {
	regs      *xsync.MapOf[uint64, *bastRegistration]
	nextToken atomic.Uint64
	closed    atomic.Bool
	delivered gometrics.Counter
	dropped   gometrics.Counter
}

func newBridge(delivered, dropped gometrics.Counter) *bridge {
	return &bridge{
		regs:      xsync.NewMapOf[uint64, *bastRegistration](),
		delivered: delivered,
		dropped:   dropped,
	}
}

// register activates fn (or a no-op if fn is nil) and returns the token to
// pass to the service plus the function that expires the registration.
// Once expire returns, fn is neither running nor invoked again.
func (b *bridge) register(fn func()) (token uint64, expire func()) {
	if fn == nil {
		fn = func() {}
	}
	reg := &bastRegistration{active: true, fn: fn}
	token = b.nextToken.Add(1)
	b.regs.Store(token, reg)

	return token, func() {
		b.regs.Delete(token)
		reg.deactivate()
	}
}

// dispatch is the BastFunc handed to the service.
func (b *bridge) dispatch(token uint64) {
	if b.closed.Load() {
		b.dropped.Inc(1)
		return
	}
	reg, ok := b.regs.Load(token)
	if !ok {
		b.dropped.Inc(1)
		return
	}

	reg.mu.RLock()
	defer reg.mu.RUnlock()
	if !reg.active {
		b.dropped.Inc(1)
		return
	}

	// the handler runs on a goroutine owned by the service, a panic must not escape
	defer func() {
		if r := recover(); r != nil {
			Logger.Errorf("blocking notification handler panicked: %v", r)
		}
	}()
	reg.fn()
	b.delivered.Inc(1)
}

// close expires every registration; later notifications are dropped.
func (b *bridge) close() {
	b.closed.Store(true)
	b.regs.Range(func(token uint64, reg *bastRegistration) bool {
		reg.deactivate()
		return true
	})
	b.regs.Clear()
}

// active returns the number of live registrations.
func (b *bridge) active() int {
	return b.regs.Size()
}

func (r *bastRegistration) deactivate() {
	r.mu.Lock()
	r.active = false
	r.mu.Unlock()
}
