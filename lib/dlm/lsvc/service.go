package lsvc

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/xzl01/dlm/lib/dlm"
	"golang.org/x/sys/unix"
)

var (
	log = logger.GetLogger("lsvc")
)

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// Option configures a Service.
type Option func(*Service)

// WithMaxLockspaces limits the number of lockspaces that can exist at the
// same time. Creating more fails with ENOMEM. Zero means unlimited.
func WithMaxLockspaces(n int) Option {
	return func(s *Service) {
		s.maxLockspaces = n
	}
}

// WithLockTimeout sets how long a request with dlm.FlagTimeout may wait
// before it fails with ETIMEDOUT. Zero disables the timeout.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.lockTimeout = d
	}
}

// --------------------------------------------------------------------------
// Service
// --------------------------------------------------------------------------

// Service is an in-process lock manager. All sessions created from one
// Service share its lockspaces and locks, so two sessions behave like two
// processes on a cluster.
type Service struct {
	mu            sync.Mutex
	lockspaces    map[string]*lockspace
	attachments   map[dlm.LockspaceHandle]*attachment
	nextHandle    uint64
	nextLkid      uint32
	tailSeq       int64
	headSeq       int64
	maxLockspaces int
	lockTimeout   time.Duration
}

// New creates an empty lock manager.
func New(opts ...Option) *Service {
	s := &Service{
		lockspaces:  make(map[string]*lockspace),
		attachments: make(map[dlm.LockspaceHandle]*attachment),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Session returns a dlm.Service bound to owner. Handles issued to one
// owner cannot be used by another.
func (s *Service) Session(owner string) dlm.Service {
	return &session{svc: s, owner: owner}
}

// NewSession returns a dlm.Service bound to a fresh random owner.
func (s *Service) NewSession() dlm.Service {
	return s.Session(uuid.NewString())
}

// Lockspaces returns the sorted names of all existing lockspaces.
func (s *Service) Lockspaces() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.lockspaces))
	for name := range s.lockspaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LockCount returns the number of locks (granted or pending) in the
// lockspace name, or -1 if it does not exist.
func (s *Service) LockCount(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	ls, ok := s.lockspaces[name]
	if !ok {
		return -1
	}
	return len(ls.locks)
}

// --------------------------------------------------------------------------
// Session (implements dlm.Service)
// --------------------------------------------------------------------------

type session struct {
	svc   *Service
	owner string
}

func (se *session) CreateLockspace(name string, mode uint32) (dlm.LockspaceHandle, int) {
	return se.svc.createLockspace(se.owner, name, mode)
}

func (se *session) ReleaseLockspace(name string, ls dlm.LockspaceHandle, force int) int {
	return se.svc.releaseLockspace(se.owner, name, ls, force)
}

func (se *session) LockWait(ls dlm.LockspaceHandle, mode dlm.LockMode, lksb *dlm.LKSB, flags dlm.LockFlag, name []byte, parent uint32, bastArg uint64, bast dlm.BastFunc) int {
	return se.svc.lockWait(se.owner, ls, mode, lksb, flags, name, parent, bastArg, bast)
}

func (se *session) UnlockWait(ls dlm.LockspaceHandle, lkid uint32, flags dlm.LockFlag, lksb *dlm.LKSB) int {
	return se.svc.unlockWait(se.owner, ls, lkid, flags, lksb)
}

// --------------------------------------------------------------------------
// Lockspace operations
// --------------------------------------------------------------------------

func (s *Service) createLockspace(owner, name string, mode uint32) (dlm.LockspaceHandle, int) {
	if name == "" || len(name) > dlm.MaxLockspaceNameLen {
		return 0, -int(unix.EINVAL)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ls, ok := s.lockspaces[name]
	if !ok {
		if s.maxLockspaces > 0 && len(s.lockspaces) >= s.maxLockspaces {
			return 0, -int(unix.ENOMEM)
		}
		ls = newLockspace(name, mode)
		s.lockspaces[name] = ls
		log.Infof("created lockspace %s (mode %#o)", name, mode)
	}

	s.nextHandle++
	handle := dlm.LockspaceHandle(s.nextHandle)
	s.attachments[handle] = &attachment{handle: handle, ls: ls, owner: owner}
	ls.users++

	log.Debugf("%s attached to lockspace %s (handle %d, users %d)", owner, name, handle, ls.users)
	return handle, 0
}

func (s *Service) releaseLockspace(owner, name string, handle dlm.LockspaceHandle, force int) int {
	if force < dlm.ForceNone || force > dlm.ForceAll {
		return -int(unix.EINVAL)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	att, rc := s.attachment(owner, handle)
	if rc != 0 {
		return rc
	}
	ls := att.ls
	if ls.name != name {
		return -int(unix.EINVAL)
	}

	owned := ls.ownedBy(handle)
	if force == dlm.ForceNone && len(owned) > 0 {
		return -int(unix.EBUSY)
	}

	destroy := ls.users == 1 && force == dlm.ForceAll
	touched := make(map[*resource]struct{})
	for _, lk := range owned {
		touched[lk.res] = struct{}{}
		if lk.persistent && lk.state == stateGranted && !destroy {
			// the lock outlives its owner
			lk.att = 0
			lk.bast = nil
			continue
		}
		s.drop(ls, lk, -int(unix.ECANCELED))
	}

	delete(s.attachments, handle)
	ls.users--

	if destroy || (ls.users == 0 && len(ls.locks) == 0) {
		for _, lk := range ls.locks {
			s.drop(ls, lk, -int(unix.ECANCELED))
		}
		delete(s.lockspaces, ls.name)
		log.Infof("removed lockspace %s", ls.name)
		return 0
	}

	for res := range touched {
		s.grantPending(res)
	}
	log.Debugf("%s detached from lockspace %s (force=%d, users %d)", owner, name, force, ls.users)
	return 0
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// attachment resolves a handle for owner. Must be called with s.mu held.
func (s *Service) attachment(owner string, handle dlm.LockspaceHandle) (*attachment, int) {
	att, ok := s.attachments[handle]
	if !ok || att.owner != owner {
		return nil, -int(unix.EINVAL)
	}
	return att, 0
}

// newLkid returns the next non-zero lock id. Must be called with s.mu held.
func (s *Service) newLkid() uint32 {
	s.nextLkid++
	if s.nextLkid == 0 {
		s.nextLkid++
	}
	return s.nextLkid
}

// enqueue stamps lk with its queue position. HEADQUE requests go before
// everything queued so far. Must be called with s.mu held.
func (s *Service) enqueue(lk *lkb, head bool) {
	if head {
		s.headSeq--
		lk.seq = s.headSeq
	} else {
		s.tailSeq++
		lk.seq = s.tailSeq
	}
}

// drop removes lk from the lockspace, completing a pending request with rc.
// Must be called with s.mu held.
func (s *Service) drop(ls *lockspace, lk *lkb, rc int) {
	if lk.pending() {
		lk.complete(rc)
	}
	lk.res.remove(lk)
	delete(ls.locks, lk.id)
}
