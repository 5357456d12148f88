package lsvc

import (
	"sort"

	"github.com/xzl01/dlm/lib/dlm"
)

// lkbState is the queue a lock block is on.
type lkbState int

const (
	stateGranted lkbState = iota
	stateConverting
	stateWaiting
)

// attachment is one CreateLockspace call of one owner.
type attachment struct {
	handle dlm.LockspaceHandle
	ls     *lockspace
	owner  string
}

// lockspace holds the resources of one named lockspace.
type lockspace struct {
	name      string
	mode      uint32
	users     int
	resources map[string]*resource
	locks     map[uint32]*lkb
}

// resource is a named lock resource with its value block. Resources are kept
// for the lifetime of the lockspace so the value block survives the last
// unlock.
type resource struct {
	name     string
	lvb      []byte
	lvbValid bool
	lkbs     []*lkb
}

// lkb is a lock block. A granted lock has grmode set; a pending request has
// done set and waits for exactly one completion code on it.
type lkb struct {
	id         uint32
	att        dlm.LockspaceHandle // 0 for an orphan
	res        *resource
	state      lkbState
	grmode     dlm.LockMode
	rqmode     dlm.LockMode
	flags      dlm.LockFlag
	persistent bool
	seq        int64
	bastArg    uint64
	bast       dlm.BastFunc
	done       chan int

	// result of the last grant, read by the waiter after done
	sbflags uint8
	lvbOut  []byte
}

// pendingBast is a blocking notification collected under the service mutex
// and delivered after it is released.
type pendingBast struct {
	fn  dlm.BastFunc
	arg uint64
}

// --------------------------------------------------------------------------
// lockspace
// --------------------------------------------------------------------------

func newLockspace(name string, mode uint32) *lockspace {
	return &lockspace{
		name:      name,
		mode:      mode,
		resources: make(map[string]*resource),
		locks:     make(map[uint32]*lkb),
	}
}

// resource returns the resource name, creating it if absent.
func (ls *lockspace) resource(name string) *resource {
	res, ok := ls.resources[name]
	if !ok {
		res = &resource{name: name, lvb: make([]byte, dlm.LVBLen)}
		ls.resources[name] = res
	}
	return res
}

// ownedBy returns the locks created through the attachment handle.
func (ls *lockspace) ownedBy(handle dlm.LockspaceHandle) []*lkb {
	var owned []*lkb
	for _, lk := range ls.locks {
		if lk.att == handle {
			owned = append(owned, lk)
		}
	}
	return owned
}

// --------------------------------------------------------------------------
// resource
// --------------------------------------------------------------------------

func (r *resource) add(lk *lkb) {
	r.lkbs = append(r.lkbs, lk)
}

func (r *resource) remove(lk *lkb) {
	for i, other := range r.lkbs {
		if other == lk {
			r.lkbs = append(r.lkbs[:i], r.lkbs[i+1:]...)
			return
		}
	}
}

// holders returns the locks that hold a granted mode, including those with a
// pending conversion.
func (r *resource) holders() []*lkb {
	var out []*lkb
	for _, lk := range r.lkbs {
		if lk.state != stateWaiting {
			out = append(out, lk)
		}
	}
	return out
}

// queue returns the locks in state, ordered by queue position.
func (r *resource) queue(state lkbState) []*lkb {
	var out []*lkb
	for _, lk := range r.lkbs {
		if lk.state == state {
			out = append(out, lk)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// compatible reports whether mode is compatible with every granted mode
// except that of self.
func (r *resource) compatible(self *lkb, mode dlm.LockMode) bool {
	for _, h := range r.holders() {
		if h != self && !dlm.Compatible(h.grmode, mode) {
			return false
		}
	}
	return true
}

// blockers returns the notifications owed to the holders whose granted mode
// blocks mode.
func (r *resource) blockers(self *lkb, mode dlm.LockMode) []pendingBast {
	var out []pendingBast
	for _, h := range r.holders() {
		if h == self || h.bast == nil || dlm.Compatible(h.grmode, mode) {
			continue
		}
		out = append(out, pendingBast{fn: h.bast, arg: h.bastArg})
	}
	return out
}

// readLVB snapshots the value block for a grant with FlagValBlk.
func (r *resource) readLVB(lk *lkb) {
	if lk.flags&dlm.FlagValBlk == 0 {
		lk.lvbOut = nil
		return
	}
	lk.lvbOut = make([]byte, dlm.LVBLen)
	copy(lk.lvbOut, r.lvb)
	if !r.lvbValid {
		lk.sbflags |= uint8(dlm.SBFValNotValid)
	}
}

// writeLVB stores value as the resource value block.
func (r *resource) writeLVB(value []byte) {
	r.lvb = make([]byte, dlm.LVBLen)
	copy(r.lvb, value)
	r.lvbValid = true
}

// --------------------------------------------------------------------------
// lkb
// --------------------------------------------------------------------------

func (lk *lkb) pending() bool {
	return lk.state != stateGranted
}

// wait prepares lk for a blocking request.
func (lk *lkb) wait(state lkbState, mode dlm.LockMode) {
	lk.state = state
	lk.rqmode = mode
	lk.done = make(chan int, 1)
}

// complete ends a pending request with rc. A converting lock keeps its
// granted mode; a waiting lock is left for the caller to remove.
func (lk *lkb) complete(rc int) {
	if lk.state == stateConverting {
		lk.state = stateGranted
		lk.rqmode = lk.grmode
	}
	if lk.done != nil {
		lk.done <- rc
		lk.done = nil
	}
}

// grant moves lk to the granted queue in mode and completes a pending
// request.
func (lk *lkb) grant(mode dlm.LockMode) {
	lk.grmode = mode
	lk.rqmode = mode
	lk.state = stateGranted
	lk.res.readLVB(lk)
	if lk.done != nil {
		lk.done <- 0
		lk.done = nil
	}
}
