package lsvc

import (
	"time"

	"github.com/xzl01/dlm/lib/dlm"
	"golang.org/x/sys/unix"
)

// --------------------------------------------------------------------------
// Lock requests
// --------------------------------------------------------------------------

func (s *Service) lockWait(owner string, handle dlm.LockspaceHandle, mode dlm.LockMode, lksb *dlm.LKSB, flags dlm.LockFlag, name []byte, parent uint32, bastArg uint64, bast dlm.BastFunc) int {
	if lksb == nil || !mode.Valid() || parent != 0 {
		return -int(unix.EINVAL)
	}
	if flags&dlm.FlagConvert == 0 && (len(name) == 0 || len(name) > dlm.MaxResourceNameLen) {
		return -int(unix.EINVAL)
	}
	if flags.Has(dlm.FlagCancel) || flags.Has(dlm.FlagForceUnlock) {
		return -int(unix.EINVAL)
	}
	if flags.Has(dlm.FlagExpedite) && (mode != dlm.ModeNL || flags.Has(dlm.FlagConvert)) {
		return -int(unix.EINVAL)
	}

	s.mu.Lock()
	att, rc := s.attachment(owner, handle)
	if rc != 0 {
		s.mu.Unlock()
		return rc
	}

	var (
		lk    *lkb
		done  chan int
		basts []pendingBast
	)
	if flags.Has(dlm.FlagConvert) {
		lk, done, basts, rc = s.convert(att, mode, lksb, flags, bastArg, bast)
	} else {
		lk, done, basts, rc = s.request(att, mode, flags, string(name), bastArg, bast)
	}
	if lk != nil {
		lksb.LockID = lk.id
	}
	s.mu.Unlock()

	deliver(basts)

	if done != nil {
		rc = s.wait(att.ls, lk, done, flags)
	}
	if rc != 0 {
		lksb.Status = int32(rc)
		return rc
	}

	s.mu.Lock()
	fillLKSB(lksb, lk)
	s.mu.Unlock()
	return 0
}

// request places a new lock. It returns the lock block and, when the
// request has to wait, the channel its completion arrives on. Must be called
// with s.mu held.
func (s *Service) request(att *attachment, mode dlm.LockMode, flags dlm.LockFlag, name string, bastArg uint64, bast dlm.BastFunc) (*lkb, chan int, []pendingBast, int) {
	ls := att.ls
	res := ls.resource(name)

	if flags.Has(dlm.FlagOrphan) {
		for _, lk := range res.holders() {
			if lk.att == 0 && lk.grmode == mode {
				lk.att = att.handle
				lk.flags = flags
				lk.bast, lk.bastArg = bast, bastArg
				lk.sbflags = 0
				res.readLVB(lk)
				log.Debugf("adopted orphan lock %d on %s/%s", lk.id, ls.name, name)
				return lk, nil, nil, 0
			}
		}
		return nil, nil, nil, -int(unix.ENOENT)
	}

	lk := &lkb{
		id:         s.newLkid(),
		att:        att.handle,
		res:        res,
		grmode:     dlm.ModeIV,
		rqmode:     mode,
		flags:      flags,
		persistent: flags.Has(dlm.FlagPersistent),
		bastArg:    bastArg,
		bast:       bast,
	}

	queued := len(res.queue(stateConverting)) > 0 || len(res.queue(stateWaiting)) > 0
	ordered := !flags.Has(dlm.FlagNoOrder) && !flags.Has(dlm.FlagExpedite)
	if !(ordered && queued) {
		if granted, ok := grantMode(res, lk, mode, flags); ok {
			lk.state = stateGranted
			res.add(lk)
			ls.locks[lk.id] = lk
			lk.grant(granted)
			return lk, nil, nil, 0
		}
	}

	var basts []pendingBast
	if !(flags.Has(dlm.FlagNoQueue) && flags.Has(dlm.FlagNoQueueBast)) {
		basts = res.blockers(lk, mode)
	}
	if flags.Has(dlm.FlagNoQueue) {
		return nil, nil, basts, -int(unix.EAGAIN)
	}

	lk.wait(stateWaiting, mode)
	s.enqueue(lk, flags.Has(dlm.FlagHeadQue))
	res.add(lk)
	ls.locks[lk.id] = lk
	return lk, lk.done, basts, 0
}

// convert changes the mode of a granted lock. Must be called with s.mu held.
func (s *Service) convert(att *attachment, mode dlm.LockMode, lksb *dlm.LKSB, flags dlm.LockFlag, bastArg uint64, bast dlm.BastFunc) (*lkb, chan int, []pendingBast, int) {
	lk, ok := att.ls.locks[lksb.LockID]
	if !ok || lk.att != att.handle {
		return nil, nil, nil, -int(unix.EINVAL)
	}
	if lk.state != stateGranted {
		return nil, nil, nil, -int(unix.EBUSY)
	}
	res := lk.res

	// value block written on down-conversion from PW or EX
	if flags.Has(dlm.FlagValBlk) && lk.grmode >= dlm.ModePW && mode < lk.grmode && lksb.LVB != nil {
		res.writeLVB(lksb.LVB)
	}
	if flags.Has(dlm.FlagIvValBlk) {
		res.lvbValid = false
	}

	lk.flags = flags
	lk.bast, lk.bastArg = bast, bastArg
	lk.sbflags = 0

	queueFirst := flags.Has(dlm.FlagQueCvt) && len(res.queue(stateConverting)) > 0
	if !queueFirst {
		if granted, ok := grantMode(res, lk, mode, flags); ok {
			lk.grant(granted)
			s.grantPending(res)
			return lk, nil, nil, 0
		}
	}

	if deadlocked(res, lk, mode) {
		if !flags.Has(dlm.FlagConvDeadlk) {
			return nil, nil, nil, -int(unix.EDEADLK)
		}
		lk.grmode = dlm.ModeNL
		lk.sbflags |= uint8(dlm.SBFDemoted)
		log.Debugf("demoted lock %d on %s/%s to NL", lk.id, att.ls.name, res.name)
		if !queueFirst {
			if granted, ok := grantMode(res, lk, mode, flags); ok {
				lk.grant(granted)
				s.grantPending(res)
				return lk, nil, nil, 0
			}
		}
	}

	var basts []pendingBast
	if !(flags.Has(dlm.FlagNoQueue) && flags.Has(dlm.FlagNoQueueBast)) {
		basts = res.blockers(lk, mode)
	}
	if flags.Has(dlm.FlagNoQueue) {
		if lk.sbflags&uint8(dlm.SBFDemoted) != 0 {
			s.grantPending(res)
		}
		return nil, nil, basts, -int(unix.EAGAIN)
	}

	lk.wait(stateConverting, mode)
	done := lk.done
	s.enqueue(lk, flags.Has(dlm.FlagHeadQue))
	s.grantPending(res)
	return lk, done, basts, 0
}

// wait blocks until the pending request of lk completes, or fails it with
// ETIMEDOUT once the lock timeout elapses for a FlagTimeout request.
func (s *Service) wait(ls *lockspace, lk *lkb, done chan int, flags dlm.LockFlag) int {
	var timeout <-chan time.Time
	if flags.Has(dlm.FlagTimeout) && s.lockTimeout > 0 {
		timer := time.NewTimer(s.lockTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case rc := <-done:
		return rc
	case <-timeout:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// completed concurrently with the timeout
	select {
	case rc := <-done:
		return rc
	default:
	}

	rc := -int(unix.ETIMEDOUT)
	if lk.state == stateWaiting {
		s.drop(ls, lk, rc)
	} else {
		lk.complete(rc)
	}
	<-done
	s.grantPending(lk.res)
	log.Debugf("lock %d on %s/%s timed out", lk.id, ls.name, lk.res.name)
	return rc
}

// --------------------------------------------------------------------------
// Unlock requests
// --------------------------------------------------------------------------

func (s *Service) unlockWait(owner string, handle dlm.LockspaceHandle, lkid uint32, flags dlm.LockFlag, lksb *dlm.LKSB) int {
	if lksb == nil {
		return -int(unix.EINVAL)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	att, rc := s.attachment(owner, handle)
	if rc != 0 {
		return rc
	}
	ls := att.ls
	lk, ok := ls.locks[lkid]
	if !ok || lk.att != handle {
		return -int(unix.EINVAL)
	}
	res := lk.res

	if flags.Has(dlm.FlagCancel) {
		if !lk.pending() {
			return -int(unix.EBUSY)
		}
		if lk.state == stateWaiting {
			s.drop(ls, lk, -int(unix.ECANCELED))
		} else {
			lk.complete(-int(unix.ECANCELED))
		}
		s.grantPending(res)
		lksb.Status = -dlm.ECANCEL
		lksb.LockID = lkid
		return 0
	}

	switch lk.state {
	case stateWaiting:
		return -int(unix.EBUSY)
	case stateConverting:
		if !flags.Has(dlm.FlagForceUnlock) {
			return -int(unix.EBUSY)
		}
	}

	if flags.Has(dlm.FlagValBlk) && lk.grmode >= dlm.ModePW && lksb.LVB != nil {
		res.writeLVB(lksb.LVB)
	}
	if flags.Has(dlm.FlagIvValBlk) {
		res.lvbValid = false
	}

	s.drop(ls, lk, -int(unix.ECANCELED))
	s.grantPending(res)

	lksb.Status = -dlm.EUNLOCK
	lksb.LockID = lkid
	return 0
}

// --------------------------------------------------------------------------
// Granting
// --------------------------------------------------------------------------

// grantPending grants every queued request that became compatible.
// Conversions go first; waiting requests are granted in queue order and the
// first incompatible one blocks the rest unless it was placed with NOORDER.
// Must be called with s.mu held.
func (s *Service) grantPending(res *resource) {
	for changed := true; changed; {
		changed = false
		for _, lk := range res.queue(stateConverting) {
			if mode, ok := grantMode(res, lk, lk.rqmode, lk.flags); ok {
				lk.grant(mode)
				changed = true
			}
		}
		if len(res.queue(stateConverting)) > 0 {
			return
		}
		for _, lk := range res.queue(stateWaiting) {
			mode, ok := grantMode(res, lk, lk.rqmode, lk.flags)
			if ok {
				lk.grant(mode)
				changed = true
				continue
			}
			if !lk.flags.Has(dlm.FlagNoOrder) {
				break
			}
		}
	}
}

// grantMode returns the mode lk can be granted in: the requested one or,
// with ALTPR or ALTCW, the alternate mode.
func grantMode(res *resource, lk *lkb, mode dlm.LockMode, flags dlm.LockFlag) (dlm.LockMode, bool) {
	if res.compatible(lk, mode) {
		return mode, true
	}
	for _, alt := range []struct {
		flag dlm.LockFlag
		mode dlm.LockMode
	}{{dlm.FlagAltPR, dlm.ModePR}, {dlm.FlagAltCW, dlm.ModeCW}} {
		if flags.Has(alt.flag) && alt.mode != mode && res.compatible(lk, alt.mode) {
			lk.sbflags |= uint8(dlm.SBFAltMode)
			return alt.mode, true
		}
	}
	return mode, false
}

// deadlocked reports whether converting lk to mode would wait on a
// conversion that itself waits on lk.
func deadlocked(res *resource, lk *lkb, mode dlm.LockMode) bool {
	for _, other := range res.queue(stateConverting) {
		if other == lk {
			continue
		}
		if !dlm.Compatible(other.grmode, mode) && !dlm.Compatible(lk.grmode, other.rqmode) {
			return true
		}
	}
	return false
}

// fillLKSB reports a grant of lk. Must be called with s.mu held.
func fillLKSB(lksb *dlm.LKSB, lk *lkb) {
	lksb.Status = 0
	lksb.LockID = lk.id
	lksb.Flags = lk.sbflags
	if lk.lvbOut != nil {
		if len(lksb.LVB) < dlm.LVBLen {
			lksb.LVB = make([]byte, dlm.LVBLen)
		}
		copy(lksb.LVB, lk.lvbOut)
	}
}

func deliver(basts []pendingBast) {
	for _, b := range basts {
		b.fn(b.arg)
	}
}
