//go:build linux && cgo && libdlm

package ksvc

/*
#cgo LDFLAGS: -ldlm_lt
#include <stdint.h>
#include <stdlib.h>
#include <libdlm.h>

dlm_lshandle_t ksvc_create_lockspace(const char *name, unsigned int mode, int *err);
int ksvc_release_lockspace(const char *name, dlm_lshandle_t ls, int force);
int ksvc_lock_wait(dlm_lshandle_t ls, uint32_t mode, struct dlm_lksb *lksb, uint32_t flags,
		   const void *name, unsigned int namelen, uint32_t parent, uintptr_t bastarg);
int ksvc_unlock_wait(dlm_lshandle_t ls, uint32_t lkid, uint32_t flags, struct dlm_lksb *lksb);
*/
import "C"

import (
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/xzl01/dlm/lib/dlm"
	"golang.org/x/sys/unix"
)

// bastTarget is the Go side of a notification registered for one LockWait
// call. The C library only sees its numeric id.
type bastTarget struct {
	fn  dlm.BastFunc
	arg uint64
}

var (
	targets    = xsync.NewMapOf[uintptr, bastTarget]()
	nextTarget atomic.Uintptr
)

//export goBast
func goBast(arg C.uintptr_t) {
	target, ok := targets.Load(uintptr(arg))
	if !ok {
		log.Debugf("dropped blocking notification for unknown target %d", uintptr(arg))
		return
	}
	target.fn(target.arg)
}

// Service is the kernel DLM reached through libdlm.
type Service struct {
	handles    *xsync.MapOf[dlm.LockspaceHandle, C.dlm_lshandle_t]
	nextHandle atomic.Uint64
}

// New checks that the kernel DLM is available and returns a Service.
func New() (*Service, error) {
	if _, err := os.Stat(ControlDevice); err != nil {
		return nil, fmt.Errorf("ksvc: kernel dlm not available: %w", err)
	}
	return &Service{
		handles: xsync.NewMapOf[dlm.LockspaceHandle, C.dlm_lshandle_t](),
	}, nil
}

func (s *Service) CreateLockspace(name string, mode uint32) (dlm.LockspaceHandle, int) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	var cerr C.int
	ls := C.ksvc_create_lockspace(cname, C.uint(mode), &cerr)
	if ls == nil {
		log.Warningf("dlm_create_lockspace(%s) failed: errno %d", name, int(cerr))
		return 0, -int(cerr)
	}

	handle := dlm.LockspaceHandle(s.nextHandle.Add(1))
	s.handles.Store(handle, ls)
	return handle, 0
}

func (s *Service) ReleaseLockspace(name string, handle dlm.LockspaceHandle, force int) int {
	ls, ok := s.handles.Load(handle)
	if !ok {
		return -int(unix.EINVAL)
	}
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	rc := int(C.ksvc_release_lockspace(cname, ls, C.int(force)))
	if rc == 0 {
		s.handles.Delete(handle)
	}
	return rc
}

func (s *Service) LockWait(handle dlm.LockspaceHandle, mode dlm.LockMode, lksb *dlm.LKSB, flags dlm.LockFlag, name []byte, parent uint32, bastArg uint64, bast dlm.BastFunc) int {
	ls, ok := s.handles.Load(handle)
	if !ok || lksb == nil {
		return -int(unix.EINVAL)
	}

	clksb := newCLKSB(lksb)
	defer freeCLKSB(clksb)

	var cname unsafe.Pointer
	if len(name) > 0 {
		cname = C.CBytes(name)
		defer C.free(cname)
	}

	var target uintptr
	if bast != nil {
		target = nextTarget.Add(1)
		targets.Store(target, bastTarget{fn: bast, arg: bastArg})
		defer targets.Delete(target)
	}

	rc := C.ksvc_lock_wait(ls, C.uint32_t(uint32(mode)), clksb, C.uint32_t(flags),
		cname, C.uint(len(name)), C.uint32_t(parent), C.uintptr_t(target))
	copyCLKSB(lksb, clksb)
	return int(rc)
}

func (s *Service) UnlockWait(handle dlm.LockspaceHandle, lkid uint32, flags dlm.LockFlag, lksb *dlm.LKSB) int {
	ls, ok := s.handles.Load(handle)
	if !ok || lksb == nil {
		return -int(unix.EINVAL)
	}

	clksb := newCLKSB(lksb)
	defer freeCLKSB(clksb)

	rc := C.ksvc_unlock_wait(ls, C.uint32_t(lkid), C.uint32_t(flags), clksb)
	copyCLKSB(lksb, clksb)
	return int(rc)
}

// --------------------------------------------------------------------------
// Helper Functions
// --------------------------------------------------------------------------

// newCLKSB allocates a C status block mirroring lksb. The library writes
// into it while the call is in progress, so it must not live in Go memory.
func newCLKSB(lksb *dlm.LKSB) *C.struct_dlm_lksb {
	clksb := (*C.struct_dlm_lksb)(C.calloc(1, C.sizeof_struct_dlm_lksb))
	clksb.sb_lkid = C.uint32_t(lksb.LockID)
	if lksb.LVB != nil {
		lvb := C.calloc(1, dlm.LVBLen)
		copy(unsafe.Slice((*byte)(lvb), dlm.LVBLen), lksb.LVB)
		clksb.sb_lvbptr = (*C.char)(lvb)
	}
	return clksb
}

func copyCLKSB(lksb *dlm.LKSB, clksb *C.struct_dlm_lksb) {
	lksb.Status = int32(clksb.sb_status)
	lksb.LockID = uint32(clksb.sb_lkid)
	lksb.Flags = uint8(clksb.sb_flags)
	if clksb.sb_lvbptr != nil {
		copy(lksb.LVB, C.GoBytes(unsafe.Pointer(clksb.sb_lvbptr), dlm.LVBLen))
	}
}

func freeCLKSB(clksb *C.struct_dlm_lksb) {
	if clksb.sb_lvbptr != nil {
		C.free(unsafe.Pointer(clksb.sb_lvbptr))
	}
	C.free(unsafe.Pointer(clksb))
}
