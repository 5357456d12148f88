//go:build !linux || !cgo || !libdlm

package ksvc

import (
	"github.com/xzl01/dlm/lib/dlm"
	"golang.org/x/sys/unix"
)

// Service is unavailable in this build. Every operation fails with ENOSYS.
type Service struct{}

// New always fails with ErrUnsupported. Build with the libdlm tag on Linux
// with cgo enabled to use the kernel DLM.
func New() (*Service, error) {
	return nil, ErrUnsupported
}

func (s *Service) CreateLockspace(string, uint32) (dlm.LockspaceHandle, int) {
	return 0, -int(unix.ENOSYS)
}

func (s *Service) ReleaseLockspace(string, dlm.LockspaceHandle, int) int {
	return -int(unix.ENOSYS)
}

func (s *Service) LockWait(dlm.LockspaceHandle, dlm.LockMode, *dlm.LKSB, dlm.LockFlag, []byte, uint32, uint64, dlm.BastFunc) int {
	return -int(unix.ENOSYS)
}

func (s *Service) UnlockWait(dlm.LockspaceHandle, uint32, dlm.LockFlag, *dlm.LKSB) int {
	return -int(unix.ENOSYS)
}
