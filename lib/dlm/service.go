package dlm

// --------------------------------------------------------------------------
// Service Boundary
// --------------------------------------------------------------------------

// LockspaceHandle is the opaque handle a Service issues for an attached
// lockspace. The zero value is the null handle.
type LockspaceHandle uint64

// LKSB is the raw lock status block a Service fills in during a lock or
// unlock call. LVB, when non-nil, is the value block buffer the service
// reads from (unlock/down-conversion) and writes to (grant).
type LKSB struct {
	Status int32
	LockID uint32
	Flags  uint8
	LVB    []byte
}

// BastFunc is the blocking notification entry point a Service invokes with
// the opaque arg it received on the lock call. It may be called from any
// goroutine, at any time, also after the lock call returned.
type BastFunc func(arg uint64)

// Service is the boundary to the external lock manager. All calls return 0
// on success and a negative errno on failure.
type Service interface {
	// CreateLockspace attaches to (or creates) the named lockspace.
	// A zero handle signals failure; rc carries the reason if known.
	CreateLockspace(name string, mode uint32) (ls LockspaceHandle, rc int)
	// ReleaseLockspace detaches from the lockspace. force selects how
	// remaining locks are reclaimed (ForceNone, ForceLocal, ForceAll).
	ReleaseLockspace(name string, ls LockspaceHandle, force int) (rc int)
	// LockWait requests (or converts) a lock and blocks until it is granted
	// or definitively refused. The outcome is written to lksb.
	LockWait(ls LockspaceHandle, mode LockMode, lksb *LKSB, flags LockFlag, name []byte, parent uint32, bastArg uint64, bast BastFunc) (rc int)
	// UnlockWait releases (or cancels) the lock lkid and blocks until done.
	UnlockWait(ls LockspaceHandle, lkid uint32, flags LockFlag, lksb *LKSB) (rc int)
}
