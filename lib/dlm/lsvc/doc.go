// Package lsvc implements dlm.Service as an in-process lock manager.
//
// A Service masters every resource itself. Sessions obtained with Session or
// NewSession behave like separate processes: locks are owned by the
// lockspace attachment that created them, blocking notifications are sent to
// the holders that block a request, and conversions are granted before new
// requests.
//
// Usage:
//
//	mgr := lsvc.New(lsvc.WithLockTimeout(5 * time.Second))
//	ls, err := dlm.CreateLockspace(mgr.NewSession(), "default", dlm.DefaultMode)
//
// Not implemented: parent locks and the deadlock-wait flags NODLCKWT and
// NODLCKBLK, which are accepted and ignored.
package lsvc
