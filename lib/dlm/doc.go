// Package dlm is the client side lock lifecycle layer for a distributed lock
// manager (DLM). It lets cooperating processes coordinate exclusive or
// shared access to named resources through an external lock manager
// service, reached through the four primitives of the Service interface.
//
// The package does not negotiate grants, master resources or detect
// deadlocks. It owns:
//   - safe creation and release of a named Lockspace
//   - safe creation, use and destruction of Locks bound to a Lockspace
//   - a blocking Acquire/Release model on top of the service's completion
//     and blocking notification (bast) callbacks
//   - decoding of the lock status block (StatusBlock)
//   - mapping of negative service return codes to *Error
//
// Service Implementations:
//
//   - lsvc: an in-process lock manager (tests, single host, RPC server)
//   - ksvc: the Linux kernel DLM through libdlm (cgo, build tag libdlm)
//   - rpc/client.RPCService: a remote service reached through the RPC layer
//
// Usage Example:
//
//	svc := lsvc.New().NewSession()
//
//	ls, err := dlm.CreateLockspace(svc, "default", dlm.DefaultMode)
//	if err != nil {
//	    // Handle error
//	}
//	defer ls.Close()
//
//	lock := ls.CreateLock("testlock1")
//	defer lock.Close()
//
//	if err := lock.Acquire(dlm.ModeEX, dlm.FlagNoQueue); err != nil {
//	    if dlm.IsNotAvailable(err) {
//	        // somebody else holds the lock
//	    }
//	    return err
//	}
//	// Use the resource safely
//	// ...
//	if err := lock.Release(0); err != nil {
//	    // Handle error
//	}
//
// Blocking Notifications:
//
//	A handler passed with WithNotify or Notify is registered with the
//	Callback Bridge for exactly the blocking window of one Acquire call.
//	The service only ever sees an opaque token; notifications arriving for
//	an expired token (after Acquire returned, or after the lockspace was
//	released) are dropped and counted. Without a handler a no-op handler is
//	registered.
//
// Cleanup:
//
//	Lock.Close and Guard.Release perform an implicit release when the lock
//	is still held. Their failures cannot be returned; they are handled by
//	the lockspace CleanupPolicy (log, ignore or retry) and forwarded to the
//	optional ErrorSink.
//
// Thread Safety:
//
//	A Lock is used by one goroutine at a time. Distinct Locks, also of the
//	same Lockspace, can be used concurrently. Lockspace.Release must not
//	run concurrently with operations on its Locks.
package dlm
