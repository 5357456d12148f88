// Package client implements the RPC client of the remote lock service. Its
// RPCService implements dlm.Service, so a dlm.Lockspace works the same on a
// remote lock server as on a local lock manager.
//
// The package focuses on:
//   - Transparent RPC access to a lock manager shard
//   - Integration with the transport and serialization layers
//   - Mapping transport failures to the negative errno return codes of dlm.Service
//
// Key Components:
//
//   - NewRPCService: Factory function that connects a transport and opens a
//     session. Lockspaces attached through the session belong to it; Close
//     releases them on the server.
//
// Error Mapping:
//
//	Requests that time out return ETIMEDOUT, all other transport or protocol
//	failures return ENOTCONN. Both are logged. The status block of a failed
//	call carries the same code.
//
// Blocking Notifications:
//
//	The server counts the notifications raised while a lock request waits and
//	returns the count with the response. LockWait invokes the caller's
//	BastFunc that many times before returning, so they are delivered within
//	the notification window of dlm.Lock.
//
// Usage Example:
//
//	config := common.ClientConfig{
//	  Transport: common.ClientTransportConfig{
//	    Endpoints:  []string{"/run/dlm.sock"},
//	    RetryCount: 3,
//	  },
//	}
//
//	svc, err := client.NewRPCService(100, config, unix.NewUnixClientTransport(), serializer.NewBinarySerializer())
//	if err != nil {
//	  return err
//	}
//	defer svc.Close()
//
//	ls, err := dlm.CreateLockspace(svc, "default", dlm.DefaultMode)
//	if err != nil {
//	  return err
//	}
//	defer ls.Close()
//
//	lock := ls.CreateLock("resource")
//	if err := lock.Acquire(dlm.ModeEX, 0); err != nil {
//	  return err
//	}
//	defer lock.Release(0)
package client
