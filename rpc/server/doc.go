// Package server implements the RPC server of the remote lock service. It
// hosts lock manager shards and translates RPC requests into dlm.Service
// calls on them.
//
// The package focuses on:
//   - Server-side RPC request handling for lockspace, lock and unlock operations
//   - Adapter pattern to decouple the lock manager from RPC mechanisms
//   - Per-session bookkeeping, so a vanished client can be cleaned up
//   - Lock-to-grant latency and request metrics
//
// Key Components:
//
//   - IRPCServerAdapter: Interface defining the contract for all server adapters,
//     with the Handle method that processes incoming requests against a backend.
//
//   - IServiceBackend: the lock manager of a shard. NewLocalBackend hosts an
//     in-process lsvc.Service, NewKernelBackend forwards to the kernel DLM.
//
//   - NewDLMServerAdapter: Factory function creating the adapter that maps
//     messages to dlm.Service calls. Each client session gets its own
//     dlm.Service from the backend. Blocking notifications raised while a lock
//     request waits are counted and returned to the client, which replays them.
//     A sessionClose request releases every lockspace the session attached
//     (force 1).
//
//   - NewRPCServer: Factory function creating a configured server with the specified
//     transport and serializer mechanisms.
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  Shards: []common.ServerShard{
//	    {ShardID: 100, Type: common.ShardTypeLocal},
//	  },
//	  Transport: common.ServerTransportConfig{Endpoint: "/run/dlm.sock"},
//	  LogLevel:  "info",
//	}
//
//	s := server.NewRPCServer(
//	  config,
//	  unix.NewUnixDefaultServerTransport(),
//	  serializer.NewBinarySerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// Metrics:
//
//	All series live in the default VictoriaMetrics set and are served at
//	GET /metrics by the HTTP transport or the MetricsEndpoint listener:
//	dlm_lock_grant_seconds (histogram of granted lock requests),
//	dlm_requests_total, dlm_request_errors_total, dlm_basts_total,
//	dlm_basts_dropped_total, dlm_sessions_total and dlm_sessions_active,
//	all labeled by shard.
//
// Thread Safety:
//
//	The server implementation is thread-safe and can handle concurrent requests
//	across multiple connections. Lock requests block their worker until they
//	complete. Serve should be called only once.
package server
