// Package http implements an HTTP-based transport layer for the remote lock
// service. It provides concrete implementations of the transport interfaces
// defined in the parent package.
//
// The package focuses on:
//   - Client-side HTTP transport for sending RPC requests to servers
//   - Server-side HTTP transport for receiving and handling RPC requests
//   - Round-robin load balancing across multiple server endpoints
//   - Request routing based on shard IDs
//   - Exposing the server metrics for Prometheus scrapers
//
// Key Components:
//
//   - httpClientTransport: Implements IRPCClientTransport. Each request is a
//     POST to {endpoint}/{shardId}. Only requests that failed to dial are
//     retried; a lock request that reached the server is never sent twice.
//
//   - httpServerTransport: Implements IRPCServerTransport, serving
//     POST /{shardId} and GET /metrics. The server has no read or write
//     timeout, since a lock request waits inside the handler until granted.
//
//   - NewMetricsMux: the GET /metrics handler, also used by socket servers
//     that expose metrics on a separate endpoint.
//
// Thread Safety:
//
//	The client transport is thread-safe and can be used concurrently. It uses
//	atomic operations for the round-robin counter to ensure thread safety when
//	selecting server endpoints.
package http
