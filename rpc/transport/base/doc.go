// Package base provides a foundation for the socket transports of the remote
// lock service, implementing core functionality for RPC communication
// independent of the specific network protocol (TCP, Unix sockets). It serves
// as a base layer that is extended with protocol-specific connectors.
//
// The package focuses on:
//   - Protocol-agnostic client and server transport implementations
//   - Frame-based message protocol with shardID and requestID tracking
//   - Automatic request routing and response correlation
//   - Long running requests: a lock request may block for as long as the
//     lock is contended, without tripping idle timeouts
//
// Key Components:
//
//   - IClientConnector/IServerConnector: Interfaces for protocol-specific operations
//     that allow extending the base transport with different network protocols.
//
//   - clientTransport: Core client implementation that manages multiple connections
//     with round-robin load balancing. Requests are retried with exponential
//     backoff only if they could not be written; once written, a failure is
//     reported as transport.ErrConnectionLost and all waiting requests of the
//     broken connection fail before it is re-established.
//
//   - serverTransport: Core server implementation that accepts connections and
//     routes requests to the handler based on shardID. Each connection has a
//     bounded worker pool; the idle read deadline is only armed while no request
//     of the connection is in flight.
//
// Frame Format:
//
//	8 bytes shardID | 8 bytes requestID | 4 bytes length | payload
//
// All integers are big endian. Payloads above 16 MiB are rejected.
//
// Metrics:
//
//	The server counts accepted connections and requests per transport
//	(dlm_transport_connections_total, dlm_transport_requests_total) in the
//	default VictoriaMetrics set.
//
// Thread Safety:
//
//	All public methods are thread-safe. The client transport uses atomic operations
//	and mutexes to ensure concurrent access safety, while the server creates a
//	dedicated goroutine for each connection.
package base
