// Package transport defines the interfaces and abstractions for RPC communication
// between the remote lock service and its clients. It provides a common contract
// that all transport implementations must fulfill, enabling protocol-agnostic
// communication.
//
// The package focuses on:
//   - Defining clear interfaces for client and server transport layers
//   - Supporting shard-based request routing
//   - Enabling multiple transport implementations (HTTP, TCP, Unix sockets)
//   - Classifying failures, so callers know whether a request reached the server
//
// Key Components:
//
//   - IRPCClientTransport: Interface for client-side transport implementations that
//     handles connection management and request sending.
//
//   - IRPCServerTransport: Interface for server-side transport implementations that
//     receives requests and routes them to appropriate handlers.
//
//   - ServerHandleFunc: Function type for request handling callbacks.
//
//   - ErrNotConnected, ErrConnectionLost, ErrTimeout: failure classes wrapped by
//     every Send error.
//
// Requests are not idempotent (a lock request that reached the server may have
// been granted), so transports retry only requests that were never written.
package transport
