// Package rpc makes a dlm.Service reachable over the network. A server hosts
// lock manager backends in shards; a client implements dlm.Service by
// forwarding every call, so the lib/dlm lifecycle layer works unchanged on
// top of a remote lock manager.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures and utilities used across the RPC system,
//     including the Message protocol, configuration structures, and logging.
//
//   - transport: Network communication abstractions with pluggable implementations
//     (TCP, Unix sockets, HTTP).
//
//   - serializer: Message serialization with multiple format options (Binary, JSON, GOB)
//     for converting between Message objects and byte arrays.
//
//   - client: RPCService, the remote dlm.Service.
//
//   - server: RPC server components that route requests to the shard
//     backends and keep one service session per client session.
package rpc
