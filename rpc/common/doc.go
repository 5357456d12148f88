// Package common provides core data structures and utilities shared across
// the DLM RPC layer. It defines the wire message, the configuration
// structures and the logger factory used by the other packages.
//
// Key Components:
//
//   - Message: Core data structure for all RPC communication. One flat
//     structure carries every dlm.Service call and its status block; the
//     fields in use depend on MsgType. Factory methods create the request
//     and response of each operation.
//
//   - MessageType: Enumeration of the supported operations (lockspace
//     create/release, lock, unlock, session close) and control messages.
//
//   - ServerConfig: Configuration of the RPC server, its shards and the
//     local lock manager.
//
//   - ClientConfig: Configuration for client components, controlling connection
//     parameters, timeouts, and retry behavior.
//
//   - Logger: Custom logging implementation that plugs into Dragonboat's
//     logger package and formats every line as "LEVEL | name | message".
package common
