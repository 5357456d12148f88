// Package unix implements the Unix domain socket transport of the remote lock
// service, for clients running on the same machine as the lock server.
//
// This package extends the base transport layer with Unix socket-specific connectors
// while inheriting all core functionality like connection pooling, request routing,
// and error handling from the base package.
//
// Key Components:
//
//   - clientConnector: Establishes connections using Unix domain sockets
//
//   - serverConnector: Creates Unix socket listeners (replacing a stale socket
//     file) and accepts connections
//
// The default server buffer size is 64 KB, far above the size of lock messages.
package unix
