// Package tcp implements the TCP socket transport of the remote lock service.
// It provides concrete implementations of the base package's connector
// interfaces for TCP connections.
//
// This package builds on the base package's transport functionality, inheriting
// its connection pooling, buffer reuse and request routing. See the base package
// documentation for the frame format and the retry rules.
//
// Key Components:
//
//   - clientConnector: TCP-specific implementation of base.IClientConnector
//
//   - serverConnector: TCP-specific implementation of base.IServerConnector
//
// Both sides apply the SocketConf and TCPConf options (no delay, buffer sizes,
// keep-alive, linger) of their configuration to every connection.
package tcp
