package transport

import (
	"errors"

	"github.com/xzl01/dlm/rpc/common"
)

// --------------------------------------------------------------------------
// Errors
// --------------------------------------------------------------------------

var (
	// ErrNotConnected is returned when a request could not be written to any
	// connection. Nothing reached the server, so the request may be retried.
	ErrNotConnected = errors.New("transport: not connected")
	// ErrConnectionLost is returned when the connection failed after the
	// request was written. The server may have executed it.
	ErrConnectionLost = errors.New("transport: connection lost")
	// ErrTimeout is returned when no response arrived within the configured timeout
	ErrTimeout = errors.New("transport: request timed out")
)

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// ServerHandleFunc is a function type that handles incoming requests
// This function is called by a server transport layer when a request is received
// It takes a shardId and a request as parameters and returns a response.
// Lock requests block inside the handler until they are granted.
type ServerHandleFunc func(shardId uint64, req []byte) (resp []byte)

// IRPCServerTransport is the interface for the RPC transport layer
// It must accept a ServerConfig as a parameter
type IRPCServerTransport interface {
	// RegisterHandler registers a handler for the transport layer
	// This handler should be called when a request is received
	// The transport layer is responsible for routing the request to the appropriate shard
	RegisterHandler(handler ServerHandleFunc)
	// Listen starts the transport layer and serves requests until Close is
	// called (then it returns nil) or the listener fails
	Listen(config common.ServerConfig) error
	// Close stops accepting requests and closes all open connections
	Close() error
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// IRPCClientTransport is the interface for the RPC client transport
type IRPCClientTransport interface {
	// Connect initializes the transport with the given configuration
	Connect(config common.ClientConfig) error
	// Send sends a request to the server and returns the response.
	// Errors wrap ErrNotConnected, ErrConnectionLost or ErrTimeout.
	Send(shardId uint64, req []byte) (resp []byte, err error)
	// Close closes the transport connection
	Close() error
}
