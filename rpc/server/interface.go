package server

import (
	"github.com/xzl01/dlm/lib/dlm"
	"github.com/xzl01/dlm/rpc/common"
)

// IRPCServerAdapter is the interface for all RPC server adapters
// It is responsible for handling requests and responses
type IRPCServerAdapter interface {
	// Handle handles a request and returns a response
	// It takes a Message and the backend of the shard as parameters.
	// It returns a Message as a response
	// If an error occurs, it should be set in the response
	Handle(req *common.Message, backend IServiceBackend) (resp *common.Message)
}

// IServiceBackend is the lock manager a shard is bound to
type IServiceBackend interface {
	// Session returns the dlm.Service used for the requests of one client session
	Session(id string) dlm.Service
	// Lockspaces returns the names of the existing lockspaces
	Lockspaces() ([]string, error)
	// Type returns the shard type the backend implements
	Type() common.ServerShardType
}
