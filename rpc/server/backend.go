package server

import (
	"fmt"
	"time"

	"github.com/xzl01/dlm/lib/dlm"
	"github.com/xzl01/dlm/lib/dlm/ksvc"
	"github.com/xzl01/dlm/lib/dlm/lsvc"
	"github.com/xzl01/dlm/rpc/common"
)

// --------------------------------------------------------------------------
// Local backend (in-process lock manager)
// --------------------------------------------------------------------------

// localBackend hosts an lsvc.Service. Every client session gets its own
// owner, so sessions compete for locks like processes do.
type localBackend struct {
	svc *lsvc.Service
}

// NewLocalBackend creates a backend with an in-process lock manager
func NewLocalBackend(opts ...lsvc.Option) IServiceBackend {
	return &localBackend{svc: lsvc.New(opts...)}
}

func (b *localBackend) Session(id string) dlm.Service {
	return b.svc.Session(id)
}

func (b *localBackend) Lockspaces() ([]string, error) {
	return b.svc.Lockspaces(), nil
}

func (b *localBackend) Type() common.ServerShardType {
	return common.ShardTypeLocal
}

// --------------------------------------------------------------------------
// Kernel backend (libdlm)
// --------------------------------------------------------------------------

// kernelBackend forwards to the kernel DLM. The kernel does not know about
// client sessions, all of them share the server process.
type kernelBackend struct {
	svc *ksvc.Service
}

// NewKernelBackend creates a backend bound to the kernel DLM. It fails if the
// binary was built without libdlm support or the control device is missing.
func NewKernelBackend() (IServiceBackend, error) {
	svc, err := ksvc.New()
	if err != nil {
		return nil, err
	}
	return &kernelBackend{svc: svc}, nil
}

func (b *kernelBackend) Session(string) dlm.Service {
	return b.svc
}

func (b *kernelBackend) Lockspaces() ([]string, error) {
	return nil, fmt.Errorf("listing lockspaces is not supported by the %s backend", b.Type())
}

func (b *kernelBackend) Type() common.ServerShardType {
	return common.ShardTypeKernel
}

// --------------------------------------------------------------------------
// Factory
// --------------------------------------------------------------------------

// newBackend creates the backend of a shard from the server configuration
func newBackend(shard common.ServerShard, config common.ServerConfig) (IServiceBackend, error) {
	switch shard.Type {
	case common.ShardTypeLocal:
		return NewLocalBackend(
			lsvc.WithMaxLockspaces(config.MaxLockspaces),
			lsvc.WithLockTimeout(time.Duration(config.LockTimeoutSecond)*time.Second),
		), nil
	case common.ShardTypeKernel:
		return NewKernelBackend()
	default:
		return nil, fmt.Errorf("invalid shard type: %s", shard.Type)
	}
}
