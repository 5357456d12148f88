package client

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/xzl01/dlm/lib/dlm"
	"github.com/xzl01/dlm/rpc/common"
	"github.com/xzl01/dlm/rpc/serializer"
	"github.com/xzl01/dlm/rpc/transport"
	"golang.org/x/sys/unix"
)

// customOpLockspaces is the custom operation listing the lockspaces of a shard
const customOpLockspaces = "lockspaces"

// NewRPCService creates a dlm.Service that forwards every call to the shard
// of a remote lock server. The function connects the transport and opens a
// new session; the session's lockspaces are released by Close.
func NewRPCService(
	shardId uint64,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (*RPCService, error) {

	// Connect the transport
	err := transport.Connect(config)
	if err != nil {
		return nil, err
	}

	s := &RPCService{
		rpcClientAdapter: rpcClientAdapter{
			shardId:    shardId,
			config:     config,
			transport:  transport,
			serializer: serializer,
		},
		session: uuid.NewString(),
	}
	Logger.Debugf("opened session %s on shard %d", s.session, shardId)

	return s, nil
}

// RPCService is a remote dlm.Service. It is safe for concurrent use.
type RPCService struct {
	rpcClientAdapter
	session string
	closed  atomic.Bool
}

// Session returns the id of the session of s
func (s *RPCService) Session() string {
	return s.session
}

// --------------------------------------------------------------------------
// Interface Methods (docu see dlm.Service)
// --------------------------------------------------------------------------

func (s *RPCService) CreateLockspace(name string, mode uint32) (dlm.LockspaceHandle, int) {
	resp, rc := s.invoke(common.NewLsCreateRequest(s.session, name, mode))
	if rc != 0 {
		return 0, rc
	}
	return dlm.LockspaceHandle(resp.Handle), int(resp.RC)
}

func (s *RPCService) ReleaseLockspace(name string, ls dlm.LockspaceHandle, force int) int {
	resp, rc := s.invoke(common.NewLsReleaseRequest(s.session, name, ls, force))
	if rc != 0 {
		return rc
	}
	return int(resp.RC)
}

func (s *RPCService) LockWait(ls dlm.LockspaceHandle, mode dlm.LockMode, lksb *dlm.LKSB, flags dlm.LockFlag, name []byte, parent uint32, bastArg uint64, bast dlm.BastFunc) int {
	notify := bast != nil && bastArg != 0
	resp, rc := s.invoke(common.NewLockRequest(s.session, ls, mode, flags, name, parent, lksb, notify))
	if rc != 0 {
		lksb.Status = int32(rc)
		return rc
	}
	resp.CopyToLKSB(lksb)

	// Replay the notifications the server saw while the request waited
	if notify {
		for i := uint32(0); i < resp.Basts; i++ {
			bast(bastArg)
		}
	}
	return int(resp.RC)
}

func (s *RPCService) UnlockWait(ls dlm.LockspaceHandle, lkid uint32, flags dlm.LockFlag, lksb *dlm.LKSB) int {
	resp, rc := s.invoke(common.NewUnlockRequest(s.session, ls, lkid, flags, lksb))
	if rc != 0 {
		lksb.Status = int32(rc)
		return rc
	}
	resp.CopyToLKSB(lksb)
	return int(resp.RC)
}

// --------------------------------------------------------------------------
// Additional Methods
// --------------------------------------------------------------------------

// Lockspaces returns the names of the lockspaces of the shard
func (s *RPCService) Lockspaces() ([]string, error) {
	resp, err := invokeRPCRequest(s.shardId, common.NewCustomRequest([]byte(customOpLockspaces)), s.transport, s.serializer)
	if err != nil {
		return nil, err
	}
	if len(resp.Meta) == 0 {
		return []string{}, nil
	}
	return strings.Split(string(resp.Meta), "\n"), nil
}

// Close ends the session, which releases every lockspace it still holds
// (dropping its locks), and closes the transport. Calls after Close fail
// with ENOTCONN.
func (s *RPCService) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	_, err := invokeRPCRequest(s.shardId, common.NewSessionCloseRequest(s.session), s.transport, s.serializer)
	return errors.Join(err, s.transport.Close())
}

// invoke sends req and maps a failure to a negative errno
func (s *RPCService) invoke(req *common.Message) (*common.Message, int) {
	if s.closed.Load() {
		return nil, -int(unix.ENOTCONN)
	}
	resp, err := invokeRPCRequest(s.shardId, req, s.transport, s.serializer)
	if err != nil {
		rc := errnoOf(err)
		Logger.Warningf("%s request on shard %d failed: %v (%v)", req.MsgType, s.shardId, err, unix.Errno(-rc))
		return nil, rc
	}
	return resp, 0
}
