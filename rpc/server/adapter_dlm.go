package server

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/xzl01/dlm/lib/dlm"
	"github.com/xzl01/dlm/rpc/common"
	"golang.org/x/sys/unix"
)

// CustomOpLockspaces is the Meta of a custom request listing the lockspaces
// of a shard. The response Meta holds the names separated by newlines.
const CustomOpLockspaces = "lockspaces"

// NewDLMServerAdapter creates the adapter translating RPC requests into
// dlm.Service calls. It tracks the lockspaces each session attached, so
// sessionClose can release them.
func NewDLMServerAdapter(shardID uint64) IRPCServerAdapter {
	a := &dlmServerAdapter{
		sessions: xsync.NewMapOf[string, *sessionState](),
		metrics:  newShardMetrics(shardID),
	}
	a.metrics.sessions(a.sessions.Size)
	return a
}

type dlmServerAdapter struct {
	sessions *xsync.MapOf[string, *sessionState]
	metrics  *shardMetrics
}

// sessionState is the server side state of one client session
type sessionState struct {
	svc     dlm.Service
	mu      sync.Mutex
	handles map[dlm.LockspaceHandle]string
}

// --------------------------------------------------------------------------
// Interface Methods (docu see server.IRPCServerAdapter)
// --------------------------------------------------------------------------

func (a *dlmServerAdapter) Handle(req *common.Message, backend IServiceBackend) (resp *common.Message) {
	if backend == nil {
		return common.NewErrorResponse("handler: backend is nil")
	}
	a.metrics.request(req.MsgType)

	switch req.MsgType {
	case common.MsgTLsCreate:
		return a.lsCreate(req, backend)
	case common.MsgTLsRelease:
		return a.lsRelease(req, backend)
	case common.MsgTLock:
		return a.lock(req, backend)
	case common.MsgTUnlock:
		return a.unlock(req, backend)
	case common.MsgTSessionClose:
		return common.NewSessionCloseResponse(a.closeSession(req.Session))
	case common.MsgTCustom:
		return a.custom(req, backend)
	default:
		return common.NewErrorResponse(fmt.Sprintf("RPC DLMAdapter - Unsupported message type: %s", req.MsgType))
	}
}

// --------------------------------------------------------------------------
// Request Handlers
// --------------------------------------------------------------------------

func (a *dlmServerAdapter) lsCreate(req *common.Message, backend IServiceBackend) *common.Message {
	se, errResp := a.session(req, backend)
	if errResp != nil {
		return errResp
	}

	name := string(req.Name)
	handle, rc := se.svc.CreateLockspace(name, uint32(req.Mode))
	if rc == 0 && handle != 0 {
		se.mu.Lock()
		se.handles[handle] = name
		se.mu.Unlock()
	} else {
		a.metrics.failure(req.MsgType, rc)
	}
	return common.NewLsCreateResponse(handle, rc)
}

func (a *dlmServerAdapter) lsRelease(req *common.Message, backend IServiceBackend) *common.Message {
	se, errResp := a.session(req, backend)
	if errResp != nil {
		return errResp
	}

	handle := dlm.LockspaceHandle(req.Handle)
	rc := se.svc.ReleaseLockspace(string(req.Name), handle, int(req.Force))
	if rc == 0 {
		se.mu.Lock()
		delete(se.handles, handle)
		se.mu.Unlock()
	} else {
		a.metrics.failure(req.MsgType, rc)
	}
	return common.NewLsReleaseResponse(rc)
}

func (a *dlmServerAdapter) lock(req *common.Message, backend IServiceBackend) *common.Message {
	se, errResp := a.session(req, backend)
	if errResp != nil {
		return errResp
	}

	lksb := requestLKSB(req)
	flags := dlm.LockFlag(req.Flags)

	// Notifications raised while the request waits are counted and replayed
	// by the client. Later ones have no caller to go to.
	var (
		basts   atomic.Uint32
		waiting atomic.Bool
		bast    dlm.BastFunc
		bastArg uint64
	)
	if req.Basts != 0 {
		waiting.Store(true)
		bastArg = 1
		bast = func(uint64) {
			if waiting.Load() {
				basts.Add(1)
				a.metrics.basts.Inc()
			} else {
				a.metrics.lateBasts.Inc()
			}
		}
	}

	start := time.Now()
	rc := se.svc.LockWait(dlm.LockspaceHandle(req.Handle), dlm.LockMode(req.Mode), lksb, flags, req.Name, req.Parent, bastArg, bast)
	waiting.Store(false)

	if rc == 0 && lksb.Status == 0 {
		a.metrics.grantTime.UpdateDuration(start)
	} else {
		a.metrics.failure(req.MsgType, failureCode(rc, lksb))
	}
	return common.NewLockResponse(rc, lksb, basts.Load())
}

func (a *dlmServerAdapter) unlock(req *common.Message, backend IServiceBackend) *common.Message {
	se, errResp := a.session(req, backend)
	if errResp != nil {
		return errResp
	}

	lksb := requestLKSB(req)
	rc := se.svc.UnlockWait(dlm.LockspaceHandle(req.Handle), req.LockID, dlm.LockFlag(req.Flags), lksb)
	if code := failureCode(rc, lksb); code != 0 {
		a.metrics.failure(req.MsgType, code)
	}
	return common.NewUnlockResponse(rc, lksb)
}

func (a *dlmServerAdapter) custom(req *common.Message, backend IServiceBackend) *common.Message {
	switch string(req.Meta) {
	case CustomOpLockspaces:
		names, err := backend.Lockspaces()
		return common.NewCustomResponse([]byte(strings.Join(names, "\n")), err)
	default:
		return common.NewCustomResponse(nil, fmt.Errorf("unknown custom operation %q", req.Meta))
	}
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// session returns the state of the session of req, creating it on first use
func (a *dlmServerAdapter) session(req *common.Message, backend IServiceBackend) (*sessionState, *common.Message) {
	if req.Session == "" {
		return nil, common.NewErrorResponse(fmt.Sprintf("RPC DLMAdapter - %s request without session", req.MsgType))
	}
	se, loaded := a.sessions.LoadOrCompute(req.Session, func() *sessionState {
		return &sessionState{
			svc:     backend.Session(req.Session),
			handles: make(map[dlm.LockspaceHandle]string),
		}
	})
	if !loaded {
		a.metrics.sessionsNew.Inc()
		Logger.Debugf("opened session %s", req.Session)
	}
	return se, nil
}

// closeSession releases every lockspace attachment of the session. Locks of
// the session are dropped, other sessions keep theirs.
func (a *dlmServerAdapter) closeSession(id string) error {
	se, ok := a.sessions.LoadAndDelete(id)
	if !ok {
		return nil
	}

	se.mu.Lock()
	defer se.mu.Unlock()

	var failed []string
	for handle, name := range se.handles {
		if rc := se.svc.ReleaseLockspace(name, handle, dlm.ForceLocal); rc != 0 {
			Logger.Warningf("session %s: failed to release lockspace %s: %v", id, name, dlm.NewError(rc))
			failed = append(failed, name)
		}
		delete(se.handles, handle)
	}
	Logger.Debugf("closed session %s", id)

	if len(failed) > 0 {
		return fmt.Errorf("failed to release lockspaces: %s", strings.Join(failed, ", "))
	}
	return nil
}

// requestLKSB builds the status block a request carries. A value block is
// always a full LVBLen buffer.
func requestLKSB(req *common.Message) *dlm.LKSB {
	lksb := &dlm.LKSB{LockID: req.LockID}
	if req.Value != nil || dlm.LockFlag(req.Flags).Has(dlm.FlagValBlk) {
		lksb.LVB = make([]byte, dlm.LVBLen)
		copy(lksb.LVB, req.Value)
	}
	return lksb
}

// failureCode returns the negative errno of a failed call, or 0. The
// unlock and cancel completion codes count as success.
func failureCode(rc int, lksb *dlm.LKSB) int {
	if rc < 0 {
		return rc
	}
	switch s := int(lksb.Status); s {
	case 0, -dlm.EUNLOCK, -dlm.ECANCEL:
		return 0
	default:
		return s
	}
}

// errnoResponse reports that the shard could not serve the request at all
func errnoResponse(t common.MessageType, errno unix.Errno) *common.Message {
	switch t {
	case common.MsgTLsCreate:
		return common.NewLsCreateResponse(0, -int(errno))
	case common.MsgTLsRelease:
		return common.NewLsReleaseResponse(-int(errno))
	case common.MsgTLock:
		return common.NewLockResponse(-int(errno), &dlm.LKSB{Status: -int32(errno)}, 0)
	case common.MsgTUnlock:
		return common.NewUnlockResponse(-int(errno), &dlm.LKSB{Status: -int32(errno)})
	default:
		return common.NewErrorResponse(errno.Error())
	}
}
