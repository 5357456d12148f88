package server

import (
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"runtime"
	"sync"
	"syscall"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/xzl01/dlm/rpc/common"
	"github.com/xzl01/dlm/rpc/serializer"
	"github.com/xzl01/dlm/rpc/transport"
	httpTransport "github.com/xzl01/dlm/rpc/transport/http"
	"golang.org/x/sys/unix"
)

var Logger = logger.GetLogger("rpc")

// serverShard is a struct that represents a shard in the RPC server
// It contains the lock manager backend it encapsulates and the adapter
// that handles requests for it
type serverShard struct {
	Backend IServiceBackend
	Adapter IRPCServerAdapter
}

// NewRPCServer creates a new RPC server
// It takes a config, transport and serializer as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		unix.NewUnixDefaultServerTransport(),
//		serializer.NewBinarySerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	 }
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) *RPCServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	Logger.Infof("Created RPC Server")
	Logger.Infof("%s", config.String())

	return &RPCServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		shards:     xsync.NewMapOf[uint64, serverShard](),
	}
}

// RPCServer serves dlm.Service shards over an RPC transport
type RPCServer struct {
	config        common.ServerConfig
	transport     transport.IRPCServerTransport
	serializer    serializer.IRPCSerializer
	shards        *xsync.MapOf[uint64, serverShard]
	metricsMu     sync.Mutex
	metricsServer *http.Server
}

// Serve starts the RPC server
// This function will also initialize the shards and start the transport layer.
// It returns after Close was called.
func (s *RPCServer) Serve() error {
	if err := s.init(); err != nil {
		return err
	}
	s.serveMetrics()
	return s.transport.Listen(s.config)
}

// Close stops the transport and the metrics listener
func (s *RPCServer) Close() error {
	s.metricsMu.Lock()
	if s.metricsServer != nil {
		s.metricsServer.Close()
		s.metricsServer = nil
	}
	s.metricsMu.Unlock()
	return s.transport.Close()
}

// Backend returns the backend of a shard, for callers embedding the server
func (s *RPCServer) Backend(shardID uint64) (IServiceBackend, bool) {
	shard, ok := s.shards.Load(shardID)
	return shard.Backend, ok
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (s *RPCServer) init() error {
	if len(s.config.Shards) == 0 {
		return fmt.Errorf("no shards configured")
	}

	// CREATE SHARDS

	/*
		Note: A single RPC Server can host any number of shards. Each shard is an
		independent lock manager, either in-process or the kernel DLM of the host.
		Lockspaces and locks of different shards never interact.
	*/

	for _, shardConfig := range s.config.Shards {
		if _, exists := s.shards.Load(shardConfig.ShardID); exists {
			return fmt.Errorf("duplicate shard %d", shardConfig.ShardID)
		}

		backend, err := newBackend(shardConfig, s.config)
		if err != nil {
			return fmt.Errorf("failed to create shard %d: %w", shardConfig.ShardID, err)
		}

		s.shards.Store(shardConfig.ShardID, serverShard{
			Backend: backend,
			Adapter: NewDLMServerAdapter(shardConfig.ShardID),
		})
		Logger.Infof("created %s lock manager for shard %d", backend.Type(), shardConfig.ShardID)
	}

	Logger.Infof("dlm setup completed successfully")

	// Configure the transport layer
	s.registerTransportHandler()

	return nil
}

func (s *RPCServer) registerTransportHandler() {
	s.transport.RegisterHandler(func(shardId uint64, req []byte) []byte {
		var msg common.Message
		var respMsg *common.Message

		// Decode the request
		if err := s.serializer.Deserialize(req, &msg); err != nil {
			respMsg = common.NewErrorResponse(fmt.Sprintf("failed to deserialize request: %s", err))
		} else if shard, ok := s.shards.Load(shardId); !ok {
			// Case shard does not exist -> no such device
			Logger.Warningf("request for unknown shard %d", shardId)
			respMsg = errnoResponse(msg.MsgType, unix.ENODEV)
		} else {
			// Let the adapter handle the request
			respMsg = shard.Adapter.Handle(&msg, shard.Backend)
		}

		// Return result
		val, err := s.serializer.Serialize(*respMsg)
		if err != nil {
			Logger.Errorf("failed to serialize response: %v", err)
			val, _ = s.serializer.Serialize(*common.NewErrorResponse(fmt.Sprintf("failed to serialize response: %s", err)))
		}
		return val
	})
}

// serveMetrics starts the optional metrics listener
func (s *RPCServer) serveMetrics() {
	if s.config.MetricsEndpoint == "" {
		return
	}

	server := &http.Server{Addr: s.config.MetricsEndpoint, Handler: httpTransport.NewMetricsMux()}
	s.metricsMu.Lock()
	s.metricsServer = server
	s.metricsMu.Unlock()

	go func() {
		Logger.Infof("Serving metrics on %s/metrics", s.config.MetricsEndpoint)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			Logger.Errorf("metrics listener failed: %v", err)
		}
	}()
}
