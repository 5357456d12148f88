package client_test

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/xzl01/dlm/lib/dlm"
	"github.com/xzl01/dlm/rpc/client"
	"github.com/xzl01/dlm/rpc/common"
	"github.com/xzl01/dlm/rpc/serializer"
	"github.com/xzl01/dlm/rpc/server"
	"github.com/xzl01/dlm/rpc/transport"
	httpTransport "github.com/xzl01/dlm/rpc/transport/http"
	unixTransport "github.com/xzl01/dlm/rpc/transport/unix"
	"golang.org/x/sys/unix"
)

const testShard = 100

// testSetup describes one transport under test
type testSetup struct {
	endpoint  func(t *testing.T) (server string, client string)
	server    func() transport.IRPCServerTransport
	client    func() transport.IRPCClientTransport
	dialCheck func(endpoint string) error
}

var testSetups = map[string]testSetup{
	"Unix": {
		endpoint: func(t *testing.T) (string, string) {
			path := filepath.Join(t.TempDir(), "dlm.sock")
			return path, path
		},
		server: unixTransport.NewUnixDefaultServerTransport,
		client: unixTransport.NewUnixClientTransport,
		dialCheck: func(endpoint string) error {
			conn, err := net.Dial("unix", endpoint)
			if err == nil {
				conn.Close()
			}
			return err
		},
	},
	"HTTP": {
		endpoint: func(t *testing.T) (string, string) {
			addr := freeAddr(t)
			return addr, "http://" + addr
		},
		server: httpTransport.NewHttpServerTransport,
		client: httpTransport.NewHttpClientTransport,
		dialCheck: func(endpoint string) error {
			conn, err := net.Dial("tcp", endpoint)
			if err == nil {
				conn.Close()
			}
			return err
		},
	},
}

// freeAddr returns a local tcp address that was free a moment ago
func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find a free port: %v", err)
	}
	defer l.Close()
	return l.Addr().String()
}

// startServer runs a server with one local shard and returns the client config
func startServer(t *testing.T, setup testSetup) (*server.RPCServer, common.ClientConfig, testSetup) {
	t.Helper()
	serverEndpoint, clientEndpoint := setup.endpoint(t)

	s := server.NewRPCServer(common.ServerConfig{
		Shards:    []common.ServerShard{{ShardID: testShard, Type: common.ShardTypeLocal}},
		Transport: common.ServerTransportConfig{Endpoint: serverEndpoint},
		LogLevel:  "error",
	}, setup.server(), serializer.NewBinarySerializer())

	done := make(chan error, 1)
	go func() { done <- s.Serve() }()
	t.Cleanup(func() {
		s.Close()
		<-done
	})

	// Wait until the listener is up
	deadline := time.Now().Add(2 * time.Second)
	for setup.dialCheck(serverEndpoint) != nil {
		if time.Now().After(deadline) {
			t.Fatalf("server did not start on %s", serverEndpoint)
		}
		time.Sleep(10 * time.Millisecond)
	}

	return s, common.ClientConfig{
		Transport: common.ClientTransportConfig{Endpoints: []string{clientEndpoint}, RetryCount: 2},
	}, setup
}

func newService(t *testing.T, config common.ClientConfig, setup testSetup, shard uint64) *client.RPCService {
	t.Helper()
	svc, err := client.NewRPCService(shard, config, setup.client(), serializer.NewBinarySerializer())
	if err != nil {
		t.Fatalf("NewRPCService failed: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return svc
}

func createLockspace(t *testing.T, svc dlm.Service, name string) *dlm.Lockspace {
	t.Helper()
	ls, err := dlm.CreateLockspace(svc, name, dlm.DefaultMode)
	if err != nil {
		t.Fatalf("CreateLockspace(%s) failed: %v", name, err)
	}
	t.Cleanup(func() { ls.Close() })
	return ls
}

func TestRPCService(t *testing.T) {
	for name, setup := range testSetups {
		t.Run(name, func(t *testing.T) {
			t.Run("LockAndUnlock", func(t *testing.T) {
				_, config, setup := startServer(t, setup)
				ls := createLockspace(t, newService(t, config, setup, testShard), "default")

				lock := ls.CreateLock("testlock1")
				if err := lock.Acquire(dlm.ModeEX, dlm.FlagNoQueue); err != nil {
					t.Fatalf("Acquire failed: %v", err)
				}
				if sb := lock.Status(); sb.Status != 0 || sb.LockID == 0 {
					t.Fatalf("unexpected status after Acquire: %s", sb)
				}
				if err := lock.Release(0); err != nil {
					t.Fatalf("Release failed: %v", err)
				}
				if lock.Status().Status != -dlm.EUNLOCK {
					t.Errorf("expected EUNLOCK status, got %s", lock.Status())
				}
			})

			t.Run("SessionsCompete", func(t *testing.T) {
				_, config, setup := startServer(t, setup)
				lsA := createLockspace(t, newService(t, config, setup, testShard), "default")
				lsB := createLockspace(t, newService(t, config, setup, testShard), "default")

				if err := lsA.CreateLock("res").Acquire(dlm.ModeEX, 0); err != nil {
					t.Fatalf("Acquire failed: %v", err)
				}
				err := lsB.CreateLock("res").Acquire(dlm.ModePR, dlm.FlagNoQueue)
				if !dlm.IsNotAvailable(err) {
					t.Fatalf("expected lock not available, got %v", err)
				}
			})

			t.Run("ValueBlock", func(t *testing.T) {
				_, config, setup := startServer(t, setup)
				lsA := createLockspace(t, newService(t, config, setup, testShard), "default")
				lsB := createLockspace(t, newService(t, config, setup, testShard), "default")

				writer := lsA.CreateLock("res")
				if err := writer.Acquire(dlm.ModeEX, dlm.FlagValBlk); err != nil {
					t.Fatalf("Acquire failed: %v", err)
				}
				writer.SetValue([]byte("hello"))
				if err := writer.Release(dlm.FlagValBlk); err != nil {
					t.Fatalf("Release failed: %v", err)
				}

				reader := lsB.CreateLock("res")
				if err := reader.Acquire(dlm.ModePR, dlm.FlagValBlk); err != nil {
					t.Fatalf("Acquire failed: %v", err)
				}
				sb := reader.Status()
				if !sb.ValueValid() || !bytes.HasPrefix(sb.Value, []byte("hello")) {
					t.Errorf("unexpected value block: %s", sb)
				}
			})

			t.Run("BlockingNotificationReplay", func(t *testing.T) {
				_, config, setup := startServer(t, setup)
				lsA := createLockspace(t, newService(t, config, setup, testShard), "default")
				lsB := createLockspace(t, newService(t, config, setup, testShard), "default")
				lsC := createLockspace(t, newService(t, config, setup, testShard), "default")

				a := lsA.CreateLock("res")
				c := lsC.CreateLock("res")
				if err := a.Acquire(dlm.ModePR, 0); err != nil {
					t.Fatalf("Acquire failed: %v", err)
				}
				if err := c.Acquire(dlm.ModePR, 0); err != nil {
					t.Fatalf("Acquire failed: %v", err)
				}

				// A waits converting to EX while C holds PR
				notified := make(chan struct{}, 4)
				converted := make(chan error, 1)
				go func() {
					converted <- a.Acquire(dlm.ModeEX, dlm.FlagConvert, dlm.WithNotify(func() {
						notified <- struct{}{}
					}))
				}()
				time.Sleep(100 * time.Millisecond)

				// B is blocked by A's granted PR while A waits
				if err := lsB.CreateLock("res").Acquire(dlm.ModeEX, dlm.FlagNoQueue); !dlm.IsNotAvailable(err) {
					t.Fatalf("expected lock not available, got %v", err)
				}
				if err := c.Release(0); err != nil {
					t.Fatalf("Release failed: %v", err)
				}

				select {
				case err := <-converted:
					if err != nil {
						t.Fatalf("conversion failed: %v", err)
					}
				case <-time.After(2 * time.Second):
					t.Fatal("conversion not granted")
				}
				if len(notified) != 1 {
					t.Errorf("expected 1 replayed notification, got %d", len(notified))
				}
			})

			t.Run("CloseReleasesSession", func(t *testing.T) {
				s, config, setup := startServer(t, setup)
				svc, err := client.NewRPCService(testShard, config, setup.client(), serializer.NewBinarySerializer())
				if err != nil {
					t.Fatalf("NewRPCService failed: %v", err)
				}
				ls, err := dlm.CreateLockspace(svc, "session-ls", dlm.DefaultMode)
				if err != nil {
					t.Fatalf("CreateLockspace failed: %v", err)
				}
				if err := ls.CreateLock("res").Acquire(dlm.ModeEX, 0); err != nil {
					t.Fatalf("Acquire failed: %v", err)
				}

				names, err := svc.Lockspaces()
				if err != nil || len(names) != 1 || names[0] != "session-ls" {
					t.Fatalf("unexpected lockspaces %v (err %v)", names, err)
				}

				if err := svc.Close(); err != nil {
					t.Fatalf("Close failed: %v", err)
				}
				backend, _ := s.Backend(testShard)
				if names, _ := backend.Lockspaces(); len(names) != 0 {
					t.Errorf("lockspaces left after session close: %v", names)
				}

				// the closed service fails without reaching the server
				if _, rc := svc.CreateLockspace("other", dlm.DefaultMode); rc != -int(unix.ENOTCONN) {
					t.Errorf("expected ENOTCONN after Close, got %d", rc)
				}
			})

			t.Run("UnknownShard", func(t *testing.T) {
				_, config, setup := startServer(t, setup)
				svc := newService(t, config, setup, testShard+1)

				_, err := dlm.CreateLockspace(svc, "default", dlm.DefaultMode)
				if !errors.Is(err, unix.ENODEV) {
					t.Fatalf("expected ENODEV, got %v", err)
				}
			})
		})
	}
}

func TestTransportFailure(t *testing.T) {
	// Nothing listens on the socket
	path := filepath.Join(t.TempDir(), "missing.sock")
	config := common.ClientConfig{Transport: common.ClientTransportConfig{Endpoints: []string{path}}}

	_, err := client.NewRPCService(testShard, config, unixTransport.NewUnixClientTransport(), serializer.NewBinarySerializer())
	if !errors.Is(err, transport.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestServerShutdown(t *testing.T) {
	s, config, setup := startServer(t, testSetups["Unix"])
	svc := newService(t, config, setup, testShard)
	if _, rc := svc.CreateLockspace("default", dlm.DefaultMode); rc != 0 {
		t.Fatalf("CreateLockspace failed: %d", rc)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// The connection is gone, requests fail with a transport errno
	_, rc := svc.CreateLockspace("other", dlm.DefaultMode)
	if rc != -int(unix.ENOTCONN) {
		t.Errorf("expected ENOTCONN, got %d (%v)", rc, fmt.Sprint(unix.Errno(-rc)))
	}
}
