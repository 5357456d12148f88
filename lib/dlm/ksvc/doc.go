// Package ksvc implements dlm.Service on top of the Linux kernel DLM through
// libdlm (dlm_lt, the library variant without its own thread).
//
// The binding is only compiled on Linux with cgo and the libdlm build tag:
//
//	go build -tags libdlm ./...
//
// Without it New returns ErrUnsupported.
//
// Blocking notifications arrive on the goroutine blocked in LockWait, which
// is where the non-threaded library dispatches them. A notification for a
// request that has already returned is dropped.
package ksvc

import (
	"errors"

	"github.com/lni/dragonboat/v4/logger"
)

// ControlDevice is the misc device the kernel DLM exposes to user space.
const ControlDevice = "/dev/misc/dlm-control"

var (
	log = logger.GetLogger("ksvc")

	// ErrUnsupported is returned by New when the kernel binding is not
	// compiled in.
	ErrUnsupported = errors.New("ksvc: kernel dlm support not compiled in (build with -tags libdlm)")
)
