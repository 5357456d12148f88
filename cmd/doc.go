// Package cmd implements the command-line interface of dlm. It provides a
// hierarchical command structure for running a lock server and for taking
// locks as a client.
//
// The package is organized into several subpackages:
//
//   - serve: Starts and configures the lock server
//   - lock: Acquires, holds and releases locks (hold, try)
//   - lockspace: Manages lockspaces (drop, list)
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Client commands talk to a lock server unless --direct selects the kernel
// DLM. Every flag can also be set as DLM_<FLAG> in the environment or in a
// .env / .env.local file.
//
// See dlm -help for a list of all commands.
package cmd
