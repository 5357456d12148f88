package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/xzl01/dlm/cmd/lock"
	"github.com/xzl01/dlm/cmd/lockspace"
	"github.com/xzl01/dlm/cmd/serve"
	"github.com/xzl01/dlm/cmd/util"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "dlm",
		Short: "distributed lock manager client",
		Long: fmt.Sprintf(`dlm (v%s)

Lockspaces and locks of a distributed lock manager, either the kernel DLM
of this host or a dlm lock server reached over tcp, unix sockets or http.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dlm",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dlm v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(lock.LockCommands)
	RootCmd.AddCommand(lockspace.LockspaceCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "binary", util.WrapString("serializer to use (json, gob, binary)"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "unix", util.WrapString("transport to use (http, tcp, unix)"))
	key = "direct"
	RootCmd.PersistentFlags().Bool(key, false, util.WrapString("use the kernel DLM of this host instead of a lock server (needs a build with -tags libdlm)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
