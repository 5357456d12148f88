package lockspace

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/xzl01/dlm/cmd/util"
	"github.com/xzl01/dlm/lib/dlm"
)

var (
	svc      dlm.Service
	closeSvc func() error

	dropForce int

	// LockspaceCommands represents the lockspace command group
	LockspaceCommands = &cobra.Command{
		Use:                "lockspace",
		Short:              "Manage lockspaces",
		PersistentPreRunE:  setupClient,
		PersistentPostRunE: closeClient,
	}

	// dropCmd represents the drop command
	dropCmd = &cobra.Command{
		Use:   "drop [name]",
		Short: "Release a lockspace",
		Long:  "Attach to the lockspace and release it with --force. With force 2 the lockspace is destroyed together with its remaining locks, unless other clients are still attached.",
		Args:  cobra.ExactArgs(1),
		RunE:  runDrop,
	}

	// listCmd represents the list command
	listCmd = &cobra.Command{
		Use:   "list",
		Short: "List the lockspaces of the shard (local shards only)",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	LockspaceCommands.AddCommand(dropCmd)
	LockspaceCommands.AddCommand(listCmd)

	// Add common RPC flags to the lockspace command
	util.SetupRPCClientFlags(LockspaceCommands)

	dropCmd.Flags().IntVar(&dropForce, "force", dlm.ForceAll, util.WrapString("0 fails if locks remain, 1 drops the locks of this client, 2 drops all remaining locks"))
}

// setupClient initializes the lock service
func setupClient(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	var err error
	svc, closeSvc, err = util.GetService()
	return err
}

// closeClient closes the lock service
func closeClient(_ *cobra.Command, _ []string) error {
	if closeSvc == nil {
		return nil
	}
	return closeSvc()
}

// runDrop attaches to a lockspace and releases it with the given force
func runDrop(_ *cobra.Command, args []string) error {
	name := args[0]

	ls, err := dlm.CreateLockspace(svc, name, dlm.DefaultMode)
	if err != nil {
		return fmt.Errorf("failed to attach to lockspace %s: %w", name, err)
	}
	if err := ls.Release(dropForce); err != nil {
		return fmt.Errorf("failed to release lockspace %s: %w", name, err)
	}

	fmt.Printf("released=true, lockspace=%s, force=%d\n", name, dropForce)
	return nil
}

// runList prints the lockspaces of the shard, one per line
func runList(_ *cobra.Command, _ []string) error {
	lister, ok := svc.(interface{ Lockspaces() ([]string, error) })
	if !ok {
		return fmt.Errorf("listing lockspaces is only supported through a lock server")
	}

	names, err := lister.Lockspaces()
	if err != nil {
		return err
	}
	if len(names) > 0 {
		fmt.Println(strings.Join(names, "\n"))
	}
	return nil
}
