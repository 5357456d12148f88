package lock

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/xzl01/dlm/cmd/util"
	"github.com/xzl01/dlm/lib/dlm"
)

var (
	svc      dlm.Service
	closeSvc func() error

	lockMode     string
	lockFlags    string
	holdDuration time.Duration
	lockValue    string

	// LockCommands represents the lock command group
	LockCommands = &cobra.Command{
		Use:                "lock",
		Short:              "Acquire locks",
		PersistentPreRunE:  setupLockClient,
		PersistentPostRunE: closeLockClient,
	}

	// holdCmd represents the hold command
	holdCmd = &cobra.Command{
		Use:   "hold [lockspace] [resource]",
		Short: "Acquire a lock, wait until it is granted and hold it",
		Long:  "Acquire a lock and hold it for --duration (or until interrupted when the duration is 0), then release it. The status block is printed after the grant and after the release.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHold(args[0], args[1], 0)
		},
	}

	// tryCmd represents the try command
	tryCmd = &cobra.Command{
		Use:   "try [lockspace] [resource]",
		Short: "Acquire a lock only if it is available right away",
		Long:  "Like hold, but the request is not queued (NOQUEUE). If the lock is not available, acquired=false is printed.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHold(args[0], args[1], dlm.FlagNoQueue)
		},
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// Add subcommands to lock command
	LockCommands.AddCommand(holdCmd)
	LockCommands.AddCommand(tryCmd)

	// Add common RPC flags to the lock command
	util.SetupRPCClientFlags(LockCommands)

	// Add flags shared by hold and try
	LockCommands.PersistentFlags().StringVar(&lockMode, "mode", "EX", util.WrapString("Lock mode (NL, CR, CW, PR, PW, EX)"))
	LockCommands.PersistentFlags().StringVar(&lockFlags, "flags", "", util.WrapString("Comma-separated lock flags (e.g. VALBLK,TIMEOUT) or a 0x number"))
	LockCommands.PersistentFlags().DurationVar(&holdDuration, "duration", 0, util.WrapString("How long to hold the lock, 0 holds it until interrupted"))
	LockCommands.PersistentFlags().StringVar(&lockValue, "value", "", util.WrapString("Value block written on release (implies VALBLK, at most 32 bytes)"))
}

// setupLockClient initializes the lock service
func setupLockClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	var err error
	svc, closeSvc, err = util.GetService()
	return err
}

// closeLockClient closes the lock service
func closeLockClient(_ *cobra.Command, _ []string) error {
	if closeSvc == nil {
		return nil
	}
	return closeSvc()
}

// runHold acquires a lock, holds it and releases it again
func runHold(lockspace, resource string, extra dlm.LockFlag) error {
	mode, err := dlm.ParseLockMode(lockMode)
	if err != nil {
		return err
	}
	flags, err := dlm.ParseLockFlags(lockFlags)
	if err != nil {
		return err
	}
	flags |= extra
	if lockValue != "" {
		flags |= dlm.FlagValBlk
	}

	ls, err := dlm.CreateLockspace(svc, lockspace, dlm.DefaultMode)
	if err != nil {
		return fmt.Errorf("failed to create lockspace %s: %w", lockspace, err)
	}
	defer ls.Release(dlm.ForceLocal)

	lock := ls.CreateLock(resource)
	defer lock.Close()

	if err := lock.Acquire(mode, flags); err != nil {
		if dlm.IsNotAvailable(err) {
			fmt.Printf("acquired=false\n")
			return nil
		}
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	fmt.Printf("acquired=true\n%s\n", lock)

	waitHold(holdDuration)

	// Only VALBLK travels with the release, the request flags do not apply
	releaseFlags := flags & dlm.FlagValBlk
	if lockValue != "" {
		lock.SetValue([]byte(lockValue))
	}
	if err := lock.Release(releaseFlags); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	fmt.Printf("released=true\n%s\n", lock.Status())
	return nil
}

// waitHold blocks for d, or until SIGINT/SIGTERM when d is 0
func waitHold(d time.Duration) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	var timeout <-chan time.Time
	if d > 0 {
		timeout = time.After(d)
	}
	select {
	case <-signals:
	case <-timeout:
	}
}
