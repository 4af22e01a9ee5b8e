// Package start implements the per-node validator start command, run
// as the entrypoint inside each devnet container.
package start

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"sync/atomic"
	"syscall"

	"github.com/eqlabs/snarkos-devnet/local"
	"github.com/eqlabs/snarkos-devnet/peers"
	"github.com/eqlabs/snarkos-devnet/pkg/logutil"
	"github.com/eqlabs/snarkos-devnet/utils"
	"github.com/eqlabs/snarkos-devnet/utils/constants"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	logLevel              string
	hostname              string
	peerFilePath          string
	execPath              string
	genesisPath           string
	programPath           string
	devMode               bool
	validator             bool
	firstValidatorMetrics bool
	noDisplay             bool
	verbosity             int
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start [options] [-- extra validator args]",
		Short: "Resolves this node's identity and runs the validator in the foreground.",
		RunE:  startFunc,
		Args:  cobra.ArbitraryArgs,
	}

	cmd.PersistentFlags().StringVar(&logLevel, "log-level", logutil.DefaultLogLevel, "log level")
	cmd.PersistentFlags().StringVar(&hostname, "hostname", "", "override the node hostname (defaults to the OS hostname)")
	cmd.PersistentFlags().StringVar(&peerFilePath, "peers", constants.DefaultPeerFilePath, "peer map file path")
	cmd.PersistentFlags().StringVar(&execPath, "exec", constants.DefaultExecPath, "validator binary path")
	cmd.PersistentFlags().StringVar(&genesisPath, "genesis", "", "genesis fixture path (development mode only)")
	cmd.PersistentFlags().StringVar(&programPath, "program", "", "deployment-block fixture path (development mode only)")
	cmd.PersistentFlags().BoolVar(&devMode, "dev", false, "start the validator in development mode")
	cmd.PersistentFlags().BoolVar(&validator, "validator", true, "start as a validator")
	cmd.PersistentFlags().BoolVar(&firstValidatorMetrics, "first-validator-metrics", true, "expose metrics on node 0")
	cmd.PersistentFlags().BoolVar(&noDisplay, "nodisplay", true, "disable the validator display")
	cmd.PersistentFlags().IntVar(&verbosity, "verbosity", constants.DefaultVerbosity, "validator log verbosity")
	return cmd
}

func startFunc(_ *cobra.Command, args []string) error {
	log, err := logutil.NewLogger(logLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	// All environment-derived configuration is read here, once; no
	// component re-reads the environment mid-operation.
	nodeHostname := hostname
	if nodeHostname == "" {
		nodeHostname, err = os.Hostname()
		if err != nil {
			return err
		}
	}
	jemalloc := envSet(constants.JemallocEnvVar)
	heaptrack := envSet(constants.HeaptrackEnvVar)

	identity, err := peers.Resolve(nodeHostname, peerFilePath)
	if err != nil {
		// A malformed identity must never reach the validator; the
		// committee's addressing depends on it.
		return err
	}
	if err := identity.CheckInRange(); err != nil {
		return err
	}
	log.Info("resolved node identity",
		zap.String("hostname", nodeHostname),
		zap.Uint32("id", identity.NodeID),
		zap.Uint32("committeeSize", identity.CommitteeSize),
	)

	config := local.LaunchConfig{
		ExecPath:      execPath,
		Jemalloc:      jemalloc,
		Heaptrack:     heaptrack,
		NodeID:        identity.NodeID,
		CommitteeSize: identity.CommitteeSize,
		PeerFilePath:  peerFilePath,
		GenesisPath:   genesisPath,
		ProgramPath:   programPath,
		Dev:           devMode,
		Validator:     validator,
		Metrics:       firstValidatorMetrics && identity.NodeID == 0,
		NoDisplay:     noDisplay,
		Verbosity:     verbosity,
		ExtraArgs:     args,
	}

	proc, err := local.NewLauncher(log).Launch(config)
	if err != nil {
		return err
	}

	// Forward termination signals so a stopped container never leaves
	// an orphaned validator behind. The flag is set before the child is
	// signaled, so once Wait unblocks because of the stop it is
	// guaranteed visible.
	var operatorStop atomic.Bool
	utils.WatchShutdownSignals(log, func(ctx context.Context) error {
		operatorStop.Store(true)
		stopCtx, cancel := context.WithTimeout(ctx, constants.StopTimeout)
		defer cancel()
		return proc.Stop(stopCtx)
	})

	// The validator runs in the foreground; its exit status is
	// propagated unchanged.
	waitErr := proc.Wait()
	code, err := resolveExit(operatorStop.Load(), proc.ExitCode(), waitErr)
	if err != nil {
		return err
	}
	if code != 0 {
		log.Info("validator exited", zap.Int("code", code), zap.Error(waitErr))
		_ = log.Sync()
		os.Exit(code)
	}
	if waitErr != nil {
		log.Info("validator stopped", zap.Error(waitErr))
	}
	return nil
}

// resolveExit maps the validator's fate to this process's exit code.
// An operator-initiated stop is a clean shutdown no matter how the
// child died. Otherwise an exit code passes through unchanged, and an
// uncommanded signal death maps to the shell convention 128+signal so
// it can never masquerade as success.
func resolveExit(operatorStopped bool, exitCode int, waitErr error) (int, error) {
	if operatorStopped || waitErr == nil {
		return 0, nil
	}
	if exitCode > 0 {
		return exitCode, nil
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return 128 + int(status.Signal()), nil
		}
	}
	return 0, waitErr
}

func envSet(key string) bool {
	_, ok := os.LookupEnv(key)
	return ok
}
