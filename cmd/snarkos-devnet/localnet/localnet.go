// Package localnet implements a container-less devnet: the whole
// committee runs as local child processes sharing one terminal.
package localnet

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/eqlabs/snarkos-devnet/local"
	"github.com/eqlabs/snarkos-devnet/pkg/color"
	"github.com/eqlabs/snarkos-devnet/pkg/logutil"
	"github.com/eqlabs/snarkos-devnet/utils"
	"github.com/eqlabs/snarkos-devnet/utils/constants"
	"github.com/spf13/cobra"
)

var (
	logLevel              string
	committeeSize         int
	execPath              string
	basePort              int
	rootDir               string
	genesisPath           string
	programPath           string
	firstValidatorMetrics bool
	verbosity             int
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "localnet [options] [-- extra validator args]",
		Short: "Runs the whole committee as local processes, no containers.",
		RunE:  localnetFunc,
		Args:  cobra.ArbitraryArgs,
	}

	cmd.PersistentFlags().StringVar(&logLevel, "log-level", logutil.DefaultLogLevel, "log level")
	cmd.PersistentFlags().IntVar(&committeeSize, "committee-size", constants.DefaultCommitteeSize, "number of validator nodes")
	cmd.PersistentFlags().StringVar(&execPath, "exec", constants.DefaultExecPath, "validator binary path")
	cmd.PersistentFlags().IntVar(&basePort, "base-port", constants.DefaultNodePort, "listen port of node 0; node i listens on base+i")
	cmd.PersistentFlags().StringVar(&rootDir, "root-dir", "", "directory for the generated peer map (defaults to a temp dir)")
	cmd.PersistentFlags().StringVar(&genesisPath, "genesis", "", "genesis fixture path")
	cmd.PersistentFlags().StringVar(&programPath, "program", "", "deployment-block fixture path")
	cmd.PersistentFlags().BoolVar(&firstValidatorMetrics, "first-validator-metrics", true, "expose metrics on node 0")
	cmd.PersistentFlags().IntVar(&verbosity, "verbosity", constants.DefaultVerbosity, "validator log verbosity")
	return cmd
}

func localnetFunc(_ *cobra.Command, args []string) error {
	log, err := logutil.NewLogger(logLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if committeeSize < 1 {
		return fmt.Errorf("committee size must be at least 1, got %d", committeeSize)
	}

	dir := rootDir
	if dir == "" {
		dir, err = os.MkdirTemp("", "snarkos-devnet-*")
		if err != nil {
			return err
		}
	}

	// The peer map is fully written before the first validator starts;
	// nodes read it once at startup and never re-read it.
	var sb strings.Builder
	for i := 0; i < committeeSize; i++ {
		fmt.Fprintf(&sb, "127.0.0.1:%d\n", basePort+i)
	}
	peerFilePath := filepath.Join(dir, "peers.txt")
	if err := os.WriteFile(peerFilePath, []byte(sb.String()), 0o644); err != nil {
		return err
	}

	jemalloc := envSet(constants.JemallocEnvVar)
	heaptrack := envSet(constants.HeaptrackEnvVar)

	configs := make([]local.LaunchConfig, committeeSize)
	for i := range configs {
		configs[i] = local.LaunchConfig{
			ExecPath:      execPath,
			Jemalloc:      jemalloc,
			Heaptrack:     heaptrack,
			NodeID:        uint32(i),
			CommitteeSize: uint32(committeeSize),
			PeerFilePath:  peerFilePath,
			GenesisPath:   genesisPath,
			ProgramPath:   programPath,
			Dev:           true,
			Validator:     true,
			Metrics:       firstValidatorMetrics && i == 0,
			NoDisplay:     true,
			Verbosity:     verbosity,
			ExtraArgs:     args,
		}
	}

	launcher := local.NewLauncherTo(log, os.Stdout, os.Stderr)
	network, err := local.StartNetwork(log, launcher, configs)
	if err != nil {
		// Nodes started before the failure must not linger.
		stopCtx, cancel := context.WithTimeout(context.Background(), constants.StopTimeout)
		defer cancel()
		_ = network.Stop(stopCtx)
		return err
	}
	color.Greenf("started %d validators, peer map at %s\n", committeeSize, peerFilePath)

	// Group-kill semantics: one termination signal takes the whole
	// committee down, leaving no orphans.
	utils.WatchShutdownSignals(log, func(ctx context.Context) error {
		stopCtx, cancel := context.WithTimeout(ctx, constants.StopTimeout)
		defer cancel()
		return network.Stop(stopCtx)
	})

	waitErr := network.Wait()
	// Wait unblocks the instant the children die, which can be before
	// the signal handler's Stop call has fully returned; the stop
	// *decision* is what distinguishes a deliberate shutdown from a
	// spontaneous committee death.
	select {
	case <-network.StopRequested():
		// Deliberate shutdown; child exit errors are expected.
		return nil
	default:
		return waitErr
	}
}

func envSet(key string) bool {
	_, ok := os.LookupEnv(key)
	return ok
}
