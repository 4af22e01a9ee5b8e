// Package replay implements the fixture pregenerate and replay
// commands.
package replay

import (
	"time"

	"github.com/eqlabs/snarkos-devnet/peers"
	"github.com/eqlabs/snarkos-devnet/pkg/color"
	"github.com/eqlabs/snarkos-devnet/pkg/logutil"
	harness "github.com/eqlabs/snarkos-devnet/replay"
	"github.com/eqlabs/snarkos-devnet/utils/constants"
	"github.com/spf13/cobra"
)

var (
	logLevel   string
	txCount    int
	fixtureDir string
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Pre-generate a devnet fixture and replay it against a running network.",
	}

	cmd.PersistentFlags().StringVar(&logLevel, "log-level", logutil.DefaultLogLevel, "log level")
	cmd.PersistentFlags().IntVar(&txCount, "txs", 0, "number of transactions in the fixture")
	cmd.PersistentFlags().StringVar(&fixtureDir, "fixture-dir", constants.DefaultFixtureDir, "directory holding the fixture files")
	_ = cmd.MarkPersistentFlagRequired("txs")

	cmd.AddCommand(
		newPregenerateCommand(),
		newRunCommand(),
	)
	return cmd
}

var (
	generatorPath string
	privateKey    string
)

func newPregenerateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pregenerate [options]",
		Short: "Runs the external generator once and installs the fixture files.",
		RunE:  pregenerateFunc,
		Args:  cobra.ExactArgs(0),
	}
	cmd.PersistentFlags().StringVar(&generatorPath, "generator", "", "transaction/genesis generator binary")
	cmd.PersistentFlags().StringVar(&privateKey, "key", "", "private key funding the generated transactions")
	return cmd
}

func pregenerateFunc(cmd *cobra.Command, _ []string) error {
	log, err := logutil.NewLogger(logLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	fixture := harness.Fixture{Dir: fixtureDir, TxCount: txCount}
	gen := harness.GeneratorConfig{ExecPath: generatorPath, PrivateKey: privateKey}
	if err := harness.Pregenerate(cmd.Context(), log, gen, fixture); err != nil {
		return err
	}
	color.Greenf("fixture for %d transactions ready:\n  %s\n  %s\n  %s\n",
		txCount, fixture.GenesisPath(), fixture.ProgramPath(), fixture.TransactionsPath())
	return nil
}

var (
	peerFilePath string
	workerPort   int
	confirmed    bool
	waitTimeout  time.Duration
)

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [options]",
		Short: "Submits the pre-generated transaction batch to the workers.",
		Long: `Submits the pre-generated transaction batch to the committee's workers.

The network must already have committed the deployment block; confirm
that observation (made in the validator logs) with --confirmed.
Replaying against a network that has not restarted is safe: the
consensus layer deduplicates.`,
		RunE: runFunc,
		Args: cobra.ExactArgs(0),
	}
	cmd.PersistentFlags().StringVar(&peerFilePath, "peers", constants.DefaultPeerFilePath, "peer map file path")
	cmd.PersistentFlags().IntVar(&workerPort, "worker-port", constants.DefaultWorkerPort, "worker transaction port")
	cmd.PersistentFlags().BoolVar(&confirmed, "confirmed", false, "the deployment block was observed in the validator logs")
	cmd.PersistentFlags().DurationVar(&waitTimeout, "timeout", 5*time.Minute, "how long to wait for the readiness signal")
	return cmd
}

func runFunc(cmd *cobra.Command, _ []string) error {
	log, err := logutil.NewLogger(logLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	peerMap, err := peers.ReadPeerMap(peerFilePath)
	if err != nil {
		return err
	}
	workers, err := harness.WorkerAddrs(peerMap, workerPort)
	if err != nil {
		return err
	}

	// The readiness signal is external to this harness: the operator's
	// --confirmed flag is the "advanced past block 1" observation.
	var ready <-chan struct{}
	if confirmed {
		ch := make(chan struct{})
		close(ch)
		ready = ch
	}

	fixture := harness.Fixture{Dir: fixtureDir, TxCount: txCount}
	result, err := harness.NewHarness(log).Replay(cmd.Context(), fixture, workers, ready, waitTimeout)
	if err != nil {
		color.Redf("replay failed: %s\n", err)
		return err
	}
	color.Greenf("replay complete: %d submitted, %d failed\n", result.Submitted, result.Failed)
	return nil
}
