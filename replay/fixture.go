// Package replay produces and replays pre-generated devnet fixtures:
// a genesis block, a deployment-transaction block and a transaction
// batch, all keyed by the transaction count so differently sized
// fixtures coexist.
package replay

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"
)

var (
	ErrFixtureMissing = errors.New("fixture file missing, run pregenerate first")
	ErrNetworkUnready = errors.New("network has not signaled the deployment block yet")
)

// Fixture locates the three fixture files on disk. The filesystem is
// the single source of truth: nothing is cached in memory across runs.
type Fixture struct {
	// Dir the fixture files live in, /var/tmp by default.
	Dir string
	// TxCount is the number of transactions encoded in the batch.
	TxCount int
}

func (f Fixture) dir() string {
	if f.Dir == "" {
		return "/var/tmp"
	}
	return f.Dir
}

func (f Fixture) keyed(prefix string) string {
	return filepath.Join(f.dir(), fmt.Sprintf("%s-%d.bin", prefix, f.TxCount))
}

// GenesisPath is the genesis state blob.
func (f Fixture) GenesisPath() string {
	return f.keyed("genesis")
}

// ProgramPath is the deployment-transaction block blob.
func (f Fixture) ProgramPath() string {
	return f.keyed("program")
}

// TransactionsPath is the transaction batch.
func (f Fixture) TransactionsPath() string {
	return f.keyed("txs")
}

// Check returns [ErrFixtureMissing] naming the first absent file.
func (f Fixture) Check() error {
	for _, path := range []string{f.GenesisPath(), f.ProgramPath(), f.TransactionsPath()} {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("%w: %q", ErrFixtureMissing, path)
			}
			return fmt.Errorf("couldn't stat fixture file %q: %w", path, err)
		}
	}
	return nil
}

// GeneratorConfig describes the external transaction/genesis generator.
// Its serialization formats are opaque to this harness; only the file
// locations are contracted.
type GeneratorConfig struct {
	// ExecPath of the generator binary.
	ExecPath string
	// PrivateKey funding the generated transactions.
	PrivateKey string
}

// Pregenerate drives the external generator once to produce the three
// fixture files at their keyed paths. The fixture then stays on disk,
// read-only, for every subsequent network run until regenerated.
func Pregenerate(ctx context.Context, log *zap.Logger, gen GeneratorConfig, fixture Fixture) error {
	if gen.ExecPath == "" {
		return errors.New("generator executable path is not defined")
	}
	args := []string{
		"create-ledger",
		"--txs", strconv.Itoa(fixture.TxCount),
		"--genesis", fixture.GenesisPath(),
		"--program", fixture.ProgramPath(),
		"--transactions", fixture.TransactionsPath(),
	}
	if gen.PrivateKey != "" {
		args = append(args, "--key", gen.PrivateKey)
	}

	log.Info("running fixture generator",
		zap.String("exec", gen.ExecPath),
		zap.Int("txCount", fixture.TxCount),
	)
	cmd := exec.CommandContext(ctx, gen.ExecPath, args...)
	// The generator's output is the operator's progress indicator.
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("fixture generator failed: %w", err)
	}

	// The generator is external; trust but verify its outputs.
	if err := fixture.Check(); err != nil {
		return fmt.Errorf("generator exited successfully but %w", err)
	}
	return nil
}
