// Package local assembles validator invocations and supervises the
// launched processes.
package local

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/eqlabs/snarkos-devnet/utils"
	"github.com/eqlabs/snarkos-devnet/utils/constants"
	"go.uber.org/zap"
)

// ModeBFT is the only operating mode this harness starts validators in.
const ModeBFT = "bft"

var ErrEmptyExecPath = errors.New("validator executable path is not defined")

// LaunchConfig is the full description of one validator invocation.
// It is constructed once per process start and never mutated afterwards.
type LaunchConfig struct {
	// ExecPath is the default validator binary. The Jemalloc toggle
	// substitutes the allocator-instrumented variant, the Heaptrack
	// toggle wraps the invocation with the profiler. The two are
	// independent and composable.
	ExecPath  string
	Jemalloc  bool
	Heaptrack bool

	NodeID        uint32
	CommitteeSize uint32
	PeerFilePath  string

	// Devnet-only fixture paths; only meaningful when the validator
	// runs in development mode.
	GenesisPath string
	ProgramPath string

	Dev       bool
	Validator bool
	Metrics   bool
	NoDisplay bool
	// Verbosity below zero is omitted from the argument list.
	Verbosity int

	// ExtraArgs are appended verbatim after everything else.
	ExtraArgs []string
}

// binaryPath is the validator binary variant selected by the
// allocator toggle.
func (c LaunchConfig) binaryPath() string {
	if c.Jemalloc {
		return c.ExecPath + constants.JemallocExecSuffix
	}
	return c.ExecPath
}

// Executable resolves the binary to invoke and any wrapper-injected
// leading arguments, applying the allocator and profiler toggles.
func (c LaunchConfig) Executable() (string, []string) {
	if c.Heaptrack {
		return constants.HeaptrackExec, []string{c.binaryPath()}
	}
	return c.binaryPath(), nil
}

// Args renders the validator CLI argument list. Arguments are built as
// a structured token sequence, never a shell string.
func (c LaunchConfig) Args() []string {
	args := []string{
		"--mode", ModeBFT,
		"--id", strconv.FormatUint(uint64(c.NodeID), 10),
		"--num-nodes", strconv.FormatUint(uint64(c.CommitteeSize), 10),
		"--peers", c.PeerFilePath,
	}
	if c.GenesisPath != "" {
		args = append(args, "--genesis", c.GenesisPath)
	}
	if c.ProgramPath != "" {
		args = append(args, "--program", c.ProgramPath)
	}
	if c.Dev {
		args = append(args, "--dev", strconv.FormatUint(uint64(c.NodeID), 10))
	}
	if c.Validator {
		args = append(args, "--validator")
	}
	if c.Metrics {
		args = append(args, "--metrics")
	}
	if c.NoDisplay {
		args = append(args, "--nodisplay")
	}
	if c.Verbosity >= 0 {
		args = append(args, "--verbosity", strconv.Itoa(c.Verbosity))
	}
	return append(args, c.ExtraArgs...)
}

func (c LaunchConfig) Validate() error {
	if c.ExecPath == "" {
		return ErrEmptyExecPath
	}
	if c.PeerFilePath == "" {
		return errors.New("peer file path is not defined")
	}
	return nil
}

// Launcher starts validator processes. The zero writers mean the child
// inherits the launcher's own stdout/stderr untouched; non-nil writers
// get the child output name-prefixed and colored per node.
type Launcher struct {
	log            *zap.Logger
	processCreator NodeProcessCreator
}

func NewLauncher(log *zap.Logger) *Launcher {
	return &Launcher{
		log: log,
		processCreator: &nodeProcessCreator{
			colorPicker: utils.NewColorPicker(),
			stdout:      os.Stdout,
			stderr:      os.Stderr,
		},
	}
}

// NewLauncherTo is like NewLauncher but prefixes and colors each
// child's output into the given writers. Used when several validators
// share one terminal.
func NewLauncherTo(log *zap.Logger, stdout, stderr io.Writer) *Launcher {
	return &Launcher{
		log: log,
		processCreator: &nodeProcessCreator{
			colorPicker: utils.NewColorPicker(),
			stdout:      stdout,
			stderr:      stderr,
			prefix:      true,
		},
	}
}

// Launch starts the validator described by [config] as a supervised
// child process. The caller owns the returned process: Wait blocks
// until exit and reports the child's status unchanged, Stop delivers
// group-kill semantics.
func (l *Launcher) Launch(config LaunchConfig) (NodeProcess, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	// The profiler wrapper is resolved via PATH by exec; only the
	// validator binary itself is checked up front.
	if err := utils.CheckExecPath(config.binaryPath()); err != nil {
		return nil, err
	}
	execPath, wrapperArgs := config.Executable()
	args := append(wrapperArgs, config.Args()...)

	name := fmt.Sprintf("peer%d", config.NodeID)
	l.log.Info("launching validator",
		zap.String("name", name),
		zap.String("exec", execPath),
		zap.Strings("args", args),
	)
	return l.processCreator.NewNodeProcess(name, execPath, args...)
}
