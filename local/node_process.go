package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/eqlabs/snarkos-devnet/utils"
	"github.com/shirou/gopsutil/process"
)

var (
	_ NodeProcess        = (*nodeProcess)(nil)
	_ NodeProcessCreator = (*nodeProcessCreator)(nil)
)

// Status of a node process.
type Status int

const (
	Running Status = iota
	Stopping
	Stopped
)

// NodeProcess as an interface so validator binaries can be mocked in
// tests.
type NodeProcess interface {
	// Sends a SIGINT to this process and returns when the process
	// has exited or when [ctx] is cancelled.
	// If [ctx] is cancelled, sends a SIGKILL to this process and its
	// descendants and returns [ctx.Err()].
	// Subsequent calls to [Stop] always return nil.
	Stop(ctx context.Context) error
	// Returns when the process exits.
	// Returns an error if there was a process-level problem or if the
	// process's exit code was non-zero.
	// Subsequent calls to [Wait] always return the same value.
	Wait() error
	// ExitCode of the process; only meaningful once Wait returned.
	ExitCode() int
	// Returns the status of the process.
	Status() Status
}

// NodeProcessCreator is an interface for new node process creation.
type NodeProcessCreator interface {
	NewNodeProcess(name string, execPath string, args ...string) (NodeProcess, error)
}

type nodeProcessCreator struct {
	// colorPicker assigns each child a distinct color when output is
	// prefixed.
	colorPicker utils.ColorPicker
	// Child stdout/stderr destinations. When [prefix] is unset the
	// child inherits these as raw file descriptors where possible, so
	// its log lines pass through byte for byte.
	stdout io.Writer
	stderr io.Writer
	prefix bool
}

// NewNodeProcess starts the validator binary with the assembled
// argument list.
func (npc *nodeProcessCreator) NewNodeProcess(name string, execPath string, args ...string) (NodeProcess, error) {
	cmd := exec.Command(execPath, args...)
	if npc.prefix {
		// Multiple validators share one terminal: tag and color each
		// line with its node name. The line content itself is not
		// rewritten.
		color := npc.colorPicker.NextColor()
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("couldn't create stdout pipe: %w", err)
		}
		utils.ColorAndPrepend(stdout, npc.stdout, name, color)
		stderr, err := cmd.StderrPipe()
		if err != nil {
			return nil, fmt.Errorf("couldn't create stderr pipe: %w", err)
		}
		utils.ColorAndPrepend(stderr, npc.stderr, name, color)
	} else {
		cmd.Stdout = npc.stdout
		cmd.Stderr = npc.stderr
	}
	return newNodeProcess(name, cmd)
}

type nodeProcess struct {
	name string
	lock sync.RWMutex
	cmd  *exec.Cmd
	// Process status
	state Status
	// Closed when the process exits.
	// If closed, [onExitErr] and [exitCode] are guaranteed to be set.
	closedOnStop chan struct{}
	// Set when the process exits.
	onExitErr error
	// Set when the process exits.
	exitCode int
}

func newNodeProcess(name string, cmd *exec.Cmd) (*nodeProcess, error) {
	np := &nodeProcess{
		name:         name,
		cmd:          cmd,
		closedOnStop: make(chan struct{}),
	}
	return np, np.start()
}

// Start this process.
// Must only be called once.
func (p *nodeProcess) start() error {
	p.lock.Lock()
	defer p.lock.Unlock()

	p.state = Running
	if err := p.cmd.Start(); err != nil {
		p.state = Stopped
		return fmt.Errorf("couldn't start process: %w", err)
	}

	go func() {
		// Wait for the process to exit.
		err := p.cmd.Wait()
		p.lock.Lock()
		p.state = Stopped
		p.onExitErr = err
		p.exitCode = p.cmd.ProcessState.ExitCode()
		close(p.closedOnStop)
		p.lock.Unlock()
	}()
	return nil
}

func (p *nodeProcess) Wait() error {
	<-p.closedOnStop
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.onExitErr
}

func (p *nodeProcess) ExitCode() int {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.exitCode
}

func (p *nodeProcess) Stop(ctx context.Context) error {
	p.lock.Lock()
	if p.state != Running {
		p.lock.Unlock()
		return nil
	}
	p.state = Stopping
	proc := p.cmd.Process
	// The exit goroutine needs the lock to record the exit, so it must
	// not be held while waiting below.
	p.lock.Unlock()

	// There isn't anything to do with this error.
	// Either the process got the signal, in which case we should wait
	// until it exits, or it didn't, in which case we should wait until
	// the context is cancelled and then SIGKILL it.
	_ = proc.Signal(os.Interrupt)

	select {
	case <-ctx.Done():
		_ = killDescendants(int32(proc.Pid))
		_ = proc.Signal(os.Kill)
		return ctx.Err()
	case <-p.closedOnStop:
		return nil
	}
}

func (p *nodeProcess) Status() Status {
	p.lock.RLock()
	defer p.lock.RUnlock()

	return p.state
}

func killDescendants(pid int32) error {
	procs, err := process.Processes()
	if err != nil {
		return err
	}
	for _, proc := range procs {
		ppid, err := proc.Ppid()
		if err != nil {
			return err
		}
		if ppid != pid {
			continue
		}
		if err := killDescendants(proc.Pid); err != nil {
			return err
		}
		_ = proc.Kill()
	}
	return nil
}
