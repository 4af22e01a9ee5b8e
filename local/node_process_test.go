package local

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNodeProcessExitCodePropagated(t *testing.T) {
	proc, err := newNodeProcess("peer0", exec.Command("sh", "-c", "exit 3"))
	require.NoError(t, err)

	err = proc.Wait()
	require.Error(t, err)
	require.Equal(t, 3, proc.ExitCode())
	require.Equal(t, Stopped, proc.Status())
}

func TestNodeProcessCleanExit(t *testing.T) {
	proc, err := newNodeProcess("peer0", exec.Command("true"))
	require.NoError(t, err)
	require.NoError(t, proc.Wait())
	require.Equal(t, 0, proc.ExitCode())
}

func TestNodeProcessStop(t *testing.T) {
	proc, err := newNodeProcess("peer0", exec.Command("sleep", "30"))
	require.NoError(t, err)
	require.Equal(t, Running, proc.Status())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, proc.Stop(ctx))
	require.Equal(t, Stopped, proc.Status())

	// Stop is idempotent.
	require.NoError(t, proc.Stop(ctx))
}

func TestNetworkStopLeavesNoSurvivors(t *testing.T) {
	creator := &nodeProcessCreator{stdout: testWriter{}, stderr: testWriter{}}

	network := &Network{
		log:             zap.NewNop(),
		stopRequestedCh: make(chan struct{}),
		closedOnStopCh:  make(chan struct{}),
	}
	for i := 0; i < 4; i++ {
		proc, err := creator.NewNodeProcess("peer0", "sleep", "30")
		require.NoError(t, err)
		network.processes = append(network.processes, proc)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, network.Stop(ctx))
	for _, proc := range network.Processes() {
		require.Equal(t, Stopped, proc.Status())
	}

	select {
	case <-network.StoppedCh():
	default:
		t.Fatal("stop channel not closed")
	}
}

func TestNetworkStopIntentVisibleToWait(t *testing.T) {
	creator := &nodeProcessCreator{stdout: testWriter{}, stderr: testWriter{}}

	network := &Network{
		log:             zap.NewNop(),
		stopRequestedCh: make(chan struct{}),
		closedOnStopCh:  make(chan struct{}),
	}
	for i := 0; i < 2; i++ {
		proc, err := creator.NewNodeProcess("peer0", "sleep", "30")
		require.NoError(t, err)
		network.processes = append(network.processes, proc)
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = network.Stop(ctx)
	}()

	// Wait unblocks as soon as the children die; the stop intent must
	// already be observable at that point, even if Stop itself has not
	// returned yet.
	err := network.Wait()
	require.Error(t, err)
	select {
	case <-network.StopRequested():
	default:
		t.Fatal("stop intent not visible after Wait returned")
	}
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }
