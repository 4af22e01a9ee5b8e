package start

import (
	"errors"
	"os/exec"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"
)

// runAndWait returns the wait error and exit code of a finished shell
// command, the same pair the process supervisor reports.
func runAndWait(t *testing.T, script string) (int, error) {
	t.Helper()
	cmd := exec.Command("sh", "-c", script)
	err := cmd.Run()
	require.Error(t, err)
	return cmd.ProcessState.ExitCode(), err
}

func TestResolveExit(t *testing.T) {
	exitThreeCode, exitThreeErr := runAndWait(t, "exit 3")
	require.Equal(t, 3, exitThreeCode)

	// A child killed by SIGSEGV reports exit code -1 and a wait error.
	segvCode, segvErr := runAndWait(t, "kill -SEGV $$")
	require.Equal(t, -1, segvCode)

	spawnErr := errors.New("fork/exec: no such file or directory")

	tt := []struct {
		operatorStopped bool
		exitCode        int
		waitErr         error
		expectedCode    int
		expectedErr     error
	}{
		// Clean exit.
		{false, 0, nil, 0, nil},
		// Exit code propagated unchanged.
		{false, exitThreeCode, exitThreeErr, 3, nil},
		// Spontaneous signal death must not exit 0.
		{false, segvCode, segvErr, 128 + int(syscall.SIGSEGV), nil},
		// The same death during an operator-commanded stop is clean.
		{true, segvCode, segvErr, 0, nil},
		{true, exitThreeCode, exitThreeErr, 0, nil},
		// Non-exit wait errors surface to the caller.
		{false, -1, spawnErr, 0, spawnErr},
	}
	for i, tv := range tt {
		code, err := resolveExit(tv.operatorStopped, tv.exitCode, tv.waitErr)
		require.Equal(t, tv.expectedCode, code, "[%d]", i)
		require.Equal(t, tv.expectedErr, err, "[%d]", i)
	}
}
