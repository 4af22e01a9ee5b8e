package peers

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func writePeerFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "peers.txt")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestResolve(t *testing.T) {
	peerFile := writePeerFile(t, "172.28.0.2:4133\n172.28.0.3:4133\n172.28.0.4:4133\n172.28.0.5:4133\n")

	tt := []struct {
		hostname    string
		expectedID  uint32
		expectedErr error
	}{
		{hostname: "peer0", expectedID: 0},
		{hostname: "peer3", expectedID: 3},
		{hostname: "peer12", expectedID: 12},
		// Zero padding stays decimal, never octal.
		{hostname: "peer007", expectedID: 7},
		{hostname: "peer010", expectedID: 10},
		{hostname: "node1", expectedErr: ErrInvalidHostname},
		{hostname: "peer", expectedErr: ErrInvalidHostname},
		{hostname: "peerA", expectedErr: ErrInvalidHostname},
		{hostname: "peer1x", expectedErr: ErrInvalidHostname},
		{hostname: "", expectedErr: ErrInvalidHostname},
	}
	for i, tv := range tt {
		identity, err := Resolve(tv.hostname, peerFile)
		if tv.expectedErr != nil {
			require.ErrorIs(t, err, tv.expectedErr, fmt.Sprintf("[%d] %q", i, tv.hostname))
			continue
		}
		require.NoError(t, err, fmt.Sprintf("[%d] %q", i, tv.hostname))
		require.Equal(t, tv.expectedID, identity.NodeID)
		require.EqualValues(t, 4, identity.CommitteeSize)
	}
}

func TestResolveMissingPeerFile(t *testing.T) {
	_, err := Resolve("peer1", filepath.Join(t.TempDir(), "nonexistent"))
	require.ErrorIs(t, err, ErrPeerFileMissing)
}

func TestCommitteeSizeCountsNonEmptyLines(t *testing.T) {
	tt := []struct {
		contents     string
		expectedSize int
	}{
		{contents: "", expectedSize: 0},
		{contents: "peer0:4133\n", expectedSize: 1},
		{contents: "a\nb\nc\n", expectedSize: 3},
		// Address format per line is irrelevant to the count.
		{contents: "172.28.0.2:4133\nsome-hostname\n10.0.0.1\n", expectedSize: 3},
		{contents: "a\n\nb\n\n", expectedSize: 2},
	}
	for i, tv := range tt {
		peerMap, err := ParsePeerMap(strings.NewReader(tv.contents))
		require.NoError(t, err, fmt.Sprintf("[%d]", i))
		require.Equal(t, tv.expectedSize, peerMap.Size(), fmt.Sprintf("[%d]", i))
	}
}

func TestPeerMapAddr(t *testing.T) {
	peerMap, err := ParsePeerMap(strings.NewReader("addr0\naddr1\naddr2\n"))
	require.NoError(t, err)

	addr, ok := peerMap.Addr(1)
	require.True(t, ok)
	require.Equal(t, "addr1", addr)

	_, ok = peerMap.Addr(3)
	require.False(t, ok)
}

func TestCheckInRange(t *testing.T) {
	require.NoError(t, NodeIdentity{NodeID: 3, CommitteeSize: 4}.CheckInRange())
	require.ErrorIs(t, NodeIdentity{NodeID: 4, CommitteeSize: 4}.CheckInRange(), ErrNodeIDOutOfRange)
	require.ErrorIs(t, NodeIdentity{NodeID: 0, CommitteeSize: 0}.CheckInRange(), ErrNodeIDOutOfRange)
}
