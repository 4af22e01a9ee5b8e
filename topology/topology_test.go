package topology

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/eqlabs/snarkos-devnet/backend"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeRuntime records topology calls and can be told to fail at a
// given container index.
type fakeRuntime struct {
	networks   []backend.NetworkSpec
	containers []backend.ContainerSpec
	failAt     int // container index to fail at; -1 never fails
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{failAt: -1}
}

func (f *fakeRuntime) Name() string    { return "fake" }
func (f *fakeRuntime) Available() bool { return true }

func (f *fakeRuntime) CreateNetwork(_ context.Context, spec backend.NetworkSpec) error {
	f.networks = append(f.networks, spec)
	return nil
}

func (f *fakeRuntime) CreateContainer(_ context.Context, spec backend.ContainerSpec) (string, error) {
	if len(f.containers) == f.failAt {
		return "", errors.New("boom")
	}
	f.containers = append(f.containers, spec)
	return fmt.Sprintf("id-%d", len(f.containers)-1), nil
}

func TestNodeIPDeterministic(t *testing.T) {
	spec := Spec{CommitteeSize: 4, CIDR: "172.28.0.0/16"}

	tt := []struct {
		index      int
		expectedIP string
	}{
		{index: 0, expectedIP: "172.28.0.2"},
		{index: 1, expectedIP: "172.28.0.3"},
		{index: 2, expectedIP: "172.28.0.4"},
		{index: 3, expectedIP: "172.28.0.5"},
		// Assignment rolls over into the next /24 of the /16 block.
		{index: 254, expectedIP: "172.28.1.0"},
	}
	for i, tv := range tt {
		// Repeated calls must agree: no hidden state.
		for run := 0; run < 3; run++ {
			ip, err := spec.NodeIP(tv.index)
			require.NoError(t, err, fmt.Sprintf("[%d]", i))
			require.Equal(t, tv.expectedIP, ip, fmt.Sprintf("[%d] run %d", i, run))
		}
	}

	gateway, err := spec.Gateway()
	require.NoError(t, err)
	require.Equal(t, "172.28.0.1", gateway)
}

func TestSpecValidate(t *testing.T) {
	tt := []struct {
		spec        Spec
		expectedErr error
	}{
		{spec: Spec{CommitteeSize: 4, CIDR: "172.28.0.0/16", ImageRef: "img"}},
		{spec: Spec{CommitteeSize: 0, CIDR: "172.28.0.0/16", ImageRef: "img"}, expectedErr: ErrBadCommittee},
		{spec: Spec{CommitteeSize: 4, CIDR: "172.28.0.0/16"}, expectedErr: ErrNoImage},
		{spec: Spec{CommitteeSize: 300, CIDR: "172.28.0.0/30", ImageRef: "img"}, expectedErr: ErrCIDRTooSmall},
		{spec: Spec{CommitteeSize: 4, CIDR: "fd00::/64", ImageRef: "img"}, expectedErr: ErrNotIPv4Subnet},
	}
	for i, tv := range tt {
		err := tv.spec.Validate()
		if tv.expectedErr != nil {
			require.ErrorIs(t, err, tv.expectedErr, fmt.Sprintf("[%d]", i))
		} else {
			require.NoError(t, err, fmt.Sprintf("[%d]", i))
		}
	}
}

func TestPeerMapMatchesTopology(t *testing.T) {
	spec := Spec{CommitteeSize: 4, CIDR: "172.28.0.0/16", NodePort: 4133}
	peerMap, err := spec.PeerMap()
	require.NoError(t, err)
	require.Equal(t,
		"172.28.0.2:4133\n172.28.0.3:4133\n172.28.0.4:4133\n172.28.0.5:4133\n",
		peerMap,
	)
}

func TestBuild(t *testing.T) {
	rt := newFakeRuntime()
	spec := Spec{CommitteeSize: 3, ImageRef: "snarkos:latest", Volumes: []string{"/var/tmp:/var/tmp"}}

	created, err := Build(context.Background(), zap.NewNop(), rt, spec)
	require.NoError(t, err)
	require.Len(t, created, 3)

	require.Equal(t, []backend.NetworkSpec{{
		Name:    "snarkos-devnet",
		CIDR:    "172.28.0.0/16",
		Gateway: "172.28.0.1",
	}}, rt.networks)

	for i, container := range created {
		require.Equal(t, i, container.Index)
		require.Equal(t, fmt.Sprintf("peer%d", i), container.Hostname)
		require.Equal(t, fmt.Sprintf("id-%d", i), container.ID)
	}

	// Each container carries aliases for every lower-indexed peer.
	require.Empty(t, rt.containers[0].Aliases)
	require.Equal(t, []backend.HostAlias{
		{Hostname: "peer0", IP: "172.28.0.2"},
	}, rt.containers[1].Aliases)
	require.Equal(t, []backend.HostAlias{
		{Hostname: "peer0", IP: "172.28.0.2"},
		{Hostname: "peer1", IP: "172.28.0.3"},
	}, rt.containers[2].Aliases)
}

func TestBuildTwiceIsIdempotent(t *testing.T) {
	rt := newFakeRuntime()
	spec := Spec{CommitteeSize: 2, ImageRef: "snarkos:latest"}

	first, err := Build(context.Background(), zap.NewNop(), rt, spec)
	require.NoError(t, err)
	second, err := Build(context.Background(), zap.NewNop(), rt, spec)
	require.NoError(t, err)

	// Identical addressing across runs, with no state carried between them.
	for i := range first {
		require.Equal(t, first[i].Hostname, second[i].Hostname)
		require.Equal(t, first[i].IP, second[i].IP)
	}
}

func TestBuildPartialFailure(t *testing.T) {
	rt := newFakeRuntime()
	rt.failAt = 2
	spec := Spec{CommitteeSize: 4, ImageRef: "snarkos:latest"}

	created, err := Build(context.Background(), zap.NewNop(), rt, spec)
	require.Error(t, err)

	var partial *PartialTopologyError
	require.ErrorAs(t, err, &partial)
	require.Equal(t, 2, partial.Index)
	require.Len(t, partial.Created, 2)
	require.Equal(t, partial.Created, created)
}
