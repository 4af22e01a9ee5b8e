// Package topology computes the deterministic layout of a devnet and
// drives a container runtime to materialize it.
package topology

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/eqlabs/snarkos-devnet/backend"
	"github.com/eqlabs/snarkos-devnet/utils/constants"
	"go.uber.org/zap"
)

var (
	ErrNoImage       = errors.New("container image not specified")
	ErrBadCommittee  = errors.New("committee size must be at least 1")
	ErrCIDRTooSmall  = errors.New("CIDR block cannot address the committee")
	ErrNotIPv4Subnet = errors.New("CIDR must be an IPv4 block")
)

// Spec describes a devnet topology. All addressing derived from it is a
// pure function of the spec, so re-creating a devnet always reproduces
// the addresses already baked into the peer map.
type Spec struct {
	CommitteeSize int
	NetworkName   string
	CIDR          string
	ImageRef      string
	Volumes       []string
	Env           []string
	// NodePort is the validator listen port placed in the peer map.
	NodePort int
	// ContainerArgs are passed verbatim to every container entrypoint.
	ContainerArgs []string
}

// Container is one created committee member, in creation order.
type Container struct {
	Index    int
	ID       string
	Hostname string
	IP       string
}

// PartialTopologyError reports a build that failed partway through,
// carrying the already-created subset so the caller can tear down or
// retry. It is never silently swallowed.
type PartialTopologyError struct {
	Created []Container
	Index   int
	Err     error
}

func (e *PartialTopologyError) Error() string {
	return fmt.Sprintf("topology build failed at node %d (%d containers already created): %s",
		e.Index, len(e.Created), e.Err)
}

func (e *PartialTopologyError) Unwrap() error {
	return e.Err
}

// WithDefaults fills zero fields from the devnet defaults.
func (s Spec) WithDefaults() Spec {
	if s.CommitteeSize == 0 {
		s.CommitteeSize = constants.DefaultCommitteeSize
	}
	if s.NetworkName == "" {
		s.NetworkName = constants.DefaultNetworkName
	}
	if s.CIDR == "" {
		s.CIDR = constants.DefaultCIDR
	}
	if s.NodePort == 0 {
		s.NodePort = constants.DefaultNodePort
	}
	return s
}

func (s Spec) Validate() error {
	if s.CommitteeSize < 1 {
		return ErrBadCommittee
	}
	if s.ImageRef == "" {
		return ErrNoImage
	}
	base, ipNet, err := s.parseCIDR()
	if err != nil {
		return err
	}
	// Highest assigned address is base + committee + 1.
	last := make(net.IP, net.IPv4len)
	binary.BigEndian.PutUint32(last, binary.BigEndian.Uint32(base)+uint32(s.CommitteeSize)+1)
	if !ipNet.Contains(last) {
		return fmt.Errorf("%w: %q, committee size %d", ErrCIDRTooSmall, s.CIDR, s.CommitteeSize)
	}
	return nil
}

func (s Spec) parseCIDR() (net.IP, *net.IPNet, error) {
	_, ipNet, err := net.ParseCIDR(s.CIDR)
	if err != nil {
		return nil, nil, fmt.Errorf("couldn't parse CIDR %q: %w", s.CIDR, err)
	}
	base := ipNet.IP.To4()
	if base == nil {
		return nil, nil, fmt.Errorf("%w: %q", ErrNotIPv4Subnet, s.CIDR)
	}
	return base, ipNet, nil
}

func (s Spec) offsetIP(offset uint32) (string, error) {
	base, _, err := s.parseCIDR()
	if err != nil {
		return "", err
	}
	ip := make(net.IP, net.IPv4len)
	binary.BigEndian.PutUint32(ip, binary.BigEndian.Uint32(base)+offset)
	return ip.String(), nil
}

// Gateway returns the network gateway, reserved at base+1.
func (s Spec) Gateway() (string, error) {
	return s.offsetIP(1)
}

// NodeIP returns node [index]'s address, base+index+2. The assignment
// is stateless so every (re)creation yields identical addresses.
func (s Spec) NodeIP(index int) (string, error) {
	return s.offsetIP(uint32(index) + 2)
}

// Hostname returns node [index]'s hostname. The numeric suffix is the
// node id the validator derives at startup.
func Hostname(index int) string {
	return fmt.Sprintf("peer%d", index)
}

// PeerMap renders the peer map matching this topology, one
// address per line in node id order. Generating the file from the same
// spec that creates the containers keeps the two from ever drifting.
func (s Spec) PeerMap() (string, error) {
	var sb strings.Builder
	for i := 0; i < s.CommitteeSize; i++ {
		ip, err := s.NodeIP(i)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&sb, "%s:%d\n", ip, s.NodePort)
	}
	return sb.String(), nil
}

// Build creates the devnet network and one container per committee
// member, in index order. Network creation is idempotent. A mid-loop
// container failure returns a [*PartialTopologyError] carrying the
// containers created so far.
func Build(ctx context.Context, log *zap.Logger, rt backend.Runtime, spec Spec) ([]Container, error) {
	spec = spec.WithDefaults()
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	gateway, err := spec.Gateway()
	if err != nil {
		return nil, err
	}
	log.Info("creating devnet network",
		zap.String("runtime", rt.Name()),
		zap.String("network", spec.NetworkName),
		zap.String("cidr", spec.CIDR),
		zap.String("gateway", gateway),
	)
	if err := rt.CreateNetwork(ctx, backend.NetworkSpec{
		Name:    spec.NetworkName,
		CIDR:    spec.CIDR,
		Gateway: gateway,
	}); err != nil {
		return nil, err
	}

	created := make([]Container, 0, spec.CommitteeSize)
	for i := 0; i < spec.CommitteeSize; i++ {
		ip, err := spec.NodeIP(i)
		if err != nil {
			return created, &PartialTopologyError{Created: created, Index: i, Err: err}
		}
		// Aliases for every peer created earlier in the loop let the
		// new node resolve them without a DNS server.
		aliases := make([]backend.HostAlias, 0, i)
		for j := 0; j < i; j++ {
			prevIP, err := spec.NodeIP(j)
			if err != nil {
				return created, &PartialTopologyError{Created: created, Index: i, Err: err}
			}
			aliases = append(aliases, backend.HostAlias{Hostname: Hostname(j), IP: prevIP})
		}

		hostname := Hostname(i)
		id, err := rt.CreateContainer(ctx, backend.ContainerSpec{
			Name:     hostname,
			Hostname: hostname,
			Network:  spec.NetworkName,
			IP:       ip,
			Image:    spec.ImageRef,
			Volumes:  spec.Volumes,
			Env:      spec.Env,
			Aliases:  aliases,
			Args:     spec.ContainerArgs,
		})
		if err != nil {
			return created, &PartialTopologyError{Created: created, Index: i, Err: err}
		}
		log.Info("created container",
			zap.String("hostname", hostname),
			zap.String("ip", ip),
			zap.String("id", id),
		)
		created = append(created, Container{Index: i, ID: id, Hostname: hostname, IP: ip})
	}
	return created, nil
}
