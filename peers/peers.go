// Package peers resolves a devnet node's identity from its hostname and
// the static peer map file shared by every committee member.
package peers

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"
)

var (
	ErrInvalidHostname  = errors.New("hostname does not match the peer<n> pattern")
	ErrPeerFileMissing  = errors.New("peer map file not found")
	ErrNodeIDOutOfRange = errors.New("node id is not below the committee size")
)

// hostnamePattern is the only hostname shape a devnet node may have.
// The numeric suffix IS the node id; anything else is a fatal
// misconfiguration since a bad id would corrupt committee addressing.
var hostnamePattern = regexp.MustCompile(`^peer([0-9]+)$`)

// PeerMap is the parsed peer address file. Line order is the identity
// mapping: the address on line i belongs to node id i.
type PeerMap struct {
	addrs []string
}

// ParsePeerMap reads one address per line. Empty lines are not counted
// towards the committee size.
func ParsePeerMap(r io.Reader) (PeerMap, error) {
	var addrs []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		addrs = append(addrs, line)
	}
	if err := scanner.Err(); err != nil {
		return PeerMap{}, fmt.Errorf("couldn't read peer map: %w", err)
	}
	return PeerMap{addrs: addrs}, nil
}

// ReadPeerMap parses the peer map at [path].
// Returns [ErrPeerFileMissing] if there is no file at [path]; the file
// is expected to be supplied as an external mount, never created here.
func ReadPeerMap(path string) (PeerMap, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return PeerMap{}, fmt.Errorf("%w: %q", ErrPeerFileMissing, path)
		}
		return PeerMap{}, fmt.Errorf("couldn't open peer map %q: %w", path, err)
	}
	defer f.Close()
	return ParsePeerMap(f)
}

// Size returns the committee size, i.e. the number of non-empty lines.
func (m PeerMap) Size() int {
	return len(m.addrs)
}

// Addr returns the address of node [id].
func (m PeerMap) Addr(id uint32) (string, bool) {
	if int(id) >= len(m.addrs) {
		return "", false
	}
	return m.addrs[id], true
}

// Addrs returns every address in node id order.
func (m PeerMap) Addrs() []string {
	addrs := make([]string, len(m.addrs))
	copy(addrs, m.addrs)
	return addrs
}

// NodeIdentity is derived at startup and never persisted.
type NodeIdentity struct {
	NodeID        uint32
	CommitteeSize uint32
}

// Resolve derives the local node's identity from [hostname] and the
// peer map at [peerFilePath]. It is a pure function of the hostname and
// the file contents.
//
// Resolve does not check that the id is below the committee size;
// callers that need that guarantee use [NodeIdentity.CheckInRange].
func Resolve(hostname, peerFilePath string) (NodeIdentity, error) {
	matches := hostnamePattern.FindStringSubmatch(hostname)
	if matches == nil {
		return NodeIdentity{}, fmt.Errorf("%w: %q", ErrInvalidHostname, hostname)
	}
	// Base 10 is forced so that zero-padded hostnames (peer007) keep
	// their decimal value instead of tripping an octal parse.
	id, err := strconv.ParseUint(matches[1], 10, 32)
	if err != nil {
		return NodeIdentity{}, fmt.Errorf("%w: %q: %s", ErrInvalidHostname, hostname, err)
	}

	peerMap, err := ReadPeerMap(peerFilePath)
	if err != nil {
		return NodeIdentity{}, err
	}

	return NodeIdentity{
		NodeID:        uint32(id),
		CommitteeSize: uint32(peerMap.Size()),
	}, nil
}

// CheckInRange returns [ErrNodeIDOutOfRange] when the id does not
// address a line of the peer map.
func (n NodeIdentity) CheckInRange() error {
	if n.NodeID >= n.CommitteeSize {
		return fmt.Errorf("%w: id %d, committee size %d", ErrNodeIDOutOfRange, n.NodeID, n.CommitteeSize)
	}
	return nil
}
