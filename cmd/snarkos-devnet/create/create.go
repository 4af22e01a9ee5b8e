// Package create implements the devnet topology creation command.
package create

import (
	"errors"
	"os"
	"strconv"

	"github.com/eqlabs/snarkos-devnet/backend"
	"github.com/eqlabs/snarkos-devnet/pkg/color"
	"github.com/eqlabs/snarkos-devnet/pkg/logutil"
	"github.com/eqlabs/snarkos-devnet/topology"
	"github.com/eqlabs/snarkos-devnet/utils/constants"
	"github.com/spf13/cobra"
)

var (
	logLevel      string
	runtimeName   string
	committeeSize int
	imageRef      string
	networkName   string
	cidr          string
	volumes       []string
	envVars       []string
	nodePort      int
	peerFileOut   string
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create [options] [-- container args]",
		Short: "Creates the devnet network and one container per committee member.",
		RunE:  createFunc,
		Args:  cobra.ArbitraryArgs,
	}

	// Environment defaults are captured here, once, at process entry.
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", logutil.DefaultLogLevel, "log level")
	cmd.PersistentFlags().StringVar(&runtimeName, "runtime", os.Getenv(constants.RuntimeEnvVar), "container runtime (docker|podman, empty to auto-detect)")
	cmd.PersistentFlags().IntVar(&committeeSize, "committee-size", committeeSizeFromEnv(), "number of validator nodes")
	cmd.PersistentFlags().StringVar(&imageRef, "image", os.Getenv(constants.ImageNameEnvVar), "validator container image")
	cmd.PersistentFlags().StringVar(&networkName, "network-name", constants.DefaultNetworkName, "container network name")
	cmd.PersistentFlags().StringVar(&cidr, "cidr", constants.DefaultCIDR, "devnet address block")
	cmd.PersistentFlags().StringArrayVar(&volumes, "volume", nil, "volume mount, host:container (repeatable)")
	cmd.PersistentFlags().StringArrayVar(&envVars, "env", nil, "environment variable, KEY=VALUE (repeatable)")
	cmd.PersistentFlags().IntVar(&nodePort, "node-port", constants.DefaultNodePort, "validator listen port baked into the peer map")
	cmd.PersistentFlags().StringVar(&peerFileOut, "peer-file", "", "write the generated peer map here")
	return cmd
}

func committeeSizeFromEnv() int {
	if env := os.Getenv(constants.CommitteeSizeEnvVar); env != "" {
		if size, err := strconv.Atoi(env); err == nil {
			return size
		}
	}
	return constants.DefaultCommitteeSize
}

func createFunc(cmd *cobra.Command, args []string) error {
	log, err := logutil.NewLogger(logLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	rt, err := backend.Detect(runtimeName)
	if err != nil {
		color.Redf("cannot create devnet: %s\n", err)
		return err
	}

	spec := topology.Spec{
		CommitteeSize: committeeSize,
		NetworkName:   networkName,
		CIDR:          cidr,
		ImageRef:      imageRef,
		Volumes:       volumes,
		Env:           envVars,
		NodePort:      nodePort,
		ContainerArgs: args,
	}.WithDefaults()

	// The peer map must exist before any validator starts, since each
	// node reads it exactly once at startup.
	peerMap, err := spec.PeerMap()
	if err != nil {
		return err
	}
	if peerFileOut != "" {
		if err := os.WriteFile(peerFileOut, []byte(peerMap), 0o644); err != nil {
			return err
		}
		color.Bluef("wrote peer map for %d nodes to %s\n", spec.CommitteeSize, peerFileOut)
	}

	created, err := topology.Build(cmd.Context(), log, rt, spec)
	if err != nil {
		var partial *topology.PartialTopologyError
		if errors.As(err, &partial) {
			color.Redf("topology build failed at node %d; created so far:\n", partial.Index)
			for _, container := range partial.Created {
				color.Redf("  %s (%s) %s\n", container.Hostname, container.IP, container.ID)
			}
		}
		return err
	}

	for _, container := range created {
		color.Greenf("created %s (%s) %s\n", container.Hostname, container.IP, container.ID)
	}
	return nil
}
