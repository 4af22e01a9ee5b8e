package constants

import "time"

const (
	// Environment toggles, read once at process entry.
	RuntimeEnvVar       = "CONTAINER_RUNTIME"
	CommitteeSizeEnvVar = "COMMITTEE_SIZE"
	ImageNameEnvVar     = "IMAGE_NAME"
	JemallocEnvVar      = "JEMALLOC"
	HeaptrackEnvVar     = "HEAPTRACK"

	DefaultCommitteeSize = 4
	DefaultNetworkName   = "snarkos-devnet"
	DefaultCIDR          = "172.28.0.0/16"
	DefaultNodePort      = 4133
	DefaultWorkerPort    = 4103

	DefaultExecPath    = "/usr/local/bin/snarkos"
	JemallocExecSuffix = "-jemalloc"
	HeaptrackExec      = "heaptrack"

	DefaultPeerFilePath = "/snarkos/peers.txt"
	DefaultFixtureDir   = "/var/tmp"

	DefaultVerbosity = 4

	StopTimeout = 30 * time.Second
)
