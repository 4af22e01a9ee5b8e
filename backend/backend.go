// Package backend abstracts the container runtime used to host a
// devnet, so the same topology logic works against docker and podman.
package backend

import (
	"context"
	"errors"
	"fmt"
)

var ErrNoRuntimeAvailable = errors.New("no container runtime available (tried docker, podman)")

// NetworkSpec describes the isolated network a devnet runs on.
type NetworkSpec struct {
	Name    string
	CIDR    string
	Gateway string
}

// HostAlias is an /etc/hosts entry injected into a container so peers
// resolve each other without a DNS server.
type HostAlias struct {
	Hostname string
	IP       string
}

// ContainerSpec describes one committee member's container.
type ContainerSpec struct {
	Name     string
	Hostname string
	Network  string
	IP       string
	Image    string
	Volumes  []string
	Env      []string
	Aliases  []HostAlias
	// Args are passed verbatim to the image entrypoint.
	Args []string
}

// Runtime is the capability surface the topology builder needs from a
// container runtime.
type Runtime interface {
	// Name returns the runtime's binary name ("docker", "podman").
	Name() string
	// Available reports whether the runtime binary is on PATH.
	Available() bool
	// CreateNetwork creates the network if it does not already exist.
	// Creating an existing network of the same name is not an error,
	// so repeated devnet starts never require a manual teardown.
	CreateNetwork(ctx context.Context, spec NetworkSpec) error
	// CreateContainer creates and starts a container, returning the
	// runtime's identifier for it.
	CreateContainer(ctx context.Context, spec ContainerSpec) (string, error)
}

// Detect selects a runtime. A non-empty [explicit] name (from the
// CONTAINER_RUNTIME environment variable) picks that runtime directly;
// otherwise docker is tried first, then podman.
func Detect(explicit string) (Runtime, error) {
	return detect(explicit, NewDocker(), NewPodman())
}

func detect(explicit string, docker, podman Runtime) (Runtime, error) {
	switch explicit {
	case docker.Name():
		return docker, nil
	case podman.Name():
		return podman, nil
	case "":
	default:
		return nil, fmt.Errorf("unknown container runtime %q", explicit)
	}
	for _, rt := range []Runtime{docker, podman} {
		if rt.Available() {
			return rt, nil
		}
	}
	return nil, ErrNoRuntimeAvailable
}
