package backend

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// runFunc executes the runtime binary with the given argument list and
// returns combined output. Argument lists are always structured token
// sequences, never shell strings, so no quoting or injection concerns
// arise. Replaceable in tests.
type runFunc func(ctx context.Context, binary string, args ...string) ([]byte, error)

// lookPathFunc reports whether a binary is on PATH. Replaceable in tests.
type lookPathFunc func(binary string) (string, error)

func execRun(ctx context.Context, binary string, args ...string) ([]byte, error) {
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return out.Bytes(), fmt.Errorf("%s %s: %w: %s", binary, strings.Join(args, " "), err, out.String())
	}
	return out.Bytes(), nil
}

// cli implements the Runtime operations shared by the docker and
// podman CLIs, which accept the same network/run argument surface.
type cli struct {
	binary   string
	run      runFunc
	lookPath lookPathFunc
}

func (c *cli) Name() string {
	return c.binary
}

func (c *cli) Available() bool {
	_, err := c.lookPath(c.binary)
	return err == nil
}

func (c *cli) CreateNetwork(ctx context.Context, spec NetworkSpec) error {
	// Probe first so a pre-existing network is a clean no-op.
	if _, err := c.run(ctx, c.binary, "network", "inspect", spec.Name); err == nil {
		return nil
	}
	args := []string{"network", "create"}
	if spec.CIDR != "" {
		args = append(args, "--subnet", spec.CIDR)
	}
	if spec.Gateway != "" {
		args = append(args, "--gateway", spec.Gateway)
	}
	args = append(args, spec.Name)
	out, err := c.run(ctx, c.binary, args...)
	if err != nil {
		// Two concurrent creators can race past the probe.
		if strings.Contains(string(out), "already exists") {
			return nil
		}
		return fmt.Errorf("couldn't create network %q: %w", spec.Name, err)
	}
	return nil
}

func (c *cli) CreateContainer(ctx context.Context, spec ContainerSpec) (string, error) {
	args := []string{"run", "-d", "--name", spec.Name, "--hostname", spec.Hostname}
	if spec.Network != "" {
		args = append(args, "--network", spec.Network)
	}
	if spec.IP != "" {
		args = append(args, "--ip", spec.IP)
	}
	for _, alias := range spec.Aliases {
		args = append(args, "--add-host", alias.Hostname+":"+alias.IP)
	}
	for _, volume := range spec.Volumes {
		args = append(args, "-v", volume)
	}
	for _, env := range spec.Env {
		args = append(args, "-e", env)
	}
	args = append(args, spec.Image)
	args = append(args, spec.Args...)

	out, err := c.run(ctx, c.binary, args...)
	if err != nil {
		return "", fmt.Errorf("couldn't create container %q: %w", spec.Name, err)
	}
	return strings.TrimSpace(string(out)), nil
}

type docker struct {
	cli
}

type podman struct {
	cli
}

func NewDocker() Runtime {
	return &docker{cli{binary: "docker", run: execRun, lookPath: exec.LookPath}}
}

func NewPodman() Runtime {
	return &podman{cli{binary: "podman", run: execRun, lookPath: exec.LookPath}}
}
