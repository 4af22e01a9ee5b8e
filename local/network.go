package local

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Network is a committee of validator processes running on the local
// host, coordinated only through the shared peer file. Used for
// container-less devnets; in containerized devnets each node is its
// own process tree and this type is not involved.
type Network struct {
	log  *zap.Logger
	lock sync.Mutex
	// Node id -> process, in launch order.
	processes []NodeProcess
	// Closed as soon as Stop is entered, before any process is
	// signaled. Observers racing Wait against a shutdown must check
	// this one, not closedOnStopCh: a child exits (and unblocks Wait)
	// strictly after the stop decision but possibly before the whole
	// stop completes.
	stopRequestedCh chan struct{}
	// Closed once Stop has run to completion.
	closedOnStopCh chan struct{}
	stopOnce       sync.Once
}

// StartNetwork launches one validator per config, in order. Configs
// are expected to already agree on the peer file and committee size;
// the peer file must be fully written before this call (validators
// read it once at startup and never again).
//
// A launch failure for node i does not stop nodes started before it;
// the partially started network is returned along with the error so
// the caller can Stop it.
func StartNetwork(log *zap.Logger, launcher *Launcher, configs []LaunchConfig) (*Network, error) {
	net := &Network{
		log:             log,
		stopRequestedCh: make(chan struct{}),
		closedOnStopCh:  make(chan struct{}),
	}
	log.Info("starting local committee", zap.Int("size", len(configs)))
	for i, config := range configs {
		proc, err := launcher.Launch(config)
		if err != nil {
			return net, fmt.Errorf("couldn't launch node %d: %w", i, err)
		}
		net.processes = append(net.processes, proc)
	}
	return net, nil
}

// Wait blocks until every process has exited and returns the first
// non-nil exit error, if any.
func (n *Network) Wait() error {
	var eg errgroup.Group
	for _, proc := range n.snapshot() {
		proc := proc
		eg.Go(proc.Wait)
	}
	return eg.Wait()
}

// Stop terminates every process in the network. Each process gets a
// SIGINT and, when [ctx] expires, a SIGKILL of its whole process tree,
// so no orphans survive the orchestrator.
func (n *Network) Stop(ctx context.Context) error {
	var err error
	n.stopOnce.Do(func() {
		close(n.stopRequestedCh)
		defer close(n.closedOnStopCh)
		var eg errgroup.Group
		for _, proc := range n.snapshot() {
			proc := proc
			eg.Go(func() error {
				return proc.Stop(ctx)
			})
		}
		err = eg.Wait()
	})
	return err
}

// StopRequested returns a channel closed the moment Stop is entered,
// before any process is signaled. Once a child dies because of Stop,
// this channel is guaranteed closed; StoppedCh may still be open.
func (n *Network) StopRequested() <-chan struct{} {
	return n.stopRequestedCh
}

// StoppedCh returns a channel closed once Stop has completed.
func (n *Network) StoppedCh() <-chan struct{} {
	return n.closedOnStopCh
}

// Processes returns the node processes in launch order.
func (n *Network) Processes() []NodeProcess {
	return n.snapshot()
}

func (n *Network) snapshot() []NodeProcess {
	n.lock.Lock()
	defer n.lock.Unlock()
	procs := make([]NodeProcess, len(n.processes))
	copy(procs, n.processes)
	return procs
}
