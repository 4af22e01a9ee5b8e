package replay

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"os"
	"sync"
	"time"

	"github.com/eqlabs/snarkos-devnet/peers"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// maxFanout is the largest number of workers a single transaction
	// is submitted to.
	maxFanout = 4
	// maxSubmitDelay paces submissions so the batch does not land as
	// one burst.
	maxSubmitDelay = 2 * time.Second

	dialTimeout = 10 * time.Second
)

// ReplayResult reports what the harness actually submitted. Duplicate
// suppression across repeated replays is the consensus layer's job,
// not tracked here.
type ReplayResult struct {
	Submitted int
	Failed    int
}

// Harness replays a fixture's transaction batch against a running
// devnet.
type Harness struct {
	log *zap.Logger
	// dial is replaceable in tests.
	dial func(ctx context.Context, addr string) (net.Conn, error)
	// rng drives worker selection and pacing; seedable for
	// deterministic tests.
	rng *rand.Rand
	// pace of zero disables the randomized inter-transaction delay.
	pace time.Duration
}

func NewHarness(log *zap.Logger) *Harness {
	dialer := &net.Dialer{Timeout: dialTimeout}
	return &Harness{
		log: log,
		dial: func(ctx context.Context, addr string) (net.Conn, error) {
			return dialer.DialContext(ctx, "tcp", addr)
		},
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
		pace: maxSubmitDelay,
	}
}

// WorkerAddrs derives the committee's worker endpoints from the peer
// map: same hosts, worker port.
func WorkerAddrs(peerMap peers.PeerMap, workerPort int) ([]string, error) {
	addrs := peerMap.Addrs()
	workers := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		host := addr
		if h, _, err := net.SplitHostPort(addr); err == nil {
			host = h
		}
		workers = append(workers, fmt.Sprintf("%s:%d", host, workerPort))
	}
	return workers, nil
}

// Replay submits the fixture's transaction batch to [workers].
//
// The operator must have observed, via the validator logs, that the
// network committed the deployment block; that observation arrives as
// the [ready] signal. A nil [ready], or one that does not fire within
// [timeout], fails with [ErrNetworkUnready] — the harness never polls
// consensus state itself.
//
// All three fixture files must exist before any network I/O happens.
func (h *Harness) Replay(
	ctx context.Context,
	fixture Fixture,
	workers []string,
	ready <-chan struct{},
	timeout time.Duration,
) (ReplayResult, error) {
	if err := fixture.Check(); err != nil {
		return ReplayResult{}, err
	}
	if len(workers) == 0 {
		return ReplayResult{}, fmt.Errorf("no worker endpoints")
	}

	if err := waitReady(ctx, ready, timeout); err != nil {
		return ReplayResult{}, err
	}

	conns, err := h.dialWorkers(ctx, workers)
	if err != nil {
		return ReplayResult{}, err
	}
	defer func() {
		for _, conn := range conns {
			_ = conn.Close()
		}
	}()

	batch, err := os.Open(fixture.TransactionsPath())
	if err != nil {
		return ReplayResult{}, fmt.Errorf("couldn't open transaction batch: %w", err)
	}
	defer batch.Close()

	return h.submit(ctx, bufio.NewReader(batch), conns)
}

// waitReady blocks until the readiness signal fires or [timeout]
// elapses. A signal that has already fired always wins, even when the
// timeout is zero or has elapsed too: a Go select among multiple ready
// cases picks one at random, so the fired signal is checked on its own
// first.
func waitReady(ctx context.Context, ready <-chan struct{}, timeout time.Duration) error {
	if ready == nil {
		return fmt.Errorf("%w: no readiness signal configured", ErrNetworkUnready)
	}
	select {
	case <-ready:
		return nil
	default:
	}
	select {
	case <-ready:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("%w: timed out after %s", ErrNetworkUnready, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Harness) dialWorkers(ctx context.Context, workers []string) ([]*workerConn, error) {
	conns := make([]*workerConn, len(workers))
	eg, ctx := errgroup.WithContext(ctx)
	for i, addr := range workers {
		i, addr := i, addr
		eg.Go(func() error {
			conn, err := h.dial(ctx, addr)
			if err != nil {
				return fmt.Errorf("couldn't dial worker %q: %w", addr, err)
			}
			conns[i] = &workerConn{addr: addr, conn: conn}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		for _, wc := range conns {
			if wc != nil {
				_ = wc.conn.Close()
			}
		}
		return nil, err
	}
	return conns, nil
}

type workerConn struct {
	addr string
	lock sync.Mutex
	conn net.Conn
}

func (w *workerConn) send(frame []byte) error {
	w.lock.Lock()
	defer w.lock.Unlock()
	return WriteFrame(w.conn, frame)
}

func (w *workerConn) Close() error {
	return w.conn.Close()
}

// submit streams the batch, sending each transaction to 1..=maxFanout
// randomly chosen workers. A delivery failure is logged and counted,
// never fatal: the rest of the batch still goes out.
func (h *Harness) submit(ctx context.Context, batch *bufio.Reader, conns []*workerConn) (ReplayResult, error) {
	var result ReplayResult
	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		frame, err := ReadFrame(batch)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return result, nil
			}
			return result, err
		}

		fanout := 1 + h.rng.Intn(minInt(maxFanout, len(conns)))
		delivered := false
		for _, wc := range pickWorkers(h.rng, conns, fanout) {
			if err := wc.send(frame); err != nil {
				h.log.Warn("couldn't deliver a transaction to a worker",
					zap.String("worker", wc.addr),
					zap.Int("index", i),
					zap.Error(err),
				)
				continue
			}
			delivered = true
		}
		if delivered {
			result.Submitted++
		} else {
			result.Failed++
		}

		if h.pace > 0 {
			delay := time.Duration(h.rng.Int63n(int64(h.pace)))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return result, ctx.Err()
			}
		}
	}
}

// pickWorkers returns [count] distinct workers chosen at random.
func pickWorkers(rng *rand.Rand, conns []*workerConn, count int) []*workerConn {
	picked := make([]*workerConn, len(conns))
	copy(picked, conns)
	rng.Shuffle(len(picked), func(i, j int) {
		picked[i], picked[j] = picked[j], picked[i]
	})
	return picked[:count]
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
