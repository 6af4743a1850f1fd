//go:build unix

// Package probe measures round trips to a UDP echo peer, such as
// "dgram listen --echo".
package probe

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"github.com/postalsys/dgram/internal/logging"
	"github.com/postalsys/dgram/internal/poll"
	"github.com/postalsys/dgram/internal/udp"
)

// magic prefixes every probe datagram so stray traffic is ignored.
const magic = "DGPR"

// headerLen is magic followed by a big-endian sequence number.
const headerLen = len(magic) + 8

var (
	// ErrTimeout is reported when no echo arrives in time.
	ErrTimeout = errors.New("no reply before timeout")

	// ErrUnreachable is reported when the peer is known to be unreachable.
	ErrUnreachable = errors.New("peer unreachable")
)

// Options contains configuration for a round-trip probe.
type Options struct {
	// Address is the peer to probe.
	Address netip.AddrPort

	// Count is the number of probe datagrams (default: 1).
	Count int

	// Size pads each datagram to this many bytes (minimum: header length).
	Size int

	// Timeout bounds the wait for each reply (default: 1s).
	Timeout time.Duration
}

// Result contains the outcome of a probe.
type Result struct {
	// Success indicates at least one echo arrived.
	Success bool

	// Address that was probed.
	Address netip.AddrPort

	// Sent and Received count probe datagrams.
	Sent     int
	Received int

	// RTTs holds the round trip of every echoed datagram.
	RTTs []time.Duration

	// Error is the last error that occurred (if any).
	Error error

	// ErrorDetail is a human-readable description of Error.
	ErrorDetail string
}

// RTT returns the mean round trip, or zero when nothing was echoed.
func (r *Result) RTT() time.Duration {
	if len(r.RTTs) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range r.RTTs {
		sum += d
	}
	return sum / time.Duration(len(r.RTTs))
}

// Loss returns the fraction of probes without an echo.
func (r *Result) Loss() float64 {
	if r.Sent == 0 {
		return 0
	}
	return float64(r.Sent-r.Received) / float64(r.Sent)
}

// Probe sends numbered datagrams to opts.Address and waits for each to be
// echoed back.
func Probe(ctx context.Context, adapter *udp.Adapter, logger *slog.Logger, opts Options) *Result {
	result := &Result{Address: opts.Address}

	if opts.Count <= 0 {
		opts.Count = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Second
	}
	if opts.Size < headerLen {
		opts.Size = headerLen
	}
	if logger == nil {
		logger = logging.NopLogger()
	}

	r, err := adapter.Connect(opts.Address)
	if err != nil {
		result.fail(err)
		return result
	}
	defer r.Close()

	// seq of the reply received by the last drain, 0 if none
	var echoed uint64
	poller := poll.New(logger)
	if _, err := poller.Register(r, func() {
		r.Receive(func(data []byte) {
			if seq, ok := parse(data); ok {
				echoed = seq
			}
		})
	}); err != nil {
		result.fail(err)
		return result
	}

	buf := make([]byte, opts.Size)
	copy(buf, magic)

	for seq := uint64(1); seq <= uint64(opts.Count); seq++ {
		if err := ctx.Err(); err != nil {
			result.fail(err)
			break
		}

		binary.BigEndian.PutUint64(buf[len(magic):], seq)
		start := time.Now()

		res := r.Send(buf)
		switch res.Status {
		case udp.Sent:
			result.Sent++
		case udp.WouldBlock:
			// Counted as lost.
			result.Sent++
			continue
		case udp.ResourceNotFound:
			result.Sent++
			result.fail(ErrUnreachable)
			continue
		default:
			result.fail(fmt.Errorf("send: %s", res))
			return result
		}

		rtt, err := awaitEcho(ctx, poller, &echoed, seq, start, opts.Timeout)
		if err != nil {
			result.fail(err)
			logger.Debug("probe lost", logging.KeyRemoteAddr, opts.Address.String(), logging.KeyCount, seq)
			continue
		}
		result.Received++
		result.RTTs = append(result.RTTs, rtt)
	}

	result.Success = result.Received > 0
	if result.Success {
		result.Error = nil
		result.ErrorDetail = ""
	}
	return result
}

// awaitEcho polls until the reply for seq arrives or timeout passes.
func awaitEcho(ctx context.Context, p *poll.Poller, echoed *uint64, seq uint64, start time.Time, timeout time.Duration) (time.Duration, error) {
	deadline := start.Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, ErrTimeout
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if remaining > 50*time.Millisecond {
			remaining = 50 * time.Millisecond
		}
		if _, err := p.Poll(remaining); err != nil {
			return 0, err
		}
		if *echoed == seq {
			return time.Since(start), nil
		}
	}
}

// parse extracts the sequence number from a probe datagram.
func parse(data []byte) (uint64, bool) {
	if len(data) < headerLen || string(data[:len(magic)]) != magic {
		return 0, false
	}
	return binary.BigEndian.Uint64(data[len(magic):headerLen]), true
}

func (r *Result) fail(err error) {
	r.Error = err
	r.ErrorDetail = classifyError(err)
}

// classifyError returns a human-readable description for common errors.
func classifyError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout):
		return "No reply - peer not echoing or datagrams dropped by a firewall"
	case errors.Is(err, ErrUnreachable):
		return "Peer unreachable - nothing listening on that port or no route to host"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Probe interrupted"
	default:
		return err.Error()
	}
}
