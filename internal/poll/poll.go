//go:build unix

// Package poll is a minimal readiness driver for UDP endpoints. It waits for
// the registered sources to become readable with poll(2) and calls their
// handlers. It stands in for the host runtime in the CLI and in tests.
package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/postalsys/dgram/internal/logging"
	"github.com/postalsys/dgram/internal/recovery"
)

// Source is a pollable readiness source, implemented by udp.Remote and
// udp.Local.
type Source interface {
	Source() syscall.RawConn
}

// Token identifies a registration.
type Token uint64

type entry struct {
	fd      int
	handler func()
}

// Poller dispatches readiness events to handlers.
type Poller struct {
	mu      sync.Mutex
	next    Token
	entries map[Token]*entry

	logger *slog.Logger
}

// New creates a new poller.
func New(logger *slog.Logger) *Poller {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Poller{
		entries: make(map[Token]*entry),
		logger:  logger.With(slog.String(logging.KeyComponent, "poll")),
	}
}

// Register watches src for readability and calls handler each time it is
// readable or has a pending error. The source must be deregistered before it
// is closed.
func (p *Poller) Register(src Source, handler func()) (Token, error) {
	fd, err := fdOf(src.Source())
	if err != nil {
		return 0, fmt.Errorf("register source: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.next++
	tok := p.next
	p.entries[tok] = &entry{fd: fd, handler: handler}
	return tok, nil
}

// Deregister stops watching the source registered under tok.
func (p *Poller) Deregister(tok Token) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.entries, tok)
}

// Len returns the number of registered sources.
func (p *Poller) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.entries)
}

// Poll waits up to timeout for readiness and runs the handlers of the ready
// sources. It returns the number of handlers run.
func (p *Poller) Poll(timeout time.Duration) (int, error) {
	p.mu.Lock()
	tokens := make([]Token, 0, len(p.entries))
	for tok := range p.entries {
		tokens = append(tokens, tok)
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i] < tokens[j] })
	fds := make([]unix.PollFd, len(tokens))
	for i, tok := range tokens {
		fds[i] = unix.PollFd{Fd: int32(p.entries[tok].fd), Events: unix.POLLIN}
	}
	p.mu.Unlock()

	n, err := unix.Poll(fds, int(timeout.Milliseconds()))
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return 0, nil
		}
		return 0, fmt.Errorf("poll: %w", err)
	}
	if n == 0 {
		return 0, nil
	}

	ran := 0
	for i, fd := range fds {
		if fd.Revents&(unix.POLLIN|unix.POLLERR|unix.POLLHUP) == 0 {
			continue
		}
		if p.dispatch(tokens[i]) {
			ran++
		}
	}
	return ran, nil
}

// dispatch runs the handler of tok. A handler that panics is deregistered.
func (p *Poller) dispatch(tok Token) bool {
	p.mu.Lock()
	e, ok := p.entries[tok]
	p.mu.Unlock()
	if !ok {
		return false
	}

	defer recovery.RecoverWithCallback(p.logger, "readiness", func(any) {
		p.logger.Warn("deregistering source after handler panic", logging.KeyToken, uint64(tok))
		p.Deregister(tok)
	})
	e.handler()
	return true
}

// Run polls until ctx is done.
func (p *Poller) Run(ctx context.Context, interval time.Duration) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if _, err := p.Poll(interval); err != nil {
			return err
		}
	}
}

// WaitWritable waits up to timeout for src to accept a send. Use it after a
// send reported would-block.
func WaitWritable(src Source, timeout time.Duration) (bool, error) {
	fd, err := fdOf(src.Source())
	if err != nil {
		return false, err
	}

	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
	for {
		n, err := unix.Poll(fds, int(timeout.Milliseconds()))
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("poll: %w", err)
		}
		return n > 0 && fds[0].Revents&unix.POLLOUT != 0, nil
	}
}

func fdOf(c syscall.RawConn) (int, error) {
	fd := -1
	if err := c.Control(func(f uintptr) { fd = int(f) }); err != nil {
		return -1, err
	}
	return fd, nil
}
