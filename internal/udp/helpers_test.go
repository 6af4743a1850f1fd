//go:build unix

package udp

import (
	"bytes"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/postalsys/dgram/internal/metrics"
)

// syncBuffer is a bytes.Buffer safe for concurrent log writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type testEnv struct {
	adapter *Adapter
	logs    *syncBuffer
	metrics *metrics.Metrics
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logs := &syncBuffer{}
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	m := metrics.NewMetricsWithRegistry(prometheus.NewRegistry())

	a, err := NewAdapter(DefaultConfig(), logger, m)
	if err != nil {
		t.Fatalf("NewAdapter() error = %v", err)
	}
	return &testEnv{adapter: a, logs: logs, metrics: m}
}

func (e *testEnv) listen(t *testing.T, addr string) *Local {
	t.Helper()

	l, err := e.adapter.Listen(netip.MustParseAddrPort(addr))
	if err != nil {
		t.Fatalf("Listen(%s) error = %v", addr, err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func (e *testEnv) connect(t *testing.T, peer netip.AddrPort) *Remote {
	t.Helper()

	r, err := e.adapter.Connect(peer)
	if err != nil {
		t.Fatalf("Connect(%s) error = %v", peer, err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

type datagram struct {
	from netip.AddrPort
	data []byte
}

// acceptN drains l until n datagrams arrived or the deadline passed.
func acceptN(t *testing.T, l *Local, n int) []datagram {
	t.Helper()

	var got []datagram
	deadline := time.Now().Add(2 * time.Second)
	for len(got) < n && time.Now().Before(deadline) {
		l.Accept(func(from netip.AddrPort, data []byte) {
			got = append(got, datagram{from: from, data: bytes.Clone(data)})
		})
		if len(got) < n {
			time.Sleep(5 * time.Millisecond)
		}
	}
	return got
}

// receiveN drains r until n datagrams arrived or the deadline passed.
func receiveN(t *testing.T, r *Remote, n int) [][]byte {
	t.Helper()

	var got [][]byte
	deadline := time.Now().Add(2 * time.Second)
	for len(got) < n && time.Now().Before(deadline) {
		status := r.Receive(func(data []byte) {
			got = append(got, bytes.Clone(data))
		})
		if status != WaitNextEvent {
			t.Fatalf("Receive() = %v, want %v", status, WaitNextEvent)
		}
		if len(got) < n {
			time.Sleep(5 * time.Millisecond)
		}
	}
	return got
}

// closedPort returns a loopback address nothing listens on.
func closedPort(t *testing.T) netip.AddrPort {
	t.Helper()

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP() error = %v", err)
	}
	addr := conn.LocalAddr().(*net.UDPAddr).AddrPort()
	conn.Close()
	return unmapAddrPort(addr)
}

func payload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7 + 3)
	}
	return b
}
