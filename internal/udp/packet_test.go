//go:build unix

package udp

import (
	"bytes"
	"log/slog"
	"os"
	"strings"
	"testing"

	"golang.org/x/sys/unix"
)

func TestSendPacket(t *testing.T) {
	tests := []struct {
		name      string
		size      int
		err       error
		want      SendResult
		wantCalls int
		wantLog   bool
	}{
		{
			name:      "sent",
			size:      4,
			want:      SendResult{Status: Sent, Size: 4},
			wantCalls: 1,
		},
		{
			name:      "empty datagram",
			size:      0,
			want:      SendResult{Status: Sent, Size: 0},
			wantCalls: 1,
		},
		{
			name:      "connection refused",
			size:      4,
			err:       os.NewSyscallError("sendto", unix.ECONNREFUSED),
			want:      SendResult{Status: ResourceNotFound, Size: 4},
			wantCalls: 1,
		},
		{
			name:      "host unreachable",
			size:      4,
			err:       os.NewSyscallError("sendto", unix.EHOSTUNREACH),
			want:      SendResult{Status: ResourceNotFound, Size: 4},
			wantCalls: 1,
		},
		{
			name:      "would block",
			size:      4,
			err:       os.NewSyscallError("sendto", unix.EAGAIN),
			want:      SendResult{Status: WouldBlock, Size: 4},
			wantCalls: 1,
		},
		{
			name:      "message too large below hard limit",
			size:      MaxCompatiblePayloadLen + 1,
			err:       os.NewSyscallError("sendto", unix.EMSGSIZE),
			want:      SendResult{Status: MaxPacketSizeExceeded, Size: MaxCompatiblePayloadLen + 1, Limit: MaxCompatiblePayloadLen},
			wantCalls: 1,
		},
		{
			name:      "above hard limit is never sent",
			size:      MaxPayloadLen + 1,
			want:      SendResult{Status: MaxPacketSizeExceeded, Size: MaxPayloadLen + 1, Limit: MaxPayloadLen},
			wantCalls: 0,
		},
		{
			name:      "unexpected error",
			size:      4,
			err:       os.NewSyscallError("sendto", unix.EPERM),
			want:      SendResult{Status: ResourceNotFound, Size: 4},
			wantCalls: 1,
			wantLog:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))

			calls := 0
			got := sendPacket(logger, make([]byte, tt.size), func(b []byte) error {
				calls++
				if len(b) != tt.size {
					t.Errorf("send got %d bytes, want %d", len(b), tt.size)
				}
				return tt.err
			})

			if got != tt.want {
				t.Errorf("sendPacket() = %+v, want %+v", got, tt.want)
			}
			if calls != tt.wantCalls {
				t.Errorf("send called %d times, want %d", calls, tt.wantCalls)
			}
			logged := strings.Contains(buf.String(), "udp send error")
			if logged != tt.wantLog {
				t.Errorf("logged = %v, want %v (output: %s)", logged, tt.wantLog, buf.String())
			}
		})
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		err         error
		wouldBlock  bool
		unreachable bool
		tooLarge    bool
	}{
		{unix.EAGAIN, true, false, false},
		{os.NewSyscallError("recvfrom", unix.EWOULDBLOCK), true, false, false},
		{unix.ECONNREFUSED, false, true, false},
		{unix.ENETUNREACH, false, true, false},
		{unix.EMSGSIZE, false, false, true},
		{unix.EBADF, false, false, false},
	}

	for _, tt := range tests {
		if got := isWouldBlock(tt.err); got != tt.wouldBlock {
			t.Errorf("isWouldBlock(%v) = %v, want %v", tt.err, got, tt.wouldBlock)
		}
		if got := isUnreachable(tt.err); got != tt.unreachable {
			t.Errorf("isUnreachable(%v) = %v, want %v", tt.err, got, tt.unreachable)
		}
		if got := isMessageTooLarge(tt.err); got != tt.tooLarge {
			t.Errorf("isMessageTooLarge(%v) = %v, want %v", tt.err, got, tt.tooLarge)
		}
	}
}
