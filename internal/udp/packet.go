//go:build unix

package udp

import (
	"log/slog"

	"github.com/postalsys/dgram/internal/logging"
	"github.com/postalsys/dgram/internal/metrics"
)

// sendPacket sends data with send and classifies the outcome. Both endpoint
// kinds share it; send decides between a connected send and a send-to.
// Would-block is reported, never retried: resend on the next writable
// readiness event.
func sendPacket(logger *slog.Logger, data []byte, send func([]byte) error) SendResult {
	if len(data) > MaxPayloadLen {
		return SendResult{Status: MaxPacketSizeExceeded, Size: len(data), Limit: MaxPayloadLen}
	}

	err := send(data)
	switch {
	case err == nil:
		return SendResult{Status: Sent, Size: len(data)}
	case isUnreachable(err):
		// ICMP generated, frequent and expected: not logged.
		return SendResult{Status: ResourceNotFound, Size: len(data)}
	case isWouldBlock(err):
		return SendResult{Status: WouldBlock, Size: len(data)}
	case isMessageTooLarge(err):
		// e.g. macOS caps datagrams below MaxPayloadLen.
		return SendResult{Status: MaxPacketSizeExceeded, Size: len(data), Limit: payloadLimit(len(data))}
	default:
		logger.Error("udp send error",
			logging.KeyError, err,
			logging.KeySize, len(data))
		return SendResult{Status: ResourceNotFound, Size: len(data)}
	}
}

// recordSend reports a send outcome to m.
func recordSend(m *metrics.Metrics, kind string, res SendResult) {
	m.RecordSendResult(kind, res.Status.String())
	if res.Status == Sent {
		m.RecordSent(kind, res.Size)
	}
}
