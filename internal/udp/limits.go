package udp

const (
	// MaxPayloadLen is the maximum payload that UDP can send.
	// Accepted by Linux and Windows, above the macOS limit.
	// 65535 minus the max IP header (20) and the UDP header (8).
	MaxPayloadLen = 65535 - 20 - 8

	// MaxCompatiblePayloadLen is the maximum payload accepted by all main OSs.
	// 9216 is the maximum datagram size of macOS, the lowest of them.
	MaxCompatiblePayloadLen = 9216 - 20 - 8

	// inputBufferSize fits any datagram the kernel can deliver.
	inputBufferSize = 65535
)

// payloadLimit returns the limit a payload of size n was rejected for.
func payloadLimit(n int) int {
	if n > MaxPayloadLen {
		return MaxPayloadLen
	}
	return MaxCompatiblePayloadLen
}
