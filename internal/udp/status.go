package udp

import "fmt"

// SendStatus is the outcome of a send.
type SendStatus int

const (
	// Sent means the datagram was handed to the kernel.
	Sent SendStatus = iota
	// ResourceNotFound means the destination is currently unusable,
	// usually because the peer is unreachable.
	ResourceNotFound
	// MaxPacketSizeExceeded means the payload is too large to send.
	// SendResult carries the payload size and the limit assumed.
	MaxPacketSizeExceeded
	// WouldBlock means the socket send buffer is full. Retry once the
	// socket is writable again.
	WouldBlock
)

// String returns a human-readable name for the status.
func (s SendStatus) String() string {
	switch s {
	case Sent:
		return "SENT"
	case ResourceNotFound:
		return "RESOURCE_NOT_FOUND"
	case MaxPacketSizeExceeded:
		return "MAX_PACKET_SIZE_EXCEEDED"
	case WouldBlock:
		return "WOULD_BLOCK"
	default:
		return "UNKNOWN"
	}
}

// SendResult describes the outcome of Send and SendTo.
type SendResult struct {
	Status SendStatus
	// Size is the payload length.
	Size int
	// Limit is the payload ceiling that was exceeded. Only set for
	// MaxPacketSizeExceeded.
	Limit int
}

// String returns the status, with sizes for MaxPacketSizeExceeded.
func (r SendResult) String() string {
	if r.Status == MaxPacketSizeExceeded {
		return fmt.Sprintf("%s(%d > %d)", r.Status, r.Size, r.Limit)
	}
	return r.Status.String()
}

// ReadStatus tells the runtime what to do after a read.
type ReadStatus int

const (
	// WaitNextEvent means the queue is drained; wait for readiness.
	WaitNextEvent ReadStatus = iota
	// Disconnected is reported by stream adapters sharing this contract.
	// Datagram endpoints never return it.
	Disconnected
)

// String returns a human-readable name for the status.
func (s ReadStatus) String() string {
	switch s {
	case WaitNextEvent:
		return "WAIT_NEXT_EVENT"
	case Disconnected:
		return "DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}
