// Package udp adapts UDP sockets to the two-sided resource model of the
// event-driven runtime.
//
// Two resource kinds are provided:
//   - Remote: an association of an ephemeral local socket with one peer.
//     Sends are implicitly addressed to that peer.
//   - Local: a socket bound to a local address, optionally an IPv4 multicast
//     group, that receives from and replies to any sender.
//
// Both kinds expose their socket as a readiness source (see Resource). The
// runtime's poller waits for readiness and then calls Receive, Accept, Send
// or SendTo. None of these operations block: reads drain what is queued and
// return, sends complete or report a classified SendStatus.
//
// # Limits
//
// MaxPayloadLen is the absolute ceiling for a datagram payload.
// MaxCompatiblePayloadLen is the ceiling accepted by every common desktop
// OS; stay under it for portable behavior.
//
// # Thread Safety
//
// An endpoint must not be used from more than one goroutine at a time.
// Close is safe to call more than once.
//
// The package builds on unix platforms only.
package udp
