package raft

// Transport is the seam between the consensus core and whatever carries
// messages between cluster members, grounded on kaito-root-Raft-from-
// scratch's internal/transport.Transport interface shape and on the
// teacher's RaftClient/HTTPHandler split (raft-server/client.go,
// raft-server/http_handler.go) — but async rather than request/response,
// to match spec §5's single inbound queue: Send fires a message and
// returns once it is handed off to the wire, never blocking on a reply.
// Any reply the peer sends back arrives later as its own inbound message
// through Inbox, the same as every other message.
type Transport interface {
	// Send delivers msg to the member addressed by to. Implementations
	// should treat delivery failures as ordinary and non-fatal — a
	// dropped or failed send is indistinguishable from a dropped packet,
	// per spec §7's "the network may drop, delay, or reorder messages"
	// assumption — so Send returning an error is for observability only,
	// never a signal the caller should retry synchronously.
	Send(to MemberId, msg Message) error

	// RegisterInbox wires the destination that decoded inbound messages
	// are delivered to. Called once during startup before Start.
	RegisterInbox(inbox Inbox)

	Start() error
	Close() error
}

// Inbox is the minimal surface Transport needs of RaftInstance: a place
// to drop a freshly decoded inbound Message. RaftInstance implements
// this directly over its own message queue.
type Inbox interface {
	Enqueue(msg Message)
}
