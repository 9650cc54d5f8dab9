package nodeprotocol

import (
	"fmt"
	"sync"
)

// Transport is the per-node channel a node provider (pkg/nodeprovider)
// hands to the scheduler: Send delivers scheduler→node packets, and
// Inbound yields node→scheduler packets. A provider's transport must
// guarantee at most one packet in flight per node in the send direction
// and that packets arrive on Inbound in the order the node emitted them
// (spec.md §5 "Resource policy").
type Transport interface {
	Send(p *Packet) error
	Inbound() <-chan *Packet
	Close() error
}

// ChannelTransport is the in-process transport: a buffered pair of Go
// channels. It is also the shape an out-of-process transport's in-memory
// side adapts to once bytes have been decoded (pkg/nodeprovider), so the
// scheduler only ever talks to this one interface regardless of node kind.
type ChannelTransport struct {
	mu       sync.Mutex
	out      chan *Packet
	in       chan *Packet
	closed   bool
	sendLock sync.Mutex
}

// NewChannelTransport creates a transport whose scheduler→node and
// node→scheduler channels each have the given buffer depth. A depth of 0
// still guarantees ordering; Send then blocks until the node side reads
// Outbound, and Emit blocks until the scheduler reads Inbound.
func NewChannelTransport(bufferDepth int) *ChannelTransport {
	return &ChannelTransport{
		out: make(chan *Packet, bufferDepth),
		in:  make(chan *Packet, bufferDepth),
	}
}

// Send delivers a scheduler→node packet. sendLock serializes callers so
// that "exactly one packet in flight per node" holds even if the
// scheduler's dispatch loop is invoked concurrently for the same node.
func (t *ChannelTransport) Send(p *Packet) error {
	t.sendLock.Lock()
	defer t.sendLock.Unlock()

	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return fmt.Errorf("transport closed")
	}
	t.out <- p
	return nil
}

// Outbound is read by the node-side loop (pkg/nodeprovider) to receive
// packets sent via Send.
func (t *ChannelTransport) Outbound() <-chan *Packet { return t.out }

// Emit is called by the node-side loop to push a packet back to the
// scheduler. Calls must be sequential per node; callers own that
// invariant (a single worker goroutine per node, per spec.md §5).
func (t *ChannelTransport) Emit(p *Packet) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return fmt.Errorf("transport closed")
	}
	t.in <- p
	return nil
}

func (t *ChannelTransport) Inbound() <-chan *Packet { return t.in }

func (t *ChannelTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.out)
	close(t.in)
	return nil
}
