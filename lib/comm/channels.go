package comm

import (
	"math/rand"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/ozonedb/ozone/lib/dberr"
)

// --------------------------------------------------------------------------
// Routing Policy
// --------------------------------------------------------------------------

// Policy selects how a channel pool distributes messages over its mailboxes.
type Policy uint8

const (
	// ByKey routes each key to a fixed mailbox by hash. All operations
	// on one key share a mailbox and are therefore processed in order.
	ByKey Policy = iota
	// RoundRobin cycles through the mailboxes. No per-key ordering.
	RoundRobin
	// Random picks a mailbox uniformly at random. No per-key ordering.
	Random
)

// --------------------------------------------------------------------------
// Channel Pool
// --------------------------------------------------------------------------

// ChannelPool fans messages out over a fixed set of mailboxes, one per
// worker bot. The pool never changes size after creation, so ByKey routing
// stays stable for the lifetime of the pool.
type ChannelPool struct {
	boxes  []*Mailbox
	policy Policy
	next   atomic.Uint64 // round-robin cursor
}

// NewChannelPool creates n mailboxes with the given routing policy.
func NewChannelPool(n int, policy Policy) (*ChannelPool, error) {
	if n <= 0 {
		return nil, dberr.New(dberr.CodeConfig, "channel pool needs at least one mailbox, got %d", n)
	}
	boxes := make([]*Mailbox, n)
	for i := range boxes {
		boxes[i] = NewMailbox()
	}
	return &ChannelPool{boxes: boxes, policy: policy}, nil
}

// Size returns the number of mailboxes.
func (p *ChannelPool) Size() int {
	return len(p.boxes)
}

// Box returns the i-th mailbox, for the bot that owns it.
func (p *ChannelPool) Box(i int) *Mailbox {
	return p.boxes[i]
}

// Route returns the mailbox index the pool would pick for key under the
// current policy. For ByKey the result depends only on the key and the
// pool size.
func (p *ChannelPool) Route(key []byte) int {
	switch p.policy {
	case RoundRobin:
		return int(p.next.Add(1) % uint64(len(p.boxes)))
	case Random:
		return rand.Intn(len(p.boxes))
	default:
		return int(xxhash.Sum64(key) % uint64(len(p.boxes)))
	}
}

// Send routes a message by key and pushes it into the selected mailbox.
// Returns the mailbox index and whether the push was accepted.
func (p *ChannelPool) Send(key []byte, m *Msg) (int, bool) {
	i := p.Route(key)
	return i, p.boxes[i].Push(m)
}

// Broadcast pushes one message per mailbox, built by the make function so
// each mailbox receives its own envelope. Returns how many pushes were
// accepted.
func (p *ChannelPool) Broadcast(make func() *Msg) int {
	accepted := 0
	for _, box := range p.boxes {
		if box.Push(make()) {
			accepted++
		}
	}
	return accepted
}

// CloseAll closes every mailbox. Queued messages are still delivered.
func (p *ChannelPool) CloseAll() {
	for _, box := range p.boxes {
		box.Close()
	}
}

// Pending sums the queued messages over all mailboxes. O(n), for stats.
func (p *ChannelPool) Pending() int {
	total := 0
	for _, box := range p.boxes {
		total += box.Len()
	}
	return total
}
