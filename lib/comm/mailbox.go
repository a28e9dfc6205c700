package comm

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// cell is one element of the mailbox's linked list.
type cell struct {
	msg  *Msg
	next atomic.Pointer[cell]
}

// Mailbox is an unbounded multi-producer single-consumer queue of messages.
// Producers append via atomic operations, a dedicated goroutine drains the
// list into the Recv channel.
//
// Thread-safety: any number of goroutines may Push concurrently; exactly
// one goroutine (the owning bot) consumes via Recv. Messages pushed from a
// single producer are delivered in push order. Closing stops further
// pushes, but everything already accepted is still delivered before the
// Recv channel closes.
type Mailbox struct {
	head     atomic.Pointer[cell]
	tail     atomic.Pointer[cell]
	out      chan *Msg
	consumer sync.WaitGroup
	closed   atomic.Bool

	mu   sync.Mutex
	cond *sync.Cond
}

// NewMailbox creates a mailbox and starts its internal pump goroutine.
func NewMailbox() *Mailbox {
	// Dummy element so head and tail are never nil.
	dummy := &cell{}

	b := &Mailbox{
		out: make(chan *Msg),
	}
	b.cond = sync.NewCond(&b.mu)
	b.head.Store(dummy)
	b.tail.Store(dummy)

	b.consumer.Add(1)
	go b.pump()

	return b
}

// Push appends a message. Returns false if the message is nil or the
// mailbox is already closed.
//
// Thread-safety: safe for concurrent use.
func (b *Mailbox) Push(m *Msg) bool {
	if m == nil {
		return false
	}
	if b.closed.Load() {
		return false
	}

	n := &cell{msg: m}

	var backoff uint8 = 0
	for {
		tail := b.tail.Load()

		next := tail.next.Load()
		if next == nil {
			if tail.next.CompareAndSwap(nil, n) {
				// The tail CAS may lose to a helping producer, the
				// pointer still ends up at the newest cell.
				b.tail.CompareAndSwap(tail, n)
				b.cond.Signal()
				return true
			}
		} else {
			// Another producer appended but has not moved the tail yet,
			// help it along.
			b.tail.CompareAndSwap(tail, next)
		}

		// Exponential backoff under contention: spin while cheap, then
		// yield so the winning producer can finish.
		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// pump moves messages from the linked list to the output channel.
func (b *Mailbox) pump() {
	defer b.consumer.Done()
	defer close(b.out)

	for {
		delivered := false

		for {
			head := b.head.Load()
			next := head.next.Load()
			if next == nil {
				break
			}
			delivered = true

			msg := next.msg
			b.head.Store(next)
			b.out <- msg
			next.msg = nil
		}

		if !delivered && b.closed.Load() {
			return
		}

		if !delivered {
			b.mu.Lock()
			// Re-check under the lock, a producer may have signaled in
			// between.
			head := b.head.Load()
			if head.next.Load() == nil && !b.closed.Load() {
				b.cond.Wait()
			}
			b.mu.Unlock()
		}
	}
}

// Recv returns the consuming side of the mailbox. The channel closes once
// the mailbox is closed and fully drained.
func (b *Mailbox) Recv() <-chan *Msg {
	return b.out
}

// Close rejects further pushes. Accepted messages are still delivered.
func (b *Mailbox) Close() {
	b.closed.Store(true)
	b.cond.Signal()
}

// IsClosed reports whether the mailbox rejects new pushes.
func (b *Mailbox) IsClosed() bool {
	return b.closed.Load()
}

// Len counts the currently queued messages. O(n), for stats and tests.
func (b *Mailbox) Len() int {
	count := 0
	current := b.head.Load()
	for {
		next := current.next.Load()
		if next == nil {
			break
		}
		count++
		current = next
	}
	return count
}
