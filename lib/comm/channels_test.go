package comm

import (
	"fmt"
	"testing"
	"time"
)

func TestChannelPoolRejectsEmpty(t *testing.T) {
	if _, err := NewChannelPool(0, ByKey); err == nil {
		t.Fatal("Expected an error for a zero-sized pool")
	}
}

func TestChannelPoolByKeyDeterminism(t *testing.T) {
	p, err := NewChannelPool(8, ByKey)
	if err != nil {
		t.Fatalf("Failed to create pool: %v", err)
	}
	defer p.CloseAll()

	seen := make(map[int]bool)
	for i := 0; i < 100; i++ {
		key := []byte(fmt.Sprintf("key-%d", i))
		first := p.Route(key)
		for j := 0; j < 10; j++ {
			if got := p.Route(key); got != first {
				t.Fatalf("Routing for %q changed from %d to %d", key, first, got)
			}
		}
		seen[first] = true
	}

	// 100 distinct keys over 8 mailboxes should touch more than one.
	if len(seen) < 2 {
		t.Fatalf("Expected keys to spread over the pool, all went to %d mailbox(es)", len(seen))
	}
}

func TestChannelPoolSendDelivery(t *testing.T) {
	p, err := NewChannelPool(4, ByKey)
	if err != nil {
		t.Fatalf("Failed to create pool: %v", err)
	}
	defer p.CloseAll()

	key := []byte("some-key")
	m := reqMsg(string(key))
	i, ok := p.Send(key, m)
	if !ok {
		t.Fatal("Expected the push to be accepted")
	}
	if i != p.Route(key) {
		t.Fatalf("Send picked mailbox %d, Route says %d", i, p.Route(key))
	}

	select {
	case got := <-p.Box(i).Recv():
		if got != m {
			t.Fatal("Delivered a different message")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Timeout waiting for the message")
	}
}

func TestChannelPoolRoundRobin(t *testing.T) {
	p, err := NewChannelPool(4, RoundRobin)
	if err != nil {
		t.Fatalf("Failed to create pool: %v", err)
	}
	defer p.CloseAll()

	seen := make(map[int]int)
	for i := 0; i < 16; i++ {
		seen[p.Route([]byte("same-key"))]++
	}
	for i := 0; i < p.Size(); i++ {
		if seen[i] != 4 {
			t.Fatalf("Expected mailbox %d to get 4 of 16 messages, got %d", i, seen[i])
		}
	}
}

func TestChannelPoolBroadcast(t *testing.T) {
	p, err := NewChannelPool(3, ByKey)
	if err != nil {
		t.Fatalf("Failed to create pool: %v", err)
	}

	accepted := p.Broadcast(func() *Msg { return NewControl(CtlFinish, 0) })
	if accepted != 3 {
		t.Fatalf("Expected 3 accepted broadcasts, got %d", accepted)
	}

	for i := 0; i < p.Size(); i++ {
		select {
		case m := <-p.Box(i).Recv():
			if m.Kind != KindControl || m.Ctl != CtlFinish {
				t.Fatalf("Mailbox %d got %v instead of the finish control", i, m)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("Timeout waiting for broadcast on mailbox %d", i)
		}
	}

	p.CloseAll()
	if accepted := p.Broadcast(func() *Msg { return NewControl(CtlFinish, 0) }); accepted != 0 {
		t.Fatalf("Expected no accepted broadcasts after close, got %d", accepted)
	}
}
