package comm

import (
	"sync"
	"testing"
	"time"

	"github.com/ozonedb/ozone/lib/dberr"
	"github.com/ozonedb/ozone/lib/id"
)

func TestResponderResolve(t *testing.T) {
	r := NewResponder()

	req := reqMsg("key")
	ch := r.Register(req.Ticket)

	reply := req.Response(1, &Result{Found: true})
	if !r.Resolve(reply) {
		t.Fatal("Expected resolve to find the waiter")
	}

	got, err := r.Await(req.Ticket, ch, time.Second)
	if err != nil {
		t.Fatalf("Failed to await reply: %v", err)
	}
	if got != reply {
		t.Fatal("Await returned a different message")
	}
	if r.Outstanding() != 0 {
		t.Fatalf("Expected no outstanding tickets, got %d", r.Outstanding())
	}
}

func TestResponderTimeout(t *testing.T) {
	r := NewResponder()

	req := reqMsg("key")
	ch := r.Register(req.Ticket)

	_, err := r.Await(req.Ticket, ch, 10*time.Millisecond)
	if !dberr.HasCode(err, dberr.CodeTimeout) {
		t.Fatalf("Expected timeout error, got %v", err)
	}
	if r.Outstanding() != 0 {
		t.Fatal("Expected the registration to be withdrawn on timeout")
	}

	// A reply arriving after the timeout is dropped.
	if r.Resolve(req.Response(1, &Result{})) {
		t.Fatal("Expected the late reply to be dropped")
	}
}

func TestResponderUnknownTicket(t *testing.T) {
	r := NewResponder()

	m := &Msg{Kind: KindResponse, Ticket: id.NewTicket(), Res: &Result{}}
	if r.Resolve(m) {
		t.Fatal("Expected resolve to drop a reply for an unknown ticket")
	}
}

func TestResponderResolveOnce(t *testing.T) {
	r := NewResponder()

	req := reqMsg("key")
	r.Register(req.Ticket)

	if !r.Resolve(req.Response(1, &Result{})) {
		t.Fatal("Expected first resolve to succeed")
	}
	if r.Resolve(req.Response(1, &Result{})) {
		t.Fatal("Expected second resolve for the same ticket to be dropped")
	}
}

func TestResponderConcurrent(t *testing.T) {
	r := NewResponder()

	const n = 500
	var wg sync.WaitGroup
	wg.Add(n)

	for i := 0; i < n; i++ {
		req := reqMsg("key")
		ch := r.Register(req.Ticket)

		go func() {
			defer wg.Done()
			m, err := r.Await(req.Ticket, ch, time.Second)
			if err != nil {
				t.Errorf("Failed to await reply: %v", err)
				return
			}
			if m.Ticket != req.Ticket {
				t.Errorf("Reply carries wrong ticket")
			}
		}()

		go r.Resolve(req.Response(1, &Result{Found: true}))
	}

	wg.Wait()
	if r.Outstanding() != 0 {
		t.Fatalf("Expected no outstanding tickets, got %d", r.Outstanding())
	}
}
