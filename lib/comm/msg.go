package comm

import (
	"github.com/ozonedb/ozone/lib/id"
	"github.com/ozonedb/ozone/lib/zone"
)

// --------------------------------------------------------------------------
// Message Kinds
// --------------------------------------------------------------------------

// MsgKind discriminates the envelope payload.
type MsgKind uint8

const (
	KindRequest MsgKind = iota + 1
	KindResponse
	KindControl
)

func (k MsgKind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	case KindControl:
		return "control"
	default:
		return "unknown"
	}
}

// OpKind names a store operation carried inside a request.
type OpKind uint8

const (
	OpGet OpKind = iota + 1
	OpPut
	OpDelete
	OpHas
)

func (o OpKind) String() string {
	switch o {
	case OpGet:
		return "get"
	case OpPut:
		return "put"
	case OpDelete:
		return "delete"
	case OpHas:
		return "has"
	default:
		return "unknown"
	}
}

// Control is an out-of-band instruction or notification.
type Control uint8

const (
	// CtlReady is emitted once by a bot after its zone slice is open.
	CtlReady Control = iota + 1
	// CtlFinish tells a bot to drain its mailbox and terminate.
	CtlFinish
)

// --------------------------------------------------------------------------
// Envelope
// --------------------------------------------------------------------------

// Request is the payload of a KindRequest message.
type Request struct {
	Op    OpKind
	Key   []byte
	Value []byte // Plaintext value, only set for OpPut.
	User  id.Uid
}

// Result is the payload of a KindResponse message.
type Result struct {
	Rec   *zone.Record // Decoded record, only set for a successful OpGet.
	Found bool
	Err   error
}

// Msg is the envelope exchanged between the facade and worker bots.
// Exactly one of Req, Res or Ctl is meaningful, selected by Kind.
// Responses carry the ticket of the request they answer.
type Msg struct {
	Kind   MsgKind
	Ticket id.Ticket
	From   id.Bid
	Req    *Request
	Res    *Result
	Ctl    Control
}

// NewRequest wraps a store operation into an envelope with a fresh ticket.
func NewRequest(req *Request) *Msg {
	return &Msg{
		Kind:   KindRequest,
		Ticket: id.NewTicket(),
		Req:    req,
	}
}

// NewControl wraps a control instruction into an envelope.
func NewControl(ctl Control, from id.Bid) *Msg {
	return &Msg{
		Kind: KindControl,
		From: from,
		Ctl:  ctl,
	}
}

// Response builds the reply envelope for this request, carrying the same
// ticket so the responder can correlate it.
func (m *Msg) Response(from id.Bid, res *Result) *Msg {
	return &Msg{
		Kind:   KindResponse,
		Ticket: m.Ticket,
		From:   from,
		Res:    res,
	}
}
