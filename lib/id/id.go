package id

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math/big"
	"strconv"
)

// --------------------------------------------------------------------------
// Widths
// --------------------------------------------------------------------------

// Byte widths of the identifier types. These are fixed at the type level:
// parsing rejects any decimal value that does not fit.
const (
	BidLen    = 8
	MidLen    = 8
	SidLen    = 8
	UidLen    = 16
	TicketLen = 8
)

// --------------------------------------------------------------------------
// Identifier Types
// --------------------------------------------------------------------------

// Bid addresses a single bot.
type Bid uint64

// Mid correlates messages in logs and traces.
type Mid uint64

// Sid tracks a session.
type Sid uint64

// Uid attributes a record to a user. It is a 16-byte identifier held
// big-endian so that its decimal and byte representations agree.
type Uid [UidLen]byte

// Ticket correlates a request with its response across the mailbox
// boundary. A fresh random ticket is drawn per request.
type Ticket uint64

// ZoneId identifies a keyspace partition. It is stable for the life of the
// database and determines which zone directory and worker pool own a key.
type ZoneId int

// --------------------------------------------------------------------------
// Constructors
// --------------------------------------------------------------------------

// NewBid returns a random bot identifier.
func NewBid() Bid { return Bid(randUint64()) }

// NewMid returns a random message identifier.
func NewMid() Mid { return Mid(randUint64()) }

// NewSid returns a random session identifier.
func NewSid() Sid { return Sid(randUint64()) }

// NewTicket returns a random request ticket.
func NewTicket() Ticket { return Ticket(randUint64()) }

// randUint64 draws 8 bytes from crypto/rand. Identifier collisions must be
// unlikely across independent processes, so the math/rand generator with its
// process-wide seed is not enough here.
func randUint64() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(fmt.Sprintf("id: failed to read random bytes: %v", err))
	}
	return binary.BigEndian.Uint64(b[:])
}

// --------------------------------------------------------------------------
// Parsing
// --------------------------------------------------------------------------

// ParseBid parses a decimal string into a Bid.
// The value must fit the fixed 8-byte width.
func ParseBid(s string) (Bid, error) {
	v, err := parseFixedUint(s, BidLen)
	return Bid(v), err
}

// ParseMid parses a decimal string into a Mid.
// The value must fit the fixed 8-byte width.
func ParseMid(s string) (Mid, error) {
	v, err := parseFixedUint(s, MidLen)
	return Mid(v), err
}

// ParseSid parses a decimal string into a Sid.
// The value must fit the fixed 8-byte width.
func ParseSid(s string) (Sid, error) {
	v, err := parseFixedUint(s, SidLen)
	return Sid(v), err
}

// ParseTicket parses a decimal string into a Ticket.
// The value must fit the fixed 8-byte width.
func ParseTicket(s string) (Ticket, error) {
	v, err := parseFixedUint(s, TicketLen)
	return Ticket(v), err
}

// ParseUid parses a decimal string into a 16-byte Uid.
// The value must fit the fixed 16-byte width.
func ParseUid(s string) (Uid, error) {
	var u Uid
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Sign() < 0 {
		return u, fmt.Errorf("id: %q is not a valid decimal identifier", s)
	}
	if n.BitLen() > UidLen*8 {
		return u, fmt.Errorf("id: value %q exceeds the fixed %d-byte width", s, UidLen)
	}
	n.FillBytes(u[:])
	return u, nil
}

// parseFixedUint parses a decimal string into an unsigned integer of the
// given byte width, rejecting values that do not fit.
func parseFixedUint(s string, width int) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, width*8)
	if err != nil {
		return 0, fmt.Errorf("id: value %q does not fit the fixed %d-byte width: %v", s, width, err)
	}
	return v, nil
}

// --------------------------------------------------------------------------
// Formatting and Conversion
// --------------------------------------------------------------------------

func (b Bid) String() string { return strconv.FormatUint(uint64(b), 10) }
func (m Mid) String() string { return strconv.FormatUint(uint64(m), 10) }
func (s Sid) String() string { return strconv.FormatUint(uint64(s), 10) }
func (t Ticket) String() string { return fmt.Sprintf("%x", uint64(t)) }

func (u Uid) String() string {
	return new(big.Int).SetBytes(u[:]).String()
}

// Bytes returns the identifier in its fixed-width big-endian form.
func (b Bid) Bytes() []byte {
	out := make([]byte, BidLen)
	binary.BigEndian.PutUint64(out, uint64(b))
	return out
}

// Bytes returns the identifier in its fixed-width big-endian form.
func (u Uid) Bytes() []byte {
	out := make([]byte, UidLen)
	copy(out, u[:])
	return out
}

// UidFromBytes builds a Uid from exactly UidLen bytes.
func UidFromBytes(b []byte) (Uid, error) {
	var u Uid
	if len(b) != UidLen {
		return u, fmt.Errorf("id: need exactly %d bytes for a Uid, got %d", UidLen, len(b))
	}
	copy(u[:], b)
	return u, nil
}

// UidFromUint64 builds a Uid from a small numeric user id. Handy for tests
// and for deployments that key users by a plain counter.
func UidFromUint64(v uint64) Uid {
	var u Uid
	binary.BigEndian.PutUint64(u[UidLen-8:], v)
	return u
}

// IsZero reports whether the Uid is the all-zero (anonymous) identifier.
func (u Uid) IsZero() bool {
	return u == Uid{}
}
