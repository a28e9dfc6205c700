package zone

import (
	"encoding/binary"
	"fmt"

	"github.com/ozonedb/ozone/lib/id"
)

// --------------------------------------------------------------------------
// Record Types
// --------------------------------------------------------------------------

// Meta carries the per-record metadata stored alongside every key.
type Meta struct {
	Created  int64  // Unix nanoseconds of first write.
	Modified int64  // Unix nanoseconds of last write.
	User     id.Uid // Owning user.
}

// Record is a decoded key-value pair plus its metadata.
type Record struct {
	Key   []byte
	Value []byte
	Meta  Meta
}

// Location addresses a stored record within a Directory. Locations are
// valid until the next compaction, which bumps the generation.
type Location struct {
	Gen    uint32
	Offset int64
	Length int64
}

// --------------------------------------------------------------------------
// Data File Frames
// --------------------------------------------------------------------------

// Data file frame layout (little endian, fixed header then key then payload):
//
//	8B keyHash | 4B keyLen | 4B payloadLen | 8B created | 8B modified |
//	16B user | 1B flags | key | payload
const storedHeaderLen = 8 + 4 + 4 + 8 + 8 + id.UidLen + 1

const flagTombstone byte = 1 << 0

type storedHeader struct {
	KeyHash    uint64
	KeyLen     uint32
	PayloadLen uint32
	Created    int64
	Modified   int64
	User       id.Uid
	Flags      byte
}

func (h *storedHeader) frameLen() int64 {
	return int64(storedHeaderLen) + int64(h.KeyLen) + int64(h.PayloadLen)
}

func (h *storedHeader) tombstone() bool {
	return h.Flags&flagTombstone != 0
}

func encodeStoredHeader(buf []byte, h *storedHeader) {
	binary.LittleEndian.PutUint64(buf[0:8], h.KeyHash)
	binary.LittleEndian.PutUint32(buf[8:12], h.KeyLen)
	binary.LittleEndian.PutUint32(buf[12:16], h.PayloadLen)
	binary.LittleEndian.PutUint64(buf[16:24], uint64(h.Created))
	binary.LittleEndian.PutUint64(buf[24:32], uint64(h.Modified))
	copy(buf[32:32+id.UidLen], h.User[:])
	buf[32+id.UidLen] = h.Flags
}

func decodeStoredHeader(buf []byte) (storedHeader, error) {
	if len(buf) < storedHeaderLen {
		return storedHeader{}, fmt.Errorf("frame header needs %d bytes, got %d", storedHeaderLen, len(buf))
	}
	var h storedHeader
	h.KeyHash = binary.LittleEndian.Uint64(buf[0:8])
	h.KeyLen = binary.LittleEndian.Uint32(buf[8:12])
	h.PayloadLen = binary.LittleEndian.Uint32(buf[12:16])
	h.Created = int64(binary.LittleEndian.Uint64(buf[16:24]))
	h.Modified = int64(binary.LittleEndian.Uint64(buf[24:32]))
	copy(h.User[:], buf[32:32+id.UidLen])
	h.Flags = buf[32+id.UidLen]
	return h, nil
}

// --------------------------------------------------------------------------
// Index File Entries
// --------------------------------------------------------------------------

// Index file entry layout (little endian):
//
//	8B keyHash | 4B keyLen | key | 8B offset | 8B length | 1B flags
const indexEntryFixedLen = 8 + 4 + 8 + 8 + 1

type indexEntry struct {
	KeyHash uint64
	Key     []byte
	Offset  int64
	Length  int64
	Flags   byte
}

func encodeIndexEntry(e *indexEntry) []byte {
	buf := make([]byte, indexEntryFixedLen+len(e.Key))
	binary.LittleEndian.PutUint64(buf[0:8], e.KeyHash)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(e.Key)))
	n := 12 + copy(buf[12:], e.Key)
	binary.LittleEndian.PutUint64(buf[n:n+8], uint64(e.Offset))
	binary.LittleEndian.PutUint64(buf[n+8:n+16], uint64(e.Length))
	buf[n+16] = e.Flags
	return buf
}
