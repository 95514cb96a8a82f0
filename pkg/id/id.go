package id

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"sync"
	"time"
)

// ID is a 128-bit, lexicographically sortable identifier.
type ID [16]byte

// String returns the hex form.
func (i ID) String() string { return hex.EncodeToString(i[:]) }

// Compare returns -1, 0, 1 based on byte order.
func (i ID) Compare(other ID) int { return bytes.Compare(i[:], other[:]) }

// Millis returns the embedded millisecond timestamp.
func (i ID) Millis() int64 { return int64(binary.BigEndian.Uint64(i[:8])) }

// Parse decodes the hex form produced by String.
func Parse(s string) (ID, bool) {
	var out ID
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(out) {
		return out, false
	}
	copy(out[:], b)
	return out, true
}

// Generator produces monotonically increasing IDs. Safe for concurrent use.
type Generator struct {
	mu     sync.Mutex
	now    func() time.Time
	lastMs int64
	seq    uint64
}

// NewGenerator returns a Generator reading the system clock.
func NewGenerator() *Generator { return &Generator{now: time.Now} }

// NewGeneratorWithClock returns a Generator reading now. Used by the engine
// so item IDs follow the same clock as its scheduler.
func NewGeneratorWithClock(now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{now: now}
}

// Next returns a new ID. A clock that goes backwards is pinned to the last
// observed millisecond; the sequence keeps the output increasing.
func (g *Generator) Next() ID {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := g.now().UnixMilli()
	if ms <= g.lastMs {
		ms = g.lastMs
		g.seq++
	} else {
		g.seq = 0
	}
	g.lastMs = ms

	var out ID
	binary.BigEndian.PutUint64(out[:8], uint64(ms))
	binary.BigEndian.PutUint64(out[8:], g.seq)
	return out
}
