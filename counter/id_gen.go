package counter

import (
	"crypto/rand"
	"encoding/binary"
	"io"
	"sync/atomic"
)

// seqGenerator hands out command sequence ids used to correlate log lines.
//
// The start value is random so ids from different engines in one log do not collide
// in the common case.
type seqGenerator struct {
	id atomic.Uint32
}

func newSeqGenerator() *seqGenerator {
	g := &seqGenerator{}
	var buf [4]byte
	if _, err := io.ReadFull(rand.Reader, buf[:]); err != nil {
		return g
	}
	g.id.Store(binary.LittleEndian.Uint32(buf[:]) >> 8)

	return g
}

func (g *seqGenerator) next() uint32 {
	return g.id.Add(1)
}
