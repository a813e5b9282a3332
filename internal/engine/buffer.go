package engine

import (
	"fmt"
	"sync"

	"github.com/datallboy/rangefetch/internal/domain"
)

// Buffer is the destination for one download. It lends out disjoint windows
// and refuses to lend a range that overlaps one still in flight.
type Buffer struct {
	mu   sync.Mutex
	data []byte
	lent map[int]domain.Window
}

func NewBuffer(size uint32) *Buffer {
	return &Buffer{
		data: make([]byte, size),
		lent: make(map[int]domain.Window),
	}
}

// Lend hands out the slice backing w. The caller owns it until Return.
func (b *Buffer) Lend(w domain.Window) ([]byte, error) {
	if w.Start < 0 || w.Length <= 0 || w.End() > int64(len(b.data)) {
		return nil, fmt.Errorf("window %s outside buffer of %d bytes", w, len(b.data))
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, other := range b.lent {
		if w.Start < other.End() && other.Start < w.End() {
			return nil, fmt.Errorf("window %s overlaps in-flight window %s", w, other)
		}
	}
	b.lent[w.Index] = w

	// Cap the slice so an append cannot spill into the next window
	return b.data[w.Start:w.End():w.End()], nil
}

// Return ends the loan for w.
func (b *Buffer) Return(w domain.Window) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.lent, w.Index)
}

// Slice returns the bytes of w. Only valid once w has been returned.
func (b *Buffer) Slice(w domain.Window) []byte {
	return b.data[w.Start:w.End()]
}

// Bytes returns the whole buffer.
func (b *Buffer) Bytes() []byte {
	return b.data
}

func (b *Buffer) Len() int {
	return len(b.data)
}
