package ingest

import (
	"sync"

	"github.com/priceflow/medianpipe/internal/record"
)

// Chunk is a bounded, ordered sequence of records — the cross-goroutine
// hand-off unit between parser tasks and the writer.
type Chunk []record.Record

// Channel is a bounded MPMC FIFO of chunks with a "no more producers"
// flag. Consumers drain until the channel is both empty and flagged
// finished; a push after finish is a no-op.
type Channel struct {
	mu       sync.Mutex
	cond     *sync.Cond
	buf      []Chunk
	capacity int
	finished bool
}

// NewChannel creates a bounded channel holding up to capacity chunks
// before Push blocks.
func NewChannel(capacity int) *Channel {
	if capacity < 1 {
		capacity = 1
	}
	c := &Channel{capacity: capacity}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Push enqueues a chunk, blocking while the channel is full. A no-op
// once Finish has been called.
func (c *Channel) Push(chunk Chunk) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finished {
		return
	}
	for len(c.buf) >= c.capacity && !c.finished {
		c.cond.Wait()
	}
	if c.finished {
		return
	}
	c.buf = append(c.buf, chunk)
	c.cond.Broadcast()
}

// Take returns the next chunk, or ok=false once the channel is both
// empty and finished.
func (c *Channel) Take() (chunk Chunk, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.buf) == 0 && !c.finished {
		c.cond.Wait()
	}
	if len(c.buf) == 0 {
		return nil, false
	}
	chunk = c.buf[0]
	c.buf = c.buf[1:]
	c.cond.Broadcast()
	return chunk, true
}

// Finish flags that no more producers will push. Subsequent Take calls
// still drain whatever remains buffered.
func (c *Channel) Finish() {
	c.mu.Lock()
	c.finished = true
	c.mu.Unlock()
	c.cond.Broadcast()
}
