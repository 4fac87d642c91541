// Package framepool manages the shared frame buffers that carry encoded
// video from the camera pipeline to the gadget driver.
//
// The pool holds one delivery buffer reserved for the transmit side plus a
// set of fill buffers cycled by the encode side. Producers never block:
// when every fill buffer is busy the frame is rejected and the caller
// drops it. The consumer takes the newest filled buffer, releasing any
// stale filled buffers, so transmit latency stays bounded at one frame.
package framepool

import (
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is returned by TakeLatestAndSwap after Close.
var ErrClosed = errors.New("framepool: pool is closed")

// Allocator maps gadget buffers into process memory. It is implemented by
// the V4L2 output device.
type Allocator interface {
	MapBuffer(index uint32) ([]byte, error)
	UnmapBuffer(data []byte) error
}

type bufferState int

const (
	stateFree bufferState = iota
	stateInUse
	stateFilled
	stateDelivery
)

// Buffer is one mmap gadget buffer. Index is the driver's buffer index,
// Data the mapped memory. TimestampNs and BytesUsed are set by Publish.
type Buffer struct {
	Index       uint32
	Data        []byte
	TimestampNs int64
	BytesUsed   int

	state bufferState
}

// Pool owns count mapped buffers. Buffer 0 starts as the delivery buffer;
// the rest are free for producers.
type Pool struct {
	mu      sync.Mutex
	cond    *sync.Cond
	alloc   Allocator
	buffers []*Buffer
	closed  bool
}

// New maps count buffers from alloc. At least two buffers are required,
// one for delivery and one to fill.
func New(alloc Allocator, count int) (*Pool, error) {
	if count < 2 {
		return nil, fmt.Errorf("framepool: need at least 2 buffers, got %d", count)
	}

	p := &Pool{alloc: alloc}
	p.cond = sync.NewCond(&p.mu)

	for i := 0; i < count; i++ {
		data, err := alloc.MapBuffer(uint32(i))
		if err != nil {
			for _, b := range p.buffers {
				_ = alloc.UnmapBuffer(b.Data)
			}
			return nil, fmt.Errorf("framepool: mapping buffer %d: %w", i, err)
		}
		b := &Buffer{Index: uint32(i), Data: data, state: stateFree}
		if i == 0 {
			b.state = stateDelivery
		}
		p.buffers = append(p.buffers, b)
	}

	return p, nil
}

// AcquireFree returns a free buffer for filling, or nil when all fill
// buffers are busy. It never blocks; callers reject the frame on nil.
func (p *Pool) AcquireFree() *Buffer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	for _, b := range p.buffers {
		if b.state == stateFree {
			b.state = stateInUse
			return b
		}
	}
	return nil
}

// Publish marks an acquired buffer as filled and wakes the consumer.
func (p *Pool) Publish(b *Buffer, timestampNs int64, bytesUsed int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	b.TimestampNs = timestampNs
	b.BytesUsed = bytesUsed
	b.state = stateFilled
	p.cond.Broadcast()
}

// Cancel returns an acquired buffer to the free set without publishing.
func (p *Pool) Cancel(b *Buffer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	b.state = stateFree
}

// TakeLatestAndSwap blocks until at least one filled buffer exists, then
// exchanges the delivery buffer for the newest one. Filled buffers older
// than the chosen frame return to the free set, as does the previous
// delivery buffer. Returns ErrClosed once the pool is shut down.
func (p *Pool) TakeLatestAndSwap() (*Buffer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		if p.closed {
			return nil, ErrClosed
		}

		var newest *Buffer
		for _, b := range p.buffers {
			if b.state != stateFilled {
				continue
			}
			if newest == nil || b.TimestampNs > newest.TimestampNs {
				newest = b
			}
		}

		if newest == nil {
			p.cond.Wait()
			continue
		}

		for _, b := range p.buffers {
			if b.state == stateFilled && b != newest {
				b.state = stateFree
			}
			if b.state == stateDelivery {
				b.state = stateFree
			}
		}
		newest.state = stateDelivery
		return newest, nil
	}
}

// Interrupt marks the pool closed and wakes any blocked consumer.
// Buffer mappings stay valid, so producers that already hold a buffer
// may still write into it; Close releases the mappings once those
// producers have been joined.
func (p *Pool) Interrupt() {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()
}

// Close interrupts the pool and unmaps every buffer. No producer may
// hold a buffer across Close; its memory is gone afterwards.
func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	buffers := p.buffers
	p.buffers = nil
	p.cond.Broadcast()
	p.mu.Unlock()

	var firstErr error
	for _, b := range buffers {
		if err := p.alloc.UnmapBuffer(b.Data); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
