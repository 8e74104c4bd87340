package redis

import (
	"context"
	"errors"
	"log"
	"sync"

	"signal-engine/internal/strategy"
)

// signalSender is the subset of Publisher the buffered wrapper needs.
type signalSender interface {
	Send(ctx context.Context, s strategy.Signal) error
}

// BufferedPublisher wraps a Publisher with a circuit breaker.
// While the circuit is open, signals are buffered locally and flushed
// in order when the circuit closes again.
type BufferedPublisher struct {
	pub signalSender
	cb  *Breaker
	ctx context.Context

	mu     sync.Mutex
	buffer []strategy.Signal
	maxBuf int // max buffered signals before dropping oldest (default: 1000)

	// Callbacks
	OnBuffer func()          // called when a signal is buffered (for metrics)
	OnFlush  func(count int) // called after flushing buffered signals
}

// NewBufferedPublisher creates a BufferedPublisher wrapping pub.
// ctx bounds the flushes triggered by the circuit closing.
func NewBufferedPublisher(ctx context.Context, pub signalSender, cb *Breaker, maxBufferSize int) *BufferedPublisher {
	if maxBufferSize <= 0 {
		maxBufferSize = 1000
	}
	bp := &BufferedPublisher{
		pub:    pub,
		cb:     cb,
		ctx:    ctx,
		maxBuf: maxBufferSize,
	}

	// Register flush on circuit close
	prevCallback := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prevCallback != nil {
			prevCallback(from, to)
		}
		if to == StateClosed {
			go bp.flush()
		}
	}
	return bp
}

// Send publishes s through the circuit breaker. If the circuit is open, s is
// buffered and nil is returned.
func (bp *BufferedPublisher) Send(ctx context.Context, s strategy.Signal) error {
	err := bp.cb.Do(func() error {
		return bp.pub.Send(ctx, s)
	})
	if errors.Is(err, ErrCircuitOpen) {
		bp.bufferSignal(s)
		return nil // buffered, not lost
	}
	return err
}

func (bp *BufferedPublisher) bufferSignal(s strategy.Signal) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if len(bp.buffer) >= bp.maxBuf {
		// full: drop oldest
		bp.buffer = bp.buffer[1:]
	}
	bp.buffer = append(bp.buffer, s)

	if bp.OnBuffer != nil {
		bp.OnBuffer()
	}
}

// flush replays buffered signals through the breaker. Signals that fail are
// buffered again.
func (bp *BufferedPublisher) flush() {
	bp.mu.Lock()
	if len(bp.buffer) == 0 {
		bp.mu.Unlock()
		return
	}
	toFlush := bp.buffer
	bp.buffer = nil
	bp.mu.Unlock()

	flushed := 0
	for i, s := range toFlush {
		if err := bp.cb.Do(func() error { return bp.pub.Send(bp.ctx, s) }); err != nil {
			for _, rest := range toFlush[i:] {
				bp.bufferSignal(rest)
			}
			break
		}
		flushed++
	}

	log.Printf("[redis] flushed %d buffered signals", flushed)
	if bp.OnFlush != nil {
		bp.OnFlush(flushed)
	}
}

// PendingCount returns the number of buffered signals waiting to be flushed.
func (bp *BufferedPublisher) PendingCount() int {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return len(bp.buffer)
}
