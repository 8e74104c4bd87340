package bus

import (
	"context"
	"log"
	"sync"
)

// FanOut broadcasts values from a single input channel to N output channels.
// If an output channel is full, the value is dropped for that consumer to
// prevent a slow consumer from blocking the pipeline. Outputs created with
// SubscribeBlocking are the exception: they apply back-pressure instead.
type FanOut[T any] struct {
	mu       sync.RWMutex
	outputs  []chan T
	names    []string
	blocking []bool
	bufSize  int

	// OnDrop is called when a value is dropped for a subscriber.
	// name is the label the slow consumer subscribed with.
	OnDrop func(name string, v T)
}

// New creates a FanOut with the given buffer size for output channels.
func New[T any](outputBufferSize int) *FanOut[T] {
	return &FanOut[T]{
		bufSize: outputBufferSize,
	}
}

// Subscribe creates and returns a new output channel labelled name.
// Subscribe before calling Run.
func (f *FanOut[T]) Subscribe(name string) <-chan T {
	return f.subscribe(name, false)
}

// SubscribeBlocking is Subscribe for a consumer that must see every value.
// A full output stalls delivery to all subscribers until it drains or the
// Run context is cancelled, so the consumer must keep reading.
func (f *FanOut[T]) SubscribeBlocking(name string) <-chan T {
	return f.subscribe(name, true)
}

func (f *FanOut[T]) subscribe(name string, blocking bool) <-chan T {
	ch := make(chan T, f.bufSize)
	f.mu.Lock()
	f.outputs = append(f.outputs, ch)
	f.names = append(f.names, name)
	f.blocking = append(f.blocking, blocking)
	f.mu.Unlock()
	return ch
}

// Run reads from the input channel and fans out to all subscribers.
// Blocks until ctx is cancelled or input is closed; all outputs are closed on return.
func (f *FanOut[T]) Run(ctx context.Context, input <-chan T) {
	defer func() {
		f.mu.RLock()
		for _, ch := range f.outputs {
			close(ch)
		}
		f.mu.RUnlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-input:
			if !ok {
				return
			}
			f.publish(ctx, v)
		}
	}
}

// Publish delivers v to every subscriber. Only blocking subscribers can
// make it wait.
func (f *FanOut[T]) Publish(v T) {
	f.publish(context.Background(), v)
}

func (f *FanOut[T]) publish(ctx context.Context, v T) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for i, ch := range f.outputs {
		if f.blocking[i] {
			select {
			case ch <- v:
			case <-ctx.Done():
			}
			continue
		}
		select {
		case ch <- v:
		default:
			if f.OnDrop != nil {
				f.OnDrop(f.names[i], v)
			} else {
				log.Printf("[bus] output %q full, dropping value", f.names[i])
			}
		}
	}
}

// ChannelStat is the saturation of one subscriber channel.
type ChannelStat struct {
	Name string
	Len  int
	Cap  int
}

// ChannelStats returns (length, capacity) for each subscriber channel.
func (f *FanOut[T]) ChannelStats() []ChannelStat {
	f.mu.RLock()
	defer f.mu.RUnlock()
	stats := make([]ChannelStat, len(f.outputs))
	for i, ch := range f.outputs {
		stats[i] = ChannelStat{Name: f.names[i], Len: len(ch), Cap: cap(ch)}
	}
	return stats
}
