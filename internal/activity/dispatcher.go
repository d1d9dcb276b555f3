package activity

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// Writer persists a single event.
type Writer interface {
	Write(ctx context.Context, event Event) error
}

// Dispatcher queues events on a bounded channel and hands them to a Writer on
// one background goroutine. When the queue is full, events are dropped and
// counted rather than slowing down the caller.
type Dispatcher struct {
	writer    Writer
	ch        chan Event
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

func NewDispatcher(writer Writer, bufferSize int) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = 1
	}

	d := &Dispatcher{
		writer: writer,
		ch:     make(chan Event, bufferSize),
		done:   make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case ev := <-d.ch:
			d.write(ev)
		case <-d.done:
			for {
				select {
				case ev := <-d.ch:
					d.write(ev)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) write(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("kind", ev.Kind).Msg("activity writer panicked")
		}
	}()
	if err := d.writer.Write(context.Background(), ev); err != nil {
		log.Error().Err(err).Str("kind", ev.Kind).Msg("Failed to persist activity event")
	}
}

// Emit queues ev without blocking.
func (d *Dispatcher) Emit(_ context.Context, ev Event) {
	if d == nil || d.closed.Load() {
		return
	}

	select {
	case d.ch <- ev:
	default:
		d.dropped.Add(1)
	}
}

// Dropped is the number of events discarded because the queue was full.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Close stops accepting events and waits for queued ones to be written, or
// for ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	if d == nil {
		return nil
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
	})

	finished := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
