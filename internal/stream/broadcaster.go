// Package stream publishes the session's mixed PCM output to listeners:
// WebRTC peers with Opus and plain HTTP with MP3.
package stream

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// listenerBuffer is the per-listener frame backlog: ~3 seconds of 20ms
// frames. A listener further behind than this starts losing frames.
const listenerBuffer = 150

// Broadcaster fans out the mixer's PCM frames to N listeners. The mixer
// clock never waits for a listener: a full listener buffer drops the frame
// for that listener only.
type Broadcaster struct {
	mu        sync.RWMutex
	listeners map[*Listener]struct{}
	dropped   atomic.Uint64
}

// Listener is one subscriber's view of the session audio.
type Listener struct {
	// C carries the mixed 20ms PCM frames.
	C chan []int16

	id      string
	done    chan struct{}
	dropped atomic.Uint64
}

// ID identifies the listener in logs and status payloads.
func (l *Listener) ID() string {
	return l.id
}

// Dropped returns how many frames this listener has lost to backpressure.
func (l *Listener) Dropped() uint64 {
	return l.dropped.Load()
}

// NewBroadcaster creates a broadcaster with no listeners.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		listeners: make(map[*Listener]struct{}),
	}
}

// Subscribe registers a new listener and returns its frame channel.
func (b *Broadcaster) Subscribe() *Listener {
	l := &Listener{
		C:    make(chan []int16, listenerBuffer),
		id:   uuid.NewString(),
		done: make(chan struct{}),
	}
	b.mu.Lock()
	b.listeners[l] = struct{}{}
	total := len(b.listeners)
	b.mu.Unlock()

	log.Debug("listener subscribed", "listener", l.id, "total", total)
	return l
}

// Unsubscribe removes a listener and signals it to stop.
func (b *Broadcaster) Unsubscribe(l *Listener) {
	b.mu.Lock()
	delete(b.listeners, l)
	total := len(b.listeners)
	b.mu.Unlock()
	close(l.done)

	log.Debug("listener unsubscribed", "listener", l.id, "dropped", l.Dropped(), "total", total)
}

// ListenerCount returns the number of active listeners.
func (b *Broadcaster) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// DroppedFrames returns the total frames dropped across all listeners
// since the broadcaster started.
func (b *Broadcaster) DroppedFrames() uint64 {
	return b.dropped.Load()
}

// Run reads frames from source and fans out to all listeners until ctx is
// cancelled or source closes.
func (b *Broadcaster) Run(ctx context.Context, source <-chan []int16) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-source:
			if !ok {
				return
			}
			b.mu.RLock()
			for l := range b.listeners {
				select {
				case l.C <- frame:
				default:
					// listener too slow, drop its frame to keep the
					// broadcast moving
					l.dropped.Add(1)
					b.dropped.Add(1)
				}
			}
			b.mu.RUnlock()
		}
	}
}
