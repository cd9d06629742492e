package player

import (
	"context"
	"sync"
	"time"

	"github.com/moodloop/moodloop/internal/audio"
)

// Mixer owns the real-time clock: every 20ms it pulls one frame from each
// attached player, sums them, and pushes the result downstream. Outside a
// crossfade there is one attached player; during one there are two. More
// than two sources is out of scope and never happens under the scheduler.
type Mixer struct {
	mu      sync.Mutex
	sources []*PCM

	frameCh chan []int16
}

// NewMixer creates a mixer with a buffered output channel.
func NewMixer() *Mixer {
	return &Mixer{
		frameCh: make(chan []int16, 100),
	}
}

// NewPlayer creates a player bound to this mixer. The player joins the mix
// on Play and leaves on Stop.
func (m *Mixer) NewPlayer() *PCM {
	return &PCM{mixer: m, volume: 1}
}

// Frames returns the mixed PCM output, one 20ms frame per entry.
func (m *Mixer) Frames() <-chan []int16 {
	return m.frameCh
}

// SourceCount returns the number of attached players.
func (m *Mixer) SourceCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sources)
}

// Run paces the output at real-time rate. Emits silence when nothing is
// playing so downstream listeners never starve. Blocks until ctx is
// cancelled.
func (m *Mixer) Run(ctx context.Context) {
	defer close(m.frameCh)

	ticker := time.NewTicker(audio.FrameDuration)
	defer ticker.Stop()

	silence := make([]int16, audio.FrameSamples)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		frame := m.mixOnce()
		if frame == nil {
			frame = silence
		}

		select {
		case m.frameCh <- frame:
		default:
			// downstream is saturated, drop rather than stall the clock
		}
	}
}

// mixOnce advances every attached player by one frame and blends the
// results. Returns nil when no player produced audio.
func (m *Mixer) mixOnce() []int16 {
	m.mu.Lock()
	sources := make([]*PCM, len(m.sources))
	copy(sources, m.sources)
	m.mu.Unlock()

	var mixed []int16
	for _, p := range sources {
		frame, ok := p.nextFrame()
		if !ok {
			continue
		}
		if mixed == nil {
			mixed = frame
			continue
		}
		mixed = audio.MixFrames(mixed, frame)
	}
	return mixed
}

func (m *Mixer) attach(p *PCM) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sources {
		if s == p {
			return
		}
	}
	m.sources = append(m.sources, p)
}

func (m *Mixer) detach(p *PCM) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.sources {
		if s == p {
			m.sources = append(m.sources[:i], m.sources[i+1:]...)
			return
		}
	}
}
