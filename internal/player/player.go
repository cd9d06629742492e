// Package player implements the playback primitive the scheduler drives:
// load a clip file, play it, stop it, set its volume. Each clip gets its
// own PCM player; a Mixer paces real time in 20ms frames and blends the
// active players (at most two, during a crossfade) into one output stream.
package player

import (
	"fmt"
	"sync"
	"time"

	"github.com/moodloop/moodloop/internal/audio"
)

// PCM plays one decoded clip. Safe for concurrent use: the scheduler sets
// volume from its ramp loop while the mixer pulls frames.
type PCM struct {
	mixer *Mixer

	mu      sync.Mutex
	samples []int16
	frame   int
	volume  float64
	playing bool
}

// Load decodes the clip file and returns its exact duration. Resets the
// playback position to the start.
func (p *PCM) Load(path string) (time.Duration, error) {
	samples, err := audio.DecodeFile(path)
	if err != nil {
		return 0, fmt.Errorf("load clip: %w", err)
	}
	if audio.FrameCount(samples) == 0 {
		return 0, fmt.Errorf("load clip: %s shorter than one frame", path)
	}

	p.mu.Lock()
	p.samples = samples
	p.frame = 0
	p.mu.Unlock()
	return audio.Duration(samples), nil
}

// Play starts (or restarts) playback. Playing a clip that already reached
// its end rewinds to offset 0, which is how the scheduler loops a clip when
// the next one is not ready yet.
func (p *PCM) Play() {
	p.mu.Lock()
	if p.frame >= audio.FrameCount(p.samples) {
		p.frame = 0
	}
	p.playing = true
	p.mu.Unlock()
	if p.mixer != nil {
		p.mixer.attach(p)
	}
}

// Stop halts playback and detaches from the mixer.
func (p *PCM) Stop() {
	p.mu.Lock()
	p.playing = false
	p.mu.Unlock()
	if p.mixer != nil {
		p.mixer.detach(p)
	}
}

// SetVolume sets the playback gain, clamped to [0,1].
func (p *PCM) SetVolume(v float64) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	p.mu.Lock()
	p.volume = v
	p.mu.Unlock()
}

// Volume returns the current gain.
func (p *PCM) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// Position returns elapsed playback time, advanced by the mixer one frame
// at a time.
func (p *PCM) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Duration(p.frame) * audio.FrameDuration
}

// Duration returns the loaded clip's length.
func (p *PCM) Duration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return audio.Duration(p.samples)
}

// Playing reports whether the player is active.
func (p *PCM) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// nextFrame returns the next gain-scaled frame, or ok=false when stopped or
// past the end of the clip.
func (p *PCM) nextFrame() (frame []int16, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing || p.frame >= audio.FrameCount(p.samples) {
		return nil, false
	}
	start := p.frame * audio.FrameSamples
	raw := p.samples[start : start+audio.FrameSamples]
	p.frame++
	return audio.ApplyGain(raw, p.volume), true
}
