// Package scheduler keeps one session's audio alive: it owns the current
// and next clip, watches the playback position, asks for more music inside
// the look-ahead window, and blends clip transitions with an inverse
// smoothstep crossfade.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/moodloop/moodloop/internal/audio"
	"github.com/moodloop/moodloop/internal/clipstore"
)

// Player is the playback primitive the scheduler drives. player.PCM
// implements it; tests substitute fakes.
type Player interface {
	Load(path string) (time.Duration, error)
	Play()
	Stop()
	SetVolume(v float64)
	Position() time.Duration
}

// Factory creates a fresh player for each clip.
type Factory func() Player

// State of the scheduler's playback machine.
type State int

const (
	Idle State = iota
	Playing
	// Pregenerating: playback entered the look-ahead window and the next
	// clip has been requested.
	Pregenerating
	Crossfading
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Playing:
		return "playing"
	case Pregenerating:
		return "pregenerating"
	case Crossfading:
		return "crossfading"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Config holds the scheduler's timing knobs.
type Config struct {
	// LookaheadWindow is the trailing portion of a clip during which the
	// next clip's generation is triggered.
	LookaheadWindow time.Duration
	// CrossfadeDuration is how long the two clips overlap.
	CrossfadeDuration time.Duration
	// WatchTick is the position poll interval.
	WatchTick time.Duration
	// RampSteps is the number of volume updates across a crossfade.
	RampSteps int
}

func (c Config) withDefaults() Config {
	if c.LookaheadWindow <= 0 {
		c.LookaheadWindow = 30 * time.Second
	}
	if c.CrossfadeDuration <= 0 {
		c.CrossfadeDuration = 8 * time.Second
	}
	if c.WatchTick <= 0 {
		c.WatchTick = 250 * time.Millisecond
	}
	if c.RampSteps <= 0 {
		c.RampSteps = 40
	}
	return c
}

type clip struct {
	handle   clipstore.Handle
	player   Player
	duration time.Duration
}

// Scheduler owns playback for one session. Created by the engine on Start,
// discarded on Stop; never reused across sessions.
type Scheduler struct {
	cfg       Config
	newPlayer Factory
	store     *clipstore.Store

	// onLookahead fires when playback enters the look-ahead window. The
	// engine guards double generation with its in-flight flag, so repeated
	// firings are harmless but the scheduler still fires at most once per
	// clip play-through.
	onLookahead func()

	mu             sync.Mutex
	state          State
	current        *clip
	pending        *clip
	lookaheadFired bool

	watchCtx    context.Context
	watchCancel context.CancelFunc
}

// New creates a scheduler. lookahead may be nil (no pre-generation).
func New(cfg Config, factory Factory, store *clipstore.Store, lookahead func()) *Scheduler {
	return &Scheduler{
		cfg:         cfg.withDefaults(),
		newPlayer:   factory,
		store:       store,
		onLookahead: lookahead,
		state:       Idle,
	}
}

// State returns the current playback state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Current returns the handle of the clip that is audible, plus position and
// duration. Zero handle when idle or stopped.
func (s *Scheduler) Current() (h clipstore.Handle, pos, dur time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return clipstore.Handle{}, 0, 0
	}
	return s.current.handle, s.current.player.Position(), s.current.duration
}

// HasPending reports whether a next clip is loaded and waiting to fade in.
func (s *Scheduler) HasPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

// Play loads the first clip and starts playback from offset 0. Valid only
// from Idle.
func (s *Scheduler) Play(h clipstore.Handle) error {
	s.mu.Lock()
	if s.state != Idle {
		s.mu.Unlock()
		return fmt.Errorf("play from state %s", s.state)
	}
	s.mu.Unlock()

	p := s.newPlayer()
	dur, err := p.Load(h.Path)
	if err != nil {
		return err
	}
	p.SetVolume(1)

	s.mu.Lock()
	if s.state == Stopped {
		s.mu.Unlock()
		return errors.New("scheduler stopped")
	}
	s.current = &clip{handle: h, player: p, duration: dur}
	s.state = Playing
	s.lookaheadFired = false
	s.watchCtx, s.watchCancel = context.WithCancel(context.Background())
	ctx := s.watchCtx
	s.mu.Unlock()

	p.Play()
	go s.watch(ctx)

	log.Info("clip playing", "clip", h.ID, "duration", dur)
	return nil
}

// OnNextReady hands the scheduler the next clip. If playback is already
// inside the crossfade window the transition starts immediately; otherwise
// the clip is parked until the window opens. The handle is released unused
// if the scheduler has stopped meanwhile.
func (s *Scheduler) OnNextReady(h clipstore.Handle) error {
	p := s.newPlayer()
	dur, err := p.Load(h.Path)
	if err != nil {
		s.store.Release(h)
		return err
	}
	p.SetVolume(0)

	s.mu.Lock()
	if s.state == Stopped || s.state == Idle || s.current == nil {
		s.mu.Unlock()
		s.store.Release(h)
		return errors.New("no active playback for next clip")
	}
	if s.pending != nil || s.state == Crossfading {
		// Only one next clip at a time; the engine's in-flight flag makes
		// this unreachable, but a stray result must not leak a file.
		s.mu.Unlock()
		s.store.Release(h)
		return errors.New("next clip already staged")
	}
	next := &clip{handle: h, player: p, duration: dur}
	s.pending = next

	inWindow := s.current.player.Position() >= s.crossfadeStart(s.current.duration)
	ctx := s.watchCtx
	s.mu.Unlock()

	log.Info("next clip staged", "clip", h.ID, "duration", dur)
	if inWindow {
		s.beginCrossfade(ctx)
	}
	return nil
}

// Stop halts playback immediately, releases both clips, and puts the
// scheduler in its terminal state. Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.state == Stopped {
		s.mu.Unlock()
		return
	}
	s.state = Stopped
	current, pending := s.current, s.pending
	s.current, s.pending = nil, nil
	cancel := s.watchCancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, c := range []*clip{current, pending} {
		if c == nil {
			continue
		}
		c.player.Stop()
		s.store.Release(c.handle)
	}
	log.Info("playback stopped")
}

// crossfadeStart returns the position at which the transition into the next
// clip begins.
func (s *Scheduler) crossfadeStart(dur time.Duration) time.Duration {
	start := dur - s.cfg.CrossfadeDuration
	if start < 0 {
		start = 0
	}
	return start
}

// watch polls the playback position: fires the look-ahead callback once per
// clip, opens the crossfade window, and loops the current clip if it ends
// with nothing staged.
func (s *Scheduler) watch(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.WatchTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		if (s.state != Playing && s.state != Pregenerating) || s.current == nil {
			s.mu.Unlock()
			continue
		}
		cur := s.current
		pos := cur.player.Position()
		dur := cur.duration

		fireLookahead := !s.lookaheadFired && pos >= dur-s.cfg.LookaheadWindow
		if fireLookahead {
			s.lookaheadFired = true
			s.state = Pregenerating
		}
		startFade := s.pending != nil && pos >= s.crossfadeStart(dur)
		ended := s.pending == nil && pos >= dur
		if ended {
			// Degraded mode: nothing to fade into, loop the clip from the
			// start so audio never stops. The next play-through may fire
			// look-ahead again. The replay stays under the lock so Stop
			// cannot halt the player between the end check and the restart.
			s.lookaheadFired = false
			s.state = Playing
			cur.player.Play()
		}
		s.mu.Unlock()

		if fireLookahead && s.onLookahead != nil {
			log.Debug("look-ahead window reached", "clip", cur.handle.ID, "position", pos)
			s.onLookahead()
		}
		if startFade {
			s.beginCrossfade(ctx)
			continue
		}
		if ended {
			log.Warn("clip ended before next was ready, looping", "clip", cur.handle.ID)
		}
	}
}

// beginCrossfade promotes pending to current over CrossfadeDuration with
// monotonic inverse smoothstep ramps. Both volumes change simultaneously
// and always sum to the full output level.
func (s *Scheduler) beginCrossfade(ctx context.Context) {
	s.mu.Lock()
	if (s.state != Playing && s.state != Pregenerating) || s.pending == nil || s.current == nil {
		s.mu.Unlock()
		return
	}
	out, in := s.current, s.pending
	s.state = Crossfading
	s.mu.Unlock()

	in.player.SetVolume(0)
	in.player.Play()
	log.Info("crossfade started", "from", out.handle.ID, "to", in.handle.ID, "over", s.cfg.CrossfadeDuration)

	go s.ramp(ctx, out, in)
}

func (s *Scheduler) ramp(ctx context.Context, out, in *clip) {
	steps := s.cfg.RampSteps
	stepDur := s.cfg.CrossfadeDuration / time.Duration(steps)
	ticker := time.NewTicker(stepDur)
	defer ticker.Stop()

	for i := 1; i <= steps; i++ {
		select {
		case <-ctx.Done():
			// Stop() owns cleanup of both clips.
			return
		case <-ticker.C:
		}
		gain := audio.Smoothstep(float64(i) / float64(steps))
		out.player.SetVolume(1 - gain)
		in.player.SetVolume(gain)
	}

	out.player.Stop()

	s.mu.Lock()
	if s.state != Crossfading {
		s.mu.Unlock()
		return
	}
	s.current = in
	s.pending = nil
	s.state = Playing
	s.lookaheadFired = false
	s.mu.Unlock()

	s.store.Release(out.handle)
	log.Info("crossfade complete", "clip", in.handle.ID)
}
