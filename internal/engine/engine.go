// Package engine implements the session state machine: start a session,
// request more music, stop. One engine drives at most one live session; all
// generation runs against the session's context so Stop aborts everything
// still in flight.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/moodloop/moodloop/internal/backend"
	"github.com/moodloop/moodloop/internal/clipstore"
	"github.com/moodloop/moodloop/internal/prompt"
	"github.com/moodloop/moodloop/internal/scheduler"
)

// Concurrency-guard error kinds surfaced to callers.
var (
	ErrAlreadyRunning     = errors.New("session already running")
	ErrNoActiveSession    = errors.New("no active session")
	ErrGenerationInFlight = errors.New("generation already in flight")
)

// CaptionFunc optionally rewrites the prompt for a genre (LLM-backed).
// Returns empty string on failure; the static caption is used instead.
type CaptionFunc func(ctx context.Context, genre string) string

// Config holds session-level generation parameters.
type Config struct {
	DefaultGenre string
	ClipDuration int    // seconds per generated clip
	Format       string // flac, mp3, wav
	Instrumental bool
	// DriftGenres walks one mood-graph edge per look-ahead generation when
	// the caller gives no genre override.
	DriftGenres bool
	// CaptionTimeout bounds the optional LLM caption call so a slow model
	// never delays generation.
	CaptionTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.DefaultGenre == "" {
		c.DefaultGenre = "lofi hip hop"
	}
	if c.ClipDuration <= 0 {
		c.ClipDuration = 90
	}
	if c.Format == "" {
		c.Format = "flac"
	}
	if c.CaptionTimeout <= 0 {
		c.CaptionTimeout = 15 * time.Second
	}
	return c
}

// session is the single live listening session.
type session struct {
	id        string
	genre     string
	activity  string
	startedAt time.Time
	sched     *scheduler.Scheduler
	ctx       context.Context
	cancel    context.CancelFunc
	inFlight  bool
}

// Engine exposes Start / GenerateMore / Stop over one backend and one
// scheduler per session.
type Engine struct {
	cfg       Config
	backend   backend.Backend
	store     *clipstore.Store
	prompts   prompt.Builder
	factory   scheduler.Factory
	schedCfg  scheduler.Config
	captionFn CaptionFunc

	mu      sync.Mutex
	session *session
}

// New creates an engine. The backend choice (direct vs task-polling) is
// made by the caller at construction, never inspected at runtime.
func New(cfg Config, b backend.Backend, store *clipstore.Store, factory scheduler.Factory, schedCfg scheduler.Config) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		cfg:      cfg,
		backend:  b,
		store:    store,
		prompts:  prompt.Builder{DefaultGenre: cfg.DefaultGenre},
		factory:  factory,
		schedCfg: schedCfg,
	}
}

// SetCaptionFunc installs an optional LLM caption generator. Pass nil to
// use static captions only.
func (e *Engine) SetCaptionFunc(fn CaptionFunc) {
	e.mu.Lock()
	e.captionFn = fn
	e.mu.Unlock()
}

// Running reports whether a session is live.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session != nil
}

// Status is a snapshot of the engine for callers and the control surface.
type Status struct {
	Running  bool          `json:"running"`
	Session  string        `json:"session,omitempty"`
	Genre    string        `json:"genre,omitempty"`
	State    string        `json:"state,omitempty"`
	ClipID   string        `json:"clip_id,omitempty"`
	ClipName string        `json:"clip_name,omitempty"`
	Position time.Duration `json:"-"`
	Duration time.Duration `json:"-"`
	Pending  bool          `json:"pending_next"`
	InFlight bool          `json:"generation_in_flight"`
	Uptime   time.Duration `json:"-"`
}

// Status returns the current engine snapshot.
func (e *Engine) Status() Status {
	e.mu.Lock()
	sess := e.session
	var genre string
	var inFlight bool
	if sess != nil {
		genre = sess.genre
		inFlight = sess.inFlight
	}
	e.mu.Unlock()

	if sess == nil {
		return Status{}
	}
	h, pos, dur := sess.sched.Current()
	return Status{
		Running:  true,
		Session:  sess.id,
		Genre:    genre,
		State:    sess.sched.State().String(),
		ClipID:   h.ID,
		ClipName: prompt.ClipName(genre, h.ID),
		Position: pos,
		Duration: dur,
		Pending:  sess.sched.HasPending(),
		InFlight: inFlight,
		Uptime:   time.Since(sess.startedAt),
	}
}

// Start creates the session, generates the first clip synchronously, and
// begins playback. Any failure tears the session down and surfaces the
// backend's error kind unchanged.
func (e *Engine) Start(genre, activity string) error {
	if genre == "" {
		genre = e.cfg.DefaultGenre
	}

	e.mu.Lock()
	if e.session != nil {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(context.Background())
	sess := &session{
		id:        uuid.NewString(),
		genre:     genre,
		activity:  activity,
		startedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}
	sess.sched = scheduler.New(e.schedCfg, e.factory, e.store, func() {
		e.lookahead(sess)
	})
	e.session = sess
	e.mu.Unlock()

	log.Info("session starting", "session", sess.id, "genre", genre)

	h, err := e.backend.Generate(ctx, e.buildRequest(ctx, sess, genre))
	if err != nil {
		e.teardown(sess)
		log.Error("session start failed", "genre", genre, "err", err)
		return err
	}
	if err := sess.sched.Play(h); err != nil {
		e.store.Release(h)
		e.teardown(sess)
		return err
	}
	return nil
}

// GenerateMore requests the next clip. genreOverride may be empty to keep
// (or drift from) the session genre. The call returns immediately; the
// generation runs in the background and hands its clip to the scheduler.
func (e *Engine) GenerateMore(genreOverride string) error {
	e.mu.Lock()
	sess := e.session
	if sess == nil {
		e.mu.Unlock()
		return ErrNoActiveSession
	}
	if sess.inFlight {
		e.mu.Unlock()
		return ErrGenerationInFlight
	}
	sess.inFlight = true

	genre := genreOverride
	switch {
	case genre != "":
		sess.genre = genre
	case e.cfg.DriftGenres:
		genre = prompt.NextGenre(sess.genre)
		sess.genre = genre
	default:
		genre = sess.genre
	}
	e.mu.Unlock()

	go e.generateNext(sess, genre)
	return nil
}

// Stop halts playback, cancels in-flight generation, and clears the
// session. Idempotent, safe when nothing is running.
func (e *Engine) Stop() {
	e.mu.Lock()
	sess := e.session
	e.session = nil
	e.mu.Unlock()

	if sess == nil {
		return
	}
	sess.cancel()
	sess.sched.Stop()
	log.Info("session stopped", "session", sess.id, "uptime", time.Since(sess.startedAt))
}

// lookahead is the scheduler's pre-generation trigger. A generation already
// in flight makes this a no-op.
func (e *Engine) lookahead(sess *session) {
	if err := e.GenerateMore(""); err != nil {
		if !errors.Is(err, ErrGenerationInFlight) && !errors.Is(err, ErrNoActiveSession) {
			log.Warn("look-ahead generation not started", "err", err)
		}
	}
}

// generateNext runs one background generation for sess and delivers the
// clip to the scheduler. Results that outlive their session are released,
// never stored as current, never played.
func (e *Engine) generateNext(sess *session, genre string) {
	defer func() {
		e.mu.Lock()
		sess.inFlight = false
		e.mu.Unlock()
	}()

	log.Info("generating next clip", "session", sess.id, "genre", genre)
	h, err := e.backend.Generate(sess.ctx, e.buildRequest(sess.ctx, sess, genre))
	if err != nil {
		// Playback is never interrupted by a failed look-ahead.
		if sess.ctx.Err() == nil {
			log.Error("next clip generation failed", "genre", genre, "err", err)
		}
		return
	}

	e.mu.Lock()
	superseded := e.session != sess
	e.mu.Unlock()
	if superseded || sess.ctx.Err() != nil {
		log.Debug("discarding clip for superseded generation", "clip", h.ID)
		e.store.Release(h)
		return
	}

	if err := sess.sched.OnNextReady(h); err != nil {
		log.Warn("next clip not accepted", "clip", h.ID, "err", err)
	}
}

// buildRequest assembles the backend request, preferring an LLM caption
// when one is configured and answers in time.
func (e *Engine) buildRequest(ctx context.Context, sess *session, genre string) backend.Request {
	e.mu.Lock()
	captionFn := e.captionFn
	activity := sess.activity
	e.mu.Unlock()

	var text string
	if captionFn != nil {
		llmCtx, cancel := context.WithTimeout(ctx, e.cfg.CaptionTimeout)
		text = captionFn(llmCtx, genre)
		cancel()
	}
	if text == "" {
		text = e.prompts.Build(activity, genre)
	}

	return backend.Request{
		Prompt:       text,
		Genre:        genre,
		Instrumental: e.cfg.Instrumental,
		Duration:     e.cfg.ClipDuration,
		Format:       e.cfg.Format,
	}
}

// teardown removes a failed or stopping session if it is still installed.
func (e *Engine) teardown(sess *session) {
	e.mu.Lock()
	if e.session == sess {
		e.session = nil
	}
	e.mu.Unlock()
	sess.cancel()
	sess.sched.Stop()
}
