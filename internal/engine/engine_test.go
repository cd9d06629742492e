package engine

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moodloop/moodloop/internal/backend"
	"github.com/moodloop/moodloop/internal/clipstore"
	"github.com/moodloop/moodloop/internal/scheduler"
)

// stubBackend returns stored clips on demand; Generate can be blocked to
// hold a generation in flight. blockOnce limits the block to the next call;
// ignoreCtx lets a blocked call outlive its session's cancellation and
// still produce a clip, to exercise the stale-result path.
type stubBackend struct {
	store *clipstore.Store

	mu        sync.Mutex
	calls     int
	requests  []backend.Request
	failWith  error
	block     chan struct{}
	blockOnce bool
	ignoreCtx bool
}

func (b *stubBackend) Generate(ctx context.Context, req backend.Request) (clipstore.Handle, error) {
	b.mu.Lock()
	b.calls++
	b.requests = append(b.requests, req)
	block := b.block
	if b.blockOnce {
		b.block = nil
	}
	ignoreCtx := b.ignoreCtx
	failWith := b.failWith
	b.mu.Unlock()

	if block != nil {
		if ignoreCtx {
			<-block
		} else {
			select {
			case <-block:
			case <-ctx.Done():
				return clipstore.Handle{}, ctx.Err()
			}
		}
	}
	if !ignoreCtx && ctx.Err() != nil {
		return clipstore.Handle{}, ctx.Err()
	}
	if failWith != nil {
		return clipstore.Handle{}, failWith
	}
	return b.store.Save([]byte("clip-bytes"), req.Format)
}

func (b *stubBackend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

// fakePlayer mirrors the scheduler test fake: position moves by hand.
type fakePlayer struct {
	mu      sync.Mutex
	dur     time.Duration
	pos     time.Duration
	playing bool
}

func (f *fakePlayer) Load(string) (time.Duration, error) { return f.dur, nil }

func (f *fakePlayer) Play() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pos >= f.dur {
		f.pos = 0
	}
	f.playing = true
}

func (f *fakePlayer) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playing = false
}

func (f *fakePlayer) SetVolume(float64) {}

func (f *fakePlayer) Position() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pos
}

func (f *fakePlayer) setPos(d time.Duration) {
	f.mu.Lock()
	f.pos = d
	f.mu.Unlock()
}

func playerFactory() scheduler.Factory {
	return func() scheduler.Player {
		return &fakePlayer{dur: time.Second}
	}
}

func testSchedCfg() scheduler.Config {
	return scheduler.Config{
		LookaheadWindow:   400 * time.Millisecond,
		CrossfadeDuration: 100 * time.Millisecond,
		WatchTick:         5 * time.Millisecond,
		RampSteps:         10,
	}
}

func newTestEngine(t *testing.T) (*Engine, *stubBackend, *clipstore.Store) {
	t.Helper()
	store, err := clipstore.New(t.TempDir())
	require.NoError(t, err)
	b := &stubBackend{store: store}
	e := New(Config{DefaultGenre: "lofi hip hop", Format: "flac"}, b, store, playerFactory(), testSchedCfg())
	t.Cleanup(e.Stop)
	return e, b, store
}

func TestStartWithDirectStyleBackend(t *testing.T) {
	e, b, _ := newTestEngine(t)

	require.NoError(t, e.Start("lo-fi house", ""))

	st := e.Status()
	assert.True(t, st.Running)
	assert.Equal(t, "lo-fi house", st.Genre)
	assert.Equal(t, "playing", st.State)
	assert.NotEmpty(t, st.ClipID)
	assert.False(t, st.Pending, "no pending next right after start")
	assert.False(t, st.InFlight)
	assert.Equal(t, 1, b.callCount())
}

func TestStartWhileRunning(t *testing.T) {
	e, _, _ := newTestEngine(t)

	require.NoError(t, e.Start("jazz", ""))
	err := e.Start("rock", "")
	require.ErrorIs(t, err, ErrAlreadyRunning)

	// The original session is untouched.
	assert.Equal(t, "jazz", e.Status().Genre)
}

func TestStartFailureLeavesNoSession(t *testing.T) {
	e, b, _ := newTestEngine(t)
	b.failWith = backend.ErrRateLimited

	err := e.Start("jazz", "")
	require.ErrorIs(t, err, backend.ErrRateLimited, "backend error kind surfaced unchanged")
	assert.False(t, e.Running())

	// A later start is free to try again.
	b.failWith = nil
	require.NoError(t, e.Start("jazz", ""))
}

func TestGenerateMoreWithoutSession(t *testing.T) {
	e, _, _ := newTestEngine(t)
	require.ErrorIs(t, e.GenerateMore(""), ErrNoActiveSession)
}

func TestGenerateMoreWhileInFlight(t *testing.T) {
	e, b, _ := newTestEngine(t)
	require.NoError(t, e.Start("jazz", ""))

	b.mu.Lock()
	b.block = make(chan struct{})
	b.mu.Unlock()

	require.NoError(t, e.GenerateMore(""))
	require.ErrorIs(t, e.GenerateMore(""), ErrGenerationInFlight, "no queuing of generation requests")

	b.mu.Lock()
	close(b.block)
	b.block = nil
	b.mu.Unlock()

	require.Eventually(t, func() bool {
		return e.Status().Pending
	}, 2*time.Second, 10*time.Millisecond, "next clip staged once generation completes")
	assert.False(t, e.Status().InFlight)
}

func TestGenerateMoreFailureKeepsPlaying(t *testing.T) {
	e, b, _ := newTestEngine(t)
	require.NoError(t, e.Start("jazz", ""))

	b.mu.Lock()
	b.failWith = backend.ErrUpstream
	b.mu.Unlock()

	require.NoError(t, e.GenerateMore(""))

	require.Eventually(t, func() bool {
		return !e.Status().InFlight
	}, 2*time.Second, 10*time.Millisecond, "in-flight flag cleared after failure")

	st := e.Status()
	assert.True(t, st.Running, "playback uninterrupted by a failed look-ahead")
	assert.Equal(t, "playing", st.State)
	assert.False(t, st.Pending)

	// The guard is re-armed: a new request is accepted.
	b.mu.Lock()
	b.failWith = nil
	b.mu.Unlock()
	require.NoError(t, e.GenerateMore(""))
}

func TestGenerateMoreGenreOverride(t *testing.T) {
	e, _, _ := newTestEngine(t)
	require.NoError(t, e.Start("jazz", ""))

	require.NoError(t, e.GenerateMore("bossa nova"))
	require.Eventually(t, func() bool {
		return e.Status().Pending
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "bossa nova", e.Status().Genre)
}

func TestStopNeverStartedIsOK(t *testing.T) {
	e, _, _ := newTestEngine(t)
	e.Stop()
	e.Stop()
	assert.False(t, e.Running())
}

func TestStopDiscardsInFlightResult(t *testing.T) {
	e, b, store := newTestEngine(t)
	require.NoError(t, e.Start("jazz", ""))

	b.mu.Lock()
	b.block = make(chan struct{})
	b.mu.Unlock()
	require.NoError(t, e.GenerateMore(""))

	e.Stop()
	assert.False(t, e.Running())

	// Let the blocked generation finish after the session is gone.
	b.mu.Lock()
	close(b.block)
	b.block = nil
	b.mu.Unlock()

	require.Eventually(t, func() bool {
		entries, err := os.ReadDir(store.Dir())
		require.NoError(t, err)
		return len(entries) == 0
	}, 2*time.Second, 10*time.Millisecond, "stale result released, nothing stored or played")
}

func TestStaleResultFromSupersededSessionDiscarded(t *testing.T) {
	e, b, store := newTestEngine(t)
	require.NoError(t, e.Start("jazz", ""))

	// The next generation hangs past its session's cancellation and still
	// delivers a clip, simulating a slow upstream answering after stop.
	release := make(chan struct{})
	b.mu.Lock()
	b.block = release
	b.blockOnce = true
	b.ignoreCtx = true
	b.mu.Unlock()
	require.NoError(t, e.GenerateMore(""))

	e.Stop()
	require.NoError(t, e.Start("rock", ""))
	firstClip := e.Status().ClipID
	require.NotEmpty(t, firstClip)

	close(release)

	// The old session's clip must never surface in the new one; its file is
	// released, leaving only the new session's current clip on disk.
	require.Eventually(t, func() bool {
		entries, err := os.ReadDir(store.Dir())
		require.NoError(t, err)
		return len(entries) == 1
	}, 2*time.Second, 10*time.Millisecond, "stale clip released")

	st := e.Status()
	assert.Equal(t, firstClip, st.ClipID)
	assert.False(t, st.Pending, "superseded result not staged")
}

func TestLookaheadTriggersGeneration(t *testing.T) {
	store, err := clipstore.New(t.TempDir())
	require.NoError(t, err)
	b := &stubBackend{store: store}

	var players []*fakePlayer
	var pmu sync.Mutex
	factory := func() scheduler.Player {
		p := &fakePlayer{dur: time.Second}
		pmu.Lock()
		players = append(players, p)
		pmu.Unlock()
		return p
	}

	e := New(Config{DefaultGenre: "ambient"}, b, store, factory, testSchedCfg())
	defer e.Stop()

	require.NoError(t, e.Start("", ""))
	require.Equal(t, 1, b.callCount())

	// Move playback into the look-ahead window; the scheduler asks the
	// engine for more music exactly once.
	pmu.Lock()
	first := players[0]
	pmu.Unlock()
	first.setPos(700 * time.Millisecond)

	require.Eventually(t, func() bool {
		return b.callCount() == 2 && e.Status().Pending
	}, 2*time.Second, 10*time.Millisecond, "look-ahead generated and staged the next clip")
}

func TestCaptionFuncOverridesPrompt(t *testing.T) {
	e, b, _ := newTestEngine(t)

	var captionCalls int32
	e.SetCaptionFunc(func(ctx context.Context, genre string) string {
		atomic.AddInt32(&captionCalls, 1)
		return "bespoke caption for " + genre
	})

	require.NoError(t, e.Start("jazz", ""))
	assert.Equal(t, int32(1), atomic.LoadInt32(&captionCalls))

	b.mu.Lock()
	prompt := b.requests[0].Prompt
	b.mu.Unlock()
	assert.Equal(t, "bespoke caption for jazz", prompt)
}

func TestCaptionFuncFallsBackWhenEmpty(t *testing.T) {
	e, b, _ := newTestEngine(t)
	e.SetCaptionFunc(func(context.Context, string) string { return "" })

	require.NoError(t, e.Start("jazz", "reviewing pull requests"))

	b.mu.Lock()
	prompt := b.requests[0].Prompt
	b.mu.Unlock()
	assert.Contains(t, prompt, "jazz", "static caption fallback")
	assert.Contains(t, prompt, "reviewing pull requests")
}

func TestStartErrorKindsPassThrough(t *testing.T) {
	kinds := []error{
		backend.ErrAuth,
		backend.ErrRateLimited,
		backend.ErrUpstream,
		backend.ErrTimeout,
		backend.ErrInvalidResponse,
	}
	for _, kind := range kinds {
		e, b, _ := newTestEngine(t)
		b.failWith = errors.Join(kind)
		err := e.Start("jazz", "")
		require.ErrorIs(t, err, kind)
		assert.False(t, e.Running())
	}
}
