package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
)

// TaskState tracks a polled generation task through its lifecycle.
type TaskState int

const (
	TaskSubmitted TaskState = iota
	TaskPolling
	TaskReady
	TaskFailed
	TaskTimedOut
)

func (s TaskState) String() string {
	switch s {
	case TaskSubmitted:
		return "submitted"
	case TaskPolling:
		return "polling"
	case TaskReady:
		return "ready"
	case TaskFailed:
		return "failed"
	case TaskTimedOut:
		return "timed-out"
	default:
		return "unknown"
	}
}

// Task is the poller-side record of one submitted generation job. Created
// on submit, mutated only by the poll loop, discarded once its terminal
// state is consumed.
type Task struct {
	ID        string
	State     TaskState
	CreatedAt time.Time
	LastPoll  time.Time
	Attempts  int
}

// NewTask records a freshly submitted upstream task.
func NewTask(id string) *Task {
	return &Task{ID: id, State: TaskSubmitted, CreatedAt: time.Now()}
}

// Status is one poll answer from the upstream service.
type Status struct {
	Done       bool
	Failed     bool
	Result     string // backend-specific payload (file path or URL) when Done
	FailureMsg string // upstream detail when Failed
}

// StatusFunc fetches the current upstream status of a task. It must issue
// exactly one request per call and honor ctx cancellation.
type StatusFunc func(ctx context.Context) (Status, error)

// Poller drives a bounded polling loop over a StatusFunc. Each tick issues
// one status fetch; transient fetch errors are retried at most TickRetries
// extra times within the same tick. MaxWait is a hard wall-clock ceiling
// independent of per-tick retries.
type Poller struct {
	Interval    time.Duration
	MaxWait     time.Duration
	TickRetries int
}

// faultLimit is how many consecutive ticks may fail with a non-transient
// error (bad status payload, 5xx, 429) before the task fails with that
// error instead of riding the wall clock into a timeout.
const faultLimit = 3

// Run polls until the task reaches a terminal state, the wall clock
// expires, or ctx is cancelled. On TaskReady it returns the upstream result
// payload. The loop sleeps between ticks and never has more than one status
// fetch in flight.
func (p Poller) Run(ctx context.Context, task *Task, fetch StatusFunc) (string, error) {
	deadline := time.NewTimer(p.MaxWait)
	defer deadline.Stop()
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	faults := 0
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-deadline.C:
			task.State = TaskTimedOut
			return "", fmt.Errorf("task %s: no result after %d polls in %v: %w",
				task.ID, task.Attempts, p.MaxWait, ErrTimeout)
		case <-ticker.C:
		}

		task.State = TaskPolling
		status, err := p.fetchTick(ctx, task, fetch)
		if err != nil {
			if errors.Is(err, ErrAuth) {
				// Fatal: terminate immediately, never retried.
				task.State = TaskFailed
				return "", err
			}
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			if !isTransient(err) {
				// The upstream answered but the answer is wrong in the same
				// way tick after tick. Fail with the real error kind rather
				// than letting it masquerade as a timeout.
				faults++
				if faults >= faultLimit {
					task.State = TaskFailed
					return "", fmt.Errorf("task %s: %d consecutive poll failures: %w",
						task.ID, faults, err)
				}
				log.Warn("poll tick failed", "task", task.ID, "faults", faults, "err", err)
				continue
			}
			// Transient trouble this tick; the wall clock decides when to
			// give up.
			log.Debug("poll tick failed", "task", task.ID, "attempts", task.Attempts, "err", err)
			continue
		}
		faults = 0

		switch {
		case status.Failed:
			task.State = TaskFailed
			return "", fmt.Errorf("task %s after %d polls: %s: %w",
				task.ID, task.Attempts, status.FailureMsg, ErrUpstream)
		case status.Done:
			task.State = TaskReady
			return status.Result, nil
		}
	}
}

// fetchTick performs the single fetch for a tick, retrying transient errors
// up to TickRetries additional times. The tick never restarts the task from
// scratch; it only re-asks for status.
func (p Poller) fetchTick(ctx context.Context, task *Task, fetch StatusFunc) (Status, error) {
	var lastErr error
	for attempt := 0; attempt <= p.TickRetries; attempt++ {
		task.LastPoll = time.Now()
		task.Attempts++

		status, err := fetch(ctx)
		if err == nil {
			return status, nil
		}
		lastErr = err
		if !isTransient(err) {
			return Status{}, err
		}
		if ctx.Err() != nil {
			return Status{}, ctx.Err()
		}
	}
	return Status{}, lastErr
}
