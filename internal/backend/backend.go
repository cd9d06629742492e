package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/moodloop/moodloop/internal/clipstore"
)

// Error kinds surfaced by every backend. Callers classify with errors.Is;
// the wrapped chain keeps the upstream detail.
var (
	// ErrAuth is fatal and never retried.
	ErrAuth = errors.New("authentication rejected")
	// ErrRateLimited is retryable by the caller, never internally.
	ErrRateLimited = errors.New("rate limited")
	// ErrUpstream is a generation failure reported by the service.
	ErrUpstream = errors.New("upstream generation failure")
	// ErrTimeout means the poll wall clock was exhausted before a result.
	ErrTimeout = errors.New("generation timed out")
	// ErrInvalidResponse means the upstream payload did not match the
	// expected shape. Non-retryable.
	ErrInvalidResponse = errors.New("malformed upstream response")
)

// Request carries everything a backend needs to produce one clip.
// Value type, no identity.
type Request struct {
	Prompt       string
	Genre        string
	Instrumental bool
	Duration     int    // seconds
	Format       string // flac, mp3, wav
}

// Backend produces one stored clip per call. Implementations differ in how
// they talk to the generation service (one synchronous call vs
// submit/poll/fetch) but share this contract.
type Backend interface {
	Generate(ctx context.Context, req Request) (clipstore.Handle, error)
}

// classifyStatus maps an HTTP response code onto an error kind.
func classifyStatus(code int) error {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrAuth
	case code == http.StatusTooManyRequests:
		return ErrRateLimited
	case code >= 500:
		return ErrUpstream
	default:
		return fmt.Errorf("%w: unexpected status %d", ErrUpstream, code)
	}
}

// isTransient reports whether an error looks like a recoverable network
// blip rather than a definitive upstream answer.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	// http.Client wraps dial/refused errors in *url.Error which implements
	// net.Error, so anything left is treated as non-transient.
	return false
}
