package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/moodloop/moodloop/internal/clipstore"
)

// DirectBackend talks to a synchronous generation endpoint: one POST, one
// response carrying either the audio bytes or a download URL. At most one
// transient-network retry, no polling.
type DirectBackend struct {
	apiURL string
	apiKey string
	store  *clipstore.Store
	http   *http.Client
}

// NewDirectBackend creates a backend for a synchronous clip API.
func NewDirectBackend(apiURL, apiKey string, store *clipstore.Store) *DirectBackend {
	return &DirectBackend{
		apiURL: strings.TrimRight(apiURL, "/"),
		apiKey: apiKey,
		store:  store,
		http:   &http.Client{Timeout: 5 * time.Minute},
	}
}

type directRequest struct {
	Prompt       string `json:"prompt"`
	Duration     int    `json:"audio_duration"`
	Instrumental bool   `json:"instrumental"`
	AudioFormat  string `json:"audio_format"`
}

type directResponse struct {
	AudioURL string `json:"audio_url"`
	Error    string `json:"error"`
}

// Generate issues the synchronous call and stores the resulting bytes.
func (b *DirectBackend) Generate(ctx context.Context, req Request) (clipstore.Handle, error) {
	body, err := json.Marshal(directRequest{
		Prompt:       req.Prompt,
		Duration:     req.Duration,
		Instrumental: req.Instrumental,
		AudioFormat:  req.Format,
	})
	if err != nil {
		return clipstore.Handle{}, fmt.Errorf("marshal request: %w", err)
	}

	resp, err := b.post(ctx, b.apiURL+"/v1/generate", body)
	if err != nil {
		return clipstore.Handle{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return clipstore.Handle{}, classifyStatus(resp.StatusCode)
	}

	data, err := b.readClip(ctx, resp)
	if err != nil {
		return clipstore.Handle{}, err
	}

	return b.store.Save(data, req.Format)
}

// post sends the request, retrying once on a transient network error.
func (b *DirectBackend) post(ctx context.Context, url string, body []byte) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if b.apiKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)
		}

		resp, err := b.http.Do(httpReq)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !isTransient(err) || ctx.Err() != nil {
			break
		}
		log.Debug("direct call retry after network error", "err", err)
	}
	return nil, fmt.Errorf("%w: %v", ErrUpstream, lastErr)
}

// readClip extracts audio bytes from the response: raw audio body, or a
// JSON envelope pointing at a download URL.
func (b *DirectBackend) readClip(ctx context.Context, resp *http.Response) ([]byte, error) {
	ct := resp.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "audio/") || ct == "application/octet-stream" {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read audio body: %w: %v", ErrUpstream, err)
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("%w: empty audio body", ErrInvalidResponse)
		}
		return data, nil
	}

	var envelope directResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if envelope.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrUpstream, envelope.Error)
	}
	if envelope.AudioURL == "" {
		return nil, fmt.Errorf("%w: no audio bytes or URL", ErrInvalidResponse)
	}

	return download(ctx, b.http, b.resolveURL(envelope.AudioURL))
}

func (b *DirectBackend) resolveURL(ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	if !strings.HasPrefix(ref, "/") {
		ref = "/" + ref
	}
	return b.apiURL + ref
}

// download fetches clip bytes from a URL, honoring ctx so Stop can abort an
// in-flight transfer.
func download(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create download request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download clip: %w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read download: %w: %v", ErrUpstream, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty download", ErrInvalidResponse)
	}
	return data, nil
}
