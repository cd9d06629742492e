package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompleteSendsCaptionRequest(t *testing.T) {
	var got completionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]any{"response": "  warm rhodes over dusty drums  "})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "qwen3:4b")
	out, err := c.complete(context.Background(), "system text", "Genre: lofi hip hop")
	require.NoError(t, err)
	assert.Equal(t, "warm rhodes over dusty drums", out)

	assert.Equal(t, "qwen3:4b", got.Model)
	assert.Equal(t, "system text", got.System)
	assert.Equal(t, "Genre: lofi hip hop", got.Prompt)
	assert.False(t, got.Stream)
	assert.Contains(t, got.Options, "num_predict")
}

func TestCompleteNon200IsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "missing")
	_, err := c.complete(context.Background(), "", "prompt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestWaitForReadyImmediateAndCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "qwen3:4b")
	assert.True(t, c.WaitForReady(context.Background()))

	down := NewClient("http://127.0.0.1:1", "qwen3:4b")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, down.WaitForReady(ctx))
}

func TestGenerateCaptionFallsBackOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	g := NewCaptionGenerator(NewClient(srv.URL, "qwen3:4b"))
	assert.Empty(t, g.GenerateCaption(context.Background(), "lofi hip hop"))
}

func TestGenerateCaptionRemembersPreviousPerGenre(t *testing.T) {
	var prompts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req completionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		prompts = append(prompts, req.Prompt)
		json.NewEncoder(w).Encode(map[string]any{"response": "fingerpicked nylon guitar with spring reverb at 72 BPM"})
	}))
	defer srv.Close()

	g := NewCaptionGenerator(NewClient(srv.URL, "qwen3:4b"))
	first := g.GenerateCaption(context.Background(), "lofi hip hop")
	require.NotEmpty(t, first)
	second := g.GenerateCaption(context.Background(), "lofi hip hop")
	require.NotEmpty(t, second)

	require.Len(t, prompts, 2)
	assert.NotContains(t, prompts[0], "Previous caption")
	assert.Contains(t, prompts[1], first)
}
