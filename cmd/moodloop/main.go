package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"github.com/moodloop/moodloop/internal/backend"
	"github.com/moodloop/moodloop/internal/clipstore"
	"github.com/moodloop/moodloop/internal/config"
	"github.com/moodloop/moodloop/internal/engine"
	"github.com/moodloop/moodloop/internal/ollama"
	"github.com/moodloop/moodloop/internal/player"
	"github.com/moodloop/moodloop/internal/prompt"
	"github.com/moodloop/moodloop/internal/scheduler"
	"github.com/moodloop/moodloop/internal/stream"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()
	cfg := config.Load()

	log.SetTimeFormat(time.Kitchen)
	if os.Getenv("MOODLOOP_DEBUG") != "" {
		log.SetLevel(log.DebugLevel)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := clipstore.New(cfg.ClipDir)
	if err != nil {
		log.Fatal("clip store init failed", "dir", cfg.ClipDir, "err", err)
	}

	var gen backend.Backend
	switch cfg.BackendMode {
	case "direct":
		gen = backend.NewDirectBackend(cfg.BackendURL, cfg.BackendKey, store)
	case "task":
		gen = backend.NewTaskBackend(cfg.BackendURL, cfg.BackendKey, store, backend.Poller{
			Interval:    cfg.PollInterval,
			MaxWait:     cfg.PollMaxWait,
			TickRetries: cfg.PollTickRetries,
		})
	default:
		log.Fatal("unknown backend mode", "mode", cfg.BackendMode)
	}

	// Mixer: blends the active players into one 48kHz stereo frame stream.
	mixer := player.NewMixer()
	go mixer.Run(ctx)

	// Broadcaster: fan-out PCM frames to all listeners.
	broadcaster := stream.NewBroadcaster()
	go broadcaster.Run(ctx, mixer.Frames())

	eng := engine.New(
		engine.Config{
			DefaultGenre:   cfg.DefaultGenre,
			ClipDuration:   cfg.ClipDuration,
			Format:         cfg.AudioFormat,
			Instrumental:   cfg.Instrumental,
			DriftGenres:    cfg.DriftGenres,
			CaptionTimeout: cfg.CaptionTimeout,
		},
		gen,
		store,
		func() scheduler.Player { return mixer.NewPlayer() },
		scheduler.Config{
			LookaheadWindow:   cfg.LookaheadWindow,
			CrossfadeDuration: cfg.CrossfadeDuration,
		},
	)

	// Ollama LLM (optional, enhances generation captions).
	if cfg.OllamaURL != "" {
		ollamaClient := ollama.NewClient(cfg.OllamaURL, cfg.OllamaModel)

		readyCtx, readyCancel := context.WithTimeout(ctx, 30*time.Second)
		if ollamaClient.WaitForReady(readyCtx) {
			captionGen := ollama.NewCaptionGenerator(ollamaClient)
			eng.SetCaptionFunc(captionGen.GenerateCaption)
			log.Info("ollama connected, llm captions enabled", "model", cfg.OllamaModel)
		} else {
			log.Warn("ollama not available, using static captions")
		}
		readyCancel()
	} else {
		log.Info("ollama not configured, using static captions")
	}

	webrtcHandler := stream.NewWebRTCHandler(broadcaster)

	mux := http.NewServeMux()

	// Audio streams
	mux.Handle("/stream", stream.NewHTTPHandler(broadcaster))
	mux.Handle("/offer", webrtcHandler)

	// API endpoints
	mux.HandleFunc("/api/start", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Genre    string `json:"genre"`
			Activity string `json:"activity"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		if req.Genre != "" && !prompt.IsValidGenre(req.Genre) {
			http.Error(w, "unknown genre", http.StatusBadRequest)
			return
		}
		if err := eng.Start(req.Genre, req.Activity); err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, map[string]any{"ok": true, "status": eng.Status()})
	})

	mux.HandleFunc("/api/more", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Genre string `json:"genre"`
		}
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid request", http.StatusBadRequest)
				return
			}
		}
		if req.Genre != "" && !prompt.IsValidGenre(req.Genre) {
			http.Error(w, "unknown genre", http.StatusBadRequest)
			return
		}
		if err := eng.GenerateMore(req.Genre); err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, map[string]any{"ok": true})
	})

	mux.HandleFunc("/api/stop", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		eng.Stop()
		writeJSON(w, map[string]any{"ok": true})
	})

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		st := eng.Status()
		writeJSON(w, map[string]any{
			"running":              st.Running,
			"session":              st.Session,
			"genre":                st.Genre,
			"state":                st.State,
			"clip_id":              st.ClipID,
			"clip_name":            st.ClipName,
			"position":             st.Position.Seconds(),
			"duration":             st.Duration.Seconds(),
			"pending_next":         st.Pending,
			"generation_in_flight": st.InFlight,
			"uptime":               st.Uptime.Seconds(),
			"http_listeners":       broadcaster.ListenerCount(),
			"dropped_frames":       broadcaster.DroppedFrames(),
			"webrtc_listeners":     webrtcHandler.PeerCount(),
			"genres":               prompt.GenreNames(),
		})
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		eng.Stop()
		server.Close()
	}()

	log.Info("moodloop live", "addr", addr, "backend", cfg.BackendMode)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal("http server error", "err", err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	json.NewEncoder(w).Encode(v)
}

// writeEngineError maps engine and backend error kinds to HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrAlreadyRunning),
		errors.Is(err, engine.ErrGenerationInFlight):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrNoActiveSession):
		status = http.StatusBadRequest
	case errors.Is(err, backend.ErrAuth):
		status = http.StatusUnauthorized
	case errors.Is(err, backend.ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, backend.ErrTimeout):
		status = http.StatusGatewayTimeout
	case errors.Is(err, backend.ErrUpstream), errors.Is(err, backend.ErrInvalidResponse):
		status = http.StatusBadGateway
	}
	http.Error(w, err.Error(), status)
}
