package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	// Generation backend connection
	BackendURL  string
	BackendKey  string
	BackendMode string // "direct" or "task"

	// Task polling (BackendMode "task")
	PollInterval    time.Duration
	PollMaxWait     time.Duration
	PollTickRetries int

	// Server
	Port int

	// Clip scratch storage
	ClipDir string

	// Session behavior
	DefaultGenre      string
	ClipDuration      int // seconds per generated clip
	AudioFormat       string
	Instrumental      bool
	DriftGenres       bool
	LookaheadWindow   time.Duration
	CrossfadeDuration time.Duration

	// Optional LLM caption enhancer
	OllamaURL      string
	OllamaModel    string
	CaptionTimeout time.Duration
}

// Load reads configuration from environment variables with sane defaults.
func Load() Config {
	return Config{
		BackendURL:  envStr("MOODLOOP_BACKEND_URL", "http://localhost:8000"),
		BackendKey:  envStr("MOODLOOP_BACKEND_KEY", ""),
		BackendMode: envStr("MOODLOOP_BACKEND_MODE", "task"),

		PollInterval:    envDur("MOODLOOP_POLL_INTERVAL", 2*time.Second),
		PollMaxWait:     envDur("MOODLOOP_POLL_MAX_WAIT", 5*time.Minute),
		PollTickRetries: envInt("MOODLOOP_POLL_TICK_RETRIES", 2),

		Port: envInt("MOODLOOP_PORT", 8080),

		ClipDir: envStr("MOODLOOP_CLIP_DIR", os.TempDir()+"/moodloop-clips"),

		DefaultGenre:      envStr("MOODLOOP_GENRE", "lofi hip hop"),
		ClipDuration:      envInt("MOODLOOP_CLIP_DURATION", 90),
		AudioFormat:       envStr("MOODLOOP_AUDIO_FORMAT", "flac"),
		Instrumental:      envBool("MOODLOOP_INSTRUMENTAL", true),
		DriftGenres:       envBool("MOODLOOP_DRIFT_GENRES", false),
		LookaheadWindow:   envDur("MOODLOOP_LOOKAHEAD_WINDOW", 30*time.Second),
		CrossfadeDuration: envDur("MOODLOOP_CROSSFADE_DURATION", 8*time.Second),

		OllamaURL:      envStr("MOODLOOP_OLLAMA_URL", ""),
		OllamaModel:    envStr("MOODLOOP_OLLAMA_MODEL", "qwen3:8b"),
		CaptionTimeout: envDur("MOODLOOP_CAPTION_TIMEOUT", 15*time.Second),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// envDur accepts Go duration strings ("8s", "5m") or bare integer seconds.
func envDur(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return fallback
}
