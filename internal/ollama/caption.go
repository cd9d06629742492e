package ollama

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

// CaptionGenerator uses an LLM to write a fresh generation prompt per clip,
// so long sessions don't loop the same static caption.
type CaptionGenerator struct {
	client *Client

	mu          sync.Mutex
	lastCaption map[string]string // genre -> last caption used (avoid repeats)
}

// NewCaptionGenerator creates a caption generator backed by an Ollama client.
func NewCaptionGenerator(client *Client) *CaptionGenerator {
	return &CaptionGenerator{
		client:      client,
		lastCaption: make(map[string]string),
	}
}

const captionSystemPrompt = `You are a music production caption generator for an AI music model.

Your job: given a genre, output ONE caption of 20-40 words that describes an instrumental background track.

Caption rules:
- Describe the SOUND, not a story. Focus on: instruments, timbre, effects, tempo, mood, production style.
- Be SPECIFIC: "warm Rhodes piano with gentle chorus effect" not just "piano"
- Name real instruments, effects, and techniques: "fingerpicked nylon guitar", "sidechain compression", "tape saturation", "spring reverb", "808 sub bass"
- Include tempo guidance: use BPM numbers (e.g. "72 BPM") or tempo words ("slow waltz", "uptempo groove")
- Include mood/atmosphere: "late night", "sunrise", "melancholic", "focused", "meditative"
- Keep it unobtrusive: this is background music for working, not a lead single
- Each caption MUST be meaningfully different from any previous caption

NEVER include:
- Lyrics, vocals, singing, or voice references (these are instrumentals)
- Song titles, artist names, or album references
- Explanations, preambles, quotes, or formatting
- The word "instrumental" (it's implied)

Output format: ONLY the caption text. Nothing else. No quotes. No bullet points. No "Here's a caption:". Just the raw caption.

/no_think`

// GenerateCaption creates a unique caption for a genre. Returns empty
// string on failure; the caller falls back to the static caption.
func (g *CaptionGenerator) GenerateCaption(ctx context.Context, genre string) string {
	g.mu.Lock()
	lastCaption := g.lastCaption[genre]
	g.mu.Unlock()

	prompt := fmt.Sprintf("Genre: %s", genre)
	if lastCaption != "" {
		prompt += fmt.Sprintf("\nPrevious caption (do NOT repeat this): %s", lastCaption)
	}

	caption, err := g.client.complete(ctx, captionSystemPrompt, prompt)
	if err != nil {
		log.Warn("ollama caption generation failed", "err", err)
		return ""
	}

	caption = cleanCaption(caption)

	if caption == "" || len(caption) < 15 {
		log.Warn("ollama returned unusable caption", "caption", caption)
		return ""
	}

	g.mu.Lock()
	g.lastCaption[genre] = caption
	g.mu.Unlock()

	log.Info("llm caption", "genre", genre, "caption", caption)
	return caption
}

// cleanCaption strips common LLM artifacts from output.
func cleanCaption(s string) string {
	s = strings.TrimSpace(s)

	// Strip thinking tags (Qwen 3 thinking mode leakage)
	if idx := strings.Index(s, "</think>"); idx >= 0 {
		s = s[idx+len("</think>"):]
		s = strings.TrimSpace(s)
	}

	// Strip surrounding quotes
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}

	// Strip common preambles
	prefixes := []string{
		"Here's a caption:",
		"Here is a caption:",
		"Caption:",
		"Here's the caption:",
	}
	lower := strings.ToLower(s)
	for _, p := range prefixes {
		if strings.HasPrefix(lower, strings.ToLower(p)) {
			s = strings.TrimSpace(s[len(p):])
		}
	}

	return strings.TrimSpace(s)
}
