// Package tts wraps the external text-to-speech engine. The engine itself
// is out of process; this package owns the HTTP handoff and duration
// estimation used by the display scheduler.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/git-blame-dev/stream-sync-sub005/internal/config"
)

// Stage is one utterance in a notification's speech plan. Delay is waited
// out before the stage is spoken.
type Stage struct {
	Name  string // "primary" or "message"
	Text  string
	Delay time.Duration
}

type Engine interface {
	Speak(ctx context.Context, text string) error
	// EstimateDuration approximates how long speaking text takes, used to
	// hold the overlay surface at least as long as the audio.
	EstimateDuration(text string) time.Duration
}

// HTTPEngine posts utterances to a local speech endpoint.
type HTTPEngine struct {
	endpoint string
	voice    string
	wpm      int
	client   *http.Client
}

func NewHTTPEngine(cfg config.TTSConfig) *HTTPEngine {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	wpm := cfg.WordsPerMin
	if wpm <= 0 {
		wpm = 160
	}
	return &HTTPEngine{
		endpoint: cfg.Endpoint,
		voice:    cfg.Voice,
		wpm:      wpm,
		client:   &http.Client{Timeout: timeout},
	}
}

func (e *HTTPEngine) Speak(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	body, err := json.Marshal(map[string]string{"text": text, "voice": e.voice})
	if err != nil {
		return fmt.Errorf("tts: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("tts: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("tts: speak: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("tts: speak status %s", resp.Status)
	}
	return nil
}

func (e *HTTPEngine) EstimateDuration(text string) time.Duration {
	return estimate(text, e.wpm)
}

func estimate(text string, wpm int) time.Duration {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	return time.Duration(float64(words) / float64(wpm) * float64(time.Minute))
}

// Disabled is the engine used when TTS is off; every call is a no-op.
type Disabled struct{}

func (Disabled) Speak(context.Context, string) error   { return nil }
func (Disabled) EstimateDuration(string) time.Duration { return 0 }
