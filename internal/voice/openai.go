package voice

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultModel   = openai.Whisper1
	defaultTimeout = 90 * time.Second
)

// OpenAIConfig configures the Whisper transcriber.
type OpenAIConfig struct {
	APIKey     string
	APIBase    string
	Model      string
	HTTPClient *http.Client
}

// OpenAITranscriber posts audio to the OpenAI transcription endpoint.
type OpenAITranscriber struct {
	client *openai.Client
	model  string
}

// NewOpenAITranscriber builds a transcriber. A blank API key gives a
// transcriber that always reports ErrNotConfigured.
func NewOpenAITranscriber(cfg OpenAIConfig) *OpenAITranscriber {
	t := &OpenAITranscriber{model: strings.TrimSpace(cfg.Model)}
	if t.model == "" {
		t.model = DefaultModel
	}
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return t
	}
	clientCfg := openai.DefaultConfig(key)
	if base := normalizeBase(cfg.APIBase); base != "" {
		clientCfg.BaseURL = base
	}
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	} else {
		clientCfg.HTTPClient = &http.Client{Timeout: defaultTimeout}
	}
	t.client = openai.NewClientWithConfig(clientCfg)
	return t
}

// normalizeBase accepts either an API root or a full transcription URL.
func normalizeBase(base string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	return strings.TrimSuffix(base, "/audio/transcriptions")
}

func (t *OpenAITranscriber) Transcribe(ctx context.Context, path string) (string, error) {
	if t.client == nil {
		return "", ErrNotConfigured
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("audio file does not exist: %s", path)
		}
		return "", fmt.Errorf("stat audio file: %w", err)
	}
	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: path,
	})
	if err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", errors.New("transcription response did not include text")
	}
	return text, nil
}
