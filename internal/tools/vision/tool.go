// Package vision implements view_image, which sends a workspace image to an
// OpenAI-compatible vision model.
package vision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/cognis/internal/agent"
	"github.com/haasonsaas/cognis/internal/tools"
)

const (
	DefaultModel    = "gpt-4o"
	defaultQuestion = "Describe this image in detail."
	maxTokens       = 1024
)

// Config configures the vision endpoint.
type Config struct {
	APIKey     string
	APIBase    string
	Model      string
	HTTPClient *http.Client
}

// Tool analyzes images and documents from the workspace.
type Tool struct {
	client *openai.Client
	model  string
}

// NewTool builds the tool. Without an API key every call reports that vision
// is not configured.
func NewTool(cfg Config) *Tool {
	t := &Tool{model: strings.TrimSpace(cfg.Model)}
	if t.model == "" {
		t.model = DefaultModel
	}
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return t
	}
	clientCfg := openai.DefaultConfig(key)
	base := strings.TrimRight(strings.TrimSpace(cfg.APIBase), "/")
	if base = strings.TrimSuffix(base, "/chat/completions"); base != "" {
		clientCfg.BaseURL = base
	}
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	} else {
		clientCfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	t.client = openai.NewClientWithConfig(clientCfg)
	return t
}

func (t *Tool) Name() string { return "view_image" }

func (t *Tool) Description() string {
	return "Analyze an image/document file via OpenAI-compatible vision API"
}

func (t *Tool) Schema() json.RawMessage {
	return tools.Schema(map[string]any{
		"path":     tools.Prop("string", "Image path relative to the workspace."),
		"question": tools.Prop("string", "What to ask about the image."),
	}, "path")
}

func (t *Tool) Execute(ctx context.Context, args map[string]any, tc *agent.ToolContext) (string, error) {
	if t.client == nil {
		return tools.NotConfigured("vision"), nil
	}
	pathArg := agent.StringArg(args, "path")
	if pathArg == "" {
		return tools.Errorf("path is required"), nil
	}
	question := agent.StringArg(args, "question")
	if question == "" {
		question = defaultQuestion
	}
	path, err := tc.ResolvePath(pathArg)
	if err != nil {
		return tools.Errorf("%s", err), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return tools.Errorf("%s", err), nil
	}
	dataURL := "data:" + mimeType(path) + ";base64," + base64.StdEncoding.EncodeToString(data)

	resp, err := t.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     t.model,
		MaxTokens: maxTokens,
		Messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: dataURL}},
				{Type: openai.ChatMessagePartTypeText, Text: question},
			},
		}},
	})
	if err != nil {
		return apiError(err), nil
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "(empty response)", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func apiError(err error) string {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return tools.Errorf("vision API status %d: %s", apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return tools.Errorf("vision API status %d: %s", reqErr.HTTPStatusCode, reqErr.Err)
	}
	return tools.Errorf("%s", fmt.Sprint(err))
}

func mimeType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}
