package providers

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// newHTTPClient returns a client with a 20s connect timeout and a 90s wait
// for response headers. Bodies are streamed, so there is no overall timeout.
func newHTTPClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: 20 * time.Second, KeepAlive: 30 * time.Second}).DialContext
	transport.ResponseHeaderTimeout = 90 * time.Second
	return &http.Client{Transport: transport}
}

// compatDoer is the HTTP layer under the go-openai client. It adds
// configured headers and rewrites a plain JSON completion into a one-chunk
// event stream, since some OpenAI-compatible gateways ignore "stream": true.
type compatDoer struct {
	client  *http.Client
	headers map[string]string
}

func (d *compatDoer) Do(req *http.Request) (*http.Response, error) {
	req.Header.Set("Accept", "application/json, text/event-stream")
	for k, v := range d.headers {
		req.Header.Set(k, v)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, nil
	}
	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	if strings.Contains(ct, "text/event-stream") || !strings.Contains(ct, "json") {
		return resp, nil
	}

	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, err
	}
	resp.Body = io.NopCloser(bytes.NewReader(jsonCompletionAsStream(body)))
	resp.ContentLength = -1
	resp.Header.Set("Content-Type", "text/event-stream")
	return resp, nil
}

// jsonCompletionAsStream re-encodes a non-streamed completion as SSE. Input
// that does not decode as a completion is passed through so the client can
// report it.
func jsonCompletionAsStream(body []byte) []byte {
	var full openai.ChatCompletionResponse
	if err := json.Unmarshal(body, &full); err != nil || len(full.Choices) == 0 {
		return body
	}
	chunk := openai.ChatCompletionStreamResponse{
		ID:      full.ID,
		Object:  "chat.completion.chunk",
		Created: full.Created,
		Model:   full.Model,
	}
	for _, choice := range full.Choices {
		delta := openai.ChatCompletionStreamChoiceDelta{
			Role:    choice.Message.Role,
			Content: choice.Message.Content,
		}
		for i, call := range choice.Message.ToolCalls {
			idx := i
			call.Index = &idx
			delta.ToolCalls = append(delta.ToolCalls, call)
		}
		chunk.Choices = append(chunk.Choices, openai.ChatCompletionStreamChoice{
			Index:        choice.Index,
			Delta:        delta,
			FinishReason: choice.FinishReason,
		})
	}
	if full.Usage.TotalTokens > 0 || full.Usage.PromptTokens > 0 {
		usage := full.Usage
		chunk.Usage = &usage
	}
	encoded, err := json.Marshal(chunk)
	if err != nil {
		return body
	}
	var out bytes.Buffer
	out.WriteString("data: ")
	out.Write(encoded)
	out.WriteString("\n\ndata: [DONE]\n\n")
	return out.Bytes()
}
