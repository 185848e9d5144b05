package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientListAndCall(t *testing.T) {
	var gotCall map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "k" {
			t.Errorf("missing header")
		}
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/mcp/tools":
			_, _ = w.Write([]byte(`{"tools":[{"name":"x.echo"}]}`))
		case r.Method == http.MethodPost && r.URL.Path == "/mcp/call":
			if err := json.NewDecoder(r.Body).Decode(&gotCall); err != nil {
				t.Errorf("decode: %v", err)
			}
			_, _ = w.Write([]byte(`{"ok":true,"data":{"sid":"123"}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL + "/", Headers: map[string]string{"X-Api-Key": "k"}})
	ctx := context.Background()

	tools, err := c.ListTools(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := tools["tools"]; !ok || tools["http_status"] != http.StatusOK || tools["http_ok"] != true {
		t.Fatalf("tools = %v", tools)
	}

	call, err := c.CallTool(ctx, "x.echo", map[string]any{"v": 1})
	if err != nil {
		t.Fatal(err)
	}
	if call["ok"] != true || call["http_status"] != 200 {
		t.Fatalf("call = %v", call)
	}
	if gotCall["name"] != "x.echo" || gotCall["arguments"].(map[string]any)["v"] != 1.0 {
		t.Fatalf("request body = %v", gotCall)
	}
}

func TestClientAnnotatesFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr bool
	}{
		{name: "json error body", status: http.StatusBadGateway, body: `{"error":"upstream"}`},
		{name: "empty body", status: http.StatusNoContent},
		{name: "html body", status: http.StatusInternalServerError, body: "<html>", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			out, err := NewClient(Config{BaseURL: srv.URL}).CallTool(context.Background(), "x", nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v", err)
			}
			if err != nil {
				return
			}
			wantOK := tt.status < 300
			if out["http_status"] != tt.status || out["http_ok"] != wantOK {
				t.Fatalf("out = %v", out)
			}
		})
	}
}

func TestDefaultBaseURL(t *testing.T) {
	if got := NewClient(Config{}).BaseURL(); got != DefaultBaseURL {
		t.Fatalf("BaseURL = %q", got)
	}
}
