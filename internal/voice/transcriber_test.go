package voice

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.ogg")
	if err := os.WriteFile(path, []byte("OggS fake audio"), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNoop(t *testing.T) {
	_, err := Noop{}.Transcribe(context.Background(), "x")
	if !errors.Is(err, ErrNotConfigured) || err.Error() != "transcriber is not configured" {
		t.Fatalf("err = %v", err)
	}
}

func TestOpenAITranscriber(t *testing.T) {
	var gotModel, gotAuth, gotFile string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			http.NotFound(w, r)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		gotModel = r.FormValue("model")
		if _, hdr, err := r.FormFile("file"); err == nil {
			gotFile = hdr.Filename
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"  remind me to call mom  "}`))
	}))
	defer srv.Close()

	tr := NewOpenAITranscriber(OpenAIConfig{APIKey: "sk-test", APIBase: srv.URL + "/v1/audio/transcriptions/"})
	text, err := tr.Transcribe(context.Background(), writeAudio(t))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "remind me to call mom" {
		t.Fatalf("text = %q", text)
	}
	if gotModel != "whisper-1" || gotAuth != "Bearer sk-test" || gotFile != "clip.ogg" {
		t.Fatalf("model = %q, auth = %q, file = %q", gotModel, gotAuth, gotFile)
	}
}

func TestOpenAITranscriberFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(r.URL.Path, "empty") {
			_, _ = w.Write([]byte(`{"text":" "}`))
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()
	audio := writeAudio(t)

	tests := []struct {
		name    string
		cfg     OpenAIConfig
		path    string
		wantErr string
	}{
		{name: "no key", cfg: OpenAIConfig{}, path: audio, wantErr: "transcriber is not configured"},
		{name: "missing file", cfg: OpenAIConfig{APIKey: "k", APIBase: srv.URL}, path: filepath.Join(t.TempDir(), "nope.wav"), wantErr: "audio file does not exist"},
		{name: "http error", cfg: OpenAIConfig{APIKey: "k", APIBase: srv.URL}, path: audio, wantErr: "transcription failed"},
		{name: "blank text", cfg: OpenAIConfig{APIKey: "k", APIBase: srv.URL + "/empty"}, path: audio, wantErr: "did not include text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewOpenAITranscriber(tt.cfg).Transcribe(context.Background(), tt.path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want %q", err, tt.wantErr)
			}
		})
	}
}
