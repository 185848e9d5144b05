package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/haasonsaas/cognis/internal/fsutil"
	"github.com/haasonsaas/cognis/internal/payments"
)

const (
	maxUploadBytes     = 64 << 20
	defaultAuditLimit  = 100
	maxAuditLimit      = 1000
	uploadFallbackName = "upload.bin"
	audioFallbackName  = "audio.webm"
)

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type uploadPayload struct {
	data        []byte
	filename    string
	contentType string
}

// readUpload accepts a multipart form with a "file" field or a raw body
// named by the X-Filename header.
func readUpload(w http.ResponseWriter, r *http.Request, fallbackName string) (uploadPayload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(8 << 20); err != nil {
			return uploadPayload{}, fmt.Errorf("parse multipart form: %w", err)
		}
		if r.MultipartForm != nil {
			defer r.MultipartForm.RemoveAll() //nolint:errcheck
		}
		file, header, err := r.FormFile("file")
		if err == nil {
			defer file.Close()
			data, err := io.ReadAll(file)
			if err != nil {
				return uploadPayload{}, err
			}
			name := header.Filename
			if strings.TrimSpace(name) == "" {
				name = fallbackName
			}
			return uploadPayload{data: data, filename: name, contentType: contentTypeFor(name)}, nil
		}
		if !errors.Is(err, http.ErrMissingFile) {
			return uploadPayload{}, err
		}
		return uploadPayload{filename: fallbackName, contentType: contentTypeFor(fallbackName)}, nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return uploadPayload{}, err
	}
	name := strings.TrimSpace(r.Header.Get("X-Filename"))
	if name == "" {
		name = fallbackName
	}
	return uploadPayload{data: data, filename: name, contentType: contentTypeFor(name)}, nil
}

// safeFilename keeps the last path element and replaces anything outside
// [A-Za-z0-9._-] with "_".
func safeFilename(raw string) string {
	normalized := strings.ReplaceAll(raw, "\\", "/")
	if idx := strings.LastIndex(normalized, "/"); idx >= 0 {
		normalized = normalized[idx+1:]
	}
	normalized = unsafeFilenameChars.ReplaceAllString(normalized, "_")
	if strings.TrimSpace(normalized) == "" {
		return "file.bin"
	}
	return normalized
}

func contentTypeFor(name string) string {
	ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
	if ct == "" {
		return "application/octet-stream"
	}
	if mediaType, _, err := mime.ParseMediaType(ct); err == nil {
		return mediaType
	}
	return ct
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	payload, err := readUpload(w, r, uploadFallbackName)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(payload.data) == 0 {
		writeError(w, http.StatusBadRequest, "empty_payload")
		return
	}

	stored := fmt.Sprintf("%d_%s", time.Now().UnixMilli(), safeFilename(payload.filename))
	if err := fsutil.WriteFileAtomic(filepath.Join(s.uploadsDir, stored), payload.data, 0o644); err != nil {
		writeInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"path": "uploads/" + stored,
		"url":  "/files/" + stored,
		"type": payload.contentType,
	})
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	payload, err := readUpload(w, r, audioFallbackName)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(payload.data) == 0 {
		writeError(w, http.StatusBadRequest, "empty_payload")
		return
	}
	if err := os.MkdirAll(s.tempDir, 0o755); err != nil {
		writeInternal(w, err)
		return
	}
	audioPath := filepath.Join(s.tempDir, uuid.NewString()+"-"+safeFilename(payload.filename))
	if err := os.WriteFile(audioPath, payload.data, 0o600); err != nil {
		writeInternal(w, err)
		return
	}
	defer os.Remove(audioPath) //nolint:errcheck

	text, err := s.transcriber.Transcribe(r.Context(), audioPath)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "*")
	if strings.TrimSpace(name) == "" {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	filename := safeFilename(name)
	target := filepath.Join(s.uploadsDir, filename)
	rel, err := filepath.Rel(s.uploadsDir, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	f, err := os.Open(target)
	if errors.Is(err, fs.ErrNotExist) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		writeInternal(w, err)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	w.Header().Set("Content-Type", contentTypeFor(filename))
	http.ServeContent(w, r, filename, info.ModTime(), f)
}

func (s *Server) handleGetPolicy(w http.ResponseWriter, _ *http.Request) {
	if s.payments == nil {
		writeError(w, http.StatusServiceUnavailable, "payments_not_configured")
		return
	}
	policy, err := s.payments.Policy()
	if err != nil {
		writeInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, policy.View())
}

// handleUpdatePolicy applies a partial dollar-denominated update. Absent
// and null fields keep their current value.
func (s *Server) handleUpdatePolicy(w http.ResponseWriter, r *http.Request) {
	if s.payments == nil {
		writeError(w, http.StatusServiceUnavailable, "payments_not_configured")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	fields := map[string]any{}
	if len(bytes.TrimSpace(body)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		if err := dec.Decode(&fields); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json")
			return
		}
	}

	current, err := s.payments.Policy()
	if err != nil {
		writeInternal(w, err)
		return
	}
	next, err := current.ApplyFields(fields)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	updated, err := s.payments.UpdatePolicy(next)
	if err != nil {
		writeInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated.View())
}

func (s *Server) handlePaymentsStatus(w http.ResponseWriter, _ *http.Request) {
	if s.payments == nil {
		writeError(w, http.StatusServiceUnavailable, "payments_not_configured")
		return
	}
	summary, err := s.payments.Summary()
	if err != nil {
		writeInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reserved":          payments.CentsToDollars(summary.ReservedCents),
		"captured":          payments.CentsToDollars(summary.CapturedCents),
		"daily_used":        payments.CentsToDollars(summary.DailyUsedCents),
		"monthly_used":      payments.CentsToDollars(summary.MonthlyUsedCents),
		"available_daily":   payments.CentsToDollars(summary.AvailableDailyCents),
		"available_monthly": payments.CentsToDollars(summary.AvailableMonthlyCents),
		"transactions":      summary.TotalTransactions,
	})
}

func (s *Server) handleDashboardSummary(w http.ResponseWriter, _ *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusServiceUnavailable, "observability_not_configured")
		return
	}
	summary, err := s.audit.Summary()
	if err != nil {
		writeInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleAuditEvents(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusServiceUnavailable, "observability_not_configured")
		return
	}
	limit := queryInt(r, "limit", defaultAuditLimit, 1, maxAuditLimit)
	events, err := s.audit.Recent(limit)
	if err != nil {
		writeInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// queryInt parses key clamped to [lo, hi], or returns fallback when the
// parameter is absent or not an integer.
func queryInt(r *http.Request, key string, fallback, lo, hi int) int {
	n, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get(key)))
	if err != nil {
		return fallback
	}
	return max(lo, min(hi, n))
}
