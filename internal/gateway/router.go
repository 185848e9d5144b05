package gateway

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler builds the router. Every call returns a fresh handler over the
// same server state.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(s.instrument)
	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc:    func(_ *http.Request, origin string) bool { return allowedOrigin(origin) },
		AllowedMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:     []string{"Content-Type", "Authorization", "X-Filename"},
		MaxAge:             86400,
		OptionsPassthrough: true,
	}))
	r.Use(preflight)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed")
	})

	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	} else {
		r.Handle("/metrics", promhttp.Handler())
	}
	r.Get("/healthz", s.handleHealthz)
	r.Post("/upload", s.handleUpload)
	r.Post("/transcribe", s.handleTranscribe)
	r.Get("/files/*", s.handleFile)

	r.Route("/payments", func(r chi.Router) {
		r.Get("/policy", s.handleGetPolicy)
		r.Put("/policy", s.handleUpdatePolicy)
		r.Post("/policy", s.handleUpdatePolicy)
		r.Get("/status", s.handlePaymentsStatus)
	})
	r.Get("/dashboard/summary", s.handleDashboardSummary)
	r.Get("/audit/events", s.handleAuditEvents)

	r.Get("/ws", s.handleWS)
	return r
}

// allowedOrigin admits plain-http localhost pages and https://cognis.local.
func allowedOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Hostname() == "" {
		return false
	}
	host := u.Hostname()
	switch strings.ToLower(u.Scheme) {
	case "http":
		return strings.EqualFold(host, "localhost") || host == "127.0.0.1"
	case "https":
		return strings.EqualFold(host, "cognis.local")
	}
	return false
}

// preflight answers every OPTIONS request with 204 once the CORS headers
// are in place.
func preflight(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// instrument counts requests by route pattern and logs them at debug.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.RecordHTTPRequest(r.Method, route, strconv.Itoa(status))
		s.logger.Debug("http request",
			"method", r.Method,
			"route", route,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", chimw.GetReqID(r.Context()),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"encode_failed"}`)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	_, _ = w.Write(body) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeInternal(w http.ResponseWriter, err error) {
	msg := "internal_error"
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	writeError(w, http.StatusInternalServerError, msg)
}
