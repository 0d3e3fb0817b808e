// Package httpapi exposes a running device over HTTP: slot status,
// data-role requests and Prometheus metrics.
//
// Every handler hands its work to the event loop with loop.Call and waits
// for the result, so the manager is only ever touched from the loop
// goroutine.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/radiocap/internal/capability"
	"github.com/roach88/radiocap/internal/loop"
	"github.com/roach88/radiocap/internal/radio"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

// Server serves the HTTP API for one manager.
type Server struct {
	loop    *loop.Loop
	mgr     *capability.Manager
	logger  *slog.Logger
	timeout time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithCallTimeout bounds how long a handler waits for the loop. Defaults
// to 5s.
func WithCallTimeout(d time.Duration) Option {
	return func(s *Server) { s.timeout = d }
}

// New creates a server. mgr must be driven by l.
func New(l *loop.Loop, mgr *capability.Manager, opts ...Option) *Server {
	s := &Server{loop: l, mgr: mgr, logger: slog.Default(), timeout: 5 * time.Second}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/slots", s.getSlots)
	r.Get("/requests", s.listRequests)
	r.Post("/requests", s.postRequest)
	r.Delete("/requests/{token}", s.deleteRequest)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	return r
}

// call runs fn on the loop, bounded by the request context and the call
// timeout.
func (s *Server) call(ctx context.Context, fn func()) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.loop.Call(ctx, fn)
}

func (s *Server) getSlots(w http.ResponseWriter, r *http.Request) {
	var st capability.Status
	if err := s.call(r.Context(), func() { st = s.mgr.Status() }); err != nil {
		writeLoopError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newStatusView(st))
}

func (s *Server) listRequests(w http.ResponseWriter, r *http.Request) {
	var reqs []capability.RequestInfo
	if err := s.call(r.Context(), func() { reqs = s.mgr.Requests() }); err != nil {
		writeLoopError(w, err)
		return
	}
	out := make([]requestView, 0, len(reqs))
	for _, info := range reqs {
		out = append(out, newRequestView(info))
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": out})
}

// RequestBody is the POST /requests payload.
type RequestBody struct {
	Slot  *int     `json:"slot"`
	Modes []string `json:"modes"`
	Role  string   `json:"role"`
}

func (s *Server) postRequest(w http.ResponseWriter, r *http.Request) {
	ct := r.Header.Get("Content-Type")
	if ct != "" && !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var body RequestBody
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Slot == nil {
		writeJSONError(w, http.StatusBadRequest, "slot is required")
		return
	}
	modes, err := radio.ParseModes(body.Modes)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	role, err := capability.ParseRole(body.Role)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	var token string
	var reqErr error
	err = s.loop.Call(ctx, func() {
		if ctx.Err() != nil {
			return
		}
		token, reqErr = s.mgr.Request(*body.Slot, modes, role)
	})
	if err != nil {
		// Release a request made after the caller gave up.
		s.loop.Post(func() {
			if token != "" {
				_ = s.mgr.Release(token)
			}
		})
		writeLoopError(w, err)
		return
	}
	if reqErr != nil {
		writeManagerError(w, reqErr)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"token": token})
}

func (s *Server) deleteRequest(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	var relErr error
	if err := s.call(r.Context(), func() { relErr = s.mgr.Release(token) }); err != nil {
		writeLoopError(w, err)
		return
	}
	if relErr != nil {
		writeJSONError(w, http.StatusNotFound, relErr.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"dur", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
