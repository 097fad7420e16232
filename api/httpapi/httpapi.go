package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	wsadapter "leaderboardkit/adapters/websocket"
	"leaderboardkit/analytics"
	"leaderboardkit/client"
	"leaderboardkit/core"
	"leaderboardkit/realtime"
)

// Leaderboard is the store surface the API serves.
type Leaderboard interface {
	SubmitScore(ctx context.Context, identity core.Identity, score int64) (<-chan core.Result, error)
	Snapshot(ctx context.Context) (core.Leaderboard, []error, error)
}

// Options configures the HTTP API surface.
type Options struct {
	// PathPrefix, if set, is prepended to all routes (e.g., "/api").
	PathPrefix string
	// Title is the header of the text rendering. Empty means "Top N Scores".
	Title string
	// AllowCORSOrigin, if non-empty, enables basic CORS with the given origin (use "*" for any).
	AllowCORSOrigin string
	// APIKeys, if non-empty, enables static API key auth via Authorization: Bearer or X-API-Key.
	APIKeys []string
	// RateLimitEnabled toggles rate limiting.
	RateLimitEnabled bool
	// RateLimitRPM is the allowed requests per minute per client key.
	RateLimitRPM int
	// RateLimitBurst defines burst capacity.
	RateLimitBurst int
	// Metrics, if set, records request counts and latencies.
	Metrics *analytics.Metrics
	Logger  *slog.Logger
}

// NewMux builds an http.Handler exposing the leaderboard REST API and WebSocket stream.
// Routes:
//   - GET  {prefix}/healthz
//   - GET  {prefix}/leaders
//   - GET  {prefix}/leaders/text
//   - POST {prefix}/leaders/scores
//   - WS   {prefix}/ws
func NewMux(lb Leaderboard, hub *realtime.Hub[core.Event], opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	a := &api{lb: lb, title: opts.Title, logger: logger}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.Recoverer)
	if opts.Metrics != nil {
		r.Use(instrument(opts.Metrics))
	}
	if opts.AllowCORSOrigin != "" {
		r.Use(withCORS(opts.AllowCORSOrigin))
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", nil)
	})

	routes := func(r chi.Router) {
		r.Get("/healthz", a.healthCheck)

		r.Group(func(r chi.Router) {
			if len(opts.APIKeys) > 0 {
				r.Use(withAPIKeyAuth(opts.APIKeys))
			}
			if opts.RateLimitEnabled && opts.RateLimitRPM > 0 && opts.RateLimitBurst > 0 {
				r.Use(withRateLimit(opts.RateLimitRPM, opts.RateLimitBurst))
			}

			r.Get("/leaders", a.getLeaders)
			r.Get("/leaders/text", a.getLeadersText)
			r.Post("/leaders/scores", a.postScore)
			if hub != nil {
				r.Handle("/ws", wsadapter.Handler(hub, wsadapter.WithLogger(logger), wsadapter.WithInitial(a.initialEvent)))
			}
		})
	}
	if prefix := strings.TrimSuffix(opts.PathPrefix, "/"); prefix != "" {
		r.Route(prefix, routes)
	} else {
		routes(r)
	}

	return r
}

type api struct {
	lb     Leaderboard
	title  string
	logger *slog.Logger
}

// healthCheck verifies the backend can be read
func (a *api) healthCheck(w http.ResponseWriter, r *http.Request) {
	_, _, err := a.lb.Snapshot(r.Context())

	status := map[string]any{
		"status": "healthy",
		"checks": map[string]any{
			"storage": "ok",
		},
	}

	if err != nil && !errors.Is(err, core.ErrCorruptData) {
		status["status"] = "unhealthy"
		status["checks"].(map[string]any)["storage"] = "failed"
		writeJSONStatus(w, http.StatusServiceUnavailable, status)
		return
	}
	writeJSON(w, status)
}

type leadersResponse struct {
	Entries []core.ScoreEntry `json:"entries"`
	Max     int               `json:"max"`
	Corrupt int               `json:"corrupt"`
}

func (a *api) getLeaders(w http.ResponseWriter, r *http.Request) {
	lb, corrupt, err := a.lb.Snapshot(r.Context())
	if err != nil {
		a.readFailed(w, err)
		return
	}
	writeJSON(w, leadersResponse{Entries: lb.Entries, Max: lb.Max, Corrupt: len(corrupt)})
}

func (a *api) getLeadersText(w http.ResponseWriter, r *http.Request) {
	lb, _, err := a.lb.Snapshot(r.Context())
	if err != nil {
		a.readFailed(w, err)
		return
	}
	title := a.title
	if title == "" {
		title = client.DefaultHeader(lb.Max)
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(client.Render(title, lb) + "\n"))
}

func (a *api) readFailed(w http.ResponseWriter, err error) {
	a.logger.Error("failed to read leaderboard", "error", err)
	if errors.Is(err, core.ErrCorruptData) {
		writeError(w, http.StatusInternalServerError, "corrupt_data", err.Error(), nil)
		return
	}
	writeError(w, http.StatusServiceUnavailable, "storage_unavailable", err.Error(), nil)
}

type scoreRequest struct {
	Identity string          `json:"identity"`
	Score    json.RawMessage `json:"score"`
}

type scoreResponse struct {
	Outcome     core.Outcome      `json:"outcome"`
	Entry       core.ScoreEntry   `json:"entry"`
	Leaderboard *core.Leaderboard `json:"leaderboard,omitempty"`
}

func (a *api) postScore(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "body must be a JSON object", nil)
		return
	}
	score, err := parseScore(req.Score)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error(), nil)
		return
	}

	results, err := a.lb.SubmitScore(r.Context(), core.Identity(req.Identity), score)
	if err != nil {
		if errors.Is(err, core.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, "invalid_input", err.Error(), nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", err.Error(), nil)
		return
	}

	select {
	case res := <-results:
		a.writeResult(w, res)
	case <-r.Context().Done():
		// the submission keeps running; the caller learns the outcome from the stream
		writeJSONStatus(w, http.StatusAccepted, map[string]any{"outcome": "pending"})
	}
}

func (a *api) writeResult(w http.ResponseWriter, res core.Result) {
	switch res.Outcome {
	case core.OutcomeCommitted:
		lb := res.Leaderboard
		writeJSON(w, scoreResponse{Outcome: res.Outcome, Entry: res.Entry, Leaderboard: &lb})
	case core.OutcomeAborted:
		writeJSON(w, scoreResponse{Outcome: res.Outcome, Entry: res.Entry})
	default:
		msg := core.ErrTransactionFailed.Error()
		if res.Err != nil {
			msg = res.Err.Error()
		}
		writeError(w, http.StatusServiceUnavailable, "transaction_failed", msg, nil)
	}
}

func (a *api) initialEvent(ctx context.Context) (core.Event, bool) {
	lb, _, err := a.lb.Snapshot(ctx)
	if err != nil {
		return core.Event{}, false
	}
	return core.NewLeaderboardChanged("", lb), true
}

// parseScore accepts a JSON number or a string holding a base-10 integer.
func parseScore(raw json.RawMessage) (int64, error) {
	if len(raw) == 0 {
		return core.ParseScore("")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return core.ParseScore(s)
	}
	return core.ParseScore(string(raw))
}

// Helpers

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string, details any) {
	writeJSONStatus(w, status, apiError{Code: code, Message: msg, Details: details})
}

// requestID propagates X-Request-ID, generating one when absent.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// instrument records one observation per request, labelled by route pattern.
func instrument(m *analytics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			route := "unmatched"
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			m.ObserveHTTP(r.Method, route, status, time.Since(start))
		})
	}
}

// withCORS wraps a handler with a minimal CORS policy.
func withCORS(origin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization,X-API-Key,X-Request-ID")
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// withAPIKeyAuth enforces a shared API key list.
func withAPIKeyAuth(apiKeys []string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(apiKeys))
	for _, k := range apiKeys {
		k = strings.TrimSpace(k)
		if k != "" {
			allowed[k] = struct{}{}
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := extractAPIKey(r)
			if key == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing API key", nil)
				return
			}
			if _, ok := allowed[key]; !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid API key", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// withRateLimit applies a simple token-bucket limiter per client key.
func withRateLimit(rpm int, burst int) func(http.Handler) http.Handler {
	limiter := newRateLimiter(rpm, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientKey(r)
			if !limiter.allow(key) {
				writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractAPIKey(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	// browsers cannot set headers on WebSocket upgrades
	return r.URL.Query().Get("api_key")
}

// clientKey uses API key if present, otherwise remote IP.
func clientKey(r *http.Request) string {
	if key := extractAPIKey(r); key != "" {
		return key
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type rateLimiter struct {
	rpm   float64
	burst float64
	mu    sync.Mutex
	b     map[string]*bucket
}

type bucket struct {
	tokens float64
	last   time.Time
}

func newRateLimiter(rpm, burst int) *rateLimiter {
	return &rateLimiter{
		rpm:   float64(rpm),
		burst: float64(burst),
		b:     make(map[string]*bucket),
	}
}

func (l *rateLimiter) allow(key string) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.b[key]
	if !ok {
		l.b[key] = &bucket{tokens: l.burst - 1, last: now}
		return true
	}

	elapsed := now.Sub(b.last).Minutes()
	b.tokens += elapsed * l.rpm
	if b.tokens > l.burst {
		b.tokens = l.burst
	}
	if b.tokens < 1 {
		b.last = now
		return false
	}
	b.tokens--
	b.last = now
	return true
}
