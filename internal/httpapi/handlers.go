package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"vouchr.org/internal/audit"
	"vouchr.org/internal/gate"
	"vouchr.org/internal/guard"
	"vouchr.org/internal/obs"
	"vouchr.org/internal/roleedit"
)

const serviceName = "vouchr-console"

// Pinger is anything /readyz can check, typically the role store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe is the readiness check behind /readyz.
type ReadyProbe struct {
	DB Pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.Ping(ctx)
}

// Limits bounds request volume and size.
type Limits struct {
	MaxBodyBytes int64
	RateBurst    int
	RatePerSec   int
}

// DefaultLimits are applied when an option leaves a field zero.
var DefaultLimits = Limits{MaxBodyBytes: 1 << 20, RateBurst: 60, RatePerSec: 30}

// API is the console HTTP surface: probes, metrics, the shared gate decision, role
// editing, and the gated proxy to the console frontend.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string
	limits     Limits

	gate     *gate.Gate
	guard    *guard.Middleware
	roles    *roleedit.Service
	upstream *url.URL
	log      *zap.Logger
}

// Option configures API.
type Option func(*API)

// WithGate enables session gating, the decision endpoint and the proxy.
func WithGate(g *gate.Gate) Option { return func(a *API) { a.gate = g } }

// WithGuard guards module-scoped admin pages behind the gate.
func WithGuard(m *guard.Middleware) Option { return func(a *API) { a.guard = m } }

// WithRoles enables the role editing endpoints.
func WithRoles(s *roleedit.Service) Option { return func(a *API) { a.roles = s } }

// WithUpstream sets the console frontend that gated page requests are proxied to.
func WithUpstream(u *url.URL) Option { return func(a *API) { a.upstream = u } }

// WithLimits overrides request limits; zero fields keep the defaults.
func WithLimits(l Limits) Option {
	return func(a *API) {
		if l.MaxBodyBytes > 0 {
			a.limits.MaxBodyBytes = l.MaxBodyBytes
		}
		if l.RateBurst > 0 {
			a.limits.RateBurst = l.RateBurst
		}
		if l.RatePerSec > 0 {
			a.limits.RatePerSec = l.RatePerSec
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *API) {
		if l != nil {
			a.log = l
		}
	}
}

func New(rp ReadyProbe, version string, opts ...Option) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		limits:     DefaultLimits,
	}
	for _, opt := range opts {
		opt(a)
	}

	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.HandleFunc("GET /v1/info", a.Info)
	a.mux.HandleFunc("GET /v1/notice", a.Notice)
	a.mux.Handle("GET /metrics", obs.Handler())

	if a.gate != nil {
		a.mux.HandleFunc("GET /v1/gate/decision", a.handleGateDecision)
	}
	if a.gate != nil && a.roles != nil {
		a.mux.Handle("GET /v1/roles/{id}/permissions", a.withSession(http.HandlerFunc(a.handleGetRolePermissions)))
		a.mux.Handle("PUT /v1/roles/{id}/permissions", a.withSession(http.HandlerFunc(a.handlePutRolePermissions)))
		a.mux.Handle("POST /v1/roles/{id}/permissions/toggle", a.withSession(http.HandlerFunc(a.handleToggleRolePermission)))
	}

	if a.gate != nil && a.upstream != nil {
		a.mux.Handle("/", a.consoleHandler())
	} else {
		a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			writeError(w, r, http.StatusNotFound, "resource not found")
		})
	}
	return a
}

// Handler returns the mux wrapped in the middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = MaxBodyBytes(h, a.limits.MaxBodyBytes)
	h = RateLimit(h, a.limits.RateBurst, a.limits.RatePerSec)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// Notice hands the pending guard notice to the page that renders it and clears it.
func (a *API) Notice(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	msg, ok := guard.ConsumeNotice(w, r)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": msg})
}

func (a *API) logger() *zap.Logger {
	if a.log != nil {
		return a.log
	}
	return obs.Logger()
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}
