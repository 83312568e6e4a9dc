package guard

import (
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"vouchr.org/internal/auth"
	"vouchr.org/internal/gate"
	"vouchr.org/internal/obs"
	"vouchr.org/internal/userinfo"
)

// NoticeCookie carries the one-shot denial notice to the next page.
const NoticeCookie = "vouchr_notice"

// Middleware guards admin-table routes. It expects the gate middleware to run first so the
// route classification and session are in the request context.
type Middleware struct {
	fetcher  userinfo.Fetcher
	fallback string
	require  map[string]Requirement
	log      *zap.Logger
}

// Option configures Middleware.
type Option func(*Middleware)

// WithFallback overrides the redirect target for denied requests.
func WithFallback(path string) Option {
	return func(m *Middleware) {
		if path != "" {
			m.fallback = path
		}
	}
}

// WithRequirement replaces the default view_<module> requirement for one module.
func WithRequirement(module string, req Requirement) Option {
	return func(m *Middleware) {
		m.require[strings.ToLower(module)] = req
	}
}

// WithLogger overrides the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Middleware) {
		if l != nil {
			m.log = l
		}
	}
}

// NewMiddleware builds the HTTP guard.
func NewMiddleware(f userinfo.Fetcher, opts ...Option) *Middleware {
	m := &Middleware{fetcher: f, fallback: DefaultFallback, require: make(map[string]Requirement)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Requirement returns what the module's pages need.
func (m *Middleware) Requirement(module string) Requirement {
	module = strings.ToLower(module)
	if req, ok := m.require[module]; ok {
		return req
	}
	return Requirement{Tokens: []string{auth.ModulePermissionToken(auth.VerbView, module)}}
}

// Wrap returns next guarded by the module requirement of the current route.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route, ok := gate.RouteFromContext(r.Context())
		if !ok || !route.IsAdmin() {
			next.ServeHTTP(w, r)
			return
		}
		sess, _ := auth.SessionFromContext(r.Context())

		snap, err := m.snapshot(r, sess)
		if err != nil {
			m.logger().Warn("permission listing unavailable",
				zap.String("module", route.Module),
				zap.String("user_id", sess.UserID),
				zap.Error(err),
			)
		}

		fx := responseEffects{w: w, r: r}
		mount := NewMount(sess.Role, m.Requirement(route.Module), m.fallback, fx, fx)
		defer mount.Unmount()

		switch mount.Update(snap) {
		case StatusAllowed:
			ctx := auth.ContextWithPermissions(r.Context(), snap.Set)
			next.ServeHTTP(w, r.WithContext(ctx))
		case StatusDenied:
			obs.GuardDenials.WithLabelValues(route.Module).Inc()
			m.logger().Info("guard denied",
				zap.String("module", route.Module),
				zap.String("user_id", sess.UserID),
				zap.String("path", r.URL.Path),
			)
		default:
			w.Header().Set("Retry-After", "1")
			w.Header().Set("Cache-Control", "no-store")
			http.Error(w, "loading permissions", http.StatusServiceUnavailable)
		}
	})
}

// snapshot loads the caller's permissions through a fresh tracker. super_admin needs no
// listing.
func (m *Middleware) snapshot(r *http.Request, sess auth.Session) (userinfo.Snapshot, error) {
	if sess.Role == auth.RoleSuperAdmin {
		return userinfo.Snapshot{Set: auth.BuildPermissionSet(sess.Role, nil), Loaded: true, Generation: 1}, nil
	}
	return userinfo.NewTracker(m.fetcher, sess).Refetch(r.Context())
}

// responseEffects turns a Mount's notice into a flash cookie and its navigation into a
// 303 redirect on the current response.
type responseEffects struct {
	w http.ResponseWriter
	r *http.Request
}

func (e responseEffects) Notify(message string) {
	http.SetCookie(e.w, &http.Cookie{
		Name:     NoticeCookie,
		Value:    url.QueryEscape(message),
		Path:     "/",
		MaxAge:   60,
		SameSite: http.SameSiteLaxMode,
	})
}

func (e responseEffects) Navigate(path string) {
	http.Redirect(e.w, e.r, path, http.StatusSeeOther)
}

// ConsumeNotice reads and clears the denial notice, so it shows once.
func ConsumeNotice(w http.ResponseWriter, r *http.Request) (string, bool) {
	c, err := r.Cookie(NoticeCookie)
	if err != nil || c.Value == "" {
		return "", false
	}
	http.SetCookie(w, &http.Cookie{Name: NoticeCookie, Value: "", Path: "/", MaxAge: -1})
	msg, err := url.QueryUnescape(c.Value)
	if err != nil {
		return "", false
	}
	return msg, true
}

func (m *Middleware) logger() *zap.Logger {
	if m.log != nil {
		return m.log
	}
	return obs.Logger()
}
