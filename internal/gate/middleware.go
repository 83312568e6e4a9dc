package gate

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"vouchr.org/internal/assurance"
	"vouchr.org/internal/auth"
	"vouchr.org/internal/identity"
	"vouchr.org/internal/obs"
)

const refreshCookieTTL = 30 * 24 * time.Hour

// CookieNames are the cookies carrying the identity-provider session.
type CookieNames struct {
	Access  string
	Refresh string
}

// DefaultCookieNames matches the GoTrue browser client defaults.
var DefaultCookieNames = CookieNames{Access: "sb-access-token", Refresh: "sb-refresh-token"}

// Gate runs on every inbound request: it loads (and if needed refreshes) the session,
// resolves assurance, classifies the route and applies Decide.
type Gate struct {
	provider identity.Provider
	resolver *assurance.Resolver
	table    *Table
	cookies  CookieNames
	secure   bool
	log      *zap.Logger
}

// Option configures Gate.
type Option func(*Gate)

// WithCookieNames overrides the session cookie names.
func WithCookieNames(names CookieNames) Option {
	return func(g *Gate) {
		if names.Access != "" {
			g.cookies.Access = names.Access
		}
		if names.Refresh != "" {
			g.cookies.Refresh = names.Refresh
		}
	}
}

// WithSecureCookies marks rotated session cookies Secure.
func WithSecureCookies(secure bool) Option {
	return func(g *Gate) { g.secure = secure }
}

// WithLogger overrides the logger.
func WithLogger(l *zap.Logger) Option {
	return func(g *Gate) {
		if l != nil {
			g.log = l
		}
	}
}

// New constructs a Gate.
func New(provider identity.Provider, resolver *assurance.Resolver, table *Table, opts ...Option) (*Gate, error) {
	if provider == nil {
		return nil, errors.New("gate: identity provider is required")
	}
	if table == nil {
		return nil, errors.New("gate: route table is required")
	}
	if resolver == nil {
		resolver = assurance.NewResolver(provider)
	}
	g := &Gate{
		provider: provider,
		resolver: resolver,
		table:    table,
		cookies:  DefaultCookieNames,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Table returns the route classification table.
func (g *Gate) Table() *Table { return g.table }

// Evaluation is the full outcome of gating one request.
type Evaluation struct {
	Decision   Decision
	Route      Classification
	HasSession bool
	Session    auth.Session
	Assurance  assurance.State
	// Cookies were queued by the session refresh step and must reach the client
	// whatever the decision is.
	Cookies []*http.Cookie
}

// Evaluate gates the request as if it targeted path.
func (g *Gate) Evaluate(ctx context.Context, r *http.Request, path string) Evaluation {
	ev := Evaluation{Route: g.table.Classify(path)}
	ev.Session, ev.HasSession, ev.Cookies = g.LoadSession(ctx, r)

	if ev.HasSession && needsAssurance(ev.Route) {
		ev.Assurance = g.resolver.Resolve(ctx, ev.Session)
	}

	ev.Decision = Decide(Input{
		HasSession: ev.HasSession,
		Role:       ev.Session.Role,
		Route:      ev.Route,
		Assurance:  ev.Assurance,
	}, g.table.Targets())
	return ev
}

// Middleware enforces the gate for every request passing through next.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ev := g.Evaluate(r.Context(), r, r.URL.Path)
		for _, c := range ev.Cookies {
			http.SetCookie(w, c)
		}
		obs.GateDecisions.WithLabelValues(string(ev.Decision.Action), string(ev.Decision.Reason)).Inc()

		if ev.Decision.Action == ActionRedirect {
			g.logger().Debug("gate redirect",
				zap.String("from", r.URL.Path),
				zap.String("to", ev.Decision.Location),
				zap.String("reason", string(ev.Decision.Reason)),
			)
			http.Redirect(w, r, ev.Decision.Location, http.StatusSeeOther)
			return
		}

		ctx := ContextWithRoute(r.Context(), ev.Route)
		if ev.HasSession {
			ctx = auth.ContextWithSession(ctx, ev.Session)
		}
		r = r.WithContext(ctx)
		if len(ev.Cookies) > 0 {
			replaceRequestCookies(r, ev.Cookies)
		}
		next.ServeHTTP(w, r)
	})
}

// LoadSession resolves the request session, refreshing it when the access token expired.
// Queued cookies must be written to the response.
func (g *Gate) LoadSession(ctx context.Context, r *http.Request) (auth.Session, bool, []*http.Cookie) {
	creds := identity.Credentials{
		AccessToken:  cookieValue(r, g.cookies.Access),
		RefreshToken: cookieValue(r, g.cookies.Refresh),
	}
	sess, err := g.provider.CurrentSession(ctx, creds)
	switch {
	case err == nil:
		return sess, true, nil
	case errors.Is(err, identity.ErrNoSession):
		return auth.Session{}, false, nil
	case errors.Is(err, identity.ErrTokenExpired) && creds.RefreshToken != "":
		fresh, rerr := g.provider.RefreshSession(ctx, creds.RefreshToken)
		if rerr != nil {
			g.logger().Info("session refresh failed", zap.Error(rerr))
			return auth.Session{}, false, g.clearCookies()
		}
		return fresh, true, g.sessionCookies(fresh)
	default:
		return auth.Session{}, false, g.clearCookies()
	}
}

func (g *Gate) sessionCookies(sess auth.Session) []*http.Cookie {
	access := &http.Cookie{
		Name:     g.cookies.Access,
		Value:    sess.Token,
		Path:     "/",
		HttpOnly: true,
		Secure:   g.secure,
		SameSite: http.SameSiteLaxMode,
	}
	if !sess.ExpiresAt.IsZero() {
		access.Expires = sess.ExpiresAt
	}
	refresh := &http.Cookie{
		Name:     g.cookies.Refresh,
		Value:    sess.RefreshToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   g.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(refreshCookieTTL.Seconds()),
	}
	return []*http.Cookie{access, refresh}
}

func (g *Gate) clearCookies() []*http.Cookie {
	out := make([]*http.Cookie, 0, 2)
	for _, name := range []string{g.cookies.Access, g.cookies.Refresh} {
		out = append(out, &http.Cookie{Name: name, Value: "", Path: "/", MaxAge: -1, HttpOnly: true, Secure: g.secure})
	}
	return out
}

func (g *Gate) logger() *zap.Logger {
	if g.log != nil {
		return g.log
	}
	return obs.Logger()
}

// needsAssurance skips the provider round trips for routes whose decision cannot depend
// on assurance.
func needsAssurance(route Classification) bool {
	return route.Kind != RouteSignup && route.Kind != RouteUpdatePassword
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(c.Value)
}

// replaceRequestCookies rewrites the Cookie header so downstream handlers see the rotated
// session.
func replaceRequestCookies(r *http.Request, fresh []*http.Cookie) {
	replaced := make(map[string]*http.Cookie, len(fresh))
	for _, c := range fresh {
		replaced[c.Name] = c
	}
	var parts []string
	for _, c := range r.Cookies() {
		if _, ok := replaced[c.Name]; ok {
			continue
		}
		parts = append(parts, (&http.Cookie{Name: c.Name, Value: c.Value}).String())
	}
	for _, c := range fresh {
		if c.MaxAge < 0 {
			continue
		}
		parts = append(parts, (&http.Cookie{Name: c.Name, Value: c.Value}).String())
	}
	r.Header.Del("Cookie")
	if len(parts) > 0 {
		r.Header.Set("Cookie", strings.Join(parts, "; "))
	}
}

type routeContextKey struct{}

// ContextWithRoute stores the classification computed by the gate.
func ContextWithRoute(ctx context.Context, c Classification) context.Context {
	return context.WithValue(ctx, routeContextKey{}, c)
}

// RouteFromContext returns the classification stored by the gate middleware.
func RouteFromContext(ctx context.Context) (Classification, bool) {
	if ctx == nil {
		return Classification{}, false
	}
	c, ok := ctx.Value(routeContextKey{}).(Classification)
	return c, ok
}
