package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"vouchr.org/internal/auth"
	"vouchr.org/internal/guard"
)

type grantsFetcher map[string][]auth.ModuleGrant

func (f grantsFetcher) Fetch(_ context.Context, token string) ([]auth.ModuleGrant, error) {
	return f[token], nil
}

func newConsole(t *testing.T) (http.Handler, *http.Header) {
	t.Helper()
	seen := &http.Header{}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*seen = r.Header.Clone()
		w.Header().Set("X-Upstream-Path", r.URL.Path)
		_, _ = w.Write([]byte("page"))
	}))
	t.Cleanup(upstream.Close)

	target, err := url.Parse(upstream.URL)
	if err != nil {
		t.Fatalf("parse upstream: %v", err)
	}
	fetcher := grantsFetcher{
		"admin": {{Slug: "supplier", Permissions: []auth.PermissionEntry{auth.EntryRecord(auth.Permission{ID: 1, Action: "view_supplier"})}}},
	}
	h := New(ReadyProbe{}, "dev",
		WithGate(newTestGate(t)),
		WithGuard(guard.NewMiddleware(fetcher)),
		WithUpstream(target),
	).Handler()
	return h, seen
}

func TestConsoleRedirectsAnonymous(t *testing.T) {
	h, _ := newConsole(t)
	rec := do(h, http.MethodGet, "/admin/dashboard", "", nil)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
		t.Fatalf("expected redirect to /login, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
}

func TestConsoleProxiesAllowedPageWithIdentity(t *testing.T) {
	h, seen := newConsole(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/suppliers/7", nil)
	req.AddCookie(&http.Cookie{Name: "sb-access-token", Value: "admin"})
	req.Header.Set(headerRole, "super_admin")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || rec.Body.String() != "page" {
		t.Fatalf("expected proxied page, got %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Upstream-Path") != "/admin/suppliers/7" {
		t.Fatalf("unexpected upstream path %q", rec.Header().Get("X-Upstream-Path"))
	}
	if seen.Get(headerUserID) != "u-admin" || seen.Get(headerRole) != "admin" {
		t.Fatalf("identity headers not forwarded correctly: %v", *seen)
	}
}

func TestConsoleGuardDeniesModule(t *testing.T) {
	h, _ := newConsole(t)
	rec := do(h, http.MethodGet, "/admin/vouchers", "admin", nil)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != guard.DefaultFallback {
		t.Fatalf("expected guard redirect, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
}

func TestConsoleLoginPagePassesThroughAnonymous(t *testing.T) {
	h, _ := newConsole(t)
	rec := do(h, http.MethodGet, "/login", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected login page, got %d", rec.Code)
	}
}

func TestNoticeShownOnceAfterDenial(t *testing.T) {
	h, _ := newConsole(t)
	denied := do(h, http.MethodGet, "/admin/vouchers", "admin", nil)

	var notice *http.Cookie
	for _, c := range denied.Result().Cookies() {
		if c.Name == guard.NoticeCookie {
			notice = c
		}
	}
	if notice == nil {
		t.Fatalf("denial did not set %s", guard.NoticeCookie)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/notice", nil)
	req.RemoteAddr = "192.0.2.10:5000"
	req.AddCookie(notice)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["message"] != guard.DeniedMessage {
		t.Fatalf("unexpected notice: %v", body)
	}
	cleared := false
	for _, c := range rec.Result().Cookies() {
		if c.Name == guard.NoticeCookie && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Fatalf("notice cookie not cleared")
	}

	if rec := do(h, http.MethodGet, "/v1/notice", "", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 without a notice, got %d", rec.Code)
	}
}
