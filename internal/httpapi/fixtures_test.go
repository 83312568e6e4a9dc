package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"vouchr.org/internal/auth"
	"vouchr.org/internal/gate"
	"vouchr.org/internal/identity"
	"vouchr.org/internal/roleedit"
)

const testRoleID = "7b7c66f2-38a4-4f55-9a43-4c3f3f0d9a11"

// stubProvider resolves sessions from the access-token cookie value.
type stubProvider struct {
	sessions map[string]auth.Session
}

func (p *stubProvider) CurrentSession(_ context.Context, creds identity.Credentials) (auth.Session, error) {
	if creds.AccessToken == "" {
		return auth.Session{}, identity.ErrNoSession
	}
	sess, ok := p.sessions[creds.AccessToken]
	if !ok {
		return auth.Session{}, identity.ErrInvalidToken
	}
	return sess, nil
}

func (p *stubProvider) ListSecondFactors(context.Context, auth.Session) (identity.Factors, error) {
	return identity.Factors{Enrolled: true, FactorIDs: []string{"totp"}}, nil
}

func (p *stubProvider) AssuranceLevel(_ context.Context, sess auth.Session) (identity.Levels, error) {
	return identity.Levels{Current: sess.AAL, Next: auth.AAL2}, nil
}

func (p *stubProvider) RefreshSession(context.Context, string) (auth.Session, error) {
	return auth.Session{}, identity.ErrInvalidToken
}

func newStubProvider() *stubProvider {
	return &stubProvider{sessions: map[string]auth.Session{
		"super":   {UserID: "u-super", Role: auth.RoleSuperAdmin, Token: "super", AAL: auth.AAL2},
		"admin":   {UserID: "u-admin", Role: auth.RoleAdmin, Token: "admin", AAL: auth.AAL2},
		"pending": {UserID: "u-pending", Role: auth.RoleAdmin, Token: "pending", AAL: auth.AAL1},
		"user":    {UserID: "u-user", Role: auth.RoleUser, Token: "user", AAL: auth.AAL2},
	}}
}

func newTestGate(t *testing.T) *gate.Gate {
	t.Helper()
	table, err := gate.DefaultTable()
	if err != nil {
		t.Fatalf("DefaultTable: %v", err)
	}
	g, err := gate.New(newStubProvider(), nil, table)
	if err != nil {
		t.Fatalf("gate.New: %v", err)
	}
	return g
}

type stubRoleStore struct {
	role   auth.RoleDefinition
	saved  []int
	setErr error
}

func (s *stubRoleStore) Catalog(context.Context) ([]auth.Module, error) {
	return []auth.Module{
		{Slug: "supplier", Permissions: []auth.Permission{
			{ID: 1, Action: "view_supplier"},
			{ID: 2, Action: "create_supplier"},
			{ID: 3, Action: "edit_supplier"},
		}},
	}, nil
}

func (s *stubRoleStore) GetRole(_ context.Context, roleID string) (auth.RoleDefinition, error) {
	if roleID != s.role.ID {
		return auth.RoleDefinition{}, auth.ErrNotFound
	}
	return s.role, nil
}

func (s *stubRoleStore) SetRolePermissions(_ context.Context, roleID string, ids []int) (auth.RoleDefinition, error) {
	if s.setErr != nil {
		return auth.RoleDefinition{}, s.setErr
	}
	s.saved = ids
	out := s.role
	out.PermissionIDs = ids
	return out, nil
}

func newRoleService(t *testing.T, store *stubRoleStore) *roleedit.Service {
	t.Helper()
	svc, err := roleedit.NewService(store)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func do(h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "192.0.2.10:5000"
	if token != "" {
		req.AddCookie(&http.Cookie{Name: gate.DefaultCookieNames.Access, Value: token})
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}
