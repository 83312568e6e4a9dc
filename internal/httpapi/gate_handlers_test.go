package httpapi

import (
	"net/http"
	"testing"
)

func TestGateDecisionEndpoint(t *testing.T) {
	h := New(ReadyProbe{}, "dev", WithGate(newTestGate(t))).Handler()

	cases := []struct {
		name     string
		token    string
		path     string
		action   string
		location string
		reason   string
	}{
		{"anonymous admin page", "", "/admin/dashboard", "redirect", "/login", "no_session"},
		{"anonymous login", "", "/login", "allow", "", "auth_page"},
		{"signup always disabled", "", "/signup", "redirect", "/login", "signup_disabled"},
		{"step-up required", "pending", "/admin/dashboard", "redirect", "/verify-mfa", "mfa_verification_required"},
		{"verified admin on verify page", "admin", "/verify-mfa", "redirect", "/admin/dashboard", "mfa_already_verified"},
		{"verified user after login", "user", "/login", "redirect", "/dashboard", "signed_in"},
		{"verified admin module page", "admin", "/admin/suppliers", "allow", "", "pass_through"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(h, http.MethodGet, "/v1/gate/decision?path="+tc.path, tc.token, nil)
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
			}
			body := decodeBody(t, rec)
			if body["action"] != tc.action || body["reason"] != tc.reason {
				t.Fatalf("unexpected decision: %v", body)
			}
			if loc, _ := body["location"].(string); loc != tc.location {
				t.Fatalf("unexpected location %q, want %q", loc, tc.location)
			}
		})
	}
}

func TestGateDecisionReportsAssurance(t *testing.T) {
	h := New(ReadyProbe{}, "dev", WithGate(newTestGate(t))).Handler()
	rec := do(h, http.MethodGet, "/v1/gate/decision?path=/admin/suppliers/1", "pending", nil)
	body := decodeBody(t, rec)
	if body["module"] != "supplier" || body["signed_in"] != true {
		t.Fatalf("unexpected body: %v", body)
	}
	as, ok := body["assurance"].(map[string]any)
	if !ok {
		t.Fatalf("expected assurance block: %v", body)
	}
	if as["needs_verification"] != true || as["current"] != "aal1" || as["next"] != "aal2" {
		t.Fatalf("unexpected assurance: %v", as)
	}
}

func TestGateDecisionRejectsBadPath(t *testing.T) {
	h := New(ReadyProbe{}, "dev", WithGate(newTestGate(t))).Handler()
	for _, q := range []string{"", "?path=", "?path=relative", "?path=//evil.example"} {
		if rec := do(h, http.MethodGet, "/v1/gate/decision"+q, "", nil); rec.Code != http.StatusBadRequest {
			t.Fatalf("%q: expected 400, got %d", q, rec.Code)
		}
	}
}
