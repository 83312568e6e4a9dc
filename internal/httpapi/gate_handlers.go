package httpapi

import (
	"net/http"
	"strings"

	"vouchr.org/internal/auth"
	"vouchr.org/internal/gate"
)

type assuranceResponse struct {
	Enrolled          bool     `json:"enrolled"`
	Current           auth.AAL `json:"current"`
	Next              auth.AAL `json:"next"`
	NeedsVerification bool     `json:"needs_verification"`
}

type decisionResponse struct {
	gate.Decision
	Path      string             `json:"path"`
	Route     string             `json:"route"`
	Module    string             `json:"module,omitempty"`
	SignedIn  bool               `json:"signed_in"`
	Role      auth.Role          `json:"role,omitempty"`
	Assurance *assuranceResponse `json:"assurance,omitempty"`
}

// handleGateDecision answers where the caller would land on path, so the post-login
// redirect in the browser uses the server's decision.
func (a *API) handleGateDecision(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSpace(r.URL.Query().Get("path"))
	if path == "" {
		writeError(w, r, http.StatusBadRequest, "path is required")
		return
	}
	if !strings.HasPrefix(path, "/") || strings.HasPrefix(path, "//") {
		writeError(w, r, http.StatusBadRequest, "path must be an absolute console path")
		return
	}

	ev := a.gate.Evaluate(r.Context(), r, path)
	for _, c := range ev.Cookies {
		http.SetCookie(w, c)
	}
	resp := decisionResponse{
		Decision: ev.Decision,
		Path:     path,
		Route:    ev.Route.Kind.String(),
		Module:   ev.Route.Module,
		SignedIn: ev.HasSession,
	}
	if ev.HasSession {
		resp.Role = ev.Session.Role
		if ev.Assurance.Current != "" {
			resp.Assurance = &assuranceResponse{
				Enrolled:          ev.Assurance.Enrolled,
				Current:           ev.Assurance.Current,
				Next:              ev.Assurance.Next,
				NeedsVerification: ev.Assurance.NeedsVerification(),
			}
		}
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, resp)
}
