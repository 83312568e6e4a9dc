package httpapi

import (
	"net/http"
	"strings"

	"vouchr.org/internal/auth"
	"vouchr.org/internal/gate"
)

// withSession runs the gate for API requests. Instead of redirecting, a missing session
// answers 401 and a pending MFA step answers 403 naming the step.
func (a *API) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ev := a.gate.Evaluate(r.Context(), r, r.URL.Path)
		for _, c := range ev.Cookies {
			http.SetCookie(w, c)
		}
		if ev.Decision.Action == gate.ActionRedirect {
			if !ev.HasSession {
				writeError(w, r, http.StatusUnauthorized, "authentication required")
				return
			}
			writeError(w, r, http.StatusForbidden, strings.ReplaceAll(string(ev.Decision.Reason), "_", " "))
			return
		}
		ctx := auth.ContextWithSession(r.Context(), ev.Session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFromRequest(r *http.Request) auth.Session {
	sess, _ := auth.SessionFromContext(r.Context())
	return sess
}
