package httpapi

import (
	"net/http"
	"net/http/httputil"

	"go.uber.org/zap"

	"vouchr.org/internal/auth"
)

// Identity headers forwarded to the console frontend. Client-supplied values are dropped.
const (
	headerUserID = "X-Vouchr-User-Id"
	headerRole   = "X-Vouchr-Role"
)

// consoleHandler gates page requests, guards admin modules and proxies the rest upstream.
func (a *API) consoleHandler() http.Handler {
	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(a.upstream)
			pr.SetXForwarded()
			pr.Out.Header.Del(headerUserID)
			pr.Out.Header.Del(headerRole)
			if sess, ok := auth.SessionFromContext(pr.In.Context()); ok {
				pr.Out.Header.Set(headerUserID, sess.UserID)
				pr.Out.Header.Set(headerRole, string(sess.Role))
			}
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			a.logger().Warn("upstream unavailable", zap.String("path", r.URL.Path), zap.Error(err))
			writeError(w, r, http.StatusBadGateway, "upstream unavailable")
		},
	}

	var h http.Handler = proxy
	if a.guard != nil {
		h = a.guard.Wrap(h)
	}
	return a.gate.Middleware(h)
}
