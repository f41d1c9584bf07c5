package identity

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/sheetgate/sheetgate/internal/platform/httpx"
)

// Middleware wires bearer-token authentication for HTTP handlers.
type Middleware struct {
	Verifier *Verifier
	Logger   *slog.Logger
}

// Require validates Authorization: Bearer <token> and stores the verified
// identity in the request context. Requests without a valid token get 401.
func (m Middleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="api", error="invalid_token", error_description="missing bearer token"`)
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}

		ident, err := m.Verifier.Verify(raw)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Warn("bearer token rejected", slog.Any("error", err))
			}
			w.Header().Set("WWW-Authenticate", `Bearer realm="api", error="invalid_token"`)
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), ident)))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	ah := strings.TrimSpace(r.Header.Get("Authorization"))
	if ah == "" || !strings.HasPrefix(strings.ToLower(ah), "bearer ") {
		return "", false
	}
	return strings.TrimSpace(ah[len("Bearer "):]), true
}
