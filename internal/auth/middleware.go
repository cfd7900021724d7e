// Package auth guards the SSE endpoint of the MCP server.
package auth

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sha1n/ngram-viewer/internal/config"
)

const (
	// APIKeyHeader carries an API key
	APIKeyHeader = "X-API-Key"

	bearerPrefix = "Bearer "
)

// publicPaths bypass authentication
var publicPaths = map[string]bool{
	"/health": true,
}

// IsPublicPath reports whether requests to path skip authentication.
func IsPublicPath(path string) bool {
	return publicPaths[path]
}

// Middleware wraps a handler.
type Middleware func(http.Handler) http.Handler

// checkFunc reports whether a request carries valid credentials.
type checkFunc func(r *http.Request) bool

// NewMiddleware creates the authentication middleware selected by settings.
func NewMiddleware(settings config.AuthSettings) (Middleware, error) {
	switch settings.Type {
	case config.AuthTypeNone, "":
		return func(next http.Handler) http.Handler {
			return next
		}, nil
	case config.AuthTypeBasic:
		if settings.Basic.Username == "" || settings.Basic.Password == "" {
			return nil, fmt.Errorf("basic auth requires non-empty username and password")
		}
		return require(basicCheck(settings.Basic), `Basic realm="ngram-viewer"`), nil
	case config.AuthTypeAPIKey:
		if len(settings.APIKeys) == 0 {
			return nil, fmt.Errorf("apikey auth requires at least one API key")
		}
		return require(apiKeyCheck(settings.APIKeys), ""), nil
	default:
		return nil, fmt.Errorf("unknown auth type: %s", settings.Type)
	}
}

// require rejects requests to non-public paths that fail check.
func require(check checkFunc, challenge string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if IsPublicPath(r.URL.Path) || check(r) {
				next.ServeHTTP(w, r)
				return
			}
			slog.Debug("Rejected unauthenticated request", "path", r.URL.Path, "remote", r.RemoteAddr)
			if challenge != "" {
				w.Header().Set("WWW-Authenticate", challenge)
			}
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
		})
	}
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func basicCheck(settings config.BasicAuthSettings) checkFunc {
	return func(r *http.Request) bool {
		user, pass, ok := r.BasicAuth()
		// Evaluate both comparisons regardless of the first result
		userMatch := equal(user, settings.Username)
		passMatch := equal(pass, settings.Password)
		return ok && userMatch && passMatch
	}
}

// apiKeyCheck accepts a key from the X-API-Key header or an Authorization bearer token.
func apiKeyCheck(apiKeys []string) checkFunc {
	return func(r *http.Request) bool {
		key := requestKey(r)
		if key == "" {
			return false
		}
		valid := false
		for _, k := range apiKeys {
			if equal(key, k) {
				valid = true
			}
		}
		return valid
	}
}

func requestKey(r *http.Request) string {
	if key := r.Header.Get(APIKeyHeader); key != "" {
		return key
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, bearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(h, bearerPrefix))
	}
	return ""
}
