package chi

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"
)

// Health and metrics stay reachable for probes and scrapers.
var exemptPaths = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

// adminKeys holds SHA-256 digests of the configured admin API keys.
type adminKeys [][sha256.Size]byte

func newAdminKeys(keys []string) adminKeys {
	out := make(adminKeys, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			out = append(out, sha256.Sum256([]byte(k)))
		}
	}
	return out
}

// match compares the token against every key in constant time.
func (k adminKeys) match(token string) bool {
	sum := sha256.Sum256([]byte(token))
	found := 0
	for i := range k {
		found |= subtle.ConstantTimeCompare(sum[:], k[i][:])
	}
	return found == 1
}

// bearerToken extracts the token from an Authorization header. The scheme
// name is case-insensitive.
func bearerToken(header string) (string, string) {
	if header == "" {
		return "", "missing authorization header"
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", "authorization header must use Bearer scheme"
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", "empty bearer token"
	}
	return token, ""
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="docdex-admin"`)
	writeError(w, http.StatusUnauthorized, ErrorCodeUnauthorized, message)
}

// BearerAuthMiddleware guards the admin API with static API keys. Empty keys
// are ignored; with no keys left authentication is disabled.
func BearerAuthMiddleware(apiKeys []string) func(http.Handler) http.Handler {
	keys := newAdminKeys(apiKeys)

	return func(next http.Handler) http.Handler {
		if len(keys) == 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := exemptPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}
			token, problem := bearerToken(r.Header.Get("Authorization"))
			if problem != "" {
				unauthorized(w, problem)
				return
			}
			if !keys.match(token) {
				unauthorized(w, "invalid api key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
