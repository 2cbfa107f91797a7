// Package authn guards a node's operator API with a static bearer token.
package authn

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/accordsai/negotiation/pkg/errors"
	"github.com/accordsai/negotiation/pkg/httpx"
	"github.com/accordsai/negotiation/pkg/logging"
)

var ErrUnauthorized = errors.ErrUnauthorized

// Operator checks Authorization headers against one token. Only the
// token's SHA-256 is kept. A zero token disables the check.
type Operator struct {
	tokenHash string
	log       *logging.Logger
}

func NewOperator(token string, log *logging.Logger) *Operator {
	if log == nil {
		log = logging.NopLogger()
	}
	o := &Operator{log: log}
	if token != "" {
		o.tokenHash = HashToken(token)
	}
	return o
}

func (o *Operator) Enabled() bool { return o.tokenHash != "" }

// Authenticate validates an Authorization header value.
func (o *Operator) Authenticate(authorization string) error {
	if !o.Enabled() {
		return nil
	}
	token, ok := ParseBearerToken(authorization)
	if !ok {
		return ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(HashToken(token)), []byte(o.tokenHash)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// Middleware rejects unauthenticated requests with 401.
func (o *Operator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := o.Authenticate(r.Header.Get("Authorization")); err != nil {
			o.log.Warn("operator auth failed", "endpoint", r.Method+" "+r.URL.Path, "remote", r.RemoteAddr)
			httpx.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid bearer token", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func ParseBearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", false
	}
	return token, true
}

func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
