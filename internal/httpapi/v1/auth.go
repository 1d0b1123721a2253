package v1

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
)

// AuthConfig enables HS256 bearer tokens. Issuer and Audience are checked only when set.
type AuthConfig struct {
	Secret   string
	Issuer   string
	Audience string
}

type jwtClaims struct {
	Issuer    string `json:"iss,omitempty"`
	Subject   string `json:"sub,omitempty"`
	Audience  any    `json:"aud,omitempty"` // string or []string
	ExpiresAt int64  `json:"exp,omitempty"`
	NotBefore int64  `json:"nbf,omitempty"`
	IssuedAt  int64  `json:"iat,omitempty"`
}

var errTokenRejected = errors.New("token rejected")

func parseBearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, tok, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}

func verifyHS256(token, secret string) (jwtClaims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return jwtClaims{}, errors.New("invalid token format")
	}
	headerB, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return jwtClaims{}, errors.New("bad header b64")
	}
	payloadB, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return jwtClaims{}, errors.New("bad payload b64")
	}
	sigB, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return jwtClaims{}, errors.New("bad signature b64")
	}

	var hdr struct{ Alg, Typ string }
	if err := json.Unmarshal(headerB, &hdr); err != nil {
		return jwtClaims{}, errors.New("bad header json")
	}
	if !strings.EqualFold(hdr.Alg, "HS256") {
		return jwtClaims{}, errors.New("unsupported alg")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(parts[0] + "." + parts[1]))
	if !hmac.Equal(sigB, mac.Sum(nil)) {
		return jwtClaims{}, errors.New("invalid signature")
	}

	var claims jwtClaims
	if err := json.Unmarshal(payloadB, &claims); err != nil {
		return jwtClaims{}, errors.New("bad claims json")
	}
	return claims, nil
}

// check applies time and issuer/audience constraints to the claims.
func (c jwtClaims) check(cfg AuthConfig, now time.Time) error {
	unix := now.Unix()
	switch {
	case c.NotBefore != 0 && unix < c.NotBefore:
		return errTokenRejected
	case c.ExpiresAt != 0 && unix >= c.ExpiresAt:
		return errTokenRejected
	case cfg.Issuer != "" && !strings.EqualFold(c.Issuer, cfg.Issuer):
		return errTokenRejected
	case cfg.Audience != "" && !audContains(c.Audience, cfg.Audience):
		return errTokenRejected
	}
	return nil
}

func audContains(aud any, expected string) bool {
	switch v := aud.(type) {
	case string:
		return strings.EqualFold(v, expected)
	case []any:
		for _, it := range v {
			if s, ok := it.(string); ok && strings.EqualFold(s, expected) {
				return true
			}
		}
	}
	return false
}

func publicPath(p string) bool {
	switch p {
	case "/healthz", "/readyz", "/metrics":
		return true
	}
	return strings.HasPrefix(p, "/v1/dictionary/")
}

// authJWT enforces Authorization: Bearer <HS256 JWT> and stores the token
// subject in the request context.
func authJWT(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			tok, ok := parseBearerToken(r)
			if !ok {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			claims, err := verifyHS256(tok, cfg.Secret)
			if err == nil {
				err = claims.check(cfg, time.Now())
			}
			if err != nil {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			ctx := r.Context()
			if claims.Subject != "" {
				ctx = context.WithValue(ctx, ctxKeySubject, claims.Subject)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
