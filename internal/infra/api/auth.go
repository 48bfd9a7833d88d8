package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"activation-platform/internal/infra/logging"
	"activation-platform/internal/infra/metrics"
)

const (
	apiKeyHeader = "X-API-Key"
	adminRole    = "admin"
	tokenIssuer  = "activation-platform"
)

var errMissingToken = errors.New("missing token")

// AuthManager mints and verifies short-lived HS256 admin tokens.
type AuthManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewAuthManager(secret string, ttl time.Duration) *AuthManager {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &AuthManager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func (a *AuthManager) Mint(subject string) (string, time.Time, error) {
	now := a.now()
	exp := now.Add(a.ttl)
	claims := AdminClaims{
		Role: adminRole,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func (a *AuthManager) ParseFromRequest(r *http.Request) (*AdminClaims, error) {
	hdr := r.Header.Get("Authorization")
	if len(hdr) < 7 || !strings.EqualFold(hdr[:7], "bearer ") {
		return nil, errMissingToken
	}
	return a.parse(strings.TrimSpace(hdr[7:]))
}

func (a *AuthManager) parse(tok string) (*AdminClaims, error) {
	claims := &AdminClaims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil || !tkn.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Role != adminRole {
		return nil, errors.New("insufficient role")
	}
	return claims, nil
}

// AdminGate accepts a static API key or a bearer token minted by AuthManager.
// With neither configured (dev mode only) every request passes.
type AdminGate struct {
	apiKey string
	auth   *AuthManager
	log    *zerolog.Logger
}

func NewAdminGate(apiKey string, auth *AuthManager, logger *zerolog.Logger) *AdminGate {
	return &AdminGate{apiKey: apiKey, auth: auth, log: logger}
}

func (g *AdminGate) validKey(r *http.Request) bool {
	got := r.Header.Get(apiKeyHeader)
	return g.apiKey != "" && got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(g.apiKey)) == 1
}

func (g *AdminGate) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if g.apiKey == "" && g.auth == nil {
				metrics.IncAdminAuth("open", "ok")
				next.ServeHTTP(w, r)
				return
			}
			if g.validKey(r) {
				metrics.IncAdminAuth("api_key", "ok")
				next.ServeHTTP(w, r.WithContext(logging.WithSubject(r.Context(), "api_key")))
				return
			}
			if g.auth != nil {
				claims, err := g.auth.ParseFromRequest(r)
				if err == nil {
					metrics.IncAdminAuth("jwt", "ok")
					next.ServeHTTP(w, r.WithContext(logging.WithSubject(r.Context(), claims.Subject)))
					return
				}
				if !errors.Is(err, errMissingToken) {
					metrics.IncAdminAuth("jwt", "rejected")
					logging.With(r.Context(), g.log).Info().Err(err).Msg("admin token rejected")
					writeJSONError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
					return
				}
			}
			metrics.IncAdminAuth("api_key", "rejected")
			writeJSONError(w, http.StatusUnauthorized, "unauthorized", "admin credentials required")
		})
	}
}

// TokenHandler exchanges a valid API key for a bearer token.
func (g *AdminGate) TokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !g.validKey(r) {
			metrics.IncAdminAuth("token", "rejected")
			writeJSONError(w, http.StatusUnauthorized, "unauthorized", "valid "+apiKeyHeader+" required")
			return
		}
		tok, exp, err := g.auth.Mint("api_key")
		if err != nil {
			logging.With(r.Context(), g.log).Error().Err(err).Msg("mint admin token")
			writeJSONError(w, http.StatusInternalServerError, "internal_error", "internal error")
			return
		}
		metrics.IncAdminAuth("token", "ok")
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"data": map[string]any{
				"token":     tok,
				"tokenType": "Bearer",
				"expiresAt": exp.UTC(),
			},
		})
	}
}
