// auth.go - Stateless JWT sessions carried in an HttpOnly cookie.
//
// Tokens encode the applicant id and role; validity is determined purely by
// signature and expiry at request time. Nothing is persisted server-side.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultSessionTTL = 24 * time.Hour

// AuthConfig holds the token issuer settings shared by HTTP handlers.
type AuthConfig struct {
	Secret     string
	TTL        time.Duration
	CookieName string
	// Secure marks the session cookie HTTPS-only. Off for local runs.
	Secure bool
}

// Claims is the session token payload.
type Claims struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

func (a AuthConfig) cookieName() string {
	if a.CookieName == "" {
		return "portal_session"
	}
	return a.CookieName
}

func (a AuthConfig) ttl() time.Duration {
	if a.TTL <= 0 {
		return defaultSessionTTL
	}
	return a.TTL
}

// GenerateToken issues a signed session token for the given applicant.
func (a AuthConfig) GenerateToken(userID, role string) (string, time.Time, error) {
	exp := time.Now().Add(a.ttl())
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(a.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return tok, exp, nil
}

// ValidateToken checks signature and expiry and returns the claims.
func (a AuthConfig) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		return []byte(a.Secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrSignatureInvalid
	}
	return claims, nil
}

// setSessionCookie writes the session cookie on a successful login.
func (a AuthConfig) setSessionCookie(w http.ResponseWriter, token string, exp time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.cookieName(),
		Value:    token,
		Path:     "/",
		Expires:  exp,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   a.Secure,
	})
}

// clearSessionCookie expires the session cookie.
func (a AuthConfig) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.cookieName(),
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   a.Secure,
	})
}

// sessionClaims extracts and validates the session from the request cookie.
func (a AuthConfig) sessionClaims(r *http.Request) (*Claims, error) {
	c, err := r.Cookie(a.cookieName())
	if err != nil {
		return nil, err
	}
	return a.ValidateToken(c.Value)
}

type claimsKey struct{}

// ClaimsFromContext returns the authenticated session claims, if any.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*Claims)
	return c, ok
}

// requireAuth rejects requests without a valid session token and stores the
// claims on the request context for downstream handlers.
func (a AuthConfig) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := a.sessionClaims(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
