package httpapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const adminAudience = "dupeguard"

type authError struct {
	status  int
	code    string
	message string
}

func (e *authError) Error() string {
	return e.message
}

func unauthorized(message string) *authError {
	return &authError{status: http.StatusUnauthorized, code: "unauthorized", message: message}
}

// AdminClaims is the payload of an admin bearer token.
type AdminClaims struct {
	jwt.RegisteredClaims
}

// IssueAdminToken mints an HS256 admin token for the dashboard and scripts.
func IssueAdminToken(secret, subject string, ttl time.Duration, now time.Time) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("admin secret is empty")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	claims := AdminClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Audience:  jwt.ClaimStrings{adminAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func parseAdminToken(raw, secret string, now time.Time) (AdminClaims, *authError) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return AdminClaims{}, unauthorized("missing or invalid bearer token")
	}
	claims := &AdminClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(adminAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return AdminClaims{}, unauthorized("token expired")
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return AdminClaims{}, unauthorized("invalid token audience")
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return AdminClaims{}, unauthorized("invalid token signature")
	case err != nil || !token.Valid:
		return AdminClaims{}, unauthorized("invalid token")
	}
	return *claims, nil
}

// bearerToken reads the Authorization header, falling back to a token query
// parameter for websocket upgrades where browsers cannot set headers.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	if header != "" {
		return ""
	}
	return r.URL.Query().Get("token")
}

// verifyShopifyHMAC checks X-Shopify-Hmac-Sha256: base64 HMAC-SHA256 of the
// raw body keyed by the app's shared secret.
func verifyShopifyHMAC(secret, signature string, body []byte) *authError {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return unauthorized("missing webhook signature")
	}
	got, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return unauthorized("malformed webhook signature")
	}
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return unauthorized("webhook signature mismatch")
	}
	return nil
}
