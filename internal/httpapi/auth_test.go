package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyShopifyHMAC(t *testing.T) {
	body := []byte(`{"id":1}`)
	assert.Nil(t, verifyShopifyHMAC("secret", signWebhook("secret", body), body))
	assert.Nil(t, verifyShopifyHMAC("secret", " "+signWebhook("secret", body)+" ", body))

	err := verifyShopifyHMAC("secret", signWebhook("secret", body), []byte(`{"id":2}`))
	require.NotNil(t, err)
	assert.Equal(t, http.StatusUnauthorized, err.status)
	assert.Equal(t, "webhook signature mismatch", err.message)

	err = verifyShopifyHMAC("secret", "%%%not-base64", body)
	require.NotNil(t, err)
	assert.Equal(t, "malformed webhook signature", err.message)
}

func TestParseAdminTokenClaims(t *testing.T) {
	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	token, err := IssueAdminToken("k", "alice", 0, now)
	require.NoError(t, err)

	claims, authErr := parseAdminToken(token, "k", now.Add(23*time.Hour))
	require.Nil(t, authErr)
	assert.Equal(t, "alice", claims.Subject)

	_, authErr = parseAdminToken(token, "k", now.Add(25*time.Hour))
	require.NotNil(t, authErr)
	assert.Equal(t, "token expired", authErr.message)

	_, authErr = parseAdminToken("", "k", now)
	require.NotNil(t, authErr)
	_, authErr = parseAdminToken("a.b.c", "k", now)
	require.NotNil(t, authErr)
}

func TestBearerTokenSources(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/events?token=q", nil)
	assert.Equal(t, "q", bearerToken(req))

	req.Header.Set("Authorization", "Bearer h")
	assert.Equal(t, "h", bearerToken(req))

	req.Header.Set("Authorization", "Basic Zm9vOmJhcg==")
	assert.Empty(t, bearerToken(req))
}

func TestClientLimiterEvictsIdleClients(t *testing.T) {
	limiter := newClientLimiter(2, 1)
	start := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	assert.True(t, limiter.allow("ip:a", start))
	assert.False(t, limiter.allow("ip:a", start))
	assert.True(t, limiter.allow("ip:a", start.Add(600*time.Millisecond)))
	assert.Equal(t, 1, limiter.retryAfterSeconds())

	assert.True(t, limiter.allow("ip:b", start.Add(10*time.Minute)))
	assert.Len(t, limiter.clients, 1)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[::1]:8080"
	assert.Equal(t, "ip:::1", clientKey(req, ""))
	assert.Equal(t, "sub:ops", clientKey(req, "ops"))
}
