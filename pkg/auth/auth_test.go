package auth

import (
	"encoding/base64"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword_RoundTripsWithVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.True(t, VerifyPassword("correct horse battery staple", hash))
	assert.False(t, VerifyPassword("wrong password", hash))
}

func TestVerifyPassword_AcceptsPlainScheme(t *testing.T) {
	assert.True(t, VerifyPassword("s3cret", "plain$s3cret"))
	assert.False(t, VerifyPassword("other", "plain$s3cret"))
}

func TestVerifyPassword_RejectsMalformedHash(t *testing.T) {
	assert.False(t, VerifyPassword("anything", "not-a-valid-hash"))
	assert.False(t, VerifyPassword("anything", "pbkdf2_sha256$notanumber$xx$yy"))
}

func TestParseStaticUsers_ParsesMultipleEntriesWithRoles(t *testing.T) {
	t.Setenv("AUTH_USERS", "alice:plain$pw1:admin;bob:plain$pw2:analyst,viewer")
	users := ParseStaticUsers()
	require.Len(t, users, 2)
	assert.True(t, users["alice"].Roles[RoleAdmin])
	assert.True(t, users["bob"].Roles[RoleAnalyst])
	assert.True(t, users["bob"].Roles[RoleViewer])
}

func TestParseStaticUsers_SkipsMalformedEntry(t *testing.T) {
	t.Setenv("AUTH_USERS", "alice:plain$pw1:admin;brokenentry;bob:plain$pw2")
	users := ParseStaticUsers()
	_, hasAlice := users["alice"]
	_, hasBob := users["bob"]
	assert.True(t, hasAlice)
	assert.True(t, hasBob)
	assert.Len(t, users, 2)
}

func TestSessionToken_RoundTripsAndRejectsTampering(t *testing.T) {
	t.Setenv("AUTH_SESSION_SECRET", "test-secret-value")
	sessionSecretOnce = sync.Once{}

	id := Identity{Username: "alice", Roles: map[Role]bool{RoleAdmin: true, RoleViewer: true}}
	token, err := createSessionToken(id)
	require.NoError(t, err)

	got, err := verifySessionToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.True(t, got.HasRole(RoleAdmin))

	_, err = verifySessionToken(token + "tampered")
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestSessionToken_RejectsExpiredToken(t *testing.T) {
	t.Setenv("AUTH_SESSION_SECRET", "test-secret-value")
	sessionSecretOnce = sync.Once{}

	expired := sessionPayload{
		Subject:   "alice",
		Roles:     map[Role]bool{RoleViewer: true},
		IssuedAt:  time.Now().Add(-2 * time.Hour).Unix(),
		ExpiresAt: time.Now().Add(-time.Hour).Unix(),
	}
	raw, err := json.Marshal(expired)
	require.NoError(t, err)
	encodedPayload := base64.RawURLEncoding.EncodeToString(raw)
	token := encodedPayload + "." + signPayload([]byte(encodedPayload))

	_, err = verifySessionToken(token)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestIdentityFromProxyHeaders_RequiresTrustedRemote(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/investigations", nil)
	req.RemoteAddr = "203.0.113.5:54321"
	req.Header.Set("X-Forwarded-User", "carol")

	_, ok := identityFromProxyHeaders(req, nil)
	assert.False(t, ok, "no trusted CIDRs configured, header must not be trusted")
}

func TestIdentityFromProxyHeaders_MapsGroupsToRoles(t *testing.T) {
	t.Setenv("AUTH_PROXY_ADMIN_GROUPS", "sec-admins")
	t.Setenv("AUTH_PROXY_ANALYST_GROUPS", "sec-analysts")

	_, ipNet, err := net.ParseCIDR("10.0.0.0/8")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/investigations", nil)
	req.RemoteAddr = "10.1.2.3:54321"
	req.Header.Set("X-Forwarded-User", "carol")
	req.Header.Set("X-Forwarded-Groups", "sec-analysts,everyone")

	id, ok := identityFromProxyHeaders(req, []*net.IPNet{ipNet})
	require.True(t, ok)
	assert.Equal(t, "carol", id.Username)
	assert.True(t, id.HasRole(RoleAnalyst))
	assert.False(t, id.HasRole(RoleAdmin))
}
