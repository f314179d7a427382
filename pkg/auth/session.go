package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"
)

const sessionCookieName = "soctalk_session"

var (
	// ErrInvalidCredentials is returned by authenticateStatic for an unknown user
	// or wrong password.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrInvalidSession is returned by verifySessionToken for a missing,
	// malformed, tampered, or expired cookie.
	ErrInvalidSession = errors.New("auth: invalid session")
)

type sessionPayload struct {
	Subject   string        `json:"sub"`
	Roles     map[Role]bool `json:"roles"`
	IssuedAt  int64         `json:"iat"`
	ExpiresAt int64         `json:"exp"`
}

var (
	sessionSecretOnce sync.Once
	sessionSecret     []byte
)

// sessionSigningKey returns AUTH_SESSION_SECRET, or lazily generates and
// caches a random process-lifetime key with a warning, so a deployment that
// forgets to set it still works but is told every session will be
// invalidated on restart.
func sessionSigningKey() []byte {
	sessionSecretOnce.Do(func() {
		if v := os.Getenv("AUTH_SESSION_SECRET"); v != "" {
			sessionSecret = []byte(v)
			return
		}
		slog.Warn("auth: AUTH_SESSION_SECRET not set, generating an ephemeral key; sessions will not survive a restart")
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			panic(fmt.Sprintf("auth: generate session secret: %v", err))
		}
		sessionSecret = key
	})
	return sessionSecret
}

func sessionTTL() time.Duration {
	if v := os.Getenv("AUTH_SESSION_TTL_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 12 * time.Hour
}

func signPayload(payload []byte) string {
	mac := hmac.New(sha256.New, sessionSigningKey())
	mac.Write(payload)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// createSessionToken builds "base64url(payload).base64url(signature)".
func createSessionToken(identity Identity) (string, error) {
	now := time.Now().UTC()
	payload := sessionPayload{
		Subject:   identity.Username,
		Roles:     identity.Roles,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(sessionTTL()).Unix(),
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("auth: marshal session payload: %w", err)
	}
	encodedPayload := base64.RawURLEncoding.EncodeToString(raw)
	return encodedPayload + "." + signPayload([]byte(encodedPayload)), nil
}

// verifySessionToken validates the signature and expiry of a session
// cookie value and returns the identity it encodes.
func verifySessionToken(token string) (Identity, error) {
	dot := -1
	for i := len(token) - 1; i >= 0; i-- {
		if token[i] == '.' {
			dot = i
			break
		}
	}
	if dot < 0 {
		return Identity{}, ErrInvalidSession
	}
	encodedPayload, signature := token[:dot], token[dot+1:]

	expected := signPayload([]byte(encodedPayload))
	if subtle.ConstantTimeCompare([]byte(signature), []byte(expected)) != 1 {
		return Identity{}, ErrInvalidSession
	}

	raw, err := base64.RawURLEncoding.DecodeString(encodedPayload)
	if err != nil {
		return Identity{}, ErrInvalidSession
	}
	var payload sessionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Identity{}, ErrInvalidSession
	}
	if time.Now().UTC().Unix() > payload.ExpiresAt {
		return Identity{}, ErrInvalidSession
	}
	if payload.Roles == nil {
		payload.Roles = map[Role]bool{RoleViewer: true}
	}
	return Identity{Username: payload.Subject, Roles: payload.Roles, Source: "static"}, nil
}

func sessionCookieSecure() bool {
	v := os.Getenv("AUTH_SESSION_COOKIE_SECURE")
	return v == "1" || v == "true"
}

func setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   sessionCookieSecure(),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(sessionTTL().Seconds()),
	})
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   sessionCookieSecure(),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}
