package auth

import (
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
)

const identityContextKey = "auth.identity"

// Authenticator enforces AUTH_MODE on the dashboard API and exposes the
// /auth/session, /auth/login and /auth/logout endpoints. A nil
// *Authenticator is never constructed for mode "none" — NewServer simply
// omits it, leaving every route unauthenticated.
type Authenticator struct {
	mode         Mode
	staticUsers  map[string]StaticUser
	trustedCIDRs []*net.IPNet
}

// New builds an Authenticator for mode. Static and proxy configuration
// (AUTH_USERS, AUTH_TRUSTED_PROXY_CIDRS, ...) is read from the environment
// at construction time.
func New(mode Mode) *Authenticator {
	return &Authenticator{
		mode:         mode,
		staticUsers:  ParseStaticUsers(),
		trustedCIDRs: trustedProxyCIDRs(),
	}
}

// IdentityFromContext returns the authenticated caller attached to the
// request context by Middleware, if any.
func IdentityFromContext(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(identityContextKey)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}

// Middleware resolves the caller's identity for every request under /api
// and rejects unauthenticated ones with 401. Mode "proxy" trusts header
// identity only from a configured CIDR; mode "static" trusts the signed
// session cookie.
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			id Identity
			ok bool
		)
		switch a.mode {
		case ModeProxy:
			id, ok = identityFromProxyHeaders(c.Request, a.trustedCIDRs)
		case ModeStatic:
			if cookie, err := c.Request.Cookie(sessionCookieName); err == nil {
				if resolved, err := verifySessionToken(cookie.Value); err == nil {
					id, ok = resolved, true
				}
			}
		default:
			ok = true
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Set(identityContextKey, id)
		c.Next()
	}
}

// RequireRole returns middleware rejecting callers without role with 403.
// Intended to be chained after Middleware on routes restricted beyond the
// default viewer access (e.g. settings writes, review decisions).
func RequireRole(role Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := IdentityFromContext(c)
		if !ok || !id.HasRole(role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
			return
		}
		c.Next()
	}
}

type sessionResponse struct {
	Authenticated bool     `json:"authenticated"`
	Username      string   `json:"username,omitempty"`
	Roles         []string `json:"roles,omitempty"`
	Mode          Mode     `json:"mode"`
}

// SessionHandler reports the current caller's identity, or
// authenticated=false when mode is "none" or no valid session/proxy header
// is present. Unlike Middleware, it never rejects the request.
func (a *Authenticator) SessionHandler(c *gin.Context) {
	var id Identity
	var ok bool
	switch a.mode {
	case ModeProxy:
		id, ok = identityFromProxyHeaders(c.Request, a.trustedCIDRs)
	case ModeStatic:
		if cookie, err := c.Request.Cookie(sessionCookieName); err == nil {
			if resolved, err := verifySessionToken(cookie.Value); err == nil {
				id, ok = resolved, true
			}
		}
	}
	if !ok {
		c.JSON(http.StatusOK, sessionResponse{Authenticated: false, Mode: a.mode})
		return
	}
	c.JSON(http.StatusOK, sessionResponse{
		Authenticated: true,
		Username:      id.Username,
		Roles:         roleNames(id.Roles),
		Mode:          a.mode,
	})
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginHandler authenticates a static user and sets the session cookie.
// Only meaningful for mode "static"; other modes reject with 400 since
// there is nothing to log in to.
func (a *Authenticator) LoginHandler(c *gin.Context) {
	if a.mode != ModeStatic {
		c.JSON(http.StatusBadRequest, gin.H{"error": "login is only available in static auth mode"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}
	id, err := authenticateStatic(a.staticUsers, req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	token, err := createSessionToken(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create session"})
		return
	}
	setSessionCookie(c.Writer, token)
	c.JSON(http.StatusOK, sessionResponse{
		Authenticated: true,
		Username:      id.Username,
		Roles:         roleNames(id.Roles),
		Mode:          a.mode,
	})
}

// LogoutHandler clears the session cookie.
func (a *Authenticator) LogoutHandler(c *gin.Context) {
	clearSessionCookie(c.Writer)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func roleNames(roles map[Role]bool) []string {
	names := make([]string, 0, len(roles))
	for r, held := range roles {
		if held {
			names = append(names, string(r))
		}
	}
	return names
}
