package auth

import (
	"net"
	"net/http"
	"os"
	"strings"
)

// trustedProxyCIDRs parses AUTH_TRUSTED_PROXY_CIDRS, a comma-separated list
// of CIDR blocks. An empty or unparseable entry is skipped.
func trustedProxyCIDRs() []*net.IPNet {
	raw := os.Getenv("AUTH_TRUSTED_PROXY_CIDRS")
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var nets []*net.IPNet
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		_, ipNet, err := net.ParseCIDR(part)
		if err != nil {
			continue
		}
		nets = append(nets, ipNet)
	}
	return nets
}

func isTrustedRemote(remoteAddr string, trusted []*net.IPNet) bool {
	if len(trusted) == 0 {
		return false
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for _, ipNet := range trusted {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}

func proxyGroupRoleMap() (adminGroups, analystGroups map[string]bool) {
	adminGroups = groupSet(envOrDefault("AUTH_PROXY_ADMIN_GROUPS", "admin"))
	analystGroups = groupSet(envOrDefault("AUTH_PROXY_ANALYST_GROUPS", "analyst"))
	return adminGroups, analystGroups
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func groupSet(raw string) map[string]bool {
	set := make(map[string]bool)
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			set[part] = true
		}
	}
	return set
}

// identityFromProxyHeaders extracts a caller identity from reverse-proxy
// headers, trusting them only when the request's RemoteAddr falls within a
// configured CIDR. Group headers (X-Forwarded-Groups or
// X-Auth-Request-Groups, comma-separated) map to roles via
// AUTH_PROXY_ADMIN_GROUPS / AUTH_PROXY_ANALYST_GROUPS; everyone else is a
// viewer.
func identityFromProxyHeaders(r *http.Request, trusted []*net.IPNet) (Identity, bool) {
	if !isTrustedRemote(r.RemoteAddr, trusted) {
		return Identity{}, false
	}

	username := firstNonEmpty(
		r.Header.Get("X-Forwarded-User"),
		r.Header.Get("X-Auth-Request-User"),
		r.Header.Get("X-Auth-Request-Email"),
	)
	if username == "" {
		return Identity{}, false
	}

	groupsRaw := firstNonEmpty(
		r.Header.Get("X-Forwarded-Groups"),
		r.Header.Get("X-Auth-Request-Groups"),
	)
	adminGroups, analystGroups := proxyGroupRoleMap()

	roles := map[Role]bool{RoleViewer: true}
	for _, g := range strings.Split(groupsRaw, ",") {
		g = strings.ToLower(strings.TrimSpace(g))
		if g == "" {
			continue
		}
		if adminGroups[g] {
			roles[RoleAdmin] = true
		}
		if analystGroups[g] {
			roles[RoleAnalyst] = true
		}
	}

	return Identity{Username: username, Roles: roles, Source: "proxy"}, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
