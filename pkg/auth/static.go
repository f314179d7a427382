package auth

import (
	"fmt"
	"os"
	"strings"
)

// StaticUser is one entry of AUTH_USERS: a username, a password hash
// (plain$... or pbkdf2_sha256$...), and the roles it holds beyond viewer.
type StaticUser struct {
	Username     string
	PasswordHash string
	Roles        map[Role]bool
}

// ParseStaticUsers reads AUTH_USERS, formatted as
// "user:hash:role1,role2;user2:hash:role1", one account per ";"-separated
// entry. A malformed entry is skipped with no error, matching the original
// implementation's best-effort parsing so one typo doesn't lock out every
// other operator account.
func ParseStaticUsers() map[string]StaticUser {
	raw := os.Getenv("AUTH_USERS")
	users := make(map[string]StaticUser)
	if strings.TrimSpace(raw) == "" {
		return users
	}
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		fields := strings.SplitN(entry, ":", 3)
		if len(fields) < 2 {
			continue
		}
		username := strings.TrimSpace(fields[0])
		hash := strings.TrimSpace(fields[1])
		if username == "" || hash == "" {
			continue
		}
		roles := map[Role]bool{RoleViewer: true}
		if len(fields) == 3 {
			roles = parseRoles(fields[2])
		}
		users[username] = StaticUser{Username: username, PasswordHash: hash, Roles: roles}
	}
	return users
}

// identity returns the Identity this static user authenticates as.
func (u StaticUser) identity() Identity {
	return Identity{Username: u.Username, Roles: u.Roles, Source: "static"}
}

func authenticateStatic(users map[string]StaticUser, username, password string) (Identity, error) {
	user, ok := users[username]
	if !ok {
		return Identity{}, fmt.Errorf("%w: unknown user", ErrInvalidCredentials)
	}
	if !VerifyPassword(password, user.PasswordHash) {
		return Identity{}, fmt.Errorf("%w: bad password", ErrInvalidCredentials)
	}
	return user.identity(), nil
}
