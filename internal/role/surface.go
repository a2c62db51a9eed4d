// Package role describes the three independent authentication surfaces of
// ChainVerse. Every surface has its own signing secrets, refresh cookie,
// refresh endpoint and login page.
package role

import "fmt"

type Surface string

const (
	User           Surface = "user"
	Admin          Surface = "admin"
	CommunityAdmin Surface = "communityAdmin"
)

// Surfaces lists every surface in a stable order.
func Surfaces() []Surface {
	return []Surface{User, Admin, CommunityAdmin}
}

func Parse(s string) (Surface, error) {
	for _, sf := range Surfaces() {
		if string(sf) == s {
			return sf, nil
		}
	}
	return "", fmt.Errorf("unknown role surface %q", s)
}

func (s Surface) String() string { return string(s) }

func (s Surface) Valid() bool {
	_, err := Parse(string(s))
	return err == nil
}

// Prefix is the API group every route of the surface lives under.
func (s Surface) Prefix() string {
	switch s {
	case Admin:
		return "/api/admin"
	case CommunityAdmin:
		return "/api/community-admin"
	default:
		return "/api/user"
	}
}

func (s Surface) RefreshPath() string { return s.Prefix() + "/refresh-token" }

func (s Surface) LoginPath() string { return s.Prefix() + "/login" }

func (s Surface) LogoutPath() string { return s.Prefix() + "/logout" }

// LoginPage is where a client sends the browser once the surface session ends.
func (s Surface) LoginPage() string {
	switch s {
	case Admin:
		return "/admin/login"
	case CommunityAdmin:
		return "/community-admin/login"
	default:
		return "/login"
	}
}

func (s Surface) CookieName() string { return string(s) + "RefreshToken" }

// AccountKey is the JSON key the identity is returned under on login.
func (s Surface) AccountKey() string { return string(s) }
