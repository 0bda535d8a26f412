package types

const RoleAdmin = "admin"

// Identity is the caller as established by the bearer token. The zero value
// is an anonymous caller.
type Identity struct {
	UserID string
	Email  string
	Roles  []string
}

func (i Identity) Authenticated() bool { return i.UserID != "" }

func (i Identity) HasRole(role string) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}
