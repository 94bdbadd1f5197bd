package auth

// Principal is the identity proven by a verified access token.
type Principal struct {
	UserID       string
	Email        string
	Role         Role
	TokenVersion int64
	TokenID      string
}

// IsAdmin reports whether the principal holds the admin role.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// CanActFor reports whether the principal may act on a resource owned by
// ownerUserID. Admins may act for anyone.
func (p Principal) CanActFor(ownerUserID string) bool {
	if p.IsAdmin() {
		return true
	}
	return p.UserID != "" && p.UserID == ownerUserID
}
