package models

// Roles minted by the external auth service.
const (
	RoleAdmin  = "admin"
	RoleChief  = "chief"
	RoleClient = "client"
)

// Principal is the authenticated caller extracted from the bearer token.
// ClientID is zero for principals that are not backed by a client record.
type Principal struct {
	UserID   int64  `json:"user_id"`
	ClientID int64  `json:"client_id"`
	Role     string `json:"role"`
}

// IsChief reports whether the principal acts as a proxy payer.
func (p Principal) IsChief() bool { return p.Role == RoleChief }

// IsAdmin reports whether the principal can see unscoped listings.
func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }
