package domain

import "time"

// Roles a verified identity can hold. New identities default to customer.
const (
	RoleCustomer        = "CUSTOMER"
	RoleStoreOwner      = "STORE_OWNER"
	RoleDeliveryPartner = "DELIVERY_PARTNER"
)

func IsValidRole(role string) bool {
	switch role {
	case RoleCustomer, RoleStoreOwner, RoleDeliveryPartner:
		return true
	}
	return false
}

// User is the identity minted lazily on first successful verification.
type User struct {
	ID        int64
	Phone     string
	Name      *string
	Role      string
	CreatedAt time.Time
}

// Session is the token pair returned after a successful verification.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"` // access-token lifetime, seconds
}

// RefreshToken is the persisted, stateful half of a session. Only the
// sha256 hash of the opaque token is stored.
type RefreshToken struct {
	TokenHash string
	UserID    int64
	IssuedAt  time.Time
	ExpiresAt time.Time
}
