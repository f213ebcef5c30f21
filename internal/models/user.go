package models

import "time"

// Role names carried on users and callers.
const (
	RoleUser      = "user"
	RoleModerator = "moderator"
)

// User is created lazily the first time an identity performs a mutation.
type User struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ProviderID  string    `gorm:"uniqueIndex;not null" json:"providerId"`
	DisplayName string    `gorm:"not null" json:"displayName"`
	AvatarURL   *string   `gorm:"type:text" json:"avatarUrl,omitempty"`
	Roles       []string  `gorm:"serializer:json;type:jsonb;not null" json:"roles"`
	CreatedAt   time.Time `json:"createdAt"`
}

// HasRole reports whether the user carries role.
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Caller is the identity a request acts as. It is resolved per request from
// the identity token or the configured guest identity.
type Caller struct {
	ProviderID  string
	DisplayName string
	Roles       []string
	Guest       bool
}

// HasRole reports whether the caller carries role.
func (c Caller) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}
