package model

import "time"

// UserStatus tracks whether a user's access to its tenant is active.
type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
)

// User represents a user's membership in a single tenant. A person who
// belongs to multiple tenants has one User row per tenant.
type User struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"tenantId"`
	Email       string     `json:"email"`
	Name        *string    `json:"name,omitempty"`
	Role        string     `json:"role"` // rbac.Role value: viewer, member, admin, owner
	Status      UserStatus `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
}
