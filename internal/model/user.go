// Package model defines the data structures used throughout the application.
package model

import "time"

// Role is the privilege level of an account.
type Role int

const (
	RoleUser  Role = 0
	RoleAdmin Role = 1
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// DefaultAvatar is the placeholder avatar assigned to new accounts.
const DefaultAvatar = "user.svg"

// User represents an activated account.
//
// Email is the natural lookup key and is UNIQUE in every store.
// PasswordHash is a bcrypt hash and is never serialised: `json:"-"` keeps it
// out of every API response, which is how getUserInfo and getAllUsersInfo
// project the record without the hash.
type User struct {
	ID           string    `json:"id"        db:"id"`
	Username     string    `json:"username"  db:"username"`
	Email        string    `json:"email"     db:"email"`
	PasswordHash string    `json:"-"         db:"password_hash"`
	Role         Role      `json:"role"      db:"role"`
	Avatar       string    `json:"avatar"    db:"avatar"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

// PendingRegistration is a registration that has not been activated yet.
// It is never stored; it only lives inside a signed activation token.
type PendingRegistration struct {
	Username     string `json:"username"`
	Email        string `json:"email"`
	PasswordHash string `json:"password"`
}
