package core

import "time"

// UserRoleName is type of user role
type UserRoleName string

const (
	// RoleUser is user
	RoleUser UserRoleName = "user"
	// RoleAdmin is admin
	RoleAdmin UserRoleName = "admin"
)

func (r UserRoleName) IsValid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User is an authenticated dashboard user
type User struct {
	ID        string    `json:"id" db:"id"`
	UID       string    `json:"uid" db:"uid"`
	Email     string    `json:"email" db:"email"`
	Name      string    `json:"name" db:"name"`
	IsAdmin   bool      `json:"is_admin" db:"is_admin"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Role returns the role claim used for access grants
func (u *User) Role() UserRoleName {
	if u.IsAdmin {
		return RoleAdmin
	}
	return RoleUser
}

// Identity is the participant identity used in media room tokens
func (u *User) Identity() string {
	if u.UID != "" {
		return u.UID
	}
	return u.ID
}
