package models

import (
	"strings"
	"time"
)

// UnusablePasswordPrefix marks a password value that can never match.
const UnusablePasswordPrefix = "!"

const placeholderEmailMarker = "@inactive."

type User struct {
	ID            uint64    `json:"id"`
	CompanyID     uint64    `json:"company_id"`
	Email         string    `json:"email"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	Password      string    `json:"-"`
	Administrator bool      `json:"administrator"`
	CreatedAt     time.Time `json:"created_at"`
}

func (u *User) HasUsablePassword() bool {
	return u.Password != "" && !strings.HasPrefix(u.Password, UnusablePasswordPrefix)
}

// HasPlaceholderEmail reports whether the address was synthesized for a
// customer who never gave one.
func (u *User) HasPlaceholderEmail() bool {
	return strings.Contains(u.Email, placeholderEmailMarker)
}
