package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is an account in the catalog's back office.
type User struct {
	ID               uuid.UUID
	FirstName        string
	LastName         string
	Email            string
	PasswordHash     string
	Role             Role
	EmailConfirmedAt *time.Time
	ConfirmationHash string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsEmailConfirmed reports whether the user completed email confirmation.
func (u *User) IsEmailConfirmed() bool {
	return u.EmailConfirmedAt != nil
}
