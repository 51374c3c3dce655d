package client

import (
	"time"

	"github.com/google/uuid"
)

// Role mirrors the server's privilege roles.
type Role string

const (
	RoleNone       Role = ""
	RoleAdmin      Role = "Admin"
	RoleSuperAdmin Role = "SuperAdmin"
)

// CurrentUser is the identity bound to the session.
type CurrentUser struct {
	ID        uuid.UUID `json:"id"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
}

type RegisterRequest struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	InviteToken string `json:"inviteToken"`
}

type RegisterResult struct {
	User                 CurrentUser `json:"user"`
	ConfirmationRequired bool        `json:"confirmationRequired"`
}

type CreateInviteRequest struct {
	Role          Role   `json:"role"`
	LifetimeHours int    `json:"lifetimeHours,omitempty"`
	IssuedTo      string `json:"issuedTo,omitempty"`
	Purpose       string `json:"purpose,omitempty"`
}

type CreatedInvite struct {
	ID          uuid.UUID `json:"id"`
	Token       string    `json:"token"`
	Role        Role      `json:"role"`
	ExpiresAt   time.Time `json:"expiresAt"`
	RegisterURL string    `json:"registerUrl"`
}

type InviteSummary struct {
	ID        uuid.UUID  `json:"id"`
	Role      Role       `json:"role"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt time.Time  `json:"expiresAt"`
	UsedAt    *time.Time `json:"usedAt,omitempty"`
	IsUsed    bool       `json:"isUsed"`
	IssuedTo  string     `json:"issuedTo,omitempty"`
	Purpose   string     `json:"purpose,omitempty"`
	Status    string     `json:"status"`
}
