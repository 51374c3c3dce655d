package domain

import (
	"time"

	"github.com/google/uuid"
)

// Invite statuses as reported by StatusAt and accepted by list filters.
const (
	InviteStatusPending = "pending"
	InviteStatusUsed    = "used"
	InviteStatusExpired = "expired"
)

// InviteToken is the persisted half of an invitation. The clear token handed
// to the invitee is never stored; only Hash is.
type InviteToken struct {
	ID        uuid.UUID  `json:"id"`
	Hash      string     `json:"-"`
	Role      Role       `json:"role"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt time.Time  `json:"expiresAt"`
	UsedAt    *time.Time `json:"usedAt,omitempty"`
	IsUsed    bool       `json:"isUsed"`
	IssuedTo  string     `json:"issuedTo,omitempty"`
	Purpose   string     `json:"purpose,omitempty"`
	CreatedBy *uuid.UUID `json:"createdBy,omitempty"`
}

// IsExpiredAt reports whether the token has expired at now.
func (t *InviteToken) IsExpiredAt(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// IsRedeemableAt reports whether the token can still be consumed at now.
func (t *InviteToken) IsRedeemableAt(now time.Time) bool {
	return !t.IsUsed && !t.IsExpiredAt(now)
}

// StatusAt returns pending, used or expired.
func (t *InviteToken) StatusAt(now time.Time) string {
	if t.IsUsed {
		return InviteStatusUsed
	}
	if t.IsExpiredAt(now) {
		return InviteStatusExpired
	}
	return InviteStatusPending
}

// InviteEvent names an invite lifecycle change announced to operators.
type InviteEvent string

const (
	InviteEventIssued   InviteEvent = "issued"
	InviteEventRedeemed InviteEvent = "redeemed"
)
