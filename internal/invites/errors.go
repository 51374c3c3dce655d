package invites

import "github.com/aliuyar1234/sanctus/internal/apperrors"

var (
	ErrInvalidRole     = apperrors.New(apperrors.KindInvalidArgument, "role must be Admin or SuperAdmin")
	ErrInvalidLifetime = apperrors.New(apperrors.KindInvalidArgument, "lifetime must not be negative")
	ErrInvalidStatus   = apperrors.New(apperrors.KindInvalidArgument, "status must be pending, used or expired")
	ErrInviteNotFound  = apperrors.New(apperrors.KindNotFound, "invitation not found")
	ErrInviteExpired   = apperrors.New(apperrors.KindExpired, "invitation expired")
	ErrInviteUsed      = apperrors.New(apperrors.KindAlreadyUsed, "invitation already used")

	// ErrInvalidInvite is the only redemption failure callers see.
	ErrInvalidInvite = apperrors.New(apperrors.KindForbidden, "invalid or expired invitation")
)
