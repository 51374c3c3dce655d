package accounts

import "github.com/aliuyar1234/sanctus/internal/apperrors"

var (
	ErrInvalidCredentials  = apperrors.New(apperrors.KindInvalidCredentials, "invalid email or password")
	ErrEmailNotConfirmed   = apperrors.New(apperrors.KindEmailNotConfirmed, "email address has not been confirmed")
	ErrEmailTaken          = apperrors.New(apperrors.KindConflict, "email address already registered")
	ErrInvalidConfirmation = apperrors.New(apperrors.KindNotFound, "invalid or already used confirmation link")
	ErrUserNotFound        = apperrors.New(apperrors.KindNotFound, "user not found")
)
