package validation

import (
	"errors"
	"testing"

	"github.com/aliuyar1234/sanctus/internal/apperrors"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Email    string `json:"email" validate:"required,mailbox,max=320"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role,omitempty" validate:"omitempty,oneof=Admin SuperAdmin"`
}

func TestValidate(t *testing.T) {
	v := New()

	require.NoError(t, v.Validate(sample{Email: "clare@example.org", Password: "assisi1212"}))

	tests := []struct {
		name  string
		in    sample
		field string
		want  string
	}{
		{"missing email", sample{Password: "assisi1212"}, "email", "is required"},
		{"display name email", sample{Email: "Clare <clare@example.org>", Password: "assisi1212"}, "email", "must be a valid email address"},
		{"short password", sample{Email: "clare@example.org", Password: "short"}, "password", "must be at least 8 characters"},
		{"bad role", sample{Email: "clare@example.org", Password: "assisi1212", Role: "Owner"}, "role", "must be one of: Admin SuperAdmin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.in)
			require.ErrorIs(t, err, apperrors.ErrInvalidArgument)

			var appErr *apperrors.Error
			require.True(t, errors.As(err, &appErr))
			require.Equal(t, tt.want, appErr.Details[tt.field])
		})
	}
}

func TestNormalizeEmail(t *testing.T) {
	require.Equal(t, "clare@example.org", NormalizeEmail("  Clare@Example.ORG "))
}
