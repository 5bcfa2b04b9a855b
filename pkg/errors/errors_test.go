package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorIncludesInternal(t *testing.T) {
	err := ErrInternalServer.WithInternal(stdErrors.New("boom"))
	require.Equal(t, "Internal server error.: boom", err.Error())
	require.Equal(t, "<nil>", (*AppError)(nil).Error())
}

func TestWithInternalCopies(t *testing.T) {
	base := New("TEST", "test", http.StatusBadRequest)
	cause := stdErrors.New("oops")
	with := base.WithInternal(cause)

	require.NotSame(t, base, with)
	require.Nil(t, base.Internal)
	require.ErrorIs(t, with, cause)
}

func TestFromError(t *testing.T) {
	require.Nil(t, FromError(nil))
	require.Same(t, ErrNotFound, FromError(ErrNotFound))

	out := FromError(stdErrors.New("raw"))
	require.Equal(t, ErrInternalServer.Code, out.Code)
	require.NotNil(t, out.Internal)

	wrapped := fmt.Errorf("service: %w", FieldError("company", "bad company"))
	require.Equal(t, ErrValidation.Code, FromError(wrapped).Code)
}

func TestFieldErrorCarriesDetails(t *testing.T) {
	err := FieldError("company", "Company must belong to the same organization.")

	require.Equal(t, "VALIDATION_ERROR", err.Code)
	require.Equal(t, http.StatusBadRequest, err.StatusCode)
	require.Equal(t, []string{"Company must belong to the same organization."}, err.Details["company"])
	require.ErrorIs(t, err, ErrValidation)
	require.NotErrorIs(t, err, ErrNotFound)
	require.Nil(t, ErrValidation.Details)
}

func TestConstructorsMatchSentinels(t *testing.T) {
	require.ErrorIs(t, NewNotFound("Organization not found."), ErrNotFound)
	require.ErrorIs(t, NewPermissionDenied(""), ErrPermissionDenied)
	require.Equal(t, ErrPermissionDenied.Message, NewPermissionDenied("").Message)
	require.ErrorIs(t, NewBadRequest("invalid payload"), ErrBadRequest)
	require.Equal(t, ErrValidation.Message, NewValidation("", nil).Message)
}
