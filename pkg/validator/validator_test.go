package validator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type organizationPayload struct {
	Name      string  `json:"name" validate:"required,max=255"`
	Slug      string  `json:"slug" validate:"omitempty,slug"`
	Timezone  string  `json:"timezone" validate:"omitempty,timezone"`
	Email     string  `json:"email" validate:"omitempty,email"`
	Color     *string `json:"primary_color" validate:"omitempty,hexcolor"`
	UserLimit int     `json:"user_limit" validate:"gte=0"`
}

func TestValidateStructSuccess(t *testing.T) {
	color := "#1f2937"
	payload := organizationPayload{
		Name:     "Acme",
		Slug:     "acme-inc",
		Timezone: "Europe/Berlin",
		Email:    "ops@acme.test",
		Color:    &color,
	}

	require.NoError(t, ValidateStruct(payload))
}

func TestValidateStructUsesJSONNames(t *testing.T) {
	payload := organizationPayload{
		Slug:      "Not A Slug",
		Timezone:  "Mars/Olympus",
		UserLimit: -1,
	}

	err := ValidateStruct(payload)
	require.Error(t, err)

	failures, ok := err.(ValidationErrors)
	require.True(t, ok)

	fields := failures.Fields()
	require.Equal(t, []string{"This field is required."}, fields["name"])
	require.Contains(t, fields, "slug")
	require.Equal(t, []string{"Enter a valid IANA timezone."}, fields["timezone"])
	require.Contains(t, fields, "user_limit")
}

func TestValidationErrorMessageFallback(t *testing.T) {
	require.Equal(t, "Failed validation: custom=1.", ValidationError{Field: "x", Tag: "custom", Param: "1"}.Message())
	require.Equal(t, "Must be one of: low, high.", ValidationError{Tag: "oneof", Param: "low high"}.Message())
}

func TestValidateStructRejectsNonStruct(t *testing.T) {
	err := ValidateStruct(42)
	require.Error(t, err)
	_, isFailures := err.(ValidationErrors)
	require.False(t, isFailures)
}

func TestValidationErrorsString(t *testing.T) {
	errs := ValidationErrors{{Field: "name", Tag: "required"}, {Field: "slug", Tag: "max", Param: "10"}}
	require.Equal(t, "name failed on required; slug failed on max=10", errs.Error())
	require.Equal(t, "validation failed", ValidationErrors{}.Error())
}
