package services

import (
	"context"
	"errors"
	"strings"

	apperrors "github.com/charlesng35/crmhub/pkg/errors"
	"github.com/charlesng35/crmhub/pkg/validator"
)

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// normaliseIDs trims ids and drops blanks and repeats, keeping first-seen order.
func normaliseIDs(values []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" && !seen[value] {
			seen[value] = true
			out = append(out, value)
		}
	}
	return out
}

func normaliseEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// optionalID maps a nil or blank id to nil.
func optionalID(value *string) *string {
	if value == nil {
		return nil
	}
	if trimmed := strings.TrimSpace(*value); trimmed != "" {
		return &trimmed
	}
	return nil
}

func stringPtr(value string) *string { return &value }

// validateInput checks struct tags. Tag failures become VALIDATION_ERROR with
// per-field messages; anything else is a plain bad request.
func validateInput(input any) error {
	err := validator.ValidateStruct(input)
	var failures validator.ValidationErrors
	switch {
	case err == nil:
		return nil
	case errors.As(err, &failures):
		return apperrors.NewValidation("Invalid input.", failures.Fields())
	default:
		return apperrors.NewBadRequest(err.Error())
	}
}
