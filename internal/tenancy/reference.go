package tenancy

import "strings"

// Reference carries the organization identifiers a request may supply. When
// several are present Body wins over Query, which wins over Path.
type Reference struct {
	Body  string
	Query string
	Path  string
}

// Value returns the effective organization identifier, or "" when none was supplied.
func (r Reference) Value() string {
	for _, candidate := range []string{r.Body, r.Query, r.Path} {
		if v := strings.TrimSpace(candidate); v != "" {
			return v
		}
	}
	return ""
}

// IsZero reports whether no organization was referenced.
func (r Reference) IsZero() bool {
	return r.Value() == ""
}

// ID builds a reference to a known organization, as used by nested routes.
func ID(organizationID string) Reference {
	return Reference{Path: organizationID}
}
