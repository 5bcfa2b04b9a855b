package tenancy

import (
	"github.com/charlesng35/crmhub/internal/models"
)

// Scope is the tenant boundary of one call. OrganizationIDs is every
// organization the caller may see; Filter narrows listings to a single
// requested organization without validating it; Organization is set only when
// the reference was resolved and the caller authorized.
type Scope struct {
	UserID          string
	OrganizationIDs []string
	Filter          string
	Organization    *models.Organization
}

// OrganizationID returns the resolved organization's identifier or "".
func (s Scope) OrganizationID() string {
	if s.Organization == nil {
		return ""
	}
	return s.Organization.ID
}

// Allows reports whether organizationID is within the caller's tenant set.
func (s Scope) Allows(organizationID string) bool {
	for _, id := range s.OrganizationIDs {
		if id == organizationID {
			return true
		}
	}
	return false
}

// Actor returns a pointer to the caller id suitable for created_by columns.
func (s Scope) Actor() *string {
	if s.UserID == "" {
		return nil
	}
	id := s.UserID
	return &id
}

// WithOrganization returns a copy of the scope bound to org.
func (s Scope) WithOrganization(org *models.Organization) Scope {
	s.Organization = org
	return s
}
