package tenancy

import (
	"context"
	"sync"

	"github.com/charlesng35/crmhub/internal/models"
)

// Lookup memoizes the organization resolution of a single request. The first
// call does the work; later calls return the same result.
type Lookup struct {
	resolver *Resolver
	userID   string
	ref      Reference

	orgOnce sync.Once
	org     *models.Organization
	orgErr  error

	idsOnce sync.Once
	ids     []string
	idsErr  error
}

// NewLookup prepares a per-request lookup.
func NewLookup(resolver *Resolver, userID string, ref Reference) *Lookup {
	return &Lookup{resolver: resolver, userID: userID, ref: ref}
}

// Reference returns the reference the lookup was built from.
func (l *Lookup) Reference() Reference {
	return l.ref
}

// UserID returns the authenticated caller.
func (l *Lookup) UserID() string {
	return l.userID
}

// Organization resolves the referenced organization once.
func (l *Lookup) Organization(ctx context.Context) (*models.Organization, error) {
	l.orgOnce.Do(func() {
		l.org, l.orgErr = l.resolver.Resolve(ctx, l.userID, l.ref)
	})
	return l.org, l.orgErr
}

// OrganizationIDs loads the caller's tenant set once.
func (l *Lookup) OrganizationIDs(ctx context.Context) ([]string, error) {
	l.idsOnce.Do(func() {
		l.ids, l.idsErr = l.resolver.OrganizationIDsForUser(ctx, l.userID)
	})
	return l.ids, l.idsErr
}

// Scope returns a resolved scope for writes.
func (l *Lookup) Scope(ctx context.Context) (Scope, error) {
	ids, err := l.OrganizationIDs(ctx)
	if err != nil {
		return Scope{}, err
	}
	org, err := l.Organization(ctx)
	if err != nil {
		return Scope{}, err
	}
	return Scope{UserID: l.userID, OrganizationIDs: ids, Filter: l.ref.Value(), Organization: org}, nil
}

// ListScope returns an unresolved scope for reads.
func (l *Lookup) ListScope(ctx context.Context) (Scope, error) {
	ids, err := l.OrganizationIDs(ctx)
	if err != nil {
		return Scope{}, err
	}
	return Scope{UserID: l.userID, OrganizationIDs: ids, Filter: l.ref.Value()}, nil
}
