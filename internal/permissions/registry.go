package permissions

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Wildcard grants every registered permission.
const Wildcard = "*"

// Permission is one grantable capability. Holding it implies holding every
// id in DependsOn.
type Permission struct {
	ID          string   `json:"id"`
	Module      string   `json:"module"`
	DependsOn   []string `json:"depends_on,omitempty"`
	Description string   `json:"description"`
}

var (
	ErrUnknownPermission  = errors.New("permission: unknown permission")
	ErrCircularDependency = errors.New("permission: circular dependency detected")

	errEmptyID        = errors.New("permission: id is required")
	errDuplicateID    = errors.New("permission: already registered")
	errSelfDependency = errors.New("permission: cannot depend on itself")
)

type catalog struct {
	mu   sync.RWMutex
	byID map[string]Permission
}

var registered = &catalog{byID: map[string]Permission{}}

// Register adds perm to the catalog. Dependency ids are trimmed and
// deduplicated; they are checked against the catalog by ValidateDependencies.
func Register(perm Permission) error {
	perm.ID = strings.TrimSpace(perm.ID)
	perm.Module = strings.TrimSpace(perm.Module)
	switch perm.ID {
	case "":
		return errEmptyID
	case Wildcard:
		return fmt.Errorf("permission: %q is reserved", Wildcard)
	}

	var deps []string
	for _, dep := range perm.DependsOn {
		dep = strings.TrimSpace(dep)
		if dep == perm.ID {
			return errSelfDependency
		}
		if dep != "" && !slices.Contains(deps, dep) {
			deps = append(deps, dep)
		}
	}
	perm.DependsOn = deps

	registered.mu.Lock()
	defer registered.mu.Unlock()
	if _, taken := registered.byID[perm.ID]; taken {
		return fmt.Errorf("%w: %s", errDuplicateID, perm.ID)
	}
	registered.byID[perm.ID] = perm
	return nil
}

func Get(id string) (Permission, bool) {
	registered.mu.RLock()
	defer registered.mu.RUnlock()
	perm, ok := registered.byID[strings.TrimSpace(id)]
	return clone(perm), ok
}

// Catalog lists every permission sorted by module, then id.
func Catalog() []Permission {
	registered.mu.RLock()
	out := make([]Permission, 0, len(registered.byID))
	for _, perm := range registered.byID {
		out = append(out, clone(perm))
	}
	registered.mu.RUnlock()

	slices.SortFunc(out, func(a, b Permission) int {
		if c := strings.Compare(a.Module, b.Module); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

func clone(perm Permission) Permission {
	perm.DependsOn = slices.Clone(perm.DependsOn)
	return perm
}
