package permissions

import (
	"fmt"
	"slices"
	"strings"
)

// ValidateDependencies fails when a permission depends on an id that was
// never registered or when dependencies form a cycle.
func ValidateDependencies() error {
	registered.mu.RLock()
	defer registered.mu.RUnlock()

	const (
		unseen = iota
		open
		done
	)
	state := make(map[string]int, len(registered.byID))
	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case open:
			return fmt.Errorf("%w at %s", ErrCircularDependency, id)
		case done:
			return nil
		}
		state[id] = open
		for _, dep := range registered.byID[id].DependsOn {
			if _, ok := registered.byID[dep]; !ok {
				return fmt.Errorf("permission: %s depends on unknown permission %s", id, dep)
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[id] = done
		return nil
	}

	ids := make([]string, 0, len(registered.byID))
	for id := range registered.byID {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}

// Normalize cleans a role's permission list: trimmed, deduplicated and
// sorted, with unknown ids rejected. Any list holding the wildcard becomes
// just the wildcard.
func Normalize(ids []string) ([]string, error) {
	var out []string
	for _, id := range ids {
		id = strings.TrimSpace(id)
		switch {
		case id == "":
			continue
		case id == Wildcard:
			return []string{Wildcard}, nil
		}
		if _, ok := Get(id); !ok {
			return nil, fmt.Errorf("%w %q", ErrUnknownPermission, id)
		}
		out = append(out, id)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

// Expand returns granted plus everything reachable through DependsOn.
func Expand(granted []string) (map[string]struct{}, error) {
	registered.mu.RLock()
	defer registered.mu.RUnlock()

	out := make(map[string]struct{}, len(granted))
	stack := make([]string, 0, len(granted))
	for _, id := range granted {
		id = strings.TrimSpace(id)
		if id == Wildcard {
			for known := range registered.byID {
				out[known] = struct{}{}
			}
			return out, nil
		}
		if id != "" {
			stack = append(stack, id)
		}
	}

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, seen := out[id]; seen {
			continue
		}
		perm, ok := registered.byID[id]
		if !ok {
			return nil, fmt.Errorf("%w %q", ErrUnknownPermission, id)
		}
		out[id] = struct{}{}
		stack = append(stack, perm.DependsOn...)
	}
	return out, nil
}
