package services

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/crmhub/internal/models"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// ListQuery carries the pagination, search, ordering and filter parameters of a list call.
type ListQuery struct {
	Page     int
	PerPage  int
	Search   string
	Ordering string
	Filters  map[string]string

	// Cursor switches to keyset pagination over created_at, newest first. An
	// empty cursor starts at the first page; Page and Ordering are ignored.
	Cursor *string
}

// Page is one page of results. Cursor pages leave Total and Page unset and
// carry the neighbouring cursors instead.
type Page[T any] struct {
	Items   []T
	Total   int64
	Page    int
	PerPage int

	Cursor   bool
	Next     *string
	Previous *string
}

// ListSpec whitelists what a resource allows callers to filter and order by.
type ListSpec struct {
	// SearchFields are matched case-insensitively with LIKE.
	SearchFields []string

	// Filters maps a query parameter to a column. Comma separated values become IN.
	Filters map[string]string

	// DateFilters maps a parameter prefix to a column; "<prefix>_after" and
	// "<prefix>_before" become range conditions.
	DateFilters map[string]string

	// Orderings maps an ordering key to a column; "-key" sorts descending.
	Orderings    map[string]string
	DefaultOrder string

	Preloads []string

	// Custom applies filters that need joins or subqueries.
	Custom func(query *gorm.DB, filters map[string]string) *gorm.DB
}

func (q ListQuery) normalised() ListQuery {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.PerPage <= 0 {
		q.PerPage = defaultPerPage
	}
	if q.PerPage > maxPerPage {
		q.PerPage = maxPerPage
	}
	q.Search = strings.TrimSpace(q.Search)
	q.Ordering = strings.TrimSpace(q.Ordering)
	return q
}

func (q ListQuery) offset() int {
	return (q.Page - 1) * q.PerPage
}

func (spec ListSpec) apply(query *gorm.DB, table string, q ListQuery) *gorm.DB {
	if q.Search != "" && len(spec.SearchFields) > 0 {
		pattern := "%" + strings.ToLower(q.Search) + "%"
		clauses := make([]string, 0, len(spec.SearchFields))
		args := make([]any, 0, len(spec.SearchFields))
		for _, field := range spec.SearchFields {
			clauses = append(clauses, "LOWER("+qualify(table, field)+") LIKE ?")
			args = append(args, pattern)
		}
		query = query.Where("("+strings.Join(clauses, " OR ")+")", args...)
	}

	for param, column := range spec.Filters {
		raw, ok := q.Filters[param]
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		values := splitList(raw)
		if strings.HasSuffix(column, "_id") {
			values = slices.DeleteFunc(values, func(v string) bool { return !models.ValidID(v) })
			if len(values) == 0 {
				query = query.Where("1 = 0")
				continue
			}
		}
		switch {
		case len(values) == 1:
			query = query.Where(qualify(table, column)+" = ?", filterValue(values[0]))
		case len(values) > 1:
			query = query.Where(qualify(table, column)+" IN ?", values)
		}
	}

	for prefix, column := range spec.DateFilters {
		column = qualify(table, column)
		query = lowerBound(query, column, q.Filters[prefix+"_after"])
		query = upperBound(query, column, q.Filters[prefix+"_before"])
	}

	if spec.Custom != nil {
		query = spec.Custom(query, q.Filters)
	}
	return query
}

func (spec ListSpec) order(table string, ordering string) string {
	desc := strings.HasPrefix(ordering, "-")
	key := strings.TrimPrefix(ordering, "-")
	if column, ok := spec.Orderings[key]; ok && key != "" {
		if desc {
			return qualify(table, column) + " DESC"
		}
		return qualify(table, column) + " ASC"
	}
	if spec.DefaultOrder != "" {
		return spec.DefaultOrder
	}
	return qualify(table, "created_at") + " DESC"
}

func qualify(table, column string) string {
	if strings.Contains(column, ".") || table == "" {
		return column
	}
	return table + "." + column
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// filterValue turns boolean literals into bools so they compare correctly on every driver.
func filterValue(value string) any {
	switch strings.ToLower(value) {
	case "true":
		return true
	case "false":
		return false
	}
	return value
}

// parseFilterTime reads an RFC 3339 timestamp or a plain date; day is set
// for the latter.
func parseFilterTime(raw string) (at time.Time, day bool, ok bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false, false
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), false, true
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t.UTC(), true, true
	}
	return time.Time{}, false, false
}

func lowerBound(query *gorm.DB, column, raw string) *gorm.DB {
	if at, _, ok := parseFilterTime(raw); ok {
		return query.Where(column+" >= ?", at)
	}
	return query
}

// upperBound bounds column from above. A plain date covers that whole day.
func upperBound(query *gorm.DB, column, raw string) *gorm.DB {
	at, day, ok := parseFilterTime(raw)
	switch {
	case !ok:
		return query
	case day:
		return query.Where(column+" < ?", at.AddDate(0, 0, 1))
	}
	return query.Where(column+" <= ?", at)
}

// paginate applies spec to query and loads one page of T.
func paginate[T any](query *gorm.DB, spec ListSpec, table string, q ListQuery) (Page[T], error) {
	q = q.normalised()
	if q.Cursor != nil {
		return paginateCursor[T](query, spec, table, q)
	}
	page := Page[T]{Items: []T{}, Page: q.Page, PerPage: q.PerPage}

	query = spec.apply(query, table, q)
	if err := query.Session(&gorm.Session{}).Count(&page.Total).Error; err != nil {
		return page, fmt.Errorf("count %s: %w", table, err)
	}
	for _, preload := range spec.Preloads {
		query = query.Preload(preload)
	}
	if err := query.
		Select(table + ".*").
		Order(spec.order(table, q.Ordering)).
		Offset(q.offset()).
		Limit(q.PerPage).
		Find(&page.Items).Error; err != nil {
		return page, fmt.Errorf("list %s: %w", table, err)
	}
	return page, nil
}
