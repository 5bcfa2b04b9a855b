package services

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"gorm.io/gorm"
)

// cursorKeyed rows expose the (created_at, id) pair cursors are built from.
type cursorKeyed interface {
	CursorKey() (time.Time, string)
}

// cursorPosition is the opaque payload behind a cursor. Reverse cursors walk
// towards newer rows.
type cursorPosition struct {
	CreatedAt time.Time `json:"t"`
	ID        string    `json:"id"`
	Reverse   bool      `json:"r,omitempty"`
}

func (p cursorPosition) encode() *string {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil
	}
	encoded := base64.RawURLEncoding.EncodeToString(raw)
	return &encoded
}

// decodeCursor reads a cursor; anything unreadable starts from the first page.
func decodeCursor(raw string) (cursorPosition, bool) {
	var p cursorPosition
	if raw == "" {
		return p, false
	}
	data, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return p, false
	}
	if err := json.Unmarshal(data, &p); err != nil || p.ID == "" || p.CreatedAt.IsZero() {
		return cursorPosition{}, false
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return p, true
}

func cursorOf[T any](item *T) (cursorPosition, bool) {
	keyed, ok := any(item).(cursorKeyed)
	if !ok {
		return cursorPosition{}, false
	}
	at, id := keyed.CursorKey()
	return cursorPosition{CreatedAt: at.UTC(), ID: id}, true
}

// paginateCursor loads the page after (or, for reverse cursors, before) the
// cursor position, ordered by created_at then id, newest first.
func paginateCursor[T any](query *gorm.DB, spec ListSpec, table string, q ListQuery) (Page[T], error) {
	page := Page[T]{Items: []T{}, PerPage: q.PerPage, Cursor: true}

	query = spec.apply(query, table, q)
	for _, preload := range spec.Preloads {
		query = query.Preload(preload)
	}

	created, id := qualify(table, "created_at"), qualify(table, "id")
	position, positioned := decodeCursor(*q.Cursor)
	direction, op := "DESC", "<"
	if position.Reverse {
		direction, op = "ASC", ">"
	}
	if positioned {
		query = query.Where(
			fmt.Sprintf("(%s %s ? OR (%s = ? AND %s %s ?))", created, op, created, id, op),
			position.CreatedAt, position.CreatedAt, position.ID,
		)
	}

	var rows []T
	if err := query.
		Select(table + ".*").
		Order(created + " " + direction).
		Order(id + " " + direction).
		Limit(q.PerPage + 1).
		Find(&rows).Error; err != nil {
		return page, fmt.Errorf("list %s: %w", table, err)
	}

	more := len(rows) > q.PerPage
	if more {
		rows = rows[:q.PerPage]
	}
	if position.Reverse {
		slices.Reverse(rows)
	}
	if len(rows) == 0 {
		return page, nil
	}
	page.Items = rows

	hasNext, hasPrevious := more, positioned
	if position.Reverse {
		hasNext, hasPrevious = true, more
	}
	if last, ok := cursorOf(&rows[len(rows)-1]); ok && hasNext {
		page.Next = last.encode()
	}
	if first, ok := cursorOf(&rows[0]); ok && hasPrevious {
		first.Reverse = true
		page.Previous = first.encode()
	}
	return page, nil
}
