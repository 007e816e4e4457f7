// Package hydrate loads rows in two tiers: a shallow projection of the small,
// always-needed columns first, and the remaining lazy columns on demand.
package hydrate

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/at-ishikawa/cardreview/internal/database"
)

// Kind classifies a column for partial hydration.
type Kind int

const (
	// Permanent columns are part of every shallow load and never cleared.
	Permanent Kind = iota
	// LazyLoaded columns are fetched by FurtherLoad and kept afterwards.
	LazyLoaded
	// LazyUnloaded columns are fetched by FurtherLoad and cleared again by Unhydrate.
	LazyUnloaded
)

func (k Kind) String() string {
	switch k {
	case Permanent:
		return "permanent"
	case LazyLoaded:
		return "lazy-loaded"
	case LazyUnloaded:
		return "lazy-unloaded"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Column describes one column of S.
type Column[S any] struct {
	Name string
	Kind Kind
	// Merge copies the column from a hydrated row into dst. Required for lazy columns.
	Merge func(dst, src *S)
	// Clear zeroes the column. Required for LazyUnloaded columns.
	Clear func(s *S)
}

// Schema is the explicit column classification of an entity stored in Table.
type Schema[S any] struct {
	Table      string
	PrimaryKey string
	Key        func(s *S) int64
	Columns    []Column[S]
}

// Helper performs shallow loads, further loads, merges and unhydration for one entity type.
// Build it once per collection and share it between the lists that stream S.
type Helper[S any] struct {
	table      string
	primaryKey string
	key        func(s *S) int64
	shallow    []string
	further    []string
	merges     []func(dst, src *S)
	clears     []func(s *S)
}

// NewHelper validates schema and derives the column sets once.
func NewHelper[S any](schema Schema[S]) (*Helper[S], error) {
	if schema.Table == "" {
		return nil, fmt.Errorf("schema has no table")
	}
	if schema.Key == nil {
		return nil, fmt.Errorf("schema %s has no key accessor", schema.Table)
	}

	h := &Helper[S]{
		table:      schema.Table,
		primaryKey: schema.PrimaryKey,
		key:        schema.Key,
		further:    []string{schema.PrimaryKey},
	}
	hasKey := false
	for _, c := range schema.Columns {
		switch c.Kind {
		case Permanent:
			if c.Name == schema.PrimaryKey {
				hasKey = true
			}
			h.shallow = append(h.shallow, c.Name)
		case LazyLoaded, LazyUnloaded:
			if c.Name == schema.PrimaryKey {
				return nil, fmt.Errorf("primary key %s.%s cannot be lazy", schema.Table, c.Name)
			}
			if c.Merge == nil {
				return nil, fmt.Errorf("lazy column %s.%s has no merge function", schema.Table, c.Name)
			}
			h.further = append(h.further, c.Name)
			h.merges = append(h.merges, c.Merge)
			if c.Kind == LazyUnloaded {
				if c.Clear == nil {
					return nil, fmt.Errorf("lazy-unloaded column %s.%s has no clear function", schema.Table, c.Name)
				}
				h.clears = append(h.clears, c.Clear)
			}
		default:
			return nil, fmt.Errorf("column %s.%s has unknown kind %v", schema.Table, c.Name, c.Kind)
		}
	}
	if !hasKey {
		return nil, fmt.Errorf("primary key %s.%s is not a permanent column", schema.Table, schema.PrimaryKey)
	}
	return h, nil
}

func (h *Helper[S]) Table() string {
	return h.table
}

func (h *Helper[S]) PrimaryKey() string {
	return h.primaryKey
}

// Key returns the primary key of s.
func (h *Helper[S]) Key(s *S) int64 {
	return h.key(s)
}

// ShallowColumns returns the permanent columns.
func (h *Helper[S]) ShallowColumns() []string {
	return append([]string(nil), h.shallow...)
}

// HasLazyColumns reports whether FurtherLoad has anything to fetch.
func (h *Helper[S]) HasLazyColumns() bool {
	return len(h.merges) > 0
}

// ShallowLoad runs q projected onto the permanent columns.
func (h *Helper[S]) ShallowLoad(ctx context.Context, ext sqlx.ExtContext, q database.Query) ([]*S, error) {
	var rows []*S
	if err := database.SelectQuery(ctx, ext, &rows, q.Select(h.shallow...)); err != nil {
		return nil, fmt.Errorf("shallow load: %w", err)
	}
	return rows, nil
}

// FurtherLoad fetches the primary key and lazy columns of the rows with the given keys.
func (h *Helper[S]) FurtherLoad(ctx context.Context, ext sqlx.ExtContext, keys []int64) ([]*S, error) {
	if len(keys) == 0 || !h.HasLazyColumns() {
		return nil, nil
	}
	q := database.From(h.table).
		Select(h.further...).
		Filter(database.In(h.primaryKey, keys))
	var rows []*S
	if err := database.SelectQuery(ctx, ext, &rows, q); err != nil {
		return nil, fmt.Errorf("further load: %w", err)
	}
	return rows, nil
}

// Merge copies the lazy columns of hydrated into dst.
func (h *Helper[S]) Merge(dst, hydrated *S) {
	for _, merge := range h.merges {
		merge(dst, hydrated)
	}
}

// Unhydrate clears the lazy-unloaded columns of s.
func (h *Helper[S]) Unhydrate(s *S) {
	for _, reset := range h.clears {
		reset(s)
	}
}
