package card

import (
	"github.com/at-ishikawa/cardreview/internal/database"
	"github.com/at-ishikawa/cardreview/internal/hydrate"
)

// Schema classifies the columns of the cards table for partial hydration.
// Only the payload is lazy, and it is released once the reviewer moves past a card.
func Schema() hydrate.Schema[Card] {
	return hydrate.Schema[Card]{
		Table:      database.TableCards,
		PrimaryKey: "id",
		Key:        func(c *Card) int64 { return c.ID },
		Columns: []hydrate.Column[Card]{
			{Name: "id", Kind: hydrate.Permanent},
			{Name: "note_id", Kind: hydrate.Permanent},
			{Name: "due", Kind: hydrate.Permanent},
			{Name: "practice_state", Kind: hydrate.Permanent},
			{Name: "misc_state", Kind: hydrate.Permanent},
			{Name: "e_factor", Kind: hydrate.Permanent},
			{Name: "interval_days", Kind: hydrate.Permanent},
			{Name: "reviews", Kind: hydrate.Permanent},
			{Name: "lapses", Kind: hydrate.Permanent},
			{Name: "last_modified", Kind: hydrate.Permanent},
			{
				Name:  "data",
				Kind:  hydrate.LazyUnloaded,
				Merge: func(dst, src *Card) { dst.Data = src.Data },
				Clear: func(c *Card) { c.Data = nil },
			},
		},
	}
}

// NewHelper builds the hydration helper for cards.
func NewHelper() (*hydrate.Helper[Card], error) {
	return hydrate.NewHelper(Schema())
}
