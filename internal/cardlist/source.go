package cardlist

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/at-ishikawa/cardreview/internal/card"
	"github.com/at-ishikawa/cardreview/internal/database"
	"github.com/at-ishikawa/cardreview/internal/prefetch"
)

// Config tunes paging and prefetching of the card lists.
type Config struct {
	// PageSize is the number of shallow cards fetched per load.
	PageSize int
	// FurtherBatch is the number of cards hydrated per further load.
	FurtherBatch int
	// PrefetchAhead is how many unread cards are left when the next page is requested.
	PrefetchAhead int
}

func DefaultConfig() Config {
	return Config{
		PageSize:      50,
		FurtherBatch:  10,
		PrefetchAhead: 10,
	}
}

// keyset is the storage order of a list. Pages continue after the last row read.
type keyset struct {
	columns []string
	// start is the position before the first row, nil for no filter
	start  []any
	values func(c *card.Card) []any
}

var (
	idOrder = keyset{
		columns: []string{"id"},
		start:   []any{int64(0)},
		values:  func(c *card.Card) []any { return []any{c.ID} },
	}
	dueOrder = keyset{
		columns: []string{"due", "id"},
		values:  func(c *card.Card) []any { return []any{c.Due, c.ID} },
	}
)

// source streams the cards matching query in keyset order, a page at a time.
type source struct {
	repo      card.Repository
	query     database.Query
	order     keyset
	limit     int
	cfg       Config
	dismissed *Dismissals
	less      func(a, b *card.Card) bool

	last   []any
	loaded int

	// rank is only used for random ordering
	rankMu sync.Mutex
	rank   map[int64]uint64
	rand   *rand.Rand
}

var _ prefetch.Source[*card.Card] = (*source)(nil)

func (s *source) MaxIndexLoadThreshold() int {
	return s.limit
}

func (s *source) NextLoadThreshold(buffered int) int {
	return buffered - s.cfg.PrefetchAhead
}

func (s *source) NextFurtherLoadThreshold(furtherLoaded int) int {
	return furtherLoaded - max(s.cfg.FurtherBatch/2, 1)
}

func (s *source) FurtherLoadBatch() int {
	return max(s.cfg.FurtherBatch, 1)
}

func (s *source) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx, s.query)
}

func (s *source) LoadMore(ctx context.Context, first bool) ([]*card.Card, bool, error) {
	if first {
		s.last = s.order.start
		s.loaded = 0
	}
	if s.limit != prefetch.Unbounded && s.loaded >= s.limit {
		return nil, true, nil
	}

	q := s.query
	if s.last != nil {
		q = q.Filter(database.After(s.order.columns, s.last))
	}
	for _, column := range s.order.columns {
		q = q.Asc(column)
	}
	cards, err := s.repo.FindShallow(ctx, q.Take(s.cfg.PageSize))
	if err != nil {
		return nil, false, fmt.Errorf("load cards after %v: %w", s.last, err)
	}
	exhausted := len(cards) < s.cfg.PageSize
	if len(cards) > 0 {
		s.last = s.order.values(cards[len(cards)-1])
	}

	accepted := cards[:0]
	for _, c := range cards {
		if s.dismissed.IsDismissed(c) {
			continue
		}
		accepted = append(accepted, c)
	}
	s.loaded += len(accepted)
	if s.rand != nil {
		s.rankMu.Lock()
		for _, c := range accepted {
			s.rank[c.ID] = s.rand.Uint64()
		}
		s.rankMu.Unlock()
	}

	if s.limit != prefetch.Unbounded && s.loaded >= s.limit {
		exhausted = true
	}
	return accepted, exhausted, nil
}

func (s *source) FurtherLoad(ctx context.Context, keys []int64) ([]*card.Card, error) {
	return s.repo.FindHydrated(ctx, keys)
}

func (s *source) Less(a, b *card.Card) bool {
	return s.less(a, b)
}

func (s *source) randomLess(a, b *card.Card) bool {
	s.rankMu.Lock()
	defer s.rankMu.Unlock()
	ra, rb := s.rank[a.ID], s.rank[b.ID]
	if ra != rb {
		return ra < rb
	}
	return a.ID < b.ID
}

func byID(a, b *card.Card) bool {
	return a.ID < b.ID
}

func byDue(a, b *card.Card) bool {
	if a.Due != b.Due {
		return a.Due < b.Due
	}
	return a.ID < b.ID
}
