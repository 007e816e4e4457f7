// Package cardlist provides the three review lists of a collection: new cards,
// cards in learning and cards due for review. Each list streams its cards from
// storage through a prefetch.List.
package cardlist

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/at-ishikawa/cardreview/internal/card"
	"github.com/at-ishikawa/cardreview/internal/database"
	"github.com/at-ishikawa/cardreview/internal/prefetch"
)

// Kind identifies a review list.
type Kind int

const (
	KindNew Kind = iota
	KindLearning
	KindDue
)

func (k Kind) String() string {
	switch k {
	case KindNew:
		return "new"
	case KindLearning:
		return "learning"
	case KindDue:
		return "due"
	default:
		return "unknown"
	}
}

// CardList is a review list as seen by a collection.
type CardList interface {
	Kind() Kind
	Initialize(ctx context.Context) error
	// MoveNext selects the next card to review.
	MoveNext(ctx context.Context) (bool, error)
	// Current returns the selected card, or nil.
	Current() *card.Card
	// AvailableCount returns the number of buffered unread cards.
	AvailableCount() int
	// ReviewCount returns how many cards the list can still offer today.
	ReviewCount() int
	// DismissSiblings stops the list from offering other cards of answered's note.
	DismissSiblings(answered *card.Card)
	// Dismiss drops the current card for the rest of the session.
	Dismiss()
	// Wait blocks until background loads finish.
	Wait()
}

// Options are shared by the lists of one collection.
type Options struct {
	Config    Config
	Hydrator  prefetch.Hydrator[*card.Card]
	Dismissed *Dismissals
	// Tomorrow bounds the due date of the cards offered today.
	Tomorrow time.Time
}

type baseList struct {
	kind      Kind
	items     *prefetch.List[*card.Card]
	dismissed *Dismissals
}

func newBaseList(kind Kind, src *source, opts Options) *baseList {
	return &baseList{
		kind:      kind,
		items:     prefetch.New[*card.Card](kind.String(), src, opts.Hydrator),
		dismissed: opts.Dismissed,
	}
}

func (l *baseList) Kind() Kind {
	return l.kind
}

func (l *baseList) Initialize(ctx context.Context) error {
	return l.items.Initialize(ctx)
}

// MoveNext skips cards dismissed while their page was being loaded.
func (l *baseList) MoveNext(ctx context.Context) (bool, error) {
	for {
		ok, err := l.items.MoveNext(ctx)
		if err != nil || !ok {
			return false, err
		}
		if cur := l.Current(); cur != nil && !l.dismissed.IsDismissed(cur) {
			return true, nil
		}
	}
}

func (l *baseList) Current() *card.Card {
	c, ok := l.items.Current()
	if !ok {
		return nil
	}
	return c
}

func (l *baseList) AvailableCount() int {
	return l.items.Available()
}

func (l *baseList) ReviewCount() int {
	return l.items.Remaining()
}

func (l *baseList) DismissSiblings(answered *card.Card) {
	l.dismissed.DismissNote(answered.NoteID, answered.ID)
	moved := l.items.DismissWhere(func(c *card.Card) bool {
		return c.NoteID == answered.NoteID && c.ID != answered.ID
	})
	for _, c := range moved {
		l.dismissed.DismissCard(c.ID)
	}
	if cur := l.Current(); cur != nil && cur.NoteID == answered.NoteID && cur.ID != answered.ID {
		l.dismissed.DismissCard(cur.ID)
	}
}

func (l *baseList) Dismiss() {
	cur := l.Current()
	if cur == nil {
		return
	}
	cur.MiscState |= card.MiscDismissed
	l.dismissed.DismissCard(cur.ID)
}

func (l *baseList) Wait() {
	l.items.Wait()
}

func reviewable(state card.PracticeState, tomorrow time.Time) database.Query {
	return database.From(database.TableCards).
		Filter(
			database.Eq("practice_state", state),
			database.Eq("misc_state", 0),
			database.Lt("due", card.At(tomorrow)),
		)
}

// NewCardList offers cards never reviewed, up to the daily budget.
type NewCardList struct {
	*baseList
}

// NewNewCardList creates the new card list. A non-nil rnd orders the cards randomly,
// otherwise they are offered in creation order.
func NewNewCardList(repo card.Repository, budget int, rnd *rand.Rand, opts Options) *NewCardList {
	src := &source{
		repo:      repo,
		query:     reviewable(card.StateNew, opts.Tomorrow),
		order:     idOrder,
		limit:     max(budget, 0),
		cfg:       opts.Config,
		dismissed: opts.Dismissed,
		less:      byID,
	}
	if rnd != nil {
		src.rand = rnd
		src.rank = make(map[int64]uint64)
		src.less = src.randomLess
	}
	return &NewCardList{baseList: newBaseList(KindNew, src, opts)}
}

// DueCardList offers graduated cards due today, up to the daily budget.
type DueCardList struct {
	*baseList
}

func NewDueCardList(repo card.Repository, budget int, opts Options) *DueCardList {
	src := &source{
		repo:      repo,
		query:     reviewable(card.StateDue, opts.Tomorrow),
		order:     dueOrder,
		limit:     max(budget, 0),
		cfg:       opts.Config,
		dismissed: opts.Dismissed,
		less:      byDue,
	}
	return &DueCardList{baseList: newBaseList(KindDue, src, opts)}
}

func learning(tomorrow time.Time) database.Query {
	return database.From(database.TableCards).
		Filter(
			database.Gte("practice_state", card.StateLearning),
			database.Eq("misc_state", 0),
			database.Lt("due", card.At(tomorrow)),
		)
}
