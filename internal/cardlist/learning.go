package cardlist

import (
	"context"
	"time"

	"github.com/at-ishikawa/cardreview/internal/card"
	"github.com/at-ishikawa/cardreview/internal/prefetch"
)

// LearningCardList offers cards in their learning steps, ordered by due time.
// Unlike the other lists, a card stays current while it is still learning,
// so it is offered again after every answer until it leaves the learning steps.
type LearningCardList struct {
	*baseList
	tomorrow time.Time
}

func NewLearningCardList(repo card.Repository, opts Options) *LearningCardList {
	src := &source{
		repo:      repo,
		query:     learning(opts.Tomorrow),
		order:     dueOrder,
		limit:     prefetch.Unbounded,
		cfg:       opts.Config,
		dismissed: opts.Dismissed,
		less:      byDue,
	}
	return &LearningCardList{
		baseList: newBaseList(KindLearning, src, opts),
		tomorrow: opts.Tomorrow,
	}
}

// MoveNext keeps a current card that is still learning and re-sorts it against
// the unread cards, so the earliest due card is selected.
func (l *LearningCardList) MoveNext(ctx context.Context) (bool, error) {
	if cur := l.Current(); cur != nil && l.live(cur) {
		l.items.ResortFromCurrent()
		if err := l.items.EnsureCurrentHydrated(ctx); err != nil {
			return false, err
		}
		return true, nil
	}
	return l.baseList.MoveNext(ctx)
}

// ReviewCount includes the current card while it is still learning.
func (l *LearningCardList) ReviewCount() int {
	n := l.items.Remaining()
	if cur := l.Current(); cur != nil && l.live(cur) {
		n++
	}
	return n
}

// Register adds a card that entered the learning steps during the session.
// The card must not be shared with another list.
func (l *LearningCardList) Register(c *card.Card) bool {
	if !l.live(c) {
		return false
	}
	return l.items.Add(c, true)
}

func (l *LearningCardList) live(c *card.Card) bool {
	return c.IsLearning() &&
		!c.IsSuspended() &&
		c.DueBefore(l.tomorrow) &&
		!l.dismissed.IsDismissed(c)
}
