package review

import (
	"context"
	"fmt"
	"time"

	"github.com/at-ishikawa/cardreview/internal/card"
	"github.com/at-ishikawa/cardreview/internal/config"
)

// Budgets are today's remaining review quotas.
// New and Due are raw values and go negative once a quota is overshot.
type Budgets struct {
	New         int
	Due         int
	ReviewedNew int
	ReviewedDue int
}

// NewRemaining returns how many new cards may still be shown today.
func (b Budgets) NewRemaining() int {
	return max(b.New, 0)
}

// DueRemaining returns how many due cards may still be shown today.
func (b Budgets) DueRemaining() int {
	return max(b.Due, 0)
}

// ComputeBudgets subtracts today's reviews of new and due cards from the daily quotas.
// Days start at local midnight of now.
func ComputeBudgets(ctx context.Context, repo LogRepository, cfg *config.CollectionConfig, now time.Time) (Budgets, error) {
	from := card.At(card.StartOfDay(now))
	to := card.At(card.StartOfTomorrow(now))
	logs, err := repo.FindBetween(ctx, from, to, card.StateNew, card.StateDue)
	if err != nil {
		return Budgets{}, fmt.Errorf("compute review budgets: %w", err)
	}

	b := Budgets{}
	for _, l := range logs {
		switch l.PrevState {
		case card.StateNew:
			b.ReviewedNew++
		case card.StateDue:
			b.ReviewedDue++
		}
	}
	b.New = cfg.NewCardsPerDay - b.ReviewedNew
	b.Due = cfg.DueCardsPerDay - b.ReviewedDue
	return b, nil
}
