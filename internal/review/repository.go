package review

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/at-ishikawa/cardreview/internal/card"
	"github.com/at-ishikawa/cardreview/internal/database"
)

//go:generate mockgen -source=repository.go -destination=../mocks/review/mock_repository.go -package=mock_review

// LogRepository defines operations for managing review logs.
type LogRepository interface {
	Insert(ctx context.Context, logs []*Log) error
	// FindBetween returns the logs with from <= id < to whose pre-review state is one of states.
	// No states means any state.
	FindBetween(ctx context.Context, from, to card.Timestamp, states ...card.PracticeState) ([]*Log, error)
}

// DBLogRepository implements LogRepository on top of a locked store.
type DBLogRepository struct {
	store database.Locker
}

// NewDBLogRepository creates a new DBLogRepository.
func NewDBLogRepository(store database.Locker) *DBLogRepository {
	return &DBLogRepository{store: store}
}

var logColumns = []string{
	"id", "card_id", "grade",
	"prev_due", "prev_state", "prev_interval", "prev_e_factor",
	"new_due", "new_state", "new_interval", "new_e_factor",
	"eval_seconds",
}

// Insert stores completed logs with a multi-row INSERT.
func (r *DBLogRepository) Insert(ctx context.Context, logs []*Log) error {
	if len(logs) == 0 {
		return nil
	}
	for _, l := range logs {
		if !l.Completed() {
			return fmt.Errorf("insert review log %d: not completed", l.ID)
		}
	}

	return r.store.Lock(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		query := database.BuildMultiRowInsert(database.TableReviewLogs, logColumns, len(logs))
		args := make([]any, 0, len(logs)*len(logColumns))
		for _, l := range logs {
			args = append(args, l.ID, l.CardID, l.Grade,
				l.PrevDue, l.PrevState, l.PrevInterval, l.PrevEFactor,
				l.NewDue, l.NewState, l.NewInterval, l.NewEFactor,
				l.EvalSeconds)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
			return fmt.Errorf("insert review logs: %w", err)
		}
		return nil
	})
}

func (r *DBLogRepository) FindBetween(ctx context.Context, from, to card.Timestamp, states ...card.PracticeState) ([]*Log, error) {
	q := database.From(database.TableReviewLogs).
		Select(logColumns...).
		Filter(database.Gte("id", from), database.Lt("id", to)).
		Asc("id")
	if len(states) > 0 {
		values := make([]int64, len(states))
		for i, s := range states {
			values[i] = int64(s)
		}
		q = q.Filter(database.In("prev_state", values))
	}

	var logs []*Log
	err := r.store.Lock(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		return database.SelectQuery(ctx, tx, &logs, q)
	})
	if err != nil {
		return nil, fmt.Errorf("find review logs: %w", err)
	}
	for _, l := range logs {
		l.completed = true
	}
	return logs, nil
}
