// Package review provides review logs and the daily review budget calculator.
package review

import (
	"errors"
	"fmt"
	"time"

	"github.com/at-ishikawa/cardreview/internal/card"
)

// ErrLogCompleted is returned when a log is completed twice.
var ErrLogCompleted = errors.New("review log already completed")

// Log is the audit record of one review, keyed by the review's start timestamp.
type Log struct {
	ID     int64      `db:"id"`
	CardID int64      `db:"card_id"`
	Grade  card.Grade `db:"grade"`

	PrevDue      card.Timestamp     `db:"prev_due"`
	PrevState    card.PracticeState `db:"prev_state"`
	PrevInterval int                `db:"prev_interval"`
	PrevEFactor  float64            `db:"prev_e_factor"`

	NewDue      card.Timestamp     `db:"new_due"`
	NewState    card.PracticeState `db:"new_state"`
	NewInterval int                `db:"new_interval"`
	NewEFactor  float64            `db:"new_e_factor"`

	EvalSeconds float64 `db:"eval_seconds"`

	completed bool
}

// Begin opens a log with the pre-review snapshot of c.
func Begin(id int64, c *card.Card) *Log {
	return &Log{
		ID:           id,
		CardID:       c.ID,
		PrevDue:      c.Due,
		PrevState:    c.PracticeState,
		PrevInterval: c.Interval,
		PrevEFactor:  c.EFactor,
	}
}

// Complete records the grade, the post-review snapshot of c and the evaluation time capped at maxEval.
func (l *Log) Complete(c *card.Card, grade card.Grade, elapsed, maxEval time.Duration) error {
	if l.completed {
		return fmt.Errorf("complete log %d: %w", l.ID, ErrLogCompleted)
	}
	if c.ID != l.CardID {
		return fmt.Errorf("complete log %d of card %d with card %d", l.ID, l.CardID, c.ID)
	}

	l.Grade = grade
	l.NewDue = c.Due
	l.NewState = c.PracticeState
	l.NewInterval = c.Interval
	l.NewEFactor = c.EFactor
	l.EvalSeconds = min(max(elapsed, 0), maxEval).Seconds()
	l.completed = true
	return nil
}

func (l *Log) Completed() bool {
	return l.completed
}
