package card

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/at-ishikawa/cardreview/internal/database"
	"github.com/at-ishikawa/cardreview/internal/hydrate"
)

//go:generate mockgen -source=repository.go -destination=../mocks/card/mock_repository.go -package=mock_card

// Repository defines the card storage operations used by the review engine.
type Repository interface {
	// FindShallow returns the cards matching q with only the permanent columns loaded.
	FindShallow(ctx context.Context, q database.Query) ([]*Card, error)
	// FindHydrated returns the id and lazy columns of the given cards.
	FindHydrated(ctx context.Context, ids []int64) ([]*Card, error)
	Count(ctx context.Context, q database.Query) (int, error)
	CountByState(ctx context.Context) (map[PracticeState]int, error)
	Insert(ctx context.Context, cards []*Card) error
	Update(ctx context.Context, c *Card) error
	Delete(ctx context.Context, id int64) error
	// DeferSiblings moves the other cards of the note due before until to until.
	DeferSiblings(ctx context.Context, c *Card, until Timestamp) (int64, error)
}

// DBRepository implements Repository on top of a locked store.
type DBRepository struct {
	store  database.Locker
	helper *hydrate.Helper[Card]
}

// NewDBRepository creates a new DBRepository.
func NewDBRepository(store database.Locker, helper *hydrate.Helper[Card]) *DBRepository {
	return &DBRepository{store: store, helper: helper}
}

// Helper returns the hydration helper shared with the card lists.
func (r *DBRepository) Helper() *hydrate.Helper[Card] {
	return r.helper
}

func (r *DBRepository) FindShallow(ctx context.Context, q database.Query) ([]*Card, error) {
	var cards []*Card
	err := r.store.Lock(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		var err error
		cards, err = r.helper.ShallowLoad(ctx, tx, q)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("find cards: %w", err)
	}
	return cards, nil
}

func (r *DBRepository) FindHydrated(ctx context.Context, ids []int64) ([]*Card, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var cards []*Card
	err := r.store.Lock(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		var err error
		cards, err = r.helper.FurtherLoad(ctx, tx, ids)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("hydrate %d cards: %w", len(ids), err)
	}
	return cards, nil
}

func (r *DBRepository) Count(ctx context.Context, q database.Query) (int, error) {
	var n int
	err := r.store.Lock(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		var err error
		n, err = database.CountQuery(ctx, tx, q)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("count cards: %w", err)
	}
	return n, nil
}

// CountByState returns the number of stored cards per practice state.
// Learning steps are folded into StateLearning.
func (r *DBRepository) CountByState(ctx context.Context) (map[PracticeState]int, error) {
	var rows []struct {
		State PracticeState `db:"practice_state"`
		N     int           `db:"n"`
	}
	err := r.store.Lock(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		return tx.SelectContext(ctx, &rows,
			"SELECT practice_state, COUNT(*) AS n FROM cards GROUP BY practice_state ORDER BY practice_state")
	})
	if err != nil {
		return nil, fmt.Errorf("count cards by state: %w", err)
	}

	counts := make(map[PracticeState]int)
	for _, row := range rows {
		state := row.State
		if state > StateLearning {
			state = StateLearning
		}
		counts[state] += row.N
	}
	return counts, nil
}

var cardColumns = []string{
	"id", "note_id", "due", "practice_state", "misc_state", "e_factor",
	"interval_days", "reviews", "lapses", "last_modified", "data",
}

// Insert stores new cards with a multi-row INSERT.
func (r *DBRepository) Insert(ctx context.Context, cards []*Card) error {
	if len(cards) == 0 {
		return nil
	}
	return r.store.Lock(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		return insertCards(ctx, tx, cards)
	})
}

func insertCards(ctx context.Context, tx *sqlx.Tx, cards []*Card) error {
	query := database.BuildMultiRowInsert(database.TableCards, cardColumns, len(cards))
	args := make([]any, 0, len(cards)*len(cardColumns))
	for _, c := range cards {
		args = append(args, c.ID, c.NoteID, c.Due, c.PracticeState, c.MiscState, c.EFactor,
			c.Interval, c.Reviews, c.Lapses, c.LastModified, c.Data)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
		return fmt.Errorf("insert cards: %w", err)
	}
	return nil
}

// Update writes the scheduling fields of c. The payload is left untouched.
func (r *DBRepository) Update(ctx context.Context, c *Card) error {
	return r.store.Lock(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, tx.Rebind(
			"UPDATE cards SET due = ?, practice_state = ?, misc_state = ?, e_factor = ?, interval_days = ?, reviews = ?, lapses = ?, last_modified = ? WHERE id = ?"),
			c.Due, c.PracticeState, c.MiscState, c.EFactor, c.Interval, c.Reviews, c.Lapses, c.LastModified, c.ID)
		if err != nil {
			return fmt.Errorf("update card %d: %w", c.ID, err)
		}
		return nil
	})
}

func (r *DBRepository) Delete(ctx context.Context, id int64) error {
	return r.store.Lock(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM cards WHERE id = ?"), id); err != nil {
			return fmt.Errorf("delete card %d: %w", id, err)
		}
		return nil
	})
}

func (r *DBRepository) DeferSiblings(ctx context.Context, c *Card, until Timestamp) (int64, error) {
	var n int64
	err := r.store.Lock(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, tx.Rebind(
			"UPDATE cards SET due = ? WHERE note_id = ? AND id <> ? AND due < ? AND practice_state <> ?"),
			until, c.NoteID, c.ID, until, StateDeleted)
		if err != nil {
			return fmt.Errorf("defer siblings of card %d: %w", c.ID, err)
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}
