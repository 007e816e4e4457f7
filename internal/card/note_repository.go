package card

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/at-ishikawa/cardreview/internal/database"
)

// NoteRepository defines operations for managing notes and the cards they own.
type NoteRepository interface {
	// Create stores the note together with its cards.
	Create(ctx context.Context, notes []*Note) error
	FindCards(ctx context.Context, noteID int64) ([]*Card, error)
	// MaxID returns the largest note or card id in use, 0 when empty.
	MaxID(ctx context.Context) (int64, error)
}

// DBNoteRepository implements NoteRepository on top of a locked store.
type DBNoteRepository struct {
	store database.Locker
}

// NewDBNoteRepository creates a new DBNoteRepository.
func NewDBNoteRepository(store database.Locker) *DBNoteRepository {
	return &DBNoteRepository{store: store}
}

func (r *DBNoteRepository) Create(ctx context.Context, notes []*Note) error {
	if len(notes) == 0 {
		return nil
	}

	return r.store.Lock(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		query := database.BuildMultiRowInsert(database.TableNotes, []string{"id", "last_modified", "fields"}, len(notes))
		var (
			args  []any
			cards []*Card
		)
		for _, n := range notes {
			args = append(args, n.ID, n.LastModified, n.Fields)
			for _, c := range n.Cards {
				if c.NoteID != n.ID {
					return fmt.Errorf("card %d belongs to note %d, not %d", c.ID, c.NoteID, n.ID)
				}
				cards = append(cards, c)
			}
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
			return fmt.Errorf("insert notes: %w", err)
		}
		if len(cards) == 0 {
			return nil
		}
		return insertCards(ctx, tx, cards)
	})
}

func (r *DBNoteRepository) FindCards(ctx context.Context, noteID int64) ([]*Card, error) {
	var cards []*Card
	err := r.store.Lock(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		return database.SelectQuery(ctx, tx, &cards,
			database.From(database.TableCards).Filter(database.Eq("note_id", noteID)).Asc("id"))
	})
	if err != nil {
		return nil, fmt.Errorf("find cards of note %d: %w", noteID, err)
	}
	return cards, nil
}

func (r *DBNoteRepository) MaxID(ctx context.Context) (int64, error) {
	var maxNote, maxCard int64
	err := r.store.Lock(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &maxNote, "SELECT COALESCE(MAX(id), 0) FROM notes"); err != nil {
			return err
		}
		return tx.GetContext(ctx, &maxCard, "SELECT COALESCE(MAX(id), 0) FROM cards")
	})
	if err != nil {
		return 0, fmt.Errorf("find max id: %w", err)
	}
	return max(maxNote, maxCard), nil
}
