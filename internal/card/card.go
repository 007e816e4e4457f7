// Package card provides the card and note domain models and their repositories.
package card

import (
	"fmt"
	"time"
)

// Timestamp is a point in time in milliseconds since the Unix epoch.
// Card ids, due dates and review log ids are stored this way.
type Timestamp int64

// At converts t to a Timestamp.
func At(t time.Time) Timestamp {
	return Timestamp(t.UnixMilli())
}

// Time converts ts back to a local time.
func (ts Timestamp) Time() time.Time {
	return time.UnixMilli(int64(ts))
}

// StartOfDay returns local midnight of the day t falls in.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// StartOfTomorrow returns local midnight of the day after t.
func StartOfTomorrow(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
}

// PracticeState is the scheduling track of a card.
// Values from StateLearning upwards encode the learning step: StateLearning+i is step i.
type PracticeState int

const (
	StateDeleted  PracticeState = -1
	StateDue      PracticeState = 0
	StateNew      PracticeState = 1
	StateLearning PracticeState = 2
)

func (s PracticeState) String() string {
	switch {
	case s == StateDeleted:
		return "deleted"
	case s == StateDue:
		return "due"
	case s == StateNew:
		return "new"
	case s >= StateLearning:
		return fmt.Sprintf("learning(%d)", int(s-StateLearning))
	default:
		return fmt.Sprintf("PracticeState(%d)", int(s))
	}
}

// MiscState holds flags orthogonal to PracticeState.
type MiscState int

const (
	MiscSuspended MiscState = 1 << iota
	MiscDismissed
)

// Card is one reviewable item generated from a note.
type Card struct {
	ID            int64         `db:"id"`
	NoteID        int64         `db:"note_id"`
	Due           Timestamp     `db:"due"`
	PracticeState PracticeState `db:"practice_state"`
	MiscState     MiscState     `db:"misc_state"`
	EFactor       float64       `db:"e_factor"`
	Interval      int           `db:"interval_days"`
	Reviews       int           `db:"reviews"`
	Lapses        int           `db:"lapses"`
	LastModified  Timestamp     `db:"last_modified"`
	// Data is owned by the note content and is hydrated lazily.
	Data []byte `db:"data"`
}

// NewCard returns a card in the New state.
func NewCard(id, noteID int64, data []byte) *Card {
	return &Card{
		ID:            id,
		NoteID:        noteID,
		PracticeState: StateNew,
		Interval:      1,
		LastModified:  Timestamp(id),
		Data:          data,
	}
}

func (c *Card) IsNew() bool {
	return c.PracticeState == StateNew
}

func (c *Card) IsLearning() bool {
	return c.PracticeState >= StateLearning
}

func (c *Card) IsDue() bool {
	return c.PracticeState == StateDue
}

func (c *Card) IsDeleted() bool {
	return c.PracticeState == StateDeleted
}

// LearningStep returns the index of the current learning step, or -1 when the card is not learning.
func (c *Card) LearningStep() int {
	if !c.IsLearning() {
		return -1
	}
	return int(c.PracticeState - StateLearning)
}

func (c *Card) IsSuspended() bool {
	return c.MiscState&MiscSuspended != 0
}

func (c *Card) IsDismissed() bool {
	return c.MiscState&MiscDismissed != 0
}

// DueBefore reports whether the card becomes eligible before t.
func (c *Card) DueBefore(t time.Time) bool {
	return c.Due < At(t)
}

// Clone returns a deep copy of c.
func (c *Card) Clone() *Card {
	clone := *c
	if c.Data != nil {
		clone.Data = append([]byte(nil), c.Data...)
	}
	return &clone
}

// Note groups the sibling cards generated from the same content.
type Note struct {
	ID           int64     `db:"id"`
	LastModified Timestamp `db:"last_modified"`
	Fields       string    `db:"fields"`
	Cards        []*Card   `db:"-"`
}
