package cardlist

import (
	"sync"

	"github.com/at-ishikawa/cardreview/internal/card"
)

// Dismissals is the session-scoped record of cards that must not be offered again.
// It is shared by the lists of one review collection.
type Dismissals struct {
	mu    sync.Mutex
	cards map[int64]struct{}
	// notes maps an answered note to the card that was answered
	notes map[int64]int64
}

func NewDismissals() *Dismissals {
	return &Dismissals{
		cards: make(map[int64]struct{}),
		notes: make(map[int64]int64),
	}
}

// DismissCard records a single card.
func (d *Dismissals) DismissCard(id int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cards[id] = struct{}{}
}

// DismissNote records that every card of the note except keepCardID is dismissed.
func (d *Dismissals) DismissNote(noteID, keepCardID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.notes[noteID]; !ok {
		d.notes[noteID] = keepCardID
	}
}

// IsDismissed reports whether c was dismissed or is a sibling of an answered card.
func (d *Dismissals) IsDismissed(c *card.Card) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.cards[c.ID]; ok {
		return true
	}
	keep, ok := d.notes[c.NoteID]
	return ok && keep != c.ID
}

// Len returns the number of individually dismissed cards.
func (d *Dismissals) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.cards)
}
