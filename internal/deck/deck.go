// Package deck imports notes and their cards from YAML deck files.
package deck

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/at-ishikawa/cardreview/internal/card"
	"github.com/at-ishikawa/cardreview/internal/config"
)

// Deck is the file format of an importable deck.
type Deck struct {
	Name  string `yaml:"name"`
	Notes []Note `yaml:"notes"`
}

// Note is one entry of a deck. Every face becomes a card of the note.
type Note struct {
	Fields map[string]string `yaml:"fields,omitempty"`
	Cards  []Face            `yaml:"cards"`
}

// Face is the payload of a card.
type Face struct {
	Front string `yaml:"front"`
	Back  string `yaml:"back"`
}

const createBatchSize = 100

// Load reads a deck file.
func Load(path string) (*Deck, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("os.Open(%s) > %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	d, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return d, nil
}

// Parse decodes and validates a deck.
func Parse(r io.Reader) (*Deck, error) {
	var d Deck
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&d); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty deck")
		}
		return nil, fmt.Errorf("yaml decode: %w", err)
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

func (d *Deck) validate() error {
	var errs []error
	if len(d.Notes) == 0 {
		errs = append(errs, errors.New("deck has no notes"))
	}
	for i, n := range d.Notes {
		if len(n.Cards) == 0 {
			errs = append(errs, fmt.Errorf("note %d has no cards", i+1))
		}
		for j, c := range n.Cards {
			if strings.TrimSpace(c.Front) == "" {
				errs = append(errs, fmt.Errorf("card %d of note %d has an empty front", j+1, i+1))
			}
		}
	}
	return errors.Join(errs...)
}

// EncodeFace returns the stored payload of a card.
func EncodeFace(f Face) ([]byte, error) {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	if err := encoder.Encode(f); err != nil {
		return nil, fmt.Errorf("yaml encode: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("yaml encode: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeFace reads a card payload written by EncodeFace.
func DecodeFace(data []byte) (Face, error) {
	var f Face
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Face{}, fmt.Errorf("yaml.Unmarshal() > %w", err)
	}
	return f, nil
}

// Importer creates the notes and cards of decks.
type Importer struct {
	notes card.NoteRepository
	cfg   *config.CollectionConfig
	now   func() time.Time
}

func NewImporter(notes card.NoteRepository, cfg *config.CollectionConfig, now func() time.Time) *Importer {
	if now == nil {
		now = time.Now
	}
	return &Importer{notes: notes, cfg: cfg, now: now}
}

// Result summarizes an import.
type Result struct {
	Notes int
	Cards int
}

// Import stores every note of d as new cards. Ids are creation timestamps
// greater than any id already stored.
func (i *Importer) Import(ctx context.Context, d *Deck) (Result, error) {
	floor, err := i.notes.MaxID(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("find max id: %w", err)
	}
	ids := card.NewIDGenerator(floor, i.now)

	var (
		result Result
		batch  []*card.Note
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := i.notes.Create(ctx, batch); err != nil {
			return fmt.Errorf("create %d notes: %w", len(batch), err)
		}
		batch = batch[:0]
		return nil
	}

	for _, n := range d.Notes {
		note, err := i.newNote(ids, n)
		if err != nil {
			return result, err
		}
		batch = append(batch, note)
		result.Notes++
		result.Cards += len(note.Cards)
		if len(batch) == createBatchSize {
			if err := flush(); err != nil {
				return result, err
			}
		}
	}
	if err := flush(); err != nil {
		return result, err
	}

	slog.Default().Info("imported a deck",
		"deck", d.Name,
		"notes", result.Notes,
		"cards", result.Cards)
	return result, nil
}

func (i *Importer) newNote(ids *card.IDGenerator, n Note) (*card.Note, error) {
	var fields string
	if len(n.Fields) > 0 {
		out, err := yaml.Marshal(n.Fields)
		if err != nil {
			return nil, fmt.Errorf("yaml.Marshal() > %w", err)
		}
		fields = string(out)
	}

	noteID := ids.Next()
	note := &card.Note{
		ID:           noteID,
		LastModified: card.Timestamp(noteID),
		Fields:       fields,
	}
	for _, face := range n.Cards {
		data, err := EncodeFace(face)
		if err != nil {
			return nil, err
		}
		c := card.NewCard(ids.Next(), noteID, data)
		c.EFactor = i.cfg.GraduationStartingEase
		note.Cards = append(note.Cards, c)
	}
	return note, nil
}
