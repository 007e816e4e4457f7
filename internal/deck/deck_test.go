package deck

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/at-ishikawa/cardreview/internal/card"
	"github.com/at-ishikawa/cardreview/internal/config"
	"github.com/at-ishikawa/cardreview/internal/testutil"
)

const spanishDeck = `name: spanish
notes:
  - fields:
      word: hola
      meaning: hello
    cards:
      - front: hola
        back: hello
      - front: hello
        back: hola
  - cards:
      - front: gracias
        back: thank you
`

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    *Deck
		wantErr string
	}{
		{
			name:  "valid deck",
			input: spanishDeck,
			want: &Deck{
				Name: "spanish",
				Notes: []Note{
					{
						Fields: map[string]string{"word": "hola", "meaning": "hello"},
						Cards:  []Face{{Front: "hola", Back: "hello"}, {Front: "hello", Back: "hola"}},
					},
					{Cards: []Face{{Front: "gracias", Back: "thank you"}}},
				},
			},
		},
		{
			name:    "empty input",
			input:   "",
			wantErr: "empty deck",
		},
		{
			name:    "no notes",
			input:   "name: empty\n",
			wantErr: "deck has no notes",
		},
		{
			name:    "note without cards and empty front",
			input:   "notes:\n  - cards: []\n  - cards:\n      - back: only a back\n",
			wantErr: "note 1 has no cards\ncard 1 of note 2 has an empty front",
		},
		{
			name:    "unknown field",
			input:   "notes:\n  - card:\n      - front: a\n",
			wantErr: "yaml decode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(strings.NewReader(tt.input))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spanish.yml")
	require.NoError(t, os.WriteFile(path, []byte(spanishDeck), 0o644))

	d, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "spanish", d.Name)
	assert.Len(t, d.Notes, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestFace_RoundTrip(t *testing.T) {
	data, err := EncodeFace(Face{Front: "hola", Back: "hello: greeting"})
	require.NoError(t, err)
	got, err := DecodeFace(data)
	require.NoError(t, err)
	assert.Equal(t, Face{Front: "hola", Back: "hello: greeting"}, got)
}

func TestImporter_Import(t *testing.T) {
	store := testutil.NewSQLiteStore(t)
	notes := card.NewDBNoteRepository(store)

	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.Local)
	cfg := config.DefaultCollectionConfig()
	cfg.GraduationStartingEase = 2.3
	importer := NewImporter(notes, cfg, func() time.Time { return now })

	d, err := Parse(strings.NewReader(spanishDeck))
	require.NoError(t, err)
	ctx := context.Background()

	got, err := importer.Import(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, Result{Notes: 2, Cards: 3}, got)

	maxID, err := notes.MaxID(ctx)
	require.NoError(t, err)
	base := now.UnixMilli()
	assert.Equal(t, base+4, maxID, "note and card ids are consecutive under a fixed clock")

	cards, err := notes.FindCards(ctx, base)
	require.NoError(t, err)
	require.Len(t, cards, 2)
	for _, c := range cards {
		assert.Equal(t, card.StateNew, c.PracticeState)
		assert.Equal(t, 2.3, c.EFactor)
		assert.Equal(t, base, c.NoteID)
	}

	// a second import continues after the stored ids
	got, err = importer.Import(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Cards)
	maxID, err = notes.MaxID(ctx)
	require.NoError(t, err)
	assert.Equal(t, base+9, maxID)
}
