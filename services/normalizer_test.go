package services

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"boost-pipeline/queue"
)

func TestNormalizeFullMessage(t *testing.T) {
	n := NewNormalizer(zap.NewNop())

	raw := json.RawMessage(`{
		"bibcode": "2025ApJ...999...1X",
		"scix_id": "scix:1234-5678-9012",
		"bib_data": {"doctype": "Article", "pubdate": "2025-03-00", "entry_date": "2025-02-14", "refereed": false},
		"metrics": {"refereed": true},
		"classifications": ["Astronomy", "Earth Science"]
	}`)

	req, err := n.Normalize(raw)
	require.NoError(t, err)

	assert.Equal(t, "2025ApJ...999...1X", req.Bibcode)
	assert.Equal(t, "scix:1234-5678-9012", req.ScixID)
	assert.Equal(t, "article", req.Doctype)
	assert.True(t, req.Refereed)
	assert.Equal(t, []string{"astronomy", "earth_science"}, req.Collections)

	// Tag "00" wird auf den Monatsersten gelegt.
	require.NotNil(t, req.PubDate)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), *req.PubDate)
	require.NotNil(t, req.EntryDate)
	assert.Equal(t, time.Date(2025, 2, 14, 0, 0, 0, 0, time.UTC), *req.EntryDate)
}

func TestNormalizeEmbeddedJSONSections(t *testing.T) {
	n := NewNormalizer(zap.NewNop())

	// Die Master-Pipeline liefert Sektionen teils als eingebettete
	// JSON-Strings.
	raw := json.RawMessage(`{
		"bibcode": "2024A&A...111..22Y",
		"bib_data": "{\"doctype\": \"eprint\", \"pubdate\": \"2024-11\", \"refereed\": true}",
		"classifications": "physics"
	}`)

	req, err := n.Normalize(raw)
	require.NoError(t, err)

	assert.Equal(t, "eprint", req.Doctype)
	assert.True(t, req.Refereed)
	assert.Equal(t, []string{"physics"}, req.Collections)
	require.NotNil(t, req.PubDate)
	assert.Equal(t, time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC), *req.PubDate)
}

func TestNormalizeCollectionFallbacks(t *testing.T) {
	n := NewNormalizer(zap.NewNop())

	// Ohne classifications zählt das collections-Feld.
	req, err := n.Normalize(json.RawMessage(`{
		"bibcode": "x", "collections": ["heliophysics"]
	}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"heliophysics"}, req.Collections)

	// Zuletzt bib_data.database.
	req, err = n.Normalize(json.RawMessage(`{
		"bibcode": "x", "bib_data": {"database": ["general"]}
	}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"general"}, req.Collections)

	// Gar nichts: leere Collections, kein Fehler.
	req, err = n.Normalize(json.RawMessage(`{"bibcode": "x"}`))
	require.NoError(t, err)
	assert.Empty(t, req.Collections)
}

func TestNormalizeRejectsMissingIdentifiers(t *testing.T) {
	n := NewNormalizer(zap.NewNop())

	_, err := n.Normalize(json.RawMessage(`{"bib_data": {"doctype": "article"}}`))
	require.Error(t, err)
	assert.True(t, queue.IsValidation(err))

	_, err = n.Normalize(json.RawMessage(`{"bibcode": "  ", "scix_id": ""}`))
	require.Error(t, err)
	assert.True(t, queue.IsValidation(err))
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	n := NewNormalizer(zap.NewNop())

	_, err := n.Normalize(json.RawMessage(`not json at all`))
	require.Error(t, err)
	assert.True(t, queue.IsValidation(err))
}

func TestNormalizeToleratesBrokenSections(t *testing.T) {
	n := NewNormalizer(zap.NewNop())

	// Unparsbare Sektionen sind leer, kein Fehler: der Record wird mit dem
	// verarbeitet, was da ist.
	req, err := n.Normalize(json.RawMessage(`{
		"bibcode": "x",
		"bib_data": 42,
		"metrics": "{{{"
	}`))
	require.NoError(t, err)
	assert.Empty(t, req.Doctype)
	assert.False(t, req.Refereed)
}

func TestParseDate(t *testing.T) {
	assert.Nil(t, parseDate(""))
	assert.Nil(t, parseDate("unknown"))
	assert.Nil(t, parseDate("2025-13-01"))

	d := parseDate("2025-06-15")
	require.NotNil(t, d)
	assert.Equal(t, time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC), *d)
}

func TestNormalizeTag(t *testing.T) {
	assert.Equal(t, "earth_science", NormalizeTag(" Earth Science "))
	assert.Equal(t, "astronomy", NormalizeTag("ASTRONOMY"))
}
