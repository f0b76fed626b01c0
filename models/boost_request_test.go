package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasIdentifier(t *testing.T) {
	assert.False(t, (&BoostRequest{}).HasIdentifier())
	assert.True(t, (&BoostRequest{Bibcode: "x"}).HasIdentifier())
	assert.True(t, (&BoostRequest{ScixID: "scix:1"}).HasIdentifier())
}

func TestKeyPrefersBibcode(t *testing.T) {
	assert.Equal(t, "bib", (&BoostRequest{Bibcode: "bib", ScixID: "scix:1"}).Key())
	assert.Equal(t, "scix:1", (&BoostRequest{ScixID: "scix:1"}).Key())
}

func TestReferenceDate(t *testing.T) {
	early := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	late := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Nil(t, (&BoostRequest{}).ReferenceDate())

	got := (&BoostRequest{PubDate: &early}).ReferenceDate()
	require.NotNil(t, got)
	assert.Equal(t, early, *got)

	got = (&BoostRequest{EntryDate: &late}).ReferenceDate()
	require.NotNil(t, got)
	assert.Equal(t, late, *got)

	// Beide gesetzt: das frühere zählt, egal welches Feld es ist.
	got = (&BoostRequest{PubDate: &late, EntryDate: &early}).ReferenceDate()
	require.NotNil(t, got)
	assert.Equal(t, early, *got)

	got = (&BoostRequest{PubDate: &early, EntryDate: &late}).ReferenceDate()
	require.NotNil(t, got)
	assert.Equal(t, early, *got)
}

func TestBoostFactorsDisciplineAccessors(t *testing.T) {
	bf := &BoostFactors{}
	disciplines := []string{"astronomy", "physics", "earth_science", "planetary_science", "heliophysics", "general"}

	for i, d := range disciplines {
		bf.SetWeight(d, float64(i)*0.1)
		bf.SetFinalBoost(d, float64(i)*0.2)
	}
	for i, d := range disciplines {
		assert.InDelta(t, float64(i)*0.1, bf.Weight(d), 1e-9, d)
		assert.InDelta(t, float64(i)*0.2, bf.FinalBoost(d), 1e-9, d)
	}

	// Unbekannte Disziplinen sind still neutral.
	bf.SetWeight("numerology", 9)
	assert.Equal(t, 0.0, bf.Weight("numerology"))
}
