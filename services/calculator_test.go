package services

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"boost-pipeline/config"
	"boost-pipeline/models"
)

const testRankingYAML = `
doctypes:
  article: 1
  inproceedings: 2
  phdthesis: 3
  abstract: 4
  newsletter: 5
  erratum: 6
collections:
  astronomy:
    astronomy: 1.0
    physics: 0.6
    general: 0.9
  physics:
    physics: 1.0
    astronomy: 0.6
    general: 0.9
  general:
    astronomy: 1.0
    physics: 1.0
    earth_science: 1.0
    planetary_science: 1.0
    heliophysics: 1.0
    general: 1.0
`

func testRankings(t *testing.T) *config.RankingTable {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rankings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testRankingYAML), 0o644))
	rankings, err := config.LoadRankings(path)
	require.NoError(t, err)
	return rankings
}

func testConfig() *config.Config {
	return &config.Config{
		RefereedWeight:      0.4,
		DoctypeWeight:       0.6,
		RecencyWeight:       0.0,
		RecencyMultiplier:   0.1,
		RecencyCutoffMonths: 24,
	}
}

func testCalculator(t *testing.T, cfg *config.Config) *Calculator {
	t.Helper()
	return NewCalculator(cfg, testRankings(t), zap.NewNop())
}

// monthsAgo liefert einen Zeitpunkt, der relativ zu now exakt die gegebene
// Anzahl Durchschnittsmonate zurückliegt.
func monthsAgo(now time.Time, months float64) *time.Time {
	d := time.Duration(months * daysPerMonth * 24 * float64(time.Hour))
	ref := now.Add(-d)
	return &ref
}

func TestRefereedBoost(t *testing.T) {
	calc := testCalculator(t, testConfig())

	assert.Equal(t, 1.0, calc.RefereedBoost(&models.BoostRequest{Refereed: true}))
	assert.Equal(t, 0.0, calc.RefereedBoost(&models.BoostRequest{Refereed: false}))
}

func TestDoctypeBoost(t *testing.T) {
	calc := testCalculator(t, testConfig())

	// Sechs Rang-Stufen, gleichmäßig auf [0, 1] verteilt.
	assert.InDelta(t, 1.0, calc.DoctypeBoost(&models.BoostRequest{Doctype: "article"}), 1e-9)
	assert.InDelta(t, 0.8, calc.DoctypeBoost(&models.BoostRequest{Doctype: "inproceedings"}), 1e-9)
	assert.InDelta(t, 0.6, calc.DoctypeBoost(&models.BoostRequest{Doctype: "phdthesis"}), 1e-9)
	assert.InDelta(t, 0.0, calc.DoctypeBoost(&models.BoostRequest{Doctype: "erratum"}), 1e-9)
}

func TestDoctypeBoostUnknownFallsBackToDefault(t *testing.T) {
	cfg := testConfig()
	cfg.DefaultDoctypeBoost = 0.25
	calc := testCalculator(t, cfg)

	assert.Equal(t, 0.25, calc.DoctypeBoost(&models.BoostRequest{Doctype: "hologram"}))
	assert.Equal(t, 0.25, calc.DoctypeBoost(&models.BoostRequest{Doctype: ""}))
}

func TestRecencyBoost(t *testing.T) {
	calc := testCalculator(t, testConfig())
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	calc.now = func() time.Time { return now }

	floor := 1.0 / (1.0 + 0.1*24)

	// Frisch publiziert: voller Boost.
	assert.InDelta(t, 1.0, calc.RecencyBoost(&models.BoostRequest{PubDate: monthsAgo(now, 0)}), 1e-9)

	// 10 Monate alt: 1/(1+0.1*10).
	assert.InDelta(t, 0.5, calc.RecencyBoost(&models.BoostRequest{PubDate: monthsAgo(now, 10)}), 1e-6)

	// Am Cutoff und dahinter gilt der Floor.
	assert.InDelta(t, floor, calc.RecencyBoost(&models.BoostRequest{PubDate: monthsAgo(now, 24)}), 1e-9)
	assert.InDelta(t, floor, calc.RecencyBoost(&models.BoostRequest{PubDate: monthsAgo(now, 60)}), 1e-9)

	// Ohne Datum ebenfalls der Floor, kein künstlicher Voll-Boost.
	assert.InDelta(t, floor, calc.RecencyBoost(&models.BoostRequest{}), 1e-9)

	// Zukünftige Daten werden auf Alter 0 geklemmt.
	future := now.AddDate(1, 0, 0)
	assert.InDelta(t, 1.0, calc.RecencyBoost(&models.BoostRequest{PubDate: &future}), 1e-9)
}

func TestRecencyBoostContinuousAtCutoff(t *testing.T) {
	calc := testCalculator(t, testConfig())
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	calc.now = func() time.Time { return now }

	floor := 1.0 / (1.0 + 0.1*24)
	justUnder := calc.RecencyBoost(&models.BoostRequest{PubDate: monthsAgo(now, 23.99)})
	assert.InDelta(t, floor, justUnder, 1e-3)
	assert.GreaterOrEqual(t, justUnder, floor)
}

func TestRecencyBoostUsesEarlierDate(t *testing.T) {
	calc := testCalculator(t, testConfig())
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	calc.now = func() time.Time { return now }

	// Pubdate 10 Monate, Entry-Date 2 Monate: das frühere Datum zählt.
	req := &models.BoostRequest{
		PubDate:   monthsAgo(now, 10),
		EntryDate: monthsAgo(now, 2),
	}
	assert.InDelta(t, 0.5, calc.RecencyBoost(req), 1e-6)
}

func TestCombinedBoost(t *testing.T) {
	calc := testCalculator(t, testConfig())

	// Default-Gewichte 0.4/0.6/0.0.
	assert.InDelta(t, 0.7, calc.CombinedBoost(1.0, 0.5, 0.0), 1e-9)

	// Gewichte, die nicht auf 1 summieren, werden normalisiert.
	cfg := testConfig()
	cfg.RefereedWeight = 1
	cfg.DoctypeWeight = 1
	cfg.RecencyWeight = 2
	calc = testCalculator(t, cfg)
	assert.InDelta(t, 0.375, calc.CombinedBoost(1.0, 0.5, 0.0), 1e-9)
}

func TestCombinedBoostAllZeroWeights(t *testing.T) {
	cfg := testConfig()
	cfg.RefereedWeight = 0
	cfg.DoctypeWeight = 0
	cfg.RecencyWeight = 0
	calc := testCalculator(t, cfg)

	// Entartete Konfiguration: einfacher Durchschnitt statt Division durch 0.
	assert.InDelta(t, 0.5, calc.CombinedBoost(1.0, 0.5, 0.0), 1e-9)
}

func TestDisciplineWeightsMaxRule(t *testing.T) {
	calc := testCalculator(t, testConfig())

	// astronomy gibt physics 0.6, physics gibt physics 1.0: Maximum zählt.
	weights := calc.DisciplineWeights([]string{"astronomy", "physics"})
	assert.InDelta(t, 1.0, weights["physics"], 1e-9)
	assert.InDelta(t, 1.0, weights["astronomy"], 1e-9)
	assert.InDelta(t, 0.9, weights["general"], 1e-9)

	// Disziplinen ohne Tabellen-Treffer bleiben auf dem Default.
	assert.InDelta(t, 0.0, weights["earth_science"], 1e-9)
}

func TestDisciplineWeightsDefaultOnlyForUnmatched(t *testing.T) {
	cfg := testConfig()
	cfg.DefaultDisciplineWeight = 0.9
	calc := testCalculator(t, cfg)

	// astronomy gibt physics 0.6: das Tabellen-Gewicht gilt, auch wenn der
	// Default darüber liegt. Der Default greift nur ohne Treffer.
	weights := calc.DisciplineWeights([]string{"astronomy"})
	assert.InDelta(t, 0.6, weights["physics"], 1e-9)
	assert.InDelta(t, 1.0, weights["astronomy"], 1e-9)
	assert.InDelta(t, 0.9, weights["earth_science"], 1e-9)
	assert.InDelta(t, 0.9, weights["heliophysics"], 1e-9)
}

func TestDisciplineWeightsEmptyCollections(t *testing.T) {
	cfg := testConfig()
	cfg.DefaultDisciplineWeight = 0.2
	calc := testCalculator(t, cfg)

	weights := calc.DisciplineWeights(nil)
	for _, d := range config.Disciplines {
		assert.InDelta(t, 0.2, weights[d], 1e-9, d)
	}
}

func TestDisciplineWeightsUnknownTagIgnored(t *testing.T) {
	calc := testCalculator(t, testConfig())

	weights := calc.DisciplineWeights([]string{"numerology", "astronomy"})
	assert.InDelta(t, 1.0, weights["astronomy"], 1e-9)
}

func TestComputeFullRecord(t *testing.T) {
	cfg := testConfig()
	cfg.RefereedWeight = 1
	cfg.DoctypeWeight = 1
	cfg.RecencyWeight = 1
	calc := testCalculator(t, cfg)
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	calc.now = func() time.Time { return now }

	req := &models.BoostRequest{
		Bibcode:     "2025ApJ...999...1X",
		ScixID:      "scix:1234-5678-9012",
		Refereed:    true,
		Doctype:     "inproceedings",
		PubDate:     monthsAgo(now, 0),
		Collections: []string{"astronomy"},
	}

	bf := calc.Compute(req)
	assert.Equal(t, req.Bibcode, bf.Bibcode)
	assert.Equal(t, req.ScixID, bf.ScixID)
	assert.InDelta(t, 1.0, bf.RefereedBoost, 1e-9)
	assert.InDelta(t, 0.8, bf.DoctypeBoost, 1e-9)
	assert.InDelta(t, 1.0, bf.RecencyBoost, 1e-9)

	// (1.0 + 0.8 + 1.0) / 3
	assert.InDelta(t, 0.93333, bf.BoostFactor, 1e-4)

	// Finale Boosts sind Gewicht mal kombinierter Faktor.
	assert.InDelta(t, 1.0*bf.BoostFactor, bf.AstronomyFinalBoost, 1e-9)
	assert.InDelta(t, 0.6*bf.BoostFactor, bf.PhysicsFinalBoost, 1e-9)
	assert.InDelta(t, 0.9*bf.BoostFactor, bf.GeneralFinalBoost, 1e-9)
	assert.InDelta(t, 0.0, bf.EarthScienceFinalBoost, 1e-9)
}

func TestComputeIsDeterministic(t *testing.T) {
	calc := testCalculator(t, testConfig())
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	calc.now = func() time.Time { return now }

	req := &models.BoostRequest{
		Bibcode:     "2024A&A...111..22Y",
		Refereed:    true,
		Doctype:     "article",
		PubDate:     monthsAgo(now, 6),
		Collections: []string{"physics"},
	}

	first := calc.Compute(req)
	second := calc.Compute(req)
	assert.Equal(t, first, second)
}
