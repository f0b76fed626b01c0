package services

import (
	"time"

	"go.uber.org/zap"

	"boost-pipeline/config"
	"boost-pipeline/models"
)

// Durchschnittliche Monatslänge in Tagen, für das Alter in Monaten.
const daysPerMonth = 30.44

// Calculator berechnet die Boost-Faktoren eines Records. Bis auf eine
// Warnung bei unbekannten Doctypes rein und deterministisch: gleiche Eingabe
// und Ranking-Tabelle ergeben immer dasselbe Ergebnis, Wiederholungen sind
// sicher.
type Calculator struct {
	Config   *config.Config
	Rankings *config.RankingTable
	Logger   *zap.Logger

	now func() time.Time
}

// NewCalculator erstellt einen Calculator mit der geladenen Ranking-Tabelle.
func NewCalculator(cfg *config.Config, rankings *config.RankingTable, logger *zap.Logger) *Calculator {
	return &Calculator{
		Config:   cfg,
		Rankings: rankings,
		Logger:   logger,
		now:      time.Now,
	}
}

// Compute berechnet das vollständige BoostFactors-Ergebnis für einen Record:
// drei Basis-Boosts, kombinierter Boost-Faktor, Disziplin-Gewichte und
// finale Disziplin-Boosts.
func (c *Calculator) Compute(req *models.BoostRequest) *models.BoostFactors {
	bf := &models.BoostFactors{
		Bibcode: req.Bibcode,
		ScixID:  req.ScixID,
	}

	bf.RefereedBoost = c.RefereedBoost(req)
	bf.DoctypeBoost = c.DoctypeBoost(req)
	bf.RecencyBoost = c.RecencyBoost(req)
	bf.BoostFactor = c.CombinedBoost(bf.RefereedBoost, bf.DoctypeBoost, bf.RecencyBoost)

	weights := c.DisciplineWeights(req.Collections)
	for _, d := range config.Disciplines {
		bf.SetWeight(d, weights[d])
		bf.SetFinalBoost(d, weights[d]*bf.BoostFactor)
	}
	return bf
}

// RefereedBoost ist 1.0 für referierte Records, sonst 0.0.
func (c *Calculator) RefereedBoost(req *models.BoostRequest) float64 {
	if req.Refereed {
		return 1.0
	}
	return 0.0
}

// DoctypeBoost schlägt den Doctype in der Ranking-Tabelle nach. Unbekannte
// Doctypes sind erwartbar und fallen auf den konfigurierten Default zurück.
func (c *Calculator) DoctypeBoost(req *models.BoostRequest) float64 {
	if score, ok := c.Rankings.DoctypeScore(req.Doctype); ok {
		return score
	}
	c.Logger.Warn("Unknown doctype, using default boost",
		zap.String("record", req.Key()),
		zap.String("doctype", req.Doctype))
	return c.Config.DefaultDoctypeBoost
}

// RecencyBoost fällt reziprok mit dem Alter in Monaten: 1/(1+k*alter).
// Ab dem Cutoff (und für Records ohne Datum) gilt der Floor-Wert
// 1/(1+k*cutoff), damit die Kurve an der Grenze stetig bleibt.
func (c *Calculator) RecencyBoost(req *models.BoostRequest) float64 {
	k := c.Config.RecencyMultiplier
	cutoff := c.Config.RecencyCutoffMonths
	floor := 1.0 / (1.0 + k*cutoff)

	ref := req.ReferenceDate()
	if ref == nil {
		return floor
	}

	ageMonths := c.now().Sub(*ref).Hours() / 24 / daysPerMonth
	if ageMonths < 0 {
		ageMonths = 0
	}
	if ageMonths >= cutoff {
		return floor
	}
	return 1.0 / (1.0 + k*ageMonths)
}

// CombinedBoost bildet den gewichteten Durchschnitt der drei Basis-Boosts.
// Summiert der Gewichtsvektor nicht auf 1.0, wird normalisiert; sind alle
// Gewichte 0, zählt jeder Basis-Boost gleich.
func (c *Calculator) CombinedBoost(refereed, doctype, recency float64) float64 {
	wr := c.Config.RefereedWeight
	wd := c.Config.DoctypeWeight
	wc := c.Config.RecencyWeight

	total := wr + wd + wc
	if total <= 0 {
		return (refereed + doctype + recency) / 3.0
	}
	return (refereed*wr + doctype*wd + recency*wc) / total
}

// DisciplineWeights bestimmt pro Disziplin das Maximum der Tabellen-Gewichte
// über alle Collections des Records. Ein Record in mehreren für eine
// Disziplin relevanten Collections wird nicht über die stärkste einzelne
// Relevanz hinaus geboostet. Nur Disziplinen ohne Treffer bekommen den
// konfigurierten Default, nie ein implizites Null-durch-Weglassen; ein Default
// über dem Tabellen-Gewicht überstimmt die Tabelle nicht.
func (c *Calculator) DisciplineWeights(collections []string) map[string]float64 {
	weights := make(map[string]float64, len(config.Disciplines))
	matched := make(map[string]bool, len(config.Disciplines))

	for _, tag := range collections {
		table, ok := c.Rankings.DisciplineWeights(NormalizeTag(tag))
		if !ok {
			continue
		}
		for discipline, w := range table {
			if !matched[discipline] || w > weights[discipline] {
				weights[discipline] = w
				matched[discipline] = true
			}
		}
	}

	for _, d := range config.Disciplines {
		if !matched[d] {
			weights[d] = c.Config.DefaultDisciplineWeight
		}
	}
	return weights
}
