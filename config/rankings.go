package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Disciplines ist die feste Menge der sechs Disziplinen. Nicht zur Laufzeit
// erweiterbar; neue Disziplinen brauchen eine Schema-Änderung.
var Disciplines = []string{
	"astronomy",
	"physics",
	"earth_science",
	"planetary_science",
	"heliophysics",
	"general",
}

// RankingTable bildet Doctypes auf Rang-Stufen und Collection-Tags auf
// Disziplin-Gewichte ab. Wird einmal beim Prozessstart geladen und danach nur
// noch gelesen.
type RankingTable struct {
	// Doctypes: Rang 1 = höchste Priorität, größere Zahlen = niedrigere.
	Doctypes map[string]int `yaml:"doctypes"`

	// Collections: Collection-Tag -> Disziplin -> Gewicht in [0.1, 1.0].
	Collections map[string]map[string]float64 `yaml:"collections"`

	doctypeScores map[string]float64
}

// LoadRankings lädt und validiert die Ranking-Tabelle. Eine ungültige Tabelle
// ist ein fataler Startfehler, der Prozess darf damit nicht rechnen.
func LoadRankings(path string) (*RankingTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading ranking table %s: %w", path, err)
	}

	var t RankingTable
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parsing ranking table %s: %w", path, err)
	}
	if err := t.validate(); err != nil {
		return nil, fmt.Errorf("invalid ranking table %s: %w", path, err)
	}
	t.buildDoctypeScores()
	return &t, nil
}

func (t *RankingTable) validate() error {
	if len(t.Doctypes) == 0 {
		return fmt.Errorf("no doctypes defined")
	}
	for doctype, rank := range t.Doctypes {
		if rank < 1 {
			return fmt.Errorf("doctype %q has rank %d, ranks start at 1", doctype, rank)
		}
	}

	known := make(map[string]bool, len(Disciplines))
	for _, d := range Disciplines {
		known[d] = true
	}
	for tag, weights := range t.Collections {
		for discipline, weight := range weights {
			if !known[discipline] {
				return fmt.Errorf("collection %q references unknown discipline %q", tag, discipline)
			}
			if weight < 0.1 || weight > 1.0 {
				return fmt.Errorf("collection %q weight for %q is %g, must be in [0.1, 1.0]", tag, discipline, weight)
			}
		}
	}
	return nil
}

// buildDoctypeScores verteilt die Rang-Stufen gleichmäßig auf [0, 1].
// Der beste Rang bekommt 1.0, der schlechteste 0.0.
func (t *RankingTable) buildDoctypeScores() {
	unique := make(map[int]bool)
	for _, rank := range t.Doctypes {
		unique[rank] = true
	}
	ranks := make([]int, 0, len(unique))
	for rank := range unique {
		ranks = append(ranks, rank)
	}
	sort.Ints(ranks)

	rankScore := make(map[int]float64, len(ranks))
	for i, rank := range ranks {
		if len(ranks) == 1 {
			rankScore[rank] = 1.0
		} else {
			rankScore[rank] = 1.0 - float64(i)/float64(len(ranks)-1)
		}
	}

	t.doctypeScores = make(map[string]float64, len(t.Doctypes))
	for doctype, rank := range t.Doctypes {
		t.doctypeScores[doctype] = rankScore[rank]
	}
}

// DoctypeScore gibt den Boost-Wert für einen Doctype zurück.
func (t *RankingTable) DoctypeScore(doctype string) (float64, bool) {
	score, ok := t.doctypeScores[doctype]
	return score, ok
}

// DisciplineWeights gibt die Gewichtstabelle für einen Collection-Tag zurück.
func (t *RankingTable) DisciplineWeights(tag string) (map[string]float64, bool) {
	weights, ok := t.Collections[tag]
	return weights, ok
}
