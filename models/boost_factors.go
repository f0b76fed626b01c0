package models

import (
	"time"
)

// BoostFactors speichert das vollständige Berechnungsergebnis für einen
// Record: drei Basis-Boosts, der kombinierte Boost-Faktor, sechs
// Disziplin-Gewichte und sechs finale Disziplin-Boosts. Pro Schlüssel gibt es
// genau eine Zeile, Neuberechnungen ersetzen sie komplett (Upsert).
type BoostFactors struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Bibcode string `json:"bibcode" gorm:"column:bibcode;size:19;uniqueIndex"`
	ScixID  string `json:"scix_id" gorm:"column:scix_id;size:19;uniqueIndex"`

	// Basis-Boosts
	RefereedBoost float64 `json:"refereed_boost"`
	DoctypeBoost  float64 `json:"doctype_boost"`
	RecencyBoost  float64 `json:"recency_boost"`
	BoostFactor   float64 `json:"boost_factor"`

	// Disziplin-Gewichte
	AstronomyWeight        float64 `json:"astronomy_weight"`
	PhysicsWeight          float64 `json:"physics_weight"`
	EarthScienceWeight     float64 `json:"earth_science_weight"`
	PlanetaryScienceWeight float64 `json:"planetary_science_weight"`
	HeliophysicsWeight     float64 `json:"heliophysics_weight"`
	GeneralWeight          float64 `json:"general_weight"`

	// Finale Disziplin-Boosts (Gewicht * BoostFactor)
	AstronomyFinalBoost        float64 `json:"astronomy_final_boost"`
	PhysicsFinalBoost          float64 `json:"physics_final_boost"`
	EarthScienceFinalBoost     float64 `json:"earth_science_final_boost"`
	PlanetaryScienceFinalBoost float64 `json:"planetary_science_final_boost"`
	HeliophysicsFinalBoost     float64 `json:"heliophysics_final_boost"`
	GeneralFinalBoost          float64 `json:"general_final_boost"`
}

// TableName gibt explizit den Tabellennamen an.
func (BoostFactors) TableName() string {
	return "boost_factors"
}

// Key gibt den primären Schlüssel für Logging zurück (bibcode vor scix_id).
func (b *BoostFactors) Key() string {
	if b.Bibcode != "" {
		return b.Bibcode
	}
	return b.ScixID
}

// SetWeight setzt das Gewicht für eine Disziplin.
func (b *BoostFactors) SetWeight(discipline string, w float64) {
	switch discipline {
	case "astronomy":
		b.AstronomyWeight = w
	case "physics":
		b.PhysicsWeight = w
	case "earth_science":
		b.EarthScienceWeight = w
	case "planetary_science":
		b.PlanetaryScienceWeight = w
	case "heliophysics":
		b.HeliophysicsWeight = w
	case "general":
		b.GeneralWeight = w
	}
}

// Weight gibt das Gewicht einer Disziplin zurück.
func (b *BoostFactors) Weight(discipline string) float64 {
	switch discipline {
	case "astronomy":
		return b.AstronomyWeight
	case "physics":
		return b.PhysicsWeight
	case "earth_science":
		return b.EarthScienceWeight
	case "planetary_science":
		return b.PlanetaryScienceWeight
	case "heliophysics":
		return b.HeliophysicsWeight
	case "general":
		return b.GeneralWeight
	}
	return 0
}

// SetFinalBoost setzt den finalen Boost für eine Disziplin.
func (b *BoostFactors) SetFinalBoost(discipline string, v float64) {
	switch discipline {
	case "astronomy":
		b.AstronomyFinalBoost = v
	case "physics":
		b.PhysicsFinalBoost = v
	case "earth_science":
		b.EarthScienceFinalBoost = v
	case "planetary_science":
		b.PlanetaryScienceFinalBoost = v
	case "heliophysics":
		b.HeliophysicsFinalBoost = v
	case "general":
		b.GeneralFinalBoost = v
	}
}

// FinalBoost gibt den finalen Boost einer Disziplin zurück.
func (b *BoostFactors) FinalBoost(discipline string) float64 {
	switch discipline {
	case "astronomy":
		return b.AstronomyFinalBoost
	case "physics":
		return b.PhysicsFinalBoost
	case "earth_science":
		return b.EarthScienceFinalBoost
	case "planetary_science":
		return b.PlanetaryScienceFinalBoost
	case "heliophysics":
		return b.HeliophysicsFinalBoost
	case "general":
		return b.GeneralFinalBoost
	}
	return 0
}
