package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"boost-pipeline/config"
	"boost-pipeline/models"
	"boost-pipeline/queue"
)

// Responder meldet berechnete Boost-Faktoren an die Master-Pipeline zurück.
// Best-effort: ein fehlgeschlagenes Senden rollt die persistierte Zeile nicht
// zurück, die Datenbank bleibt die Quelle der Wahrheit. Doppelte
// Benachrichtigungen nach Redelivery sind akzeptabel, die Nachricht ist rein
// informativ.
type Responder struct {
	Config *config.Config
	Broker queue.Broker
	Logger *zap.Logger
}

// NewResponder erstellt einen neuen Responder.
func NewResponder(cfg *config.Config, broker queue.Broker, logger *zap.Logger) *Responder {
	return &Responder{Config: cfg, Broker: broker, Logger: logger}
}

// boostResponse ist das Antwortformat der Master-Pipeline: Schlüsselpaar plus
// die vollständige Boost-Payload.
type boostResponse struct {
	Bibcode string `json:"bibcode"`
	ScixID  string `json:"scix_id"`
	Status  int    `json:"status"`

	RefereedBoost float64 `json:"refereed_boost"`
	DoctypeBoost  float64 `json:"doctype_boost"`
	RecencyBoost  float64 `json:"recency_boost"`
	BoostFactor   float64 `json:"boost_factor"`

	AstronomyWeight        float64 `json:"astronomy_weight"`
	PhysicsWeight          float64 `json:"physics_weight"`
	EarthScienceWeight     float64 `json:"earth_science_weight"`
	PlanetaryScienceWeight float64 `json:"planetary_science_weight"`
	HeliophysicsWeight     float64 `json:"heliophysics_weight"`
	GeneralWeight          float64 `json:"general_weight"`

	AstronomyFinalBoost        float64 `json:"astronomy_final_boost"`
	PhysicsFinalBoost          float64 `json:"physics_final_boost"`
	EarthScienceFinalBoost     float64 `json:"earth_science_final_boost"`
	PlanetaryScienceFinalBoost float64 `json:"planetary_science_final_boost"`
	HeliophysicsFinalBoost     float64 `json:"heliophysics_final_boost"`
	GeneralFinalBoost          float64 `json:"general_final_boost"`

	Created  string `json:"created"`
	Modified string `json:"modified"`
}

// Statuswert der Master-Pipeline für aktualisierte Records.
const statusUpdated = 3

// Send schiebt das Ergebnis auf die Antwort-Queue der Master-Pipeline.
// Transportfehler sind transient und werden vom Worker wiederholt.
func (r *Responder) Send(ctx context.Context, bf *models.BoostFactors) error {
	resp := boostResponse{
		Bibcode: bf.Bibcode,
		ScixID:  bf.ScixID,
		Status:  statusUpdated,

		RefereedBoost: bf.RefereedBoost,
		DoctypeBoost:  bf.DoctypeBoost,
		RecencyBoost:  bf.RecencyBoost,
		BoostFactor:   bf.BoostFactor,

		AstronomyWeight:        bf.AstronomyWeight,
		PhysicsWeight:          bf.PhysicsWeight,
		EarthScienceWeight:     bf.EarthScienceWeight,
		PlanetaryScienceWeight: bf.PlanetaryScienceWeight,
		HeliophysicsWeight:     bf.HeliophysicsWeight,
		GeneralWeight:          bf.GeneralWeight,

		AstronomyFinalBoost:        bf.AstronomyFinalBoost,
		PhysicsFinalBoost:          bf.PhysicsFinalBoost,
		EarthScienceFinalBoost:     bf.EarthScienceFinalBoost,
		PlanetaryScienceFinalBoost: bf.PlanetaryScienceFinalBoost,
		HeliophysicsFinalBoost:     bf.HeliophysicsFinalBoost,
		GeneralFinalBoost:          bf.GeneralFinalBoost,

		Created:  formatTime(bf.CreatedAt),
		Modified: formatTime(bf.UpdatedAt),
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		return queue.Permanent(fmt.Errorf("marshaling response for %s: %w", bf.Key(), err))
	}

	if err := r.Broker.Publish(ctx, r.Config.ResponseQueue, payload); err != nil {
		return queue.Retryable(fmt.Errorf("sending response for %s: %w", bf.Key(), err))
	}

	r.Logger.Info("Sent boost factors to master pipeline", zap.String("record", bf.Key()))
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now().UTC()
	}
	return t.UTC().Format(time.RFC3339)
}
