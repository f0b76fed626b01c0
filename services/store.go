package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"boost-pipeline/models"
	"boost-pipeline/queue"
)

// Spalten, die bei einem Konflikt vollständig ersetzt werden. Die Zeile wird
// nie teilweise aktualisiert: ein Upsert schreibt immer alle berechneten
// Felder plus Zeitstempel.
var boostColumns = []string{
	"refereed_boost", "doctype_boost", "recency_boost", "boost_factor",
	"astronomy_weight", "physics_weight", "earth_science_weight",
	"planetary_science_weight", "heliophysics_weight", "general_weight",
	"astronomy_final_boost", "physics_final_boost", "earth_science_final_boost",
	"planetary_science_final_boost", "heliophysics_final_boost", "general_final_boost",
	"updated_at",
}

// StoreService ist das Persistenz-Gateway für BoostFactors-Zeilen.
type StoreService struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

// NewStoreService erstellt eine neue Instanz des StoreService.
func NewStoreService(db *gorm.DB, logger *zap.Logger) *StoreService {
	return &StoreService{DB: db, Logger: logger}
}

// Upsert schreibt die komplette Zeile für einen Schlüssel, idempotent:
// derselbe Wert zweimal lässt identischen Zustand zurück, ein neuer Wert
// ersetzt die Zeile vollständig. Schreiber auf denselben Schlüssel
// serialisieren auf der Zeile (last-writer-wins), Schreiber auf verschiedene
// Schlüssel laufen parallel.
func (s *StoreService) Upsert(ctx context.Context, bf *models.BoostFactors) error {
	if bf.Bibcode == "" && bf.ScixID == "" {
		return queue.Permanent(fmt.Errorf("boost factors without identifier"))
	}

	// Postgres ON CONFLICT braucht genau einen Index: bibcode wenn gesetzt,
	// sonst scix_id. Beide sind unique.
	conflictColumn := "bibcode"
	if bf.Bibcode == "" {
		conflictColumn = "scix_id"
	}

	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: conflictColumn}},
		DoUpdates: clause.AssignmentColumns(boostColumns),
	}).Create(bf).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return queue.Permanent(fmt.Errorf("upsert conflict for %s: %w", bf.Key(), err))
		}
		return queue.Retryable(fmt.Errorf("upsert for %s: %w", bf.Key(), err))
	}

	s.Logger.Debug("Stored boost factors", zap.String("record", bf.Key()))
	return nil
}

// Get liest die Zeile für einen Bibcode oder eine SciX-ID.
func (s *StoreService) Get(ctx context.Context, id string) (*models.BoostFactors, error) {
	var bf models.BoostFactors
	err := s.DB.WithContext(ctx).
		Where("bibcode = ? OR scix_id = ?", id, id).
		First(&bf).Error
	if err != nil {
		return nil, err
	}
	return &bf, nil
}
