package services

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"boost-pipeline/config"
	"boost-pipeline/models"
	"boost-pipeline/storage"
)

// Spaltenreihenfolge der Export-Datei, stabil für nachgelagerte Konsumenten.
var exportHeader = []string{
	"bibcode", "scix_id", "created",
	"doctype_boost", "refereed_boost", "recency_boost", "boost_factor",
	"astronomy_weight", "physics_weight", "earth_science_weight",
	"planetary_science_weight", "heliophysics_weight", "general_weight",
	"astronomy_final_boost", "physics_final_boost", "earth_science_final_boost",
	"planetary_science_final_boost", "heliophysics_final_boost", "general_final_boost",
}

// Seitengröße beim Auslesen der Tabelle, hält den Speicher beschränkt.
const exportPageSize = 500

// ExportService schreibt boost_factors als CSV, optional gzip-komprimiert
// nach S3.
type ExportService struct {
	Config   *config.Config
	DB       *gorm.DB
	S3Client *s3.Client
	Logger   *zap.Logger
}

// NewExportService erstellt eine neue Instanz des ExportService.
func NewExportService(cfg *config.Config, db *gorm.DB, s3Client *s3.Client, logger *zap.Logger) *ExportService {
	return &ExportService{Config: cfg, DB: db, S3Client: s3Client, Logger: logger}
}

// ExportCSV schreibt alle Zeilen seitenweise in eine CSV-Datei und gibt die
// Anzahl exportierter Records zurück.
func (e *ExportService) ExportCSV(ctx context.Context, path string) (int, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("creating export directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("creating export file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(exportHeader); err != nil {
		return 0, err
	}

	count := 0
	var rows []models.BoostFactors
	err = e.DB.WithContext(ctx).FindInBatches(&rows, exportPageSize, func(tx *gorm.DB, batch int) error {
		for i := range rows {
			if err := writer.Write(exportRow(&rows[i])); err != nil {
				return err
			}
			count++
		}
		return nil
	}).Error
	if err != nil {
		return count, fmt.Errorf("exporting boost factors: %w", err)
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return count, err
	}

	e.Logger.Info("Exported boost factors",
		zap.String("path", path), zap.Int("records", count))
	return count, nil
}

// ExportToS3 schreibt den CSV-Export in das Export-Verzeichnis und lädt ihn
// gzip-komprimiert in den konfigurierten Bucket hoch.
func (e *ExportService) ExportToS3(ctx context.Context) (string, error) {
	if e.S3Client == nil {
		return "", fmt.Errorf("S3 export not configured")
	}

	stamp := time.Now().UTC().Format("2006-01-02T15-04-05Z")
	path := filepath.Join(e.Config.ExportDir, fmt.Sprintf("boost-factors-%s.csv", stamp))
	if _, err := e.ExportCSV(ctx, path); err != nil {
		return "", err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		return "", err
	}
	if err := gz.Close(); err != nil {
		return "", err
	}

	key := filepath.Base(path) + ".gz"
	link, err := storage.UploadFile(ctx, e.S3Client, e.Config.S3Bucket, key, buf.Bytes(), e.Config)
	if err != nil {
		return "", fmt.Errorf("uploading export: %w", err)
	}

	e.Logger.Info("Uploaded boost factor export", zap.String("link", link))
	return link, nil
}

func exportRow(bf *models.BoostFactors) []string {
	created := ""
	if !bf.CreatedAt.IsZero() {
		created = bf.CreatedAt.UTC().Format(time.RFC3339)
	}
	return []string{
		bf.Bibcode, bf.ScixID, created,
		formatFloat(bf.DoctypeBoost), formatFloat(bf.RefereedBoost),
		formatFloat(bf.RecencyBoost), formatFloat(bf.BoostFactor),
		formatFloat(bf.AstronomyWeight), formatFloat(bf.PhysicsWeight),
		formatFloat(bf.EarthScienceWeight), formatFloat(bf.PlanetaryScienceWeight),
		formatFloat(bf.HeliophysicsWeight), formatFloat(bf.GeneralWeight),
		formatFloat(bf.AstronomyFinalBoost), formatFloat(bf.PhysicsFinalBoost),
		formatFloat(bf.EarthScienceFinalBoost), formatFloat(bf.PlanetaryScienceFinalBoost),
		formatFloat(bf.HeliophysicsFinalBoost), formatFloat(bf.GeneralFinalBoost),
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
