package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config enthält alle Konfigurationsparameter aus Umgebungsvariablen.
type Config struct {
	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" required:"true"`

	HTTPPort     string `envconfig:"HTTP_PORT" default:"4242"`
	APISecretKey string `envconfig:"API_SECRET_KEY"`

	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// Die vier logischen Kanäle der Pipeline plus die Antwort-Queue zur
	// Master-Pipeline.
	IntakeQueue   string `envconfig:"INTAKE_QUEUE" default:"boost-requests"`
	ComputeQueue  string `envconfig:"COMPUTE_QUEUE" default:"boost-compute"`
	StoreQueue    string `envconfig:"STORE_QUEUE" default:"boost-store"`
	RespondQueue  string `envconfig:"RESPOND_QUEUE" default:"boost-respond"`
	ResponseQueue string `envconfig:"RESPONSE_QUEUE" default:"master-pipeline-updates"`

	WorkersPerStage int           `envconfig:"WORKERS_PER_STAGE" default:"4"`
	StageTimeout    time.Duration `envconfig:"STAGE_TIMEOUT" default:"30s"`
	MaxAttempts     int           `envconfig:"MAX_ATTEMPTS" default:"5"`
	RetryBaseDelay  time.Duration `envconfig:"RETRY_BASE_DELAY" default:"500ms"`
	RetryMaxDelay   time.Duration `envconfig:"RETRY_MAX_DELAY" default:"30s"`

	BatchSize        int           `envconfig:"BATCH_SIZE" default:"100"`
	ProgressInterval time.Duration `envconfig:"PROGRESS_INTERVAL" default:"30s"`

	// Gewichtung der drei Basis-Boosts für den kombinierten Boost-Faktor.
	// Muss nicht auf 1.0 summieren, der Calculator normalisiert.
	RefereedWeight float64 `envconfig:"REFEREED_WEIGHT" default:"0.4"`
	DoctypeWeight  float64 `envconfig:"DOCTYPE_WEIGHT" default:"0.6"`
	RecencyWeight  float64 `envconfig:"RECENCY_WEIGHT" default:"0.0"`

	RecencyMultiplier   float64 `envconfig:"RECENCY_MULTIPLIER" default:"0.1"`
	RecencyCutoffMonths float64 `envconfig:"RECENCY_CUTOFF_MONTHS" default:"24"`

	DefaultDoctypeBoost     float64 `envconfig:"DEFAULT_DOCTYPE_BOOST" default:"0.0"`
	DefaultDisciplineWeight float64 `envconfig:"DEFAULT_DISCIPLINE_WEIGHT" default:"0.0"`

	RankingFile string `envconfig:"RANKING_FILE" default:"rankings.yaml"`

	ExportDir      string `envconfig:"EXPORT_DIR" default:"exports"`
	ExportSchedule string `envconfig:"EXPORT_SCHEDULE" default:"0 3 * * *"`
	ExportToS3     bool   `envconfig:"EXPORT_TO_S3" default:"false"`

	S3Key    string `envconfig:"EXPORT_S3_KEY"`
	S3Secret string `envconfig:"EXPORT_S3_SECRET"`
	S3URL    string `envconfig:"EXPORT_S3_URL"`
	S3Region string `envconfig:"EXPORT_S3_REGION"`
	S3Bucket string `envconfig:"EXPORT_S3_BUCKET"`
}

// DSN gibt den Data Source Name für die PostgreSQL-Verbindung zurück.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// Load lädt die Konfiguration aus den Umgebungsvariablen.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	if c.ExportToS3 && (c.S3URL == "" || c.S3Bucket == "") {
		return nil, fmt.Errorf("EXPORT_TO_S3 requires EXPORT_S3_URL and EXPORT_S3_BUCKET")
	}
	return &c, nil
}
