package main

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"boost-pipeline/config"
	"boost-pipeline/services"
	"boost-pipeline/storage"
)

type ExportConfig struct {
	PostgresHost     string `envconfig:"DB_HOST" required:"true"`
	PostgresPort     int    `envconfig:"DB_PORT" default:"5432"`
	PostgresUser     string `envconfig:"DB_USER" required:"true"`
	PostgresPassword string `envconfig:"DB_PASSWORD" required:"true"`
	PostgresDB       string `envconfig:"DB_NAME" required:"true"`

	ExportDir string `envconfig:"EXPORT_DIR" default:"exports"`

	UploadToS3 bool   `envconfig:"EXPORT_TO_S3" default:"false"`
	S3Key      string `envconfig:"EXPORT_S3_KEY"`
	S3Secret   string `envconfig:"EXPORT_S3_SECRET"`
	S3URL      string `envconfig:"EXPORT_S3_URL"`
	S3Region   string `envconfig:"EXPORT_S3_REGION"`
	S3Bucket   string `envconfig:"EXPORT_S3_BUCKET"`

	KeepExports int `envconfig:"KEEP_EXPORTS" default:"4"`
}

func main() {
	log.Println("Starte Export-Prozess...")

	var cfg ExportConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("Fehler beim Laden der Konfiguration: %v", err)
	}

	db, err := gorm.Open(postgres.Open(dsn(cfg)), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		log.Fatalf("Fehler beim Verbinden mit der Datenbank: %v", err)
	}

	svcCfg := &config.Config{
		ExportDir: cfg.ExportDir,
		S3Key:     cfg.S3Key,
		S3Secret:  cfg.S3Secret,
		S3URL:     cfg.S3URL,
		S3Region:  cfg.S3Region,
		S3Bucket:  cfg.S3Bucket,
	}

	logger := zap.NewNop()
	ctx := context.Background()

	if !cfg.UploadToS3 {
		path := fmt.Sprintf("%s/boost-factors.csv", cfg.ExportDir)
		exporter := services.NewExportService(svcCfg, db, nil, logger)
		count, err := exporter.ExportCSV(ctx, path)
		if err != nil {
			log.Fatalf("Fehler beim CSV-Export: %v", err)
		}
		log.Printf("%d Records nach %s exportiert", count, path)
		return
	}

	s3Client, err := storage.NewS3Client(svcCfg)
	if err != nil {
		log.Fatalf("Fehler beim Erstellen des S3-Clients: %v", err)
	}

	exporter := services.NewExportService(svcCfg, db, s3Client, logger)
	link, err := exporter.ExportToS3(ctx)
	if err != nil {
		log.Fatalf("Fehler beim Hochladen nach S3: %v", err)
	}
	log.Printf("Export erfolgreich nach %s hochgeladen", link)

	if err := rotateExports(s3Client, cfg); err != nil {
		log.Fatalf("Fehler bei der Rotation alter Exporte: %v", err)
	}

	log.Println("Export-Prozess erfolgreich abgeschlossen.")
}

func dsn(cfg ExportConfig) string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		cfg.PostgresHost, cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDB, cfg.PostgresPort)
}

func rotateExports(client *s3.Client, cfg ExportConfig) error {
	output, err := client.ListObjectsV2(context.TODO(), &s3.ListObjectsV2Input{
		Bucket: aws.String(cfg.S3Bucket),
	})
	if err != nil {
		return err
	}

	if len(output.Contents) <= cfg.KeepExports {
		log.Printf("Weniger als %d Exporte vorhanden, keine Rotation nötig.", cfg.KeepExports)
		return nil
	}

	sort.Slice(output.Contents, func(i, j int) bool {
		return output.Contents[i].LastModified.After(*output.Contents[j].LastModified)
	})

	for _, obj := range output.Contents[cfg.KeepExports:] {
		log.Printf("Lösche alten Export: %s", *obj.Key)
		_, err := client.DeleteObject(context.TODO(), &s3.DeleteObjectInput{
			Bucket: aws.String(cfg.S3Bucket),
			Key:    obj.Key,
		})
		if err != nil {
			log.Printf("Fehler beim Löschen von %s: %v", *obj.Key, err)
		}
	}

	return nil
}
