package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"boost-pipeline/config"
	"boost-pipeline/models"
	"boost-pipeline/queue"
	"boost-pipeline/sources"
)

// Orchestrator zerlegt Eingaben in Batches und reicht jeden Record als
// eigene Compute-Task ein. Fire-and-submit: es wird nicht auf das Ende einer
// Kette gewartet, batchSize ist ein Flow-Control-Knopf, kein
// Parallelitätslimit. Batches existieren nur während der Einreichung.
type Orchestrator struct {
	Config     *config.Config
	Broker     queue.Broker
	Normalizer *Normalizer
	Logger     *zap.Logger
}

// NewOrchestrator erstellt eine neue Instanz des Orchestrators.
func NewOrchestrator(cfg *config.Config, broker queue.Broker, normalizer *Normalizer, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{Config: cfg, Broker: broker, Normalizer: normalizer, Logger: logger}
}

// BatchSummary ist das Einreichungs-Ergebnis eines einzelnen Batches.
type BatchSummary struct {
	Batch     int `json:"batch"`
	Size      int `json:"size"`
	Submitted int `json:"submitted"`
	Rejected  int `json:"rejected"`
}

// SubmitResult fasst eine komplette Einreichung zusammen. Abgewiesene
// Records (Validierung oder Broker-Fehler) brechen weder Batch noch
// Einreichung ab.
type SubmitResult struct {
	Batches   []BatchSummary `json:"batches"`
	Submitted int            `json:"submitted"`
	Rejected  int            `json:"rejected"`
}

// Submit partitioniert die Records in zusammenhängende Batches von höchstens
// batchSize und reiht jeden Record unabhängig auf der Compute-Queue ein.
func (o *Orchestrator) Submit(ctx context.Context, records []models.BoostRequest, batchSize int) SubmitResult {
	if batchSize <= 0 {
		batchSize = o.Config.BatchSize
	}
	return o.submitBatches(len(records), batchSize, func(i int) bool {
		return o.submitRecord(ctx, &records[i])
	})
}

// SubmitRaw normalisiert rohe Master-Pipeline-Nachrichten und reicht sie ein.
// Unbrauchbare Nachrichten werden übersprungen und in dem Batch gezählt, in
// dem sie gestanden hätten.
func (o *Orchestrator) SubmitRaw(ctx context.Context, raws []json.RawMessage, batchSize int) SubmitResult {
	if batchSize <= 0 {
		batchSize = o.Config.BatchSize
	}
	return o.submitBatches(len(raws), batchSize, func(i int) bool {
		req, err := o.Normalizer.Normalize(raws[i])
		if err != nil {
			o.Logger.Warn("Rejecting record", zap.Error(err))
			return false
		}
		return o.submitRecord(ctx, req)
	})
}

// submitBatches läuft in Batch-Schritten über n Eingaben und reicht jede
// einzeln über submit ein. Die Batch-Summaries zählen jede Eingabe dort, wo
// sie in der Eingabereihenfolge steht.
func (o *Orchestrator) submitBatches(n, batchSize int, submit func(i int) bool) SubmitResult {
	var result SubmitResult
	lastProgress := time.Now()

	for start := 0; start < n; start += batchSize {
		end := start + batchSize
		if end > n {
			end = n
		}

		summary := BatchSummary{Batch: len(result.Batches) + 1, Size: end - start}
		for i := start; i < end; i++ {
			if submit(i) {
				summary.Submitted++
			} else {
				summary.Rejected++
			}
		}
		result.Batches = append(result.Batches, summary)
		result.Submitted += summary.Submitted
		result.Rejected += summary.Rejected

		o.Logger.Info("Batch submitted",
			zap.Int("batch", summary.Batch),
			zap.Int("size", summary.Size),
			zap.Int("submitted", summary.Submitted),
			zap.Int("rejected", summary.Rejected))

		if time.Since(lastProgress) >= o.Config.ProgressInterval {
			o.Logger.Info("Submission progress",
				zap.Int("submitted", result.Submitted),
				zap.Int("rejected", result.Rejected))
			lastProgress = time.Now()
		}
	}
	return result
}

// SubmitSource zieht Records seitenweise aus einer Bulk-Quelle, höchstens
// batchSize auf einmal. Der Speicherverbrauch bleibt damit unabhängig von
// der Gesamtgröße der Quelle.
func (o *Orchestrator) SubmitSource(ctx context.Context, src sources.Source, batchSize int) (SubmitResult, error) {
	if batchSize <= 0 {
		batchSize = o.Config.BatchSize
	}

	var result SubmitResult
	for {
		page, err := src.Next(ctx, batchSize)
		pageResult := o.SubmitRaw(ctx, page, batchSize)
		for i := range pageResult.Batches {
			pageResult.Batches[i].Batch = len(result.Batches) + 1 + i
		}
		result.Batches = append(result.Batches, pageResult.Batches...)
		result.Submitted += pageResult.Submitted
		result.Rejected += pageResult.Rejected

		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return result, fmt.Errorf("reading source %s: %w", src.Name(), err)
		}
	}

	o.Logger.Info("Bulk submission completed",
		zap.String("source", src.Name()),
		zap.Int("batches", len(result.Batches)),
		zap.Int("submitted", result.Submitted),
		zap.Int("rejected", result.Rejected))
	return result, nil
}

// submitRecord validiert einen Record und legt ihn auf die Compute-Queue.
func (o *Orchestrator) submitRecord(ctx context.Context, req *models.BoostRequest) bool {
	if !req.HasIdentifier() {
		o.Logger.Warn("Rejecting record without identifier")
		return false
	}

	payload, err := json.Marshal(req)
	if err != nil {
		o.Logger.Error("Failed to encode record", zap.String("record", req.Key()), zap.Error(err))
		return false
	}
	if err := o.Broker.Enqueue(ctx, o.Config.ComputeQueue, queue.Task{Payload: payload}); err != nil {
		o.Logger.Error("Failed to enqueue record",
			zap.String("record", req.Key()), zap.Error(err))
		return false
	}
	return true
}
