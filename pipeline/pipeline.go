package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"boost-pipeline/config"
	"boost-pipeline/models"
	"boost-pipeline/queue"
	"boost-pipeline/services"
)

// Pipeline verdrahtet die drei Stages eines Records über die Queues:
// Intake normalisiert und legt auf Compute, Compute rechnet und legt auf
// Store, Store persistiert und legt auf Respond, Respond meldet an die
// Master-Pipeline. Die Reihenfolge innerhalb eines Records entsteht allein
// durch diese Weitergabe; Records untereinander haben keine Ordnung.
type Pipeline struct {
	Config     *config.Config
	Broker     queue.Broker
	Normalizer *services.Normalizer
	Calculator *services.Calculator
	Store      *services.StoreService
	Responder  *services.Responder
	Logger     *zap.Logger
}

// New erstellt die Pipeline.
func New(cfg *config.Config, broker queue.Broker, normalizer *services.Normalizer,
	calculator *services.Calculator, store *services.StoreService,
	responder *services.Responder, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		Config:     cfg,
		Broker:     broker,
		Normalizer: normalizer,
		Calculator: calculator,
		Store:      store,
		Responder:  responder,
		Logger:     logger,
	}
}

// Register hängt die Stage-Handler an ihre Queues.
func (p *Pipeline) Register(w *queue.Worker) {
	w.Handle(p.Config.IntakeQueue, p.handleIntake)
	w.Handle(p.Config.ComputeQueue, p.handleCompute)
	w.Handle(p.Config.StoreQueue, p.handleStore)
	w.Handle(p.Config.RespondQueue, p.handleRespond)
}

// handleIntake normalisiert eine rohe Master-Pipeline-Nachricht und reicht
// den Record an die Compute-Stage weiter.
func (p *Pipeline) handleIntake(ctx context.Context, payload json.RawMessage) error {
	req, err := p.Normalizer.Normalize(payload)
	if err != nil {
		return err
	}
	p.Logger.Info("Processing boost request", zap.String("record", req.Key()))
	return p.forward(ctx, p.Config.ComputeQueue, req)
}

// handleCompute berechnet die Boost-Faktoren und reicht das Ergebnis an die
// Store-Stage weiter. Die Berechnung ist deterministisch, Redelivery ist
// unkritisch.
func (p *Pipeline) handleCompute(ctx context.Context, payload json.RawMessage) error {
	var req models.BoostRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return queue.Validation(fmt.Errorf("unparseable compute payload: %w", err))
	}

	bf := p.Calculator.Compute(&req)
	p.Logger.Debug("Computed boost factors",
		zap.String("record", bf.Key()),
		zap.Float64("boost_factor", bf.BoostFactor))
	return p.forward(ctx, p.Config.StoreQueue, bf)
}

// handleStore persistiert die Zeile per Upsert und reicht sie an die
// Respond-Stage weiter. Ein fehlgeschlagenes Senden später rollt den Upsert
// nicht zurück.
func (p *Pipeline) handleStore(ctx context.Context, payload json.RawMessage) error {
	var bf models.BoostFactors
	if err := json.Unmarshal(payload, &bf); err != nil {
		return queue.Validation(fmt.Errorf("unparseable store payload: %w", err))
	}

	if err := p.Store.Upsert(ctx, &bf); err != nil {
		return err
	}
	return p.forward(ctx, p.Config.RespondQueue, &bf)
}

// handleRespond meldet das Ergebnis an die Master-Pipeline.
func (p *Pipeline) handleRespond(ctx context.Context, payload json.RawMessage) error {
	var bf models.BoostFactors
	if err := json.Unmarshal(payload, &bf); err != nil {
		return queue.Validation(fmt.Errorf("unparseable respond payload: %w", err))
	}
	return p.Responder.Send(ctx, &bf)
}

// forward legt die nächste Stage eines Records auf deren Queue. Fehler sind
// transient: der aktuelle Task wird wiederholt, die Stages davor sind
// idempotent.
func (p *Pipeline) forward(ctx context.Context, queueName string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return queue.Permanent(fmt.Errorf("encoding payload for %s: %w", queueName, err))
	}
	if err := p.Broker.Enqueue(ctx, queueName, queue.Task{Payload: payload}); err != nil {
		return queue.Retryable(err)
	}
	return nil
}
