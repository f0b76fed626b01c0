package queue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"boost-pipeline/config"
)

var (
	tasksProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boost_tasks_processed_total",
			Help: "Total number of tasks processed successfully, per queue.",
		},
		[]string{"queue"},
	)
	tasksFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boost_tasks_failed_total",
			Help: "Total number of tasks that failed permanently, per queue.",
		},
		[]string{"queue"},
	)
	tasksRetried = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boost_tasks_retried_total",
			Help: "Total number of task redeliveries after transient failures, per queue.",
		},
		[]string{"queue"},
	)
)

func init() {
	prometheus.MustRegister(tasksProcessed, tasksFailed, tasksRetried)
}

// Handler verarbeitet die Payload eines Tasks. Handler müssen idempotent
// sein: bei at-least-once-Zustellung kann dieselbe Payload mehrfach ankommen.
type Handler func(ctx context.Context, payload json.RawMessage) error

// Worker zieht Tasks von den registrierten Queues und führt die Handler mit
// Stage-Timeout und begrenztem Retry aus. Records blockieren einander nicht:
// pro Queue laufen WorkersPerStage Goroutinen.
type Worker struct {
	Config *config.Config
	Broker Broker
	Logger *zap.Logger

	handlers map[string]Handler
	wg       sync.WaitGroup
}

// NewWorker erstellt einen Worker ohne registrierte Handler.
func NewWorker(cfg *config.Config, broker Broker, logger *zap.Logger) *Worker {
	return &Worker{
		Config:   cfg,
		Broker:   broker,
		Logger:   logger,
		handlers: make(map[string]Handler),
	}
}

// Handle registriert den Handler für eine Queue.
func (w *Worker) Handle(queue string, h Handler) {
	w.handlers[queue] = h
}

// Start startet die Consumer-Goroutinen. Sie laufen, bis ctx beendet wird.
// Vorher werden liegengebliebene In-Flight-Tasks der registrierten Queues
// zurückgeholt, damit ein Absturz oder harter Shutdown keine Records verliert.
func (w *Worker) Start(ctx context.Context) {
	for queue := range w.handlers {
		n, err := w.Broker.Reclaim(ctx, queue)
		if err != nil {
			w.Logger.Error("Reclaim of in-flight tasks failed",
				zap.String("queue", queue), zap.Error(err))
		} else if n > 0 {
			w.Logger.Info("Reclaimed in-flight tasks",
				zap.String("queue", queue), zap.Int("count", n))
		}
	}

	for queue, handler := range w.handlers {
		for i := 0; i < w.Config.WorkersPerStage; i++ {
			w.wg.Add(1)
			go func(queue string, handler Handler) {
				defer w.wg.Done()
				w.consume(ctx, queue, handler)
			}(queue, handler)
		}
	}
	w.Logger.Info("Queue workers started",
		zap.Int("queues", len(w.handlers)),
		zap.Int("workers_per_stage", w.Config.WorkersPerStage))
}

// Wait blockiert, bis alle Consumer beendet sind.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) consume(ctx context.Context, queue string, handler Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		task, err := w.Broker.Dequeue(ctx, queue, 5*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.Logger.Error("Dequeue failed, backing off", zap.String("queue", queue), zap.Error(err))
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		if task == nil {
			continue
		}

		w.process(ctx, queue, task, handler)
	}
}

// process führt genau einen Task aus. Fehler eines einzelnen Records werden
// hier abgefangen und geloggt, niemals nach oben propagiert.
func (w *Worker) process(ctx context.Context, queue string, task *Task, handler Handler) {
	stageCtx, cancel := context.WithTimeout(ctx, w.Config.StageTimeout)
	err := handler(stageCtx, task.Payload)
	cancel()

	if err == nil {
		tasksProcessed.WithLabelValues(queue).Inc()
		w.ack(ctx, queue, task)
		return
	}

	switch {
	case IsValidation(err):
		tasksFailed.WithLabelValues(queue).Inc()
		w.Logger.Warn("Record rejected",
			zap.String("queue", queue), zap.Error(err))
		w.ack(ctx, queue, task)
	case IsPermanent(err):
		tasksFailed.WithLabelValues(queue).Inc()
		w.Logger.Error("Record failed permanently",
			zap.String("queue", queue), zap.Error(err))
		w.ack(ctx, queue, task)
	default:
		w.retry(ctx, queue, task, err)
	}
}

// retry reiht einen transient fehlgeschlagenen Task mit Backoff erneut ein,
// bis das Versuchs-Budget erschöpft ist.
func (w *Worker) retry(ctx context.Context, queue string, task *Task, cause error) {
	attempt := task.Attempt + 1
	if attempt >= w.Config.MaxAttempts {
		tasksFailed.WithLabelValues(queue).Inc()
		w.Logger.Error("Record failed after exhausting retries",
			zap.String("queue", queue),
			zap.Int("attempts", attempt),
			zap.Error(cause))
		w.ack(ctx, queue, task)
		return
	}

	delay := w.backoffDelay(attempt)
	w.Logger.Warn("Transient failure, re-enqueueing",
		zap.String("queue", queue),
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay),
		zap.Error(cause))

	select {
	case <-time.After(delay):
	case <-ctx.Done():
		// Beim Shutdown nicht warten, sofort wieder einreihen.
	}

	// Das Wiedereinreihen muss den Shutdown überleben, sonst ist der Task nach
	// dem Dequeue weg. Deshalb ein vom Consumer-Context abgekoppelter Context.
	reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	tasksRetried.WithLabelValues(queue).Inc()
	if err := w.Broker.Enqueue(reqCtx, queue, Task{Attempt: attempt, Payload: task.Payload}); err != nil {
		// Kein Ack: der Task bleibt auf der Processing-Liste und wird beim
		// nächsten Start über Reclaim wieder zugestellt.
		w.Logger.Error("Re-enqueue failed, task stays in-flight until reclaim",
			zap.String("queue", queue), zap.Error(err))
		return
	}
	w.ack(reqCtx, queue, task)
}

// ack entfernt einen abgeschlossenen Task von der Processing-Liste. Schlägt
// das fehl, wird der Task beim nächsten Start erneut zugestellt; die Handler
// sind idempotent, das ist verkraftbar.
func (w *Worker) ack(ctx context.Context, queue string, task *Task) {
	ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := w.Broker.Ack(ackCtx, queue, task); err != nil {
		w.Logger.Warn("Ack failed, task may be redelivered",
			zap.String("queue", queue), zap.Error(err))
	}
}

// backoffDelay verdoppelt die Wartezeit pro Versuch, gedeckelt auf
// RetryMaxDelay.
func (w *Worker) backoffDelay(attempt int) time.Duration {
	delay := w.Config.RetryBaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= w.Config.RetryMaxDelay {
			return w.Config.RetryMaxDelay
		}
	}
	if delay > w.Config.RetryMaxDelay {
		return w.Config.RetryMaxDelay
	}
	return delay
}
