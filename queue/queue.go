package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"boost-pipeline/config"
)

// Task ist der Umschlag für eine Arbeitseinheit auf einer Queue. Attempt
// zählt die bisherigen Zustellversuche; die Payload ist das JSON des
// jeweiligen Stage-Inputs.
type Task struct {
	Attempt int             `json:"attempt"`
	Payload json.RawMessage `json:"payload"`

	// Originalbytes aus Redis, für das Entfernen von der Processing-Liste.
	raw []byte
}

// Broker ist die Queue-Abstraktion der Pipeline: at-least-once, eine Liste
// pro Stage. Dequeue verschiebt den Task auf eine Processing-Liste statt ihn
// zu löschen; erst Ack entfernt ihn endgültig. Reclaim legt liegengebliebene
// In-Flight-Tasks (Absturz, harter Shutdown) zurück auf die Queue. Publish
// schiebt rohe Payloads auf externe Queues (Antworten an die
// Master-Pipeline), ohne Task-Umschlag.
type Broker interface {
	Enqueue(ctx context.Context, queue string, t Task) error
	Dequeue(ctx context.Context, queue string, timeout time.Duration) (*Task, error)
	Ack(ctx context.Context, queue string, t *Task) error
	Reclaim(ctx context.Context, queue string) (int, error)
	Publish(ctx context.Context, queue string, payload []byte) error
}

// RedisBroker implementiert Broker über Redis-Listen (LPUSH/BLMOVE).
type RedisBroker struct {
	rdb    *goredis.Client
	logger *zap.Logger
}

// NewRedisBroker verbindet sich mit Redis und prüft die Verbindung per Ping.
func NewRedisBroker(cfg *config.Config, logger *zap.Logger) (*RedisBroker, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.RedisAddr,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisBroker{rdb: rdb, logger: logger}, nil
}

// processingList ist die Halteliste für In-Flight-Tasks einer Queue.
func processingList(queue string) string {
	return queue + ":processing"
}

// Enqueue serialisiert den Task und hängt ihn ans Ende der Queue.
func (b *RedisBroker) Enqueue(ctx context.Context, queue string, t Task) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshaling task: %w", err)
	}
	if err := b.rdb.LPush(ctx, queue, raw).Err(); err != nil {
		return fmt.Errorf("enqueue on %s: %w", queue, err)
	}
	return nil
}

// Dequeue blockiert bis zu timeout auf der Queue und verschiebt den Task
// atomar auf die Processing-Liste. Gibt (nil, nil) zurück, wenn innerhalb des
// Timeouts kein Task ankommt.
func (b *RedisBroker) Dequeue(ctx context.Context, queue string, timeout time.Duration) (*Task, error) {
	res, err := b.rdb.BLMove(ctx, queue, processingList(queue), "RIGHT", "LEFT", timeout).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("dequeue from %s: %w", queue, err)
	}

	var t Task
	if err := json.Unmarshal([]byte(res), &t); err != nil {
		b.logger.Warn("Dropping undecodable task", zap.String("queue", queue), zap.Error(err))
		b.rdb.LRem(ctx, processingList(queue), 1, res)
		return nil, nil
	}
	t.raw = []byte(res)
	return &t, nil
}

// Ack entfernt einen abgeschlossenen Task von der Processing-Liste.
func (b *RedisBroker) Ack(ctx context.Context, queue string, t *Task) error {
	raw := t.raw
	if raw == nil {
		var err error
		raw, err = json.Marshal(t)
		if err != nil {
			return fmt.Errorf("marshaling task for ack: %w", err)
		}
	}
	if err := b.rdb.LRem(ctx, processingList(queue), 1, raw).Err(); err != nil {
		return fmt.Errorf("ack on %s: %w", queue, err)
	}
	return nil
}

// Reclaim legt alle In-Flight-Tasks der Queue zurück auf die Queue und gibt
// ihre Anzahl zurück. Wird beim Start aufgerufen, bevor Consumer laufen:
// alles auf der Processing-Liste stammt dann von einem abgestürzten oder
// hart beendeten Vorgänger.
func (b *RedisBroker) Reclaim(ctx context.Context, queue string) (int, error) {
	count := 0
	for {
		_, err := b.rdb.LMove(ctx, processingList(queue), queue, "RIGHT", "LEFT").Result()
		if errors.Is(err, goredis.Nil) {
			return count, nil
		}
		if err != nil {
			return count, fmt.Errorf("reclaim on %s: %w", queue, err)
		}
		count++
	}
}

// Publish schiebt eine rohe JSON-Payload auf eine externe Queue.
func (b *RedisBroker) Publish(ctx context.Context, queue string, payload []byte) error {
	if err := b.rdb.LPush(ctx, queue, payload).Err(); err != nil {
		return fmt.Errorf("publish on %s: %w", queue, err)
	}
	return nil
}

// Close schließt die Redis-Verbindung.
func (b *RedisBroker) Close() error {
	return b.rdb.Close()
}
