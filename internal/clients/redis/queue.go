package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/grovelabs/leafsense-backend/internal/logger"
	"github.com/grovelabs/leafsense-backend/internal/types"
)

// QueuedRequest pairs a pending diagnosis request with the stream message id
// the consumer must ack.
type QueuedRequest struct {
	MessageID string
	Request   types.DiagnosisRequest
}

// DiagnosisQueue is the durable request/response transport: Redis Streams
// with a consumer group. Delivery is at-least-once; consumers dedupe by
// correlation id when logging.
type DiagnosisQueue interface {
	PublishRequest(ctx context.Context, req types.DiagnosisRequest) error
	PublishResult(ctx context.Context, res types.DiagnosisResult) error
	ConsumeRequests(ctx context.Context, consumerName string, count int, block time.Duration) ([]QueuedRequest, error)
	AckRequest(ctx context.Context, messageID string) error
	Depth(ctx context.Context) (int64, error)
	Close() error
}

type diagnosisQueue struct {
	log           *logger.Logger
	rdb           *goredis.Client
	requestStream string
	resultStream  string
	group         string
}

func NewDiagnosisQueue(baseLog *logger.Logger) (DiagnosisQueue, error) {
	if baseLog == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	q := &diagnosisQueue{
		log:           baseLog.With("service", "DiagnosisQueue"),
		rdb:           rdb,
		requestStream: "leafsense:diagnosis:requests",
		resultStream:  "leafsense:diagnosis:results",
		group:         "diagnosis-workers",
	}
	if err := q.ensureGroup(ctx); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return q, nil
}

func (q *diagnosisQueue) ensureGroup(ctx context.Context) error {
	err := q.rdb.XGroupCreateMkStream(ctx, q.requestStream, q.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}
	return nil
}

func (q *diagnosisQueue) PublishRequest(ctx context.Context, req types.DiagnosisRequest) error {
	if req.CorrelationID == "" {
		return fmt.Errorf("correlation id required")
	}
	raw, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return q.rdb.XAdd(ctx, &goredis.XAddArgs{
		Stream: q.requestStream,
		Values: map[string]interface{}{"payload": raw},
	}).Err()
}

func (q *diagnosisQueue) PublishResult(ctx context.Context, res types.DiagnosisResult) error {
	raw, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return q.rdb.XAdd(ctx, &goredis.XAddArgs{
		Stream: q.resultStream,
		Values: map[string]interface{}{"payload": raw},
	}).Err()
}

// ConsumeRequests reads the next pending batch for this consumer, blocking
// up to the given duration. A malformed payload is logged and skipped (and
// acked) rather than poisoning the group.
func (q *diagnosisQueue) ConsumeRequests(ctx context.Context, consumerName string, count int, block time.Duration) ([]QueuedRequest, error) {
	if count <= 0 {
		count = 1
	}
	streams, err := q.rdb.XReadGroup(ctx, &goredis.XReadGroupArgs{
		Group:    q.group,
		Consumer: consumerName,
		Streams:  []string{q.requestStream, ">"},
		Count:    int64(count),
		Block:    block,
	}).Result()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []QueuedRequest
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			payload, ok := msg.Values["payload"].(string)
			if !ok {
				q.log.Warn("Dropping malformed queue message", "message_id", msg.ID)
				_ = q.AckRequest(ctx, msg.ID)
				continue
			}
			var req types.DiagnosisRequest
			if err := json.Unmarshal([]byte(payload), &req); err != nil {
				q.log.Warn("Dropping undecodable queue message", "message_id", msg.ID, "error", err)
				_ = q.AckRequest(ctx, msg.ID)
				continue
			}
			out = append(out, QueuedRequest{MessageID: msg.ID, Request: req})
		}
	}
	return out, nil
}

func (q *diagnosisQueue) AckRequest(ctx context.Context, messageID string) error {
	if messageID == "" {
		return nil
	}
	return q.rdb.XAck(ctx, q.requestStream, q.group, messageID).Err()
}

func (q *diagnosisQueue) Depth(ctx context.Context) (int64, error) {
	return q.rdb.XLen(ctx, q.requestStream).Result()
}

func (q *diagnosisQueue) Close() error { return q.rdb.Close() }
