package redis

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/grovelabs/leafsense-backend/internal/types"
)

func TestDiagnosisQueueRoundTrip(t *testing.T) {
	requireRedis(t)
	queue, err := NewDiagnosisQueue(integrationLogger(t))
	if err != nil {
		t.Fatalf("init queue: %v", err)
	}
	defer queue.Close()

	ctx := context.Background()
	correlationID := uuid.NewString()
	req := types.DiagnosisRequest{
		CorrelationID: correlationID,
		ImageID:       uuid.New(),
		ImagePath:     "images/leaf.jpg",
		SubmittedAt:   time.Now(),
	}
	if err := queue.PublishRequest(ctx, req); err != nil {
		t.Fatalf("PublishRequest: %v", err)
	}

	depth, err := queue.Depth(ctx)
	if err != nil {
		t.Fatalf("Depth: %v", err)
	}
	if depth < 1 {
		t.Fatalf("depth=%d after publish, want >= 1", depth)
	}

	// The stream may hold messages from other runs; scan until ours shows
	// up and ack everything we claim.
	consumer := "it-" + uuid.NewString()
	deadline := time.Now().Add(5 * time.Second)
	found := false
	for time.Now().Before(deadline) && !found {
		msgs, err := queue.ConsumeRequests(ctx, consumer, 10, 500*time.Millisecond)
		if err != nil {
			t.Fatalf("ConsumeRequests: %v", err)
		}
		for _, msg := range msgs {
			if msg.Request.CorrelationID == correlationID {
				if msg.Request.ImageID != req.ImageID {
					t.Fatalf("image id did not round-trip: %+v", msg.Request)
				}
				found = true
			}
			if err := queue.AckRequest(ctx, msg.MessageID); err != nil {
				t.Fatalf("AckRequest: %v", err)
			}
		}
	}
	if !found {
		t.Fatalf("published request never consumed")
	}

	if err := queue.PublishResult(ctx, types.DiagnosisResult{
		CorrelationID: correlationID,
		ImageID:       req.ImageID,
		Status:        types.APIStatusSuccess,
		CompletedAt:   time.Now(),
	}); err != nil {
		t.Fatalf("PublishResult: %v", err)
	}
}
