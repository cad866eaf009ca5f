package transform

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"cloud.google.com/go/pubsub"
	"github.com/marginworks/costbooks_backend/config"
	"github.com/marginworks/costbooks_backend/models"
)

const defaultRunTopic = "transform-runs"

// RunTopic is where queued transform requests are published. The push
// endpoint and the pull worker both consume this topic.
func RunTopic() string {
	if v := os.Getenv("TRANSFORM_TOPIC"); v != "" {
		return v
	}
	return defaultRunTopic
}

// QueuedRun is the wire message for an asynchronous transform request.
type QueuedRun struct {
	BusinessId    string            `json:"business_id"`
	UploadId      int               `json:"upload_id"`
	RecordType    models.RecordType `json:"record_type"`
	DryRun        bool              `json:"dry_run"`
	TriggeredBy   string            `json:"triggered_by"`
	CorrelationId string            `json:"correlation_id,omitempty"`
}

func (m QueuedRun) Validate() error {
	if m.BusinessId == "" {
		return fmt.Errorf("business_id is required")
	}
	if m.UploadId <= 0 {
		return fmt.Errorf("upload_id is required")
	}
	if m.RecordType != models.RecordTypeInventory && m.RecordType != models.RecordTypeSales {
		return fmt.Errorf("record_type must be inventory or sales")
	}
	return nil
}

// PublishRun enqueues a transform request. The topic is created on first
// use so fresh environments need no manual setup.
func PublishRun(ctx context.Context, msg QueuedRun) (string, error) {
	if err := msg.Validate(); err != nil {
		return "", err
	}
	client, err := config.GetClient(ctx)
	if err != nil {
		return "", err
	}
	topic, err := config.CreateTopicIfNotExists(client, RunTopic())
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	id, err := topic.Publish(ctx, &pubsub.Message{Data: data}).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish transform run: %w", err)
	}
	return id, nil
}

// Execute dispatches a queued run to the orchestrator for its record
// type. Shared by the pubsub push handler and the pull worker.
func Execute(ctx context.Context, store Store, policy config.TransformPolicy, msg QueuedRun) (*RunResult, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	req := RunRequest{
		BusinessId:  msg.BusinessId,
		UploadId:    msg.UploadId,
		DryRun:      msg.DryRun,
		TriggeredBy: msg.TriggeredBy,
	}
	switch msg.RecordType {
	case models.RecordTypeSales:
		return NewSalesTransformer(store, policy).Run(ctx, req)
	default:
		return NewInventoryTransformer(store, policy, nil).Run(ctx, req)
	}
}
