// Package queue defines the background tasks and how they are enqueued.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/QMSVault/internal/model"
)

const (
	// NotifyTask fans a document change out to its audience.
	NotifyTask = "document:notify"
	// InspectTask reads page metadata out of a freshly stored PDF.
	InspectTask = "document:inspect"
)

// NotifyPayload is serialized into the notify task. PreviousStatus is the
// status before the edit; users who could view the document in either state
// are told about the change.
type NotifyPayload struct {
	DocumentID     int64                  `json:"document_id"`
	ActorID        *int64                 `json:"actor_id,omitempty"`
	Type           model.NotificationType `json:"type"`
	PreviousStatus model.DocumentStatus   `json:"previous_status,omitempty"`
}

// InspectPayload tells the worker which object to download.
type InspectPayload struct {
	DocumentID int64  `json:"document_id"`
	ObjectKey  string `json:"object_key"`
}

// Enqueuer schedules background work. The asynq Client and the in-process
// pool both satisfy it.
type Enqueuer interface {
	EnqueueNotify(ctx context.Context, p NotifyPayload) error
	EnqueueInspect(ctx context.Context, p InspectPayload) error
}

// Client enqueues tasks into Redis through asynq.
type Client struct {
	client *asynq.Client
}

// NewClient connects an asynq client to Redis.
func NewClient(opt asynq.RedisConnOpt) *Client {
	return &Client{client: asynq.NewClient(opt)}
}

// Close releases the Redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueueNotify schedules a notification fan-out.
func (c *Client) EnqueueNotify(ctx context.Context, p NotifyPayload) error {
	return c.enqueue(ctx, NotifyTask, p, asynq.MaxRetry(3))
}

// EnqueueInspect schedules PDF inspection.
func (c *Client) EnqueueInspect(ctx context.Context, p InspectPayload) error {
	return c.enqueue(ctx, InspectTask, p, asynq.MaxRetry(5))
}

func (c *Client) enqueue(ctx context.Context, kind string, payload any, opts ...asynq.Option) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(kind, data)
	if _, err := c.client.EnqueueContext(ctx, task, opts...); err != nil {
		return fmt.Errorf("enqueue %s task: %w", kind, err)
	}
	return nil
}
