package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"

	"github.com/vibast-solutions/ms-go-payment-gateway/app/entity"
)

const TaskTypeReconciliationEntry = "reconciliation:entry"

var tracer = otel.Tracer("gateway.queue")

type taskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// ReconciliationMessage is the task payload consumed by the ledger collaborator.
type ReconciliationMessage struct {
	EntryID           uint64  `json:"entry_id"`
	EventID           uint64  `json:"event_id"`
	IntegrationID     uint64  `json:"integration_id"`
	TenantID          *uint64 `json:"tenant_id"`
	TenantAccountID   *uint64 `json:"tenant_account_id"`
	MatchStatus       string  `json:"match_status"`
	MatchConfidence   int32   `json:"match_confidence"`
	MatchedBy         string  `json:"matched_by"`
	Amount            string  `json:"amount"`
	Currency          string  `json:"currency"`
	ExternalReference string  `json:"external_reference"`
	ProviderReference string  `json:"provider_reference"`
	CreatedAt         string  `json:"created_at"`
}

type Publisher struct {
	client    taskEnqueuer
	queueName string
	maxRetry  int
}

func NewPublisher(client taskEnqueuer, queueName string, maxRetry int) *Publisher {
	if queueName == "" {
		queueName = "reconciliation"
	}
	if maxRetry <= 0 {
		maxRetry = 5
	}
	return &Publisher{client: client, queueName: queueName, maxRetry: maxRetry}
}

// Publish enqueues the entry with a task id derived from the entry id; an existing task counts as published.
func (p *Publisher) Publish(ctx context.Context, entry *entity.ReconciliationEntry) error {
	ctx, span := tracer.Start(ctx, "Publishing reconciliation entry")
	defer span.End()

	payload, err := json.Marshal(newReconciliationMessage(entry))
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypeReconciliationEntry, payload,
		asynq.TaskID(TaskID(entry.ID)),
		asynq.Queue(p.queueName),
		asynq.MaxRetry(p.maxRetry),
	)

	if _, err := p.client.EnqueueContext(ctx, task); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			return nil
		}
		span.RecordError(err)
		return err
	}
	return nil
}

func TaskID(entryID uint64) string {
	return fmt.Sprintf("reconciliation-entry-%d", entryID)
}

func newReconciliationMessage(entry *entity.ReconciliationEntry) ReconciliationMessage {
	return ReconciliationMessage{
		EntryID:           entry.ID,
		EventID:           entry.EventID,
		IntegrationID:     entry.IntegrationID,
		TenantID:          entry.TenantID,
		TenantAccountID:   entry.TenantAccountID,
		MatchStatus:       string(entry.MatchStatus),
		MatchConfidence:   entry.MatchConfidence,
		MatchedBy:         entry.MatchedBy,
		Amount:            entry.Amount.StringFixed(2),
		Currency:          entry.Currency,
		ExternalReference: entry.ExternalReference,
		ProviderReference: entry.ProviderReference,
		CreatedAt:         entry.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}
