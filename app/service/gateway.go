package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vibast-solutions/ms-go-payment-gateway/app/entity"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/provider"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/repository"
)

const (
	defaultListLimit = int32(100)
	defaultBatchSize = int32(100)
)

var tracer = otel.Tracer("gateway.service")

type integrationSource interface {
	FindByCode(ctx context.Context, providerCode string) (*entity.Integration, error)
}

type notificationEventRepository interface {
	Create(ctx context.Context, event *entity.PaymentNotificationEvent) error
	UpdateStatus(ctx context.Context, id uint64, from, to entity.EventStatus, validationErrors []string, processedAt *time.Time) error
}

type reconciliationRepository interface {
	Create(ctx context.Context, entry *entity.ReconciliationEntry) error
	FindByEventID(ctx context.Context, eventID uint64) (*entity.ReconciliationEntry, error)
	MarkPublished(ctx context.Context, id uint64, publishedAt time.Time) error
	ListUnpublished(ctx context.Context, limit int32) ([]*entity.ReconciliationEntry, error)
	BacklogByIntegration(ctx context.Context, cutoff time.Time) (map[uint64]int64, error)
}

type entryPublisher interface {
	Publish(ctx context.Context, entry *entity.ReconciliationEntry) error
}

type requestConfirmer interface {
	ConfirmFromEvent(ctx context.Context, event *entity.PaymentNotificationEvent) (bool, error)
}

type WebhookRequest interface {
	GetProviderCode() string
	GetCallbackToken() string
	GetSignature() string
	GetSourceIP() string
	GetPayload() []byte
}

type IngestResult struct {
	Integration *entity.Integration
	Event       *entity.PaymentNotificationEvent
	Entry       *entity.ReconciliationEntry
}

// validatedEvent can only be obtained from markValidated, so only validated events reach the queue.
type validatedEvent struct {
	event *entity.PaymentNotificationEvent
}

type GatewayService struct {
	integrations    integrationSource
	gate            *SecurityGate
	normalizers     *provider.Registry
	events          notificationEventRepository
	entries         reconciliationRepository
	matcher         *MatchingEngine
	monitor         *MonitorService
	publisher       entryPublisher
	confirmer       requestConfirmer
	defaultCurrency string
	logger          logrus.FieldLogger
	now             func() time.Time
}

func NewGatewayService(
	integrations integrationSource,
	gate *SecurityGate,
	normalizers *provider.Registry,
	events notificationEventRepository,
	entries reconciliationRepository,
	matcher *MatchingEngine,
	monitor *MonitorService,
	publisher entryPublisher,
	confirmer requestConfirmer,
	defaultCurrency string,
	logger logrus.FieldLogger,
) *GatewayService {
	return &GatewayService{
		integrations:    integrations,
		gate:            gate,
		normalizers:     normalizers,
		events:          events,
		entries:         entries,
		matcher:         matcher,
		monitor:         monitor,
		publisher:       publisher,
		confirmer:       confirmer,
		defaultCurrency: defaultCurrency,
		logger:          logger,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// Ingest runs one inbound callback through gate, normalize, validate, dedup, store, match and queue.
// Soft failures (validation problems, duplicates) are stored and returned without error.
func (s *GatewayService) Ingest(ctx context.Context, req WebhookRequest) (*IngestResult, error) {
	ctx, span := tracer.Start(ctx, "Ingesting payment notification")
	defer span.End()

	started := time.Now()
	providerCode := strings.TrimSpace(req.GetProviderCode())
	span.SetAttributes(attribute.String("provider_code", providerCode))

	integration, err := s.integrations.FindByCode(ctx, providerCode)
	if err != nil {
		return nil, err
	}
	if integration == nil || !integration.IsActive {
		return nil, ErrIntegrationNotFound
	}

	checkType, err := s.gate.Check(integration, GateInput{
		SourceIP:        req.GetSourceIP(),
		Payload:         req.GetPayload(),
		SignatureHeader: req.GetSignature(),
		CallbackToken:   req.GetCallbackToken(),
	})
	if err != nil {
		s.monitor.RecordCheck(ctx, integration.ID, checkType, entity.CheckStatusFailure, time.Since(started), err.Error())
		s.monitor.raiseAlertQuietly(ctx, integration.ID, entity.AlertAuthFailure,
			fmt.Sprintf("callback from %s rejected: %v", req.GetSourceIP(), err))
		return nil, err
	}

	payload := req.GetPayload()
	if !json.Valid(payload) {
		s.monitor.RecordCheck(ctx, integration.ID, entity.CheckTypeCallback, entity.CheckStatusFailure, time.Since(started), ErrInvalidPayload.Error())
		return nil, ErrInvalidPayload
	}

	result, err := s.process(ctx, integration, payload, req.GetSourceIP())
	if err != nil {
		s.monitor.RecordCheck(ctx, integration.ID, entity.CheckTypeCallback, entity.CheckStatusError, time.Since(started), err.Error())
		s.monitor.raiseAlertQuietly(ctx, integration.ID, entity.AlertCallbackFailure,
			fmt.Sprintf("callback processing failed: %v", err))
		span.RecordError(err)
		return nil, err
	}

	s.monitor.RecordCheck(ctx, integration.ID, entity.CheckTypeCallback, entity.CheckStatusSuccess, time.Since(started), "")
	span.SetAttributes(attribute.String("event_status", string(result.Event.Status)))
	return result, nil
}

func (s *GatewayService) process(ctx context.Context, integration *entity.Integration, payload []byte, sourceIP string) (*IngestResult, error) {
	normalizer, err := s.normalizers.Get(integration.Family)
	if err != nil {
		return nil, err
	}

	normalized, problems := normalizePayload(normalizer, payload, s.defaultCurrency)
	problems = append(problems, validateNormalized(normalized)...)

	event, duplicate, err := s.store(ctx, integration, normalized, payload, sourceIP, problems)
	if err != nil {
		return nil, err
	}
	result := &IngestResult{Integration: integration, Event: event}
	if duplicate {
		return result, nil
	}

	if len(problems) > 0 {
		if err := s.transition(ctx, event, entity.EventStatusFailed, problems); err != nil {
			return nil, err
		}
		s.confirm(ctx, event)
		return result, nil
	}

	validated, err := s.markValidated(ctx, event)
	if err != nil {
		return nil, err
	}
	match, err := s.matcher.Match(ctx, validated.event)
	if err != nil {
		return nil, err
	}
	entry, err := s.enqueue(ctx, validated, match)
	if err != nil {
		return nil, err
	}
	result.Entry = entry

	s.confirm(ctx, event)
	s.publish(ctx, entry)
	return result, nil
}

// store performs the atomic insert-or-detect on (integration_id, dedup_reference).
// The first event with a provider reference claims the key; later ones are stored as duplicates.
func (s *GatewayService) store(
	ctx context.Context,
	integration *entity.Integration,
	normalized *entity.NormalizedPayload,
	payload []byte,
	sourceIP string,
	problems []string,
) (*entity.PaymentNotificationEvent, bool, error) {
	now := s.now()
	event := &entity.PaymentNotificationEvent{
		IntegrationID:     integration.ID,
		RawPayload:        string(payload),
		NormalizedPayload: *normalized,
		EventType:         normalized.EventType,
		ExternalReference: strings.TrimSpace(normalized.ExternalReference),
		Amount:            normalized.Amount,
		Currency:          normalized.Currency,
		SenderPhone:       normalized.SenderPhone,
		SenderName:        normalized.SenderName,
		SenderAccount:     normalized.SenderAccount,
		Status:            entity.EventStatusReceived,
		ValidationErrors:  []string{},
		SourceIP:          strings.TrimSpace(sourceIP),
		ReceivedAt:        now,
	}
	if ref := strings.TrimSpace(normalized.ProviderReference); ref != "" {
		event.ProviderReference = &ref
		dedup := ref
		event.DedupReference = &dedup
	}
	if corr := strings.TrimSpace(normalized.CorrelationID); corr != "" {
		event.CorrelationID = &corr
	}

	err := s.events.Create(ctx, event)
	if err == nil {
		return event, false, nil
	}
	if !errors.Is(err, repository.ErrDedupReferenceConflict) {
		return nil, false, err
	}

	event.DedupReference = nil
	event.Status = entity.EventStatusDuplicate
	event.ValidationErrors = append([]string{}, problems...)
	event.ProcessedAt = &now
	if err := s.events.Create(ctx, event); err != nil {
		return nil, false, err
	}

	s.logger.WithFields(logrus.Fields{
		"integration_id":     integration.ID,
		"provider_reference": *event.ProviderReference,
		"event_id":           event.ID,
	}).Info("Duplicate payment notification")
	return event, true, nil
}

func (s *GatewayService) markValidated(ctx context.Context, event *entity.PaymentNotificationEvent) (validatedEvent, error) {
	if err := s.transition(ctx, event, entity.EventStatusValidated, nil); err != nil {
		return validatedEvent{}, err
	}
	return validatedEvent{event: event}, nil
}

// enqueue writes the single reconciliation entry of a validated event and moves the event to queued.
func (s *GatewayService) enqueue(ctx context.Context, validated validatedEvent, match MatchResult) (*entity.ReconciliationEntry, error) {
	event := validated.event

	providerReference := ""
	if event.ProviderReference != nil {
		providerReference = *event.ProviderReference
	}

	entry := &entity.ReconciliationEntry{
		EventID:           event.ID,
		IntegrationID:     event.IntegrationID,
		TenantID:          match.TenantID,
		TenantAccountID:   match.TenantAccountID,
		MatchStatus:       match.Status,
		MatchConfidence:   match.Confidence,
		MatchedBy:         match.MatchedBy,
		Amount:            event.Amount,
		Currency:          event.Currency,
		ExternalReference: event.ExternalReference,
		ProviderReference: providerReference,
		CreatedAt:         s.now(),
	}
	if err := s.entries.Create(ctx, entry); err != nil {
		if !errors.Is(err, repository.ErrReconciliationEntryExists) {
			return nil, err
		}
		existing, findErr := s.entries.FindByEventID(ctx, event.ID)
		if findErr != nil {
			return nil, findErr
		}
		if existing == nil {
			return nil, err
		}
		entry = existing
	}

	if err := s.transition(ctx, event, entity.EventStatusQueued, nil); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *GatewayService) transition(ctx context.Context, event *entity.PaymentNotificationEvent, to entity.EventStatus, problems []string) error {
	if !event.Status.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, event.Status, to)
	}
	if problems == nil {
		problems = []string{}
	}

	var processedAt *time.Time
	if to == entity.EventStatusFailed || to == entity.EventStatusQueued {
		now := s.now()
		processedAt = &now
	}

	if err := s.events.UpdateStatus(ctx, event.ID, event.Status, to, problems, processedAt); err != nil {
		return err
	}
	event.Status = to
	event.ValidationErrors = problems
	event.ProcessedAt = processedAt
	return nil
}

// confirm finalizes a correlated outbound request. Failures are logged and alerted, not returned.
func (s *GatewayService) confirm(ctx context.Context, event *entity.PaymentNotificationEvent) {
	if s.confirmer == nil || event.CorrelationID == nil {
		return
	}

	updated, err := s.confirmer.ConfirmFromEvent(ctx, event)
	if err != nil {
		s.logger.WithError(err).WithField("event_id", event.ID).Error("Finalizing payment request failed")
		s.monitor.raiseAlertQuietly(ctx, event.IntegrationID, entity.AlertCallbackFailure,
			fmt.Sprintf("finalizing payment request %s failed: %v", *event.CorrelationID, err))
		return
	}
	if !updated {
		s.logger.WithField("correlation_id", *event.CorrelationID).Debug("No open payment request for correlation id")
	}
}

// publish hands the entry to the queue transport. Unpublished entries are retried by the publish job.
func (s *GatewayService) publish(ctx context.Context, entry *entity.ReconciliationEntry) {
	if s.publisher == nil || entry.PublishedAt != nil {
		return
	}
	if err := s.publishEntry(ctx, entry); err != nil {
		s.logger.WithError(err).WithField("entry_id", entry.ID).Warn("Publishing reconciliation entry failed")
	}
}

func (s *GatewayService) publishEntry(ctx context.Context, entry *entity.ReconciliationEntry) error {
	if err := s.publisher.Publish(ctx, entry); err != nil {
		return err
	}
	now := s.now()
	if err := s.entries.MarkPublished(ctx, entry.ID, now); err != nil && !errors.Is(err, repository.ErrReconciliationEntryNotFound) {
		return err
	}
	entry.PublishedAt = &now
	return nil
}

// RecordRateLimited logs a throttled callback against the integration and raises a rate_limit alert.
func (s *GatewayService) RecordRateLimited(ctx context.Context, providerCode string) {
	integration, err := s.integrations.FindByCode(ctx, strings.TrimSpace(providerCode))
	if err != nil || integration == nil {
		return
	}
	s.monitor.RecordCheck(ctx, integration.ID, entity.CheckTypeCallback, entity.CheckStatusFailure, 0, "rate limit exceeded")
	s.monitor.raiseAlertQuietly(ctx, integration.ID, entity.AlertRateLimit,
		fmt.Sprintf("callbacks for %s exceeded the rate limit", integration.ProviderCode))
}
