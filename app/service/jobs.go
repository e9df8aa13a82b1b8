package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-payment-gateway/app/entity"
)

type integrationRegistry interface {
	ListActive(ctx context.Context) ([]*entity.Integration, error)
	UpdateHealthStatus(ctx context.Context, id uint64, status entity.HealthStatus) error
}

type healthReporter interface {
	SetIntegrationStatus(providerCode string, status entity.HealthStatus)
}

type integrationInvalidator interface {
	Invalidate(ctx context.Context, providerCode string) error
}

// RunPublishBatch republishes entries whose hand-off failed, then checks the unpublished backlog.
func (s *GatewayService) RunPublishBatch(ctx context.Context, batchSize int32) (int, error) {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	var firstErr error
	published := 0
	if s.publisher != nil {
		items, err := s.entries.ListUnpublished(ctx, batchSize)
		if err != nil {
			return 0, err
		}
		for _, entry := range items {
			if entry == nil {
				continue
			}
			if err := s.publishEntry(ctx, entry); err != nil {
				firstErr = keepFirstErr(firstErr, err)
				continue
			}
			published++
		}
	}

	firstErr = keepFirstErr(firstErr, s.checkBacklog(ctx))
	return published, firstErr
}

func (s *GatewayService) checkBacklog(ctx context.Context) error {
	cfg := s.monitor.cfg
	if cfg.BacklogThreshold <= 0 {
		return nil
	}

	backlog, err := s.entries.BacklogByIntegration(ctx, s.now().Add(-cfg.BacklogAge))
	if err != nil {
		return err
	}
	for integrationID, count := range backlog {
		if count < cfg.BacklogThreshold {
			continue
		}
		s.monitor.raiseAlertQuietly(ctx, integrationID, entity.AlertQueueBacklog,
			fmt.Sprintf("%d reconciliation entries unpublished for more than %s", count, cfg.BacklogAge))
	}
	return nil
}

// HealthEvaluator periodically classifies every active integration from its health log window.
type HealthEvaluator struct {
	integrations integrationRegistry
	monitor      *MonitorService
	reporter     healthReporter
	cache        integrationInvalidator
	logger       logrus.FieldLogger
}

func NewHealthEvaluator(integrations integrationRegistry, monitor *MonitorService, reporter healthReporter, cache integrationInvalidator, logger logrus.FieldLogger) *HealthEvaluator {
	return &HealthEvaluator{
		integrations: integrations,
		monitor:      monitor,
		reporter:     reporter,
		cache:        cache,
		logger:       logger,
	}
}

func (e *HealthEvaluator) RunEvaluateBatch(ctx context.Context) error {
	items, err := e.integrations.ListActive(ctx)
	if err != nil {
		return err
	}

	var firstErr error
	for _, integration := range items {
		if integration == nil {
			continue
		}
		if err := e.evaluate(ctx, integration); err != nil {
			firstErr = keepFirstErr(firstErr, err)
		}
	}
	return firstErr
}

func (e *HealthEvaluator) evaluate(ctx context.Context, integration *entity.Integration) error {
	summary, err := e.monitor.Summary(ctx, integration.ID, 0)
	if err != nil {
		return err
	}

	if e.reporter != nil {
		e.reporter.SetIntegrationStatus(integration.ProviderCode, summary.HealthStatus)
	}
	if summary.HealthStatus == entity.HealthDown {
		e.monitor.raiseAlertQuietly(ctx, integration.ID, entity.AlertServiceDown,
			fmt.Sprintf("uptime %.2f%% over %s is below the degraded threshold", summary.UptimePercent, summary.Window))
	}
	if summary.HealthStatus == integration.HealthStatus {
		return nil
	}

	if err := e.integrations.UpdateHealthStatus(ctx, integration.ID, summary.HealthStatus); err != nil {
		return err
	}
	if e.cache != nil {
		if err := e.cache.Invalidate(ctx, integration.ProviderCode); err != nil {
			e.logger.WithError(err).WithField("provider_code", integration.ProviderCode).Warn("Invalidating cached integration failed")
		}
	}

	e.logger.WithFields(logrus.Fields{
		"provider_code": integration.ProviderCode,
		"from":          integration.HealthStatus,
		"to":            summary.HealthStatus,
		"uptime":        summary.UptimePercent,
	}).Info("Integration health status changed")
	return nil
}

func keepFirstErr(current error, candidate error) error {
	if current != nil {
		return current
	}
	return candidate
}
