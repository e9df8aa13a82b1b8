package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"github.com/wacul/ptr"

	"github.com/vibast-solutions/ms-go-payment-gateway/app/entity"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/repository"
	"github.com/vibast-solutions/ms-go-payment-gateway/config"
)

const maxMessageLength = 1024

var alertSeverities = map[entity.AlertType]entity.AlertSeverity{
	entity.AlertCallbackFailure: entity.SeverityMedium,
	entity.AlertHighLatency:     entity.SeverityMedium,
	entity.AlertAuthFailure:     entity.SeverityHigh,
	entity.AlertRateLimit:       entity.SeverityLow,
	entity.AlertServiceDown:     entity.SeverityCritical,
	entity.AlertQueueBacklog:    entity.SeverityHigh,
}

type healthLogRepository interface {
	Create(ctx context.Context, entry *entity.HealthLogEntry) error
	WindowStats(ctx context.Context, integrationID uint64, since time.Time) (repository.HealthWindowStats, error)
}

type alertRepository interface {
	Create(ctx context.Context, alert *entity.Alert) error
	FindByID(ctx context.Context, id uint64) (*entity.Alert, error)
	FindOpen(ctx context.Context, integrationID uint64, alertType entity.AlertType) (*entity.Alert, error)
	Acknowledge(ctx context.Context, id uint64, by string, at time.Time) error
	Resolve(ctx context.Context, id uint64, at time.Time) error
	CountOpenBySeverity(ctx context.Context, integrationID uint64) (map[entity.AlertSeverity]int64, error)
	List(ctx context.Context, filter repository.AlertFilter) ([]*entity.Alert, error)
}

type HealthSummary struct {
	IntegrationID    uint64
	Window           time.Duration
	TotalChecks      int64
	SuccessfulChecks int64
	UptimePercent    float64
	AvgResponseMS    float64
	OpenAlerts       map[entity.AlertSeverity]int64
	HealthStatus     entity.HealthStatus
}

type MonitorService struct {
	healthRepo healthLogRepository
	alertRepo  alertRepository
	cfg        config.MonitorConfig
	logger     logrus.FieldLogger
	now        func() time.Time
}

func NewMonitorService(healthRepo healthLogRepository, alertRepo alertRepository, cfg config.MonitorConfig, logger logrus.FieldLogger) *MonitorService {
	if cfg.Window <= 0 {
		cfg.Window = 24 * time.Hour
	}
	if cfg.HealthyUptimePercent <= 0 {
		cfg.HealthyUptimePercent = 99
	}
	if cfg.DegradedUptimePercent <= 0 {
		cfg.DegradedUptimePercent = 90
	}

	return &MonitorService{
		healthRepo: healthRepo,
		alertRepo:  alertRepo,
		cfg:        cfg,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// RecordCheck appends one health log entry. Failures to record are logged, never returned.
func (s *MonitorService) RecordCheck(ctx context.Context, integrationID uint64, checkType entity.CheckType, status entity.CheckStatus, latency time.Duration, errMsg string) {
	entry := &entity.HealthLogEntry{
		IntegrationID:  integrationID,
		CheckType:      checkType,
		Status:         status,
		ResponseTimeMS: latency.Milliseconds(),
		CheckedAt:      s.now(),
	}
	if errMsg = strings.TrimSpace(errMsg); errMsg != "" {
		entry.ErrorMessage = ptr.String(truncate(errMsg, maxMessageLength))
	}

	if err := s.healthRepo.Create(ctx, entry); err != nil {
		s.logger.WithError(err).WithField("integration_id", integrationID).Error("Recording health check failed")
	}
}

// RaiseAlert opens an alert unless one of the same type is already open for the integration.
// It reports whether a new alert was created.
func (s *MonitorService) RaiseAlert(ctx context.Context, integrationID uint64, alertType entity.AlertType, message string) (*entity.Alert, bool, error) {
	existing, err := s.alertRepo.FindOpen(ctx, integrationID, alertType)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	severity, ok := alertSeverities[alertType]
	if !ok {
		severity = entity.SeverityMedium
	}

	alert := &entity.Alert{
		IntegrationID: integrationID,
		AlertType:     alertType,
		Severity:      severity,
		Message:       truncate(strings.TrimSpace(message), maxMessageLength),
		CreatedAt:     s.now(),
	}
	if err := s.alertRepo.Create(ctx, alert); err != nil {
		return nil, false, err
	}

	s.logger.WithFields(logrus.Fields{
		"integration_id": integrationID,
		"alert_type":     alertType,
		"severity":       severity,
	}).Warn("Alert raised")
	return alert, true, nil
}

// raiseAlertQuietly is used on code paths that must not fail because alerting failed.
func (s *MonitorService) raiseAlertQuietly(ctx context.Context, integrationID uint64, alertType entity.AlertType, message string) {
	if _, _, err := s.RaiseAlert(ctx, integrationID, alertType, message); err != nil {
		s.logger.WithError(err).WithField("alert_type", alertType).Error("Raising alert failed")
	}
}

func (s *MonitorService) Summary(ctx context.Context, integrationID uint64, window time.Duration) (*HealthSummary, error) {
	if window <= 0 {
		window = s.cfg.Window
	}

	stats, err := s.healthRepo.WindowStats(ctx, integrationID, s.now().Add(-window))
	if err != nil {
		return nil, err
	}
	openAlerts, err := s.alertRepo.CountOpenBySeverity(ctx, integrationID)
	if err != nil {
		return nil, err
	}

	summary := &HealthSummary{
		IntegrationID:    integrationID,
		Window:           window,
		TotalChecks:      stats.Total,
		SuccessfulChecks: stats.Successful,
		UptimePercent:    100,
		AvgResponseMS:    stats.AvgResponseMS,
		OpenAlerts:       openAlerts,
		HealthStatus:     entity.HealthUnknown,
	}
	if stats.Total > 0 {
		summary.UptimePercent = float64(stats.Successful) * 100 / float64(stats.Total)
		summary.HealthStatus = s.classify(summary.UptimePercent)
	}
	return summary, nil
}

func (s *MonitorService) classify(uptime float64) entity.HealthStatus {
	switch {
	case uptime >= s.cfg.HealthyUptimePercent:
		return entity.HealthHealthy
	case uptime >= s.cfg.DegradedUptimePercent:
		return entity.HealthDegraded
	default:
		return entity.HealthDown
	}
}

func (s *MonitorService) ListAlerts(ctx context.Context, integrationID uint64, openOnly bool, limit int32) ([]*entity.Alert, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	return s.alertRepo.List(ctx, repository.AlertFilter{
		IntegrationID: integrationID,
		OpenOnly:      openOnly,
		Limit:         limit,
	})
}

// AcknowledgeAlert is idempotent: acknowledging twice keeps the first acknowledgement.
func (s *MonitorService) AcknowledgeAlert(ctx context.Context, id uint64, by string) (*entity.Alert, error) {
	alert, err := s.findAlert(ctx, id)
	if err != nil {
		return nil, err
	}
	if !alert.IsAcknowledged {
		if err := s.alertRepo.Acknowledge(ctx, id, strings.TrimSpace(by), s.now()); err != nil {
			return nil, err
		}
	}
	return s.findAlert(ctx, id)
}

// ResolveAlert is idempotent and independent of acknowledgement.
func (s *MonitorService) ResolveAlert(ctx context.Context, id uint64) (*entity.Alert, error) {
	alert, err := s.findAlert(ctx, id)
	if err != nil {
		return nil, err
	}
	if alert.Open() {
		if err := s.alertRepo.Resolve(ctx, id, s.now()); err != nil {
			return nil, err
		}
	}
	return s.findAlert(ctx, id)
}

func (s *MonitorService) findAlert(ctx context.Context, id uint64) (*entity.Alert, error) {
	alert, err := s.alertRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if alert == nil {
		return nil, ErrAlertNotFound
	}
	return alert, nil
}

func truncate(value string, max int) string {
	if utf8.RuneCountInString(value) <= max {
		return value
	}
	return string([]rune(value)[:max])
}
