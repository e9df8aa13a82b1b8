package entity

import "time"

type CheckType string

const (
	CheckTypeAPI          CheckType = "api"
	CheckTypeCallback     CheckType = "callback"
	CheckTypeAuth         CheckType = "auth"
	CheckTypeConnectivity CheckType = "connectivity"
)

type CheckStatus string

const (
	CheckStatusSuccess CheckStatus = "success"
	CheckStatusFailure CheckStatus = "failure"
	CheckStatusTimeout CheckStatus = "timeout"
	CheckStatusError   CheckStatus = "error"
)

type HealthLogEntry struct {
	ID uint64

	IntegrationID  uint64
	CheckType      CheckType
	Status         CheckStatus
	ResponseTimeMS int64
	ErrorMessage   *string

	CheckedAt time.Time
}

type AlertType string

const (
	AlertCallbackFailure AlertType = "callback_failure"
	AlertHighLatency     AlertType = "high_latency"
	AlertAuthFailure     AlertType = "auth_failure"
	AlertRateLimit       AlertType = "rate_limit"
	AlertServiceDown     AlertType = "service_down"
	AlertQueueBacklog    AlertType = "queue_backlog"
)

type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "low"
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

type Alert struct {
	ID uint64

	IntegrationID uint64
	AlertType     AlertType
	Severity      AlertSeverity
	Message       string

	IsAcknowledged bool
	AcknowledgedAt *time.Time
	AcknowledgedBy *string
	ResolvedAt     *time.Time

	CreatedAt time.Time
}

func (a *Alert) Open() bool {
	return a.ResolvedAt == nil
}
