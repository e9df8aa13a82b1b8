package types

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

// ResultAckResponse is the acknowledgement body expected by M-Pesa style callers.
type ResultAckResponse struct {
	ResultCode        int    `json:"resultCode"`
	ResultDescription string `json:"resultDescription"`
}

type WebhookResponse struct {
	Success bool   `json:"success"`
	EventID uint64 `json:"event_id"`
	Status  string `json:"status"`
}

type PaymentRequestCreatedResponse struct {
	Success               bool   `json:"success"`
	RequestID             string `json:"requestId"`
	ProviderCorrelationID string `json:"providerCorrelationId"`
	Message               string `json:"message"`
}

type PaymentRequest struct {
	RequestID             string `json:"requestId"`
	TenantID              uint64 `json:"tenantId"`
	InstitutionID         uint64 `json:"institutionId"`
	InvoiceID             uint64 `json:"invoiceId"`
	PhoneNumber           string `json:"phoneNumber"`
	Amount                string `json:"amount"`
	AccountReference      string `json:"accountReference"`
	TransactionDesc       string `json:"transactionDesc"`
	Status                string `json:"status"`
	ProviderCorrelationID string `json:"providerCorrelationId,omitempty"`
	ResultCode            *int32 `json:"resultCode,omitempty"`
	ResultDescription     string `json:"resultDescription,omitempty"`
	CreatedAt             string `json:"createdAt"`
	UpdatedAt             string `json:"updatedAt"`
	CompletedAt           string `json:"completedAt,omitempty"`
}

type PaymentRequestEnvelopeResponse struct {
	PaymentRequest *PaymentRequest `json:"paymentRequest"`
}

type HealthSummaryResponse struct {
	IntegrationID    uint64           `json:"integration_id"`
	WindowMinutes    int64            `json:"window_minutes"`
	TotalChecks      int64            `json:"total_checks"`
	SuccessfulChecks int64            `json:"successful_checks"`
	UptimePercent    float64          `json:"uptime_percent"`
	AvgResponseMS    float64          `json:"avg_response_ms"`
	OpenAlerts       map[string]int64 `json:"open_alerts"`
	HealthStatus     string           `json:"health_status"`
}

type Alert struct {
	ID             uint64 `json:"id"`
	IntegrationID  uint64 `json:"integration_id"`
	AlertType      string `json:"alert_type"`
	Severity       string `json:"severity"`
	Message        string `json:"message"`
	IsAcknowledged bool   `json:"is_acknowledged"`
	AcknowledgedAt string `json:"acknowledged_at,omitempty"`
	AcknowledgedBy string `json:"acknowledged_by,omitempty"`
	ResolvedAt     string `json:"resolved_at,omitempty"`
	CreatedAt      string `json:"created_at"`
}

type AlertEnvelopeResponse struct {
	Alert *Alert `json:"alert"`
}

type ListAlertsResponse struct {
	Alerts []*Alert `json:"alerts"`
}
