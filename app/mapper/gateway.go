package mapper

import (
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vibast-solutions/ms-go-payment-gateway/app/entity"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/service"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/types"
)

func PaymentRequestToResponse(item *entity.PaymentRequest) *types.PaymentRequest {
	if item == nil {
		return nil
	}

	return &types.PaymentRequest{
		RequestID:             item.RequestUID,
		TenantID:              item.TenantID,
		InstitutionID:         item.InstitutionID,
		InvoiceID:             item.InvoiceID,
		PhoneNumber:           item.PhoneNumber,
		Amount:                item.Amount.StringFixed(2),
		AccountReference:      item.AccountReference,
		TransactionDesc:       item.TransactionDesc,
		Status:                string(item.Status),
		ProviderCorrelationID: derefString(item.ProviderCorrelationID),
		ResultCode:            item.ResultCode,
		ResultDescription:     item.ResultDescription,
		CreatedAt:             formatTime(item.CreatedAt),
		UpdatedAt:             formatTime(item.UpdatedAt),
		CompletedAt:           formatTimePtr(item.CompletedAt),
	}
}

func PaymentRequestToCreatedResponse(item *entity.PaymentRequest) *types.PaymentRequestCreatedResponse {
	message := item.ResultDescription
	if message == "" {
		message = "Payment request sent to customer phone"
	}
	return &types.PaymentRequestCreatedResponse{
		Success:               true,
		RequestID:             item.RequestUID,
		ProviderCorrelationID: derefString(item.ProviderCorrelationID),
		Message:               message,
	}
}

func HealthSummaryToResponse(item *service.HealthSummary) *types.HealthSummaryResponse {
	if item == nil {
		return nil
	}

	openAlerts := make(map[string]int64, len(item.OpenAlerts))
	for severity, count := range item.OpenAlerts {
		openAlerts[string(severity)] = count
	}
	return &types.HealthSummaryResponse{
		IntegrationID:    item.IntegrationID,
		WindowMinutes:    int64(item.Window / time.Minute),
		TotalChecks:      item.TotalChecks,
		SuccessfulChecks: item.SuccessfulChecks,
		UptimePercent:    item.UptimePercent,
		AvgResponseMS:    item.AvgResponseMS,
		OpenAlerts:       openAlerts,
		HealthStatus:     string(item.HealthStatus),
	}
}

func AlertToResponse(item *entity.Alert) *types.Alert {
	if item == nil {
		return nil
	}

	return &types.Alert{
		ID:             item.ID,
		IntegrationID:  item.IntegrationID,
		AlertType:      string(item.AlertType),
		Severity:       string(item.Severity),
		Message:        item.Message,
		IsAcknowledged: item.IsAcknowledged,
		AcknowledgedAt: formatTimePtr(item.AcknowledgedAt),
		AcknowledgedBy: derefString(item.AcknowledgedBy),
		ResolvedAt:     formatTimePtr(item.ResolvedAt),
		CreatedAt:      formatTime(item.CreatedAt),
	}
}

func AlertsToResponse(items []*entity.Alert) []*types.Alert {
	result := make([]*types.Alert, 0, len(items))
	for _, item := range items {
		result = append(result, AlertToResponse(item))
	}
	return result
}

func WebhookResultToResponse(event *entity.PaymentNotificationEvent) *types.WebhookResponse {
	return &types.WebhookResponse{
		Success: true,
		EventID: event.ID,
		Status:  string(event.Status),
	}
}

// PaymentRequestToStruct renders the REST representation as a protobuf Struct for the gRPC ops service.
func PaymentRequestToStruct(item *entity.PaymentRequest) (*structpb.Struct, error) {
	resp := PaymentRequestToResponse(item)
	fields := map[string]interface{}{
		"requestId":             resp.RequestID,
		"tenantId":              float64(resp.TenantID),
		"institutionId":         float64(resp.InstitutionID),
		"invoiceId":             float64(resp.InvoiceID),
		"phoneNumber":           resp.PhoneNumber,
		"amount":                resp.Amount,
		"accountReference":      resp.AccountReference,
		"transactionDesc":       resp.TransactionDesc,
		"status":                resp.Status,
		"providerCorrelationId": resp.ProviderCorrelationID,
		"resultDescription":     resp.ResultDescription,
		"createdAt":             resp.CreatedAt,
		"updatedAt":             resp.UpdatedAt,
		"completedAt":           resp.CompletedAt,
	}
	if resp.ResultCode != nil {
		fields["resultCode"] = float64(*resp.ResultCode)
	}
	return structpb.NewStruct(fields)
}

func HealthSummaryToStruct(item *service.HealthSummary) (*structpb.Struct, error) {
	resp := HealthSummaryToResponse(item)
	openAlerts := make(map[string]interface{}, len(resp.OpenAlerts))
	for severity, count := range resp.OpenAlerts {
		openAlerts[severity] = float64(count)
	}
	return structpb.NewStruct(map[string]interface{}{
		"integration_id":    float64(resp.IntegrationID),
		"window_minutes":    float64(resp.WindowMinutes),
		"total_checks":      float64(resp.TotalChecks),
		"successful_checks": float64(resp.SuccessfulChecks),
		"uptime_percent":    resp.UptimePercent,
		"avg_response_ms":   resp.AvgResponseMS,
		"open_alerts":       openAlerts,
		"health_status":     resp.HealthStatus,
	})
}

func AlertToStruct(item *entity.Alert) (*structpb.Struct, error) {
	resp := AlertToResponse(item)
	return structpb.NewStruct(map[string]interface{}{
		"id":              float64(resp.ID),
		"integration_id":  float64(resp.IntegrationID),
		"alert_type":      resp.AlertType,
		"severity":        resp.Severity,
		"message":         resp.Message,
		"is_acknowledged": resp.IsAcknowledged,
		"acknowledged_at": resp.AcknowledgedAt,
		"acknowledged_by": resp.AcknowledgedBy,
		"resolved_at":     resp.ResolvedAt,
		"created_at":      resp.CreatedAt,
	})
}

func formatTime(v time.Time) string {
	if v.IsZero() {
		return ""
	}
	return v.UTC().Format(time.RFC3339)
}

func formatTimePtr(v *time.Time) string {
	if v == nil {
		return ""
	}
	return formatTime(*v)
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
