package types

import (
	"errors"
	"io"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

const (
	SignatureHeader = "X-Signature"

	maxAlertListLimit    = 500
	maxHealthWindowHours = 24 * 30
)

var ErrEmptyBody = errors.New("request body is empty")

// WebhookRequest is one inbound provider callback. The body is kept verbatim for signature checks.
type WebhookRequest struct {
	RequestID     string
	ProviderCode  string
	CallbackToken string
	Signature     string
	SourceIP      string
	Payload       []byte
}

func NewWebhookRequestFromContext(ctx echo.Context) (*WebhookRequest, error) {
	body, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return nil, err
	}

	return &WebhookRequest{
		RequestID:     strings.TrimSpace(ctx.Request().Header.Get(echo.HeaderXRequestID)),
		ProviderCode:  strings.TrimSpace(ctx.Param("provider")),
		CallbackToken: strings.TrimSpace(ctx.Param("token")),
		Signature:     strings.TrimSpace(ctx.Request().Header.Get(SignatureHeader)),
		SourceIP:      ctx.RealIP(),
		Payload:       body,
	}, nil
}

func (r *WebhookRequest) Validate() error {
	if strings.TrimSpace(r.ProviderCode) == "" {
		return errors.New("provider is required")
	}
	if len(r.Payload) == 0 {
		return ErrEmptyBody
	}
	return nil
}

func (r *WebhookRequest) GetProviderCode() string  { return r.ProviderCode }
func (r *WebhookRequest) GetCallbackToken() string { return r.CallbackToken }
func (r *WebhookRequest) GetSignature() string     { return r.Signature }
func (r *WebhookRequest) GetSourceIP() string      { return r.SourceIP }
func (r *WebhookRequest) GetPayload() []byte       { return r.Payload }

type InitiatePaymentRequest struct {
	Phone            string          `json:"phone"`
	Amount           decimal.Decimal `json:"amount"`
	InvoiceID        uint64          `json:"invoiceId"`
	TenantID         uint64          `json:"tenantId"`
	InstitutionID    uint64          `json:"institutionId"`
	AccountReference string          `json:"accountReference,omitempty"`
	TransactionDesc  string          `json:"transactionDesc,omitempty"`
}

func NewInitiatePaymentRequestFromContext(ctx echo.Context) (*InitiatePaymentRequest, error) {
	var body InitiatePaymentRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}
	body.normalize()
	return &body, nil
}

func (r *InitiatePaymentRequest) normalize() {
	r.Phone = strings.TrimSpace(r.Phone)
	r.AccountReference = strings.TrimSpace(r.AccountReference)
	r.TransactionDesc = strings.TrimSpace(r.TransactionDesc)
}

func (r *InitiatePaymentRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Phone, validation.Required),
		validation.Field(&r.Amount, validation.By(func(value interface{}) error {
			amount, _ := value.(decimal.Decimal)
			if !amount.IsPositive() {
				return errors.New("must be greater than zero")
			}
			if !amount.IsInteger() {
				return errors.New("must be a whole number")
			}
			return nil
		})),
		validation.Field(&r.InvoiceID, validation.Required),
		validation.Field(&r.TenantID, validation.Required),
		validation.Field(&r.InstitutionID, validation.Required),
		validation.Field(&r.AccountReference, validation.Length(0, 12)),
		validation.Field(&r.TransactionDesc, validation.Length(0, 13)),
	)
}

func (r *InitiatePaymentRequest) GetPhone() string            { return r.Phone }
func (r *InitiatePaymentRequest) GetAmount() decimal.Decimal  { return r.Amount }
func (r *InitiatePaymentRequest) GetInvoiceID() uint64        { return r.InvoiceID }
func (r *InitiatePaymentRequest) GetTenantID() uint64         { return r.TenantID }
func (r *InitiatePaymentRequest) GetInstitutionID() uint64    { return r.InstitutionID }
func (r *InitiatePaymentRequest) GetAccountReference() string { return r.AccountReference }
func (r *InitiatePaymentRequest) GetTransactionDesc() string  { return r.TransactionDesc }

type GetPaymentRequestRequest struct {
	RequestID string
}

func NewGetPaymentRequestRequestFromContext(ctx echo.Context) (*GetPaymentRequestRequest, error) {
	return &GetPaymentRequestRequest{RequestID: strings.TrimSpace(ctx.Param("requestId"))}, nil
}

func (r *GetPaymentRequestRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.RequestID, validation.Required, validation.Length(1, 64)),
	)
}

type IntegrationHealthRequest struct {
	IntegrationID uint64
	WindowMinutes int64
}

func NewIntegrationHealthRequestFromContext(ctx echo.Context) (*IntegrationHealthRequest, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		return nil, err
	}
	req := &IntegrationHealthRequest{IntegrationID: id}

	if raw := strings.TrimSpace(ctx.QueryParam("window_minutes")); raw != "" {
		window, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, err
		}
		req.WindowMinutes = window
	}
	return req, nil
}

func (r *IntegrationHealthRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.IntegrationID, validation.Required),
		validation.Field(&r.WindowMinutes, validation.Min(int64(0)), validation.Max(int64(maxHealthWindowHours*60))),
	)
}

type ListAlertsRequest struct {
	IntegrationID uint64
	OpenOnly      bool
	Limit         int32
}

func NewListAlertsRequestFromContext(ctx echo.Context) (*ListAlertsRequest, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		return nil, err
	}
	req := &ListAlertsRequest{IntegrationID: id, Limit: 100}

	if raw := strings.TrimSpace(ctx.QueryParam("open")); raw != "" {
		open, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, err
		}
		req.OpenOnly = open
	}
	if raw := strings.TrimSpace(ctx.QueryParam("limit")); raw != "" {
		limit, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			return nil, err
		}
		req.Limit = int32(limit)
	}
	return req, nil
}

func (r *ListAlertsRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.IntegrationID, validation.Required),
		validation.Field(&r.Limit, validation.Required, validation.Min(int32(1)), validation.Max(int32(maxAlertListLimit))),
	)
}

type AlertActionRequest struct {
	AlertID        uint64 `json:"-"`
	AcknowledgedBy string `json:"acknowledgedBy"`
}

func NewAlertActionRequestFromContext(ctx echo.Context) (*AlertActionRequest, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		return nil, err
	}

	var body AlertActionRequest
	if err = ctx.Bind(&body); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	body.AlertID = id
	body.AcknowledgedBy = strings.TrimSpace(body.AcknowledgedBy)
	return &body, nil
}

func (r *AlertActionRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.AlertID, validation.Required),
		validation.Field(&r.AcknowledgedBy, validation.Length(0, 128)),
	)
}
