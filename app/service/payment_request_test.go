package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vibast-solutions/ms-go-payment-gateway/app/entity"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/provider"
	"github.com/vibast-solutions/ms-go-payment-gateway/config"
)

type testInitiateRequest struct {
	phone         string
	amount        decimal.Decimal
	invoiceID     uint64
	tenantID      uint64
	institutionID uint64
	reference     string
	desc          string
}

func (r testInitiateRequest) GetPhone() string            { return r.phone }
func (r testInitiateRequest) GetAmount() decimal.Decimal  { return r.amount }
func (r testInitiateRequest) GetInvoiceID() uint64        { return r.invoiceID }
func (r testInitiateRequest) GetTenantID() uint64         { return r.tenantID }
func (r testInitiateRequest) GetInstitutionID() uint64    { return r.institutionID }
func (r testInitiateRequest) GetAccountReference() string { return r.reference }
func (r testInitiateRequest) GetTransactionDesc() string  { return r.desc }

func testRequestsConfig() config.RequestsConfig {
	return config.RequestsConfig{
		PushIntegrationCode: "stk",
		CountryCode:         "254",
		DuplicateWindow:     5 * time.Minute,
		ProcessingTimeout:   30 * time.Minute,
		LockTTL:             10 * time.Second,
		LockWait:            time.Second,
	}
}

type requestHarness struct {
	service    *PaymentRequestService
	requests   *servicePaymentRequestRepo
	invoices   *serviceInvoiceRepo
	pusher     *servicePusher
	locker     *serviceLocker
	healthLogs *serviceHealthLogRepo
	alerts     *serviceAlertRepo
}

func newRequestHarness() *requestHarness {
	h := &requestHarness{
		requests: newServicePaymentRequestRepo(),
		invoices: &serviceInvoiceRepo{invoices: map[uint64]*entity.Invoice{
			42: {ID: 42, TenantID: 9, Status: "issued", TotalAmount: mustDecimal("5000"), PaidAmount: mustDecimal("1000")},
			43: {ID: 43, TenantID: 9, Status: "paid", TotalAmount: mustDecimal("5000"), PaidAmount: mustDecimal("5000")},
			44: {ID: 44, TenantID: 9, Status: entity.InvoiceStatusDraft, TotalAmount: mustDecimal("5000")},
		}},
		pusher: &servicePusher{output: &provider.PushOutput{
			CorrelationID:       "ws_CO_1",
			ResponseDescription: "Success. Request accepted for processing",
			CustomerMessage:     "Success. Request accepted for processing",
		}},
		locker:     &serviceLocker{},
		healthLogs: &serviceHealthLogRepo{},
		alerts:     newServiceAlertRepo(),
	}

	logger := testLogger()
	monitor := NewMonitorService(h.healthLogs, h.alerts, testMonitorConfig(), logger)
	h.service = NewPaymentRequestService(
		h.requests,
		h.invoices,
		newServiceIntegrationRepo(testIntegration(5, "stk", entity.FamilyMpesaSTK)),
		h.pusher,
		NewSecretResolver(map[string]string{"primary": testSigningKey}),
		h.locker,
		monitor,
		testRequestsConfig(),
		"https://gateway.example.com",
		5*time.Second,
		logger,
	)
	return h
}

func validInitiateRequest() testInitiateRequest {
	return testInitiateRequest{
		phone:         "0712345678",
		amount:        mustDecimal("1500"),
		invoiceID:     42,
		tenantID:      9,
		institutionID: 3,
	}
}

func TestCanonicalizePhone(t *testing.T) {
	cases := map[string]string{
		"0712345678":        "254712345678",
		"712345678":         "254712345678",
		"+254 712-345-678":  "254712345678",
		"254712345678":      "254712345678",
		"(0712) 345 678":    "254712345678",
		"+254 (712) 345678": "254712345678",
	}
	for raw, want := range cases {
		got, err := CanonicalizePhone(raw, "254")
		if err != nil {
			t.Fatalf("CanonicalizePhone(%q) error = %v", raw, err)
		}
		if got != want {
			t.Fatalf("CanonicalizePhone(%q) = %q, want %q", raw, got, want)
		}
	}

	for _, raw := range []string{"", "12345", "07123456789", "255712345678", "07a2345678", "012345678"} {
		if _, err := CanonicalizePhone(raw, "254"); !errors.Is(err, ErrInvalidPhone) {
			t.Fatalf("CanonicalizePhone(%q) expected ErrInvalidPhone, got %v", raw, err)
		}
	}
}

func TestInitiateAcceptedPushMovesToProcessing(t *testing.T) {
	h := newRequestHarness()

	request, err := h.service.Initiate(context.Background(), validInitiateRequest())
	if err != nil {
		t.Fatalf("Initiate() error = %v", err)
	}
	if request.Status != entity.RequestStatusProcessing {
		t.Fatalf("expected processing, got %s", request.Status)
	}
	if request.ProviderCorrelationID == nil || *request.ProviderCorrelationID != "ws_CO_1" {
		t.Fatalf("unexpected correlation id %v", request.ProviderCorrelationID)
	}
	if request.PhoneNumber != "254712345678" || request.AccountReference != "INV42" {
		t.Fatalf("unexpected request fields: %+v", request)
	}

	if len(h.pusher.calls) != 1 {
		t.Fatalf("expected exactly one push call, got %d", len(h.pusher.calls))
	}
	wantURL := "https://gateway.example.com/webhooks/stk/" + provider.CallbackToken(testSigningKey, "stk")
	if h.pusher.calls[0].CallbackURL != wantURL {
		t.Fatalf("unexpected callback url %q", h.pusher.calls[0].CallbackURL)
	}
	if len(h.locker.held) != 0 || len(h.locker.acquired) != 1 || h.locker.acquired[0] != "payreq:254712345678:42" {
		t.Fatalf("unexpected lock usage: held=%v acquired=%v", h.locker.held, h.locker.acquired)
	}
	if h.healthLogs.count(entity.CheckTypeAPI, entity.CheckStatusSuccess) != 1 {
		t.Fatalf("expected api success log")
	}
}

func TestInitiateScenarioDRejectsDuplicateWithinWindow(t *testing.T) {
	h := newRequestHarness()

	if _, err := h.service.Initiate(context.Background(), validInitiateRequest()); err != nil {
		t.Fatalf("first Initiate() error = %v", err)
	}

	second := validInitiateRequest()
	second.phone = "+254 712 345 678"
	if _, err := h.service.Initiate(context.Background(), second); !errors.Is(err, ErrDuplicateRequest) {
		t.Fatalf("expected ErrDuplicateRequest, got %v", err)
	}
	if len(h.pusher.calls) != 1 {
		t.Fatalf("duplicate must not reach the provider, got %d calls", len(h.pusher.calls))
	}
}

func TestInitiateAllowsRetryAfterWindow(t *testing.T) {
	h := newRequestHarness()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	h.service.now = func() time.Time { return base }

	if _, err := h.service.Initiate(context.Background(), validInitiateRequest()); err != nil {
		t.Fatalf("first Initiate() error = %v", err)
	}
	h.pusher.output = &provider.PushOutput{CorrelationID: "ws_CO_2"}
	h.service.now = func() time.Time { return base.Add(6 * time.Minute) }

	if _, err := h.service.Initiate(context.Background(), validInitiateRequest()); err != nil {
		t.Fatalf("second Initiate() error = %v", err)
	}
}

func TestInitiateRejectsWhenLockIsHeld(t *testing.T) {
	h := newRequestHarness()
	h.locker.held = map[string]bool{"payreq:254712345678:42": true}

	if _, err := h.service.Initiate(context.Background(), validInitiateRequest()); !errors.Is(err, ErrDuplicateRequest) {
		t.Fatalf("expected ErrDuplicateRequest, got %v", err)
	}
	if len(h.requests.requests) != 0 {
		t.Fatalf("no request should be stored")
	}
}

func TestInitiateInvoiceGuardsMakeNoProviderCalls(t *testing.T) {
	cases := []struct {
		name   string
		modify func(*testInitiateRequest)
		want   error
	}{
		{"zero balance", func(r *testInitiateRequest) { r.invoiceID = 43 }, ErrInvoiceSettled},
		{"draft invoice", func(r *testInitiateRequest) { r.invoiceID = 44 }, ErrInvoiceNotPayable},
		{"missing invoice", func(r *testInitiateRequest) { r.invoiceID = 99 }, ErrInvoiceNotFound},
		{"other tenant", func(r *testInitiateRequest) { r.tenantID = 10 }, ErrInvoiceNotFound},
		{"over balance", func(r *testInitiateRequest) { r.amount = mustDecimal("4001") }, ErrAmountExceedsBalance},
		{"zero amount", func(r *testInitiateRequest) { r.amount = decimal.Zero }, ErrInvalidRequest},
		{"fractional amount", func(r *testInitiateRequest) { r.amount = mustDecimal("0.40") }, ErrInvalidRequest},
		{"fractional amount rounding past balance", func(r *testInitiateRequest) { r.amount = mustDecimal("3999.50") }, ErrInvalidRequest},
		{"bad phone", func(r *testInitiateRequest) { r.phone = "12" }, ErrInvalidPhone},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newRequestHarness()
			req := validInitiateRequest()
			tc.modify(&req)

			if _, err := h.service.Initiate(context.Background(), req); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if len(h.pusher.calls) != 0 {
				t.Fatalf("expected zero provider calls, got %d", len(h.pusher.calls))
			}
			if len(h.requests.requests) != 0 {
				t.Fatalf("expected no stored request")
			}
		})
	}
}

func TestInitiateProviderRejectionFailsRequest(t *testing.T) {
	h := newRequestHarness()
	h.pusher.err = &provider.RejectedError{Code: "400.002.02", Description: "Bad Request - Invalid PhoneNumber"}

	request, err := h.service.Initiate(context.Background(), validInitiateRequest())
	if !errors.Is(err, ErrProviderRejected) {
		t.Fatalf("expected ErrProviderRejected, got %v", err)
	}
	if request == nil || request.Status != entity.RequestStatusFailed {
		t.Fatalf("expected failed request, got %+v", request)
	}
	stored := h.requests.requests[request.ID]
	if stored.ResultDescription != "Bad Request - Invalid PhoneNumber" {
		t.Fatalf("unexpected stored description %q", stored.ResultDescription)
	}
	if len(h.pusher.calls) != 1 {
		t.Fatalf("rejections must not be retried, got %d calls", len(h.pusher.calls))
	}
	if len(h.alerts.ofType(entity.AlertServiceDown)) != 0 {
		t.Fatalf("rejection must not raise service_down")
	}
}

func TestInitiateTransportFailureRaisesServiceDown(t *testing.T) {
	h := newRequestHarness()
	h.pusher.err = errors.New("dial tcp: connection refused")

	request, err := h.service.Initiate(context.Background(), validInitiateRequest())
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
	stored := h.requests.requests[request.ID]
	if stored.Status != entity.RequestStatusFailed || !strings.Contains(stored.ResultDescription, "connection refused") {
		t.Fatalf("unexpected stored request: %+v", stored)
	}
	if len(h.alerts.ofType(entity.AlertServiceDown)) != 1 {
		t.Fatalf("expected service_down alert")
	}
	if h.healthLogs.count(entity.CheckTypeAPI, entity.CheckStatusError) != 1 {
		t.Fatalf("expected api error log")
	}
}

func TestInitiateTokenFailureRaisesAuthAlert(t *testing.T) {
	h := newRequestHarness()
	h.pusher.err = provider.ErrTokenUnavailable

	if _, err := h.service.Initiate(context.Background(), validInitiateRequest()); !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
	if len(h.alerts.ofType(entity.AlertAuthFailure)) != 1 {
		t.Fatalf("expected auth_failure alert")
	}
	if h.healthLogs.count(entity.CheckTypeAuth, entity.CheckStatusFailure) != 1 {
		t.Fatalf("expected auth failure log")
	}
}

func TestInitiateWithoutPushIntegration(t *testing.T) {
	h := newRequestHarness()
	h.service.cfg.PushIntegrationCode = "missing"

	if _, err := h.service.Initiate(context.Background(), validInitiateRequest()); !errors.Is(err, ErrPushUnavailable) {
		t.Fatalf("expected ErrPushUnavailable, got %v", err)
	}
}

func TestGetPaymentRequest(t *testing.T) {
	h := newRequestHarness()
	created, err := h.service.Initiate(context.Background(), validInitiateRequest())
	if err != nil {
		t.Fatalf("Initiate() error = %v", err)
	}

	found, err := h.service.Get(context.Background(), created.RequestUID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if found.ID != created.ID {
		t.Fatalf("unexpected request %d", found.ID)
	}
	if _, err := h.service.Get(context.Background(), "nope"); !errors.Is(err, ErrPaymentRequestNotFound) {
		t.Fatalf("expected ErrPaymentRequestNotFound, got %v", err)
	}
}

func TestRunExpireBatchFailsStaleRequests(t *testing.T) {
	h := newRequestHarness()
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	h.service.now = func() time.Time { return now }
	h.requests.requests[1] = &entity.PaymentRequest{ID: 1, RequestUID: "old", Status: entity.RequestStatusProcessing, CreatedAt: now.Add(-time.Hour)}
	h.requests.requests[2] = &entity.PaymentRequest{ID: 2, RequestUID: "fresh", Status: entity.RequestStatusPending, CreatedAt: now.Add(-time.Minute)}
	h.requests.requests[3] = &entity.PaymentRequest{ID: 3, RequestUID: "done", Status: entity.RequestStatusConfirmed, CreatedAt: now.Add(-time.Hour)}

	expired, err := h.service.RunExpireBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("RunExpireBatch() error = %v", err)
	}
	if expired != 1 {
		t.Fatalf("expected one expired request, got %d", expired)
	}
	if h.requests.requests[1].ResultDescription != "timed out waiting for provider confirmation" {
		t.Fatalf("unexpected description %q", h.requests.requests[1].ResultDescription)
	}
	if h.requests.requests[3].Status != entity.RequestStatusConfirmed {
		t.Fatalf("terminal request must not change")
	}
}
