package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vibast-solutions/ms-go-payment-gateway/app/entity"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/lock"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/provider"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/repository"
	"github.com/vibast-solutions/ms-go-payment-gateway/config"
)

const (
	canonicalPhoneLength     = 12
	defaultCountryCode       = "254"
	defaultTransactionDesc   = "School fees payment"
	requestTimeoutResultDesc = "timed out waiting for provider confirmation"
)

var phoneSeparators = strings.NewReplacer("+", "", " ", "", "-", "", "(", "", ")", "")

type InitiateRequest interface {
	GetPhone() string
	GetAmount() decimal.Decimal
	GetInvoiceID() uint64
	GetTenantID() uint64
	GetInstitutionID() uint64
	GetAccountReference() string
	GetTransactionDesc() string
}

type paymentRequestRepository interface {
	Create(ctx context.Context, req *entity.PaymentRequest) error
	FindActiveDuplicate(ctx context.Context, phone string, invoiceID uint64, since time.Time) (*entity.PaymentRequest, error)
	MarkProcessing(ctx context.Context, id uint64, correlationID string, now time.Time) error
	MarkFailed(ctx context.Context, id uint64, description string, now time.Time) error
	Finalize(ctx context.Context, correlationID string, status entity.PaymentRequestStatus, resultCode int32, description string, eventID uint64, now time.Time) (bool, error)
	ExpireStale(ctx context.Context, cutoff time.Time, description string, now time.Time, limit int32) (int64, error)
	FindByUID(ctx context.Context, requestUID string) (*entity.PaymentRequest, error)
}

type invoiceRepository interface {
	FindByID(ctx context.Context, id uint64) (*entity.Invoice, error)
}

type requestLocker interface {
	WaitAcquire(ctx context.Context, key string, ttl, waitTimeout time.Duration) (lock.ReleaseFunc, error)
}

type PaymentRequestService struct {
	requests        paymentRequestRepository
	invoices        invoiceRepository
	integrations    integrationSource
	pusher          provider.PushProvider
	resolver        keyResolver
	locker          requestLocker
	monitor         *MonitorService
	cfg             config.RequestsConfig
	callbackBaseURL string
	latencyLimit    time.Duration
	logger          logrus.FieldLogger
	now             func() time.Time
}

func NewPaymentRequestService(
	requests paymentRequestRepository,
	invoices invoiceRepository,
	integrations integrationSource,
	pusher provider.PushProvider,
	resolver keyResolver,
	locker requestLocker,
	monitor *MonitorService,
	cfg config.RequestsConfig,
	callbackBaseURL string,
	latencyLimit time.Duration,
	logger logrus.FieldLogger,
) *PaymentRequestService {
	if cfg.DuplicateWindow <= 0 {
		cfg.DuplicateWindow = 5 * time.Minute
	}
	if cfg.ProcessingTimeout <= 0 {
		cfg.ProcessingTimeout = 30 * time.Minute
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Second
	}
	if strings.TrimSpace(cfg.CountryCode) == "" {
		cfg.CountryCode = defaultCountryCode
	}

	return &PaymentRequestService{
		requests:        requests,
		invoices:        invoices,
		integrations:    integrations,
		pusher:          pusher,
		resolver:        resolver,
		locker:          locker,
		monitor:         monitor,
		cfg:             cfg,
		callbackBaseURL: strings.TrimSpace(callbackBaseURL),
		latencyLimit:    latencyLimit,
		logger:          logger,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// CanonicalizePhone converts local, bare and international forms into the 12-digit form
// prefixed with countryCode.
func CanonicalizePhone(raw, countryCode string) (string, error) {
	digits := phoneSeparators.Replace(strings.TrimSpace(raw))
	if digits == "" {
		return "", ErrInvalidPhone
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", ErrInvalidPhone
		}
	}

	subscriberLength := canonicalPhoneLength - len(countryCode)
	var canonical string
	switch {
	case len(digits) == canonicalPhoneLength && strings.HasPrefix(digits, countryCode):
		canonical = digits
	case len(digits) == subscriberLength+1 && strings.HasPrefix(digits, "0"):
		canonical = countryCode + digits[1:]
	case len(digits) == subscriberLength && !strings.HasPrefix(digits, "0"):
		canonical = countryCode + digits
	default:
		return "", ErrInvalidPhone
	}
	return canonical, nil
}

// Initiate validates the request against the invoice, stores it as pending and issues one push call.
func (s *PaymentRequestService) Initiate(ctx context.Context, req InitiateRequest) (*entity.PaymentRequest, error) {
	ctx, span := tracer.Start(ctx, "Initiating payment request")
	defer span.End()

	phone, err := CanonicalizePhone(req.GetPhone(), s.cfg.CountryCode)
	if err != nil {
		return nil, err
	}
	amount := req.GetAmount()
	if !amount.IsPositive() || !amount.IsInteger() || req.GetInvoiceID() == 0 || req.GetTenantID() == 0 {
		return nil, ErrInvalidRequest
	}

	invoice, err := s.invoices.FindByID(ctx, req.GetInvoiceID())
	if err != nil {
		return nil, err
	}
	if invoice == nil || invoice.TenantID != req.GetTenantID() {
		return nil, ErrInvoiceNotFound
	}
	if !invoice.Payable() {
		return nil, ErrInvoiceNotPayable
	}
	balance := invoice.Balance()
	if !balance.IsPositive() {
		return nil, ErrInvoiceSettled
	}
	if amount.GreaterThan(balance) {
		return nil, fmt.Errorf("%w: balance %s", ErrAmountExceedsBalance, balance.StringFixed(2))
	}

	integration, callbackURL, err := s.pushTarget(ctx)
	if err != nil {
		return nil, err
	}

	accountReference := strings.TrimSpace(req.GetAccountReference())
	if accountReference == "" {
		accountReference = fmt.Sprintf("INV%d", invoice.ID)
	}
	transactionDesc := strings.TrimSpace(req.GetTransactionDesc())
	if transactionDesc == "" {
		transactionDesc = defaultTransactionDesc
	}

	now := s.now()
	request := &entity.PaymentRequest{
		RequestUID:       uuid.NewString(),
		TenantID:         req.GetTenantID(),
		InstitutionID:    req.GetInstitutionID(),
		InvoiceID:        invoice.ID,
		IntegrationID:    integration.ID,
		PhoneNumber:      phone,
		Amount:           amount,
		AccountReference: accountReference,
		TransactionDesc:  transactionDesc,
		Status:           entity.RequestStatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.createGuarded(ctx, request); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("request_uid", request.RequestUID))

	return request, s.push(ctx, integration, request, callbackURL)
}

func (s *PaymentRequestService) pushTarget(ctx context.Context) (*entity.Integration, string, error) {
	if s.pusher == nil || s.callbackBaseURL == "" {
		return nil, "", ErrPushUnavailable
	}

	integration, err := s.integrations.FindByCode(ctx, strings.TrimSpace(s.cfg.PushIntegrationCode))
	if err != nil {
		return nil, "", err
	}
	if integration == nil || !integration.IsActive || integration.Family != entity.FamilyMpesaSTK {
		return nil, "", ErrPushUnavailable
	}

	key, err := s.resolver.Resolve(integration.WebhookConfig.SigningKeyRef)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrPushUnavailable, err)
	}
	token := provider.CallbackToken(key, integration.ProviderCode)
	return integration, provider.CallbackURL(s.callbackBaseURL, integration.ProviderCode, token), nil
}

// createGuarded runs the duplicate check and insert under the (phone, invoice) lock.
// The lock is released before the provider is called.
func (s *PaymentRequestService) createGuarded(ctx context.Context, request *entity.PaymentRequest) error {
	if s.locker != nil {
		key := fmt.Sprintf("payreq:%s:%d", request.PhoneNumber, request.InvoiceID)
		release, err := s.locker.WaitAcquire(ctx, key, s.cfg.LockTTL, s.cfg.LockWait)
		if err != nil {
			if errors.Is(err, lock.ErrLockHeld) {
				return ErrDuplicateRequest
			}
			return err
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logger.WithError(err).WithField("lock_key", key).Warn("Releasing payment request lock failed")
			}
		}()
	}

	existing, err := s.requests.FindActiveDuplicate(ctx, request.PhoneNumber, request.InvoiceID, request.CreatedAt.Add(-s.cfg.DuplicateWindow))
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrDuplicateRequest
	}

	if err := s.requests.Create(ctx, request); err != nil {
		if errors.Is(err, repository.ErrPaymentRequestAlreadyExists) {
			return ErrDuplicateRequest
		}
		return err
	}
	return nil
}

func (s *PaymentRequestService) push(ctx context.Context, integration *entity.Integration, request *entity.PaymentRequest, callbackURL string) error {
	started := time.Now()
	output, err := s.pusher.InitiatePush(ctx, &provider.PushInput{
		PhoneNumber:      request.PhoneNumber,
		Amount:           request.Amount,
		AccountReference: request.AccountReference,
		TransactionDesc:  request.TransactionDesc,
		CallbackURL:      callbackURL,
	})
	latency := time.Since(started)
	if s.latencyLimit > 0 && latency > s.latencyLimit {
		s.monitor.raiseAlertQuietly(ctx, integration.ID, entity.AlertHighLatency,
			fmt.Sprintf("push call took %s (threshold %s)", latency.Round(time.Millisecond), s.latencyLimit))
	}

	logger := s.logger.WithFields(logrus.Fields{
		"request_uid":    request.RequestUID,
		"integration_id": integration.ID,
	})
	now := s.now()

	if err == nil {
		s.monitor.RecordCheck(ctx, integration.ID, entity.CheckTypeAPI, entity.CheckStatusSuccess, latency, "")
		if err := s.requests.MarkProcessing(ctx, request.ID, output.CorrelationID, now); err != nil {
			return err
		}
		request.Status = entity.RequestStatusProcessing
		request.ProviderCorrelationID = &output.CorrelationID
		request.ResultDescription = firstNonBlank(output.CustomerMessage, output.ResponseDescription)
		request.UpdatedAt = now
		logger.WithField("correlation_id", output.CorrelationID).Info("Push request accepted")
		return nil
	}

	var rejected *provider.RejectedError
	switch {
	case errors.As(err, &rejected):
		s.monitor.RecordCheck(ctx, integration.ID, entity.CheckTypeAPI, entity.CheckStatusFailure, latency, err.Error())
		s.fail(ctx, request, firstNonBlank(rejected.Description, rejected.Code), now)
		logger.WithField("result_code", rejected.Code).Warn("Push request rejected")
		return fmt.Errorf("%w: %s", ErrProviderRejected, request.ResultDescription)
	case errors.Is(err, provider.ErrTokenUnavailable):
		s.monitor.RecordCheck(ctx, integration.ID, entity.CheckTypeAuth, entity.CheckStatusFailure, latency, err.Error())
		s.monitor.raiseAlertQuietly(ctx, integration.ID, entity.AlertAuthFailure, fmt.Sprintf("provider token unavailable: %v", err))
	default:
		s.monitor.RecordCheck(ctx, integration.ID, entity.CheckTypeAPI, checkStatusForError(err), latency, err.Error())
		s.monitor.raiseAlertQuietly(ctx, integration.ID, entity.AlertServiceDown, fmt.Sprintf("push call failed: %v", err))
	}

	s.fail(ctx, request, err.Error(), now)
	logger.WithError(err).Error("Push request failed")
	return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
}

func (s *PaymentRequestService) fail(ctx context.Context, request *entity.PaymentRequest, description string, now time.Time) {
	description = truncate(strings.TrimSpace(description), maxMessageLength)
	if err := s.requests.MarkFailed(ctx, request.ID, description, now); err != nil {
		s.logger.WithError(err).WithField("request_uid", request.RequestUID).Error("Marking payment request failed did not persist")
		return
	}
	request.Status = entity.RequestStatusFailed
	request.ResultDescription = description
	request.UpdatedAt = now
	request.CompletedAt = &now
}

// ConfirmFromEvent finalizes the request correlated with event. Terminal requests are left untouched.
// Only a successful result on an event that passed validation confirms; anything else fails the request.
func (s *PaymentRequestService) ConfirmFromEvent(ctx context.Context, event *entity.PaymentNotificationEvent) (bool, error) {
	if event == nil || event.CorrelationID == nil || strings.TrimSpace(*event.CorrelationID) == "" {
		return false, nil
	}

	resultCode := event.NormalizedPayload.ResultCode
	description := event.NormalizedPayload.ResultDescription
	status := entity.RequestStatusFailed
	switch {
	case resultCode != 0:
	case event.Status == entity.EventStatusValidated || event.Status == entity.EventStatusQueued:
		status = entity.RequestStatusConfirmed
	default:
		description = "payment notification rejected: " + strings.Join(event.ValidationErrors, "; ")
	}

	return s.requests.Finalize(ctx, strings.TrimSpace(*event.CorrelationID), status, int32(resultCode),
		truncate(description, maxMessageLength), event.ID, s.now())
}

func (s *PaymentRequestService) Get(ctx context.Context, requestUID string) (*entity.PaymentRequest, error) {
	requestUID = strings.TrimSpace(requestUID)
	if requestUID == "" {
		return nil, ErrInvalidRequest
	}
	request, err := s.requests.FindByUID(ctx, requestUID)
	if err != nil {
		return nil, err
	}
	if request == nil {
		return nil, ErrPaymentRequestNotFound
	}
	return request, nil
}

// RunExpireBatch fails requests still waiting for a provider confirmation after the processing timeout.
func (s *PaymentRequestService) RunExpireBatch(ctx context.Context, batchSize int32) (int64, error) {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	now := s.now()
	return s.requests.ExpireStale(ctx, now.Add(-s.cfg.ProcessingTimeout), requestTimeoutResultDesc, now, batchSize)
}

func checkStatusForError(err error) entity.CheckStatus {
	if errors.Is(err, context.DeadlineExceeded) {
		return entity.CheckStatusTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return entity.CheckStatusTimeout
	}
	return entity.CheckStatusError
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			return value
		}
	}
	return ""
}
