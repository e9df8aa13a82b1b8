package service

import (
	"context"
	"io"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-payment-gateway/app/entity"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/lock"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/provider"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/repository"
	"github.com/vibast-solutions/ms-go-payment-gateway/config"
)

const testSigningKey = "whsec_test_key"

func testLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type serviceIntegrationRepo struct {
	items map[string]*entity.Integration
}

func newServiceIntegrationRepo(items ...*entity.Integration) *serviceIntegrationRepo {
	repo := &serviceIntegrationRepo{items: map[string]*entity.Integration{}}
	for _, item := range items {
		repo.items[item.ProviderCode] = item
	}
	return repo
}

func (r *serviceIntegrationRepo) FindByCode(_ context.Context, providerCode string) (*entity.Integration, error) {
	item, ok := r.items[providerCode]
	if !ok {
		return nil, nil
	}
	copyItem := *item
	return &copyItem, nil
}

func (r *serviceIntegrationRepo) ListActive(_ context.Context) ([]*entity.Integration, error) {
	items := make([]*entity.Integration, 0, len(r.items))
	for _, item := range r.items {
		if item.IsActive {
			copyItem := *item
			items = append(items, &copyItem)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (r *serviceIntegrationRepo) UpdateHealthStatus(_ context.Context, id uint64, status entity.HealthStatus) error {
	for _, item := range r.items {
		if item.ID == id {
			item.HealthStatus = status
			return nil
		}
	}
	return repository.ErrIntegrationNotFound
}

type serviceEventRepo struct {
	events map[uint64]*entity.PaymentNotificationEvent
	nextID uint64
}

func newServiceEventRepo() *serviceEventRepo {
	return &serviceEventRepo{events: map[uint64]*entity.PaymentNotificationEvent{}, nextID: 1}
}

func (r *serviceEventRepo) Create(_ context.Context, event *entity.PaymentNotificationEvent) error {
	if event.DedupReference != nil {
		for _, item := range r.events {
			if item.IntegrationID == event.IntegrationID && item.DedupReference != nil && *item.DedupReference == *event.DedupReference {
				return repository.ErrDedupReferenceConflict
			}
		}
	}
	id := r.nextID
	r.nextID++
	copyItem := *event
	copyItem.ID = id
	r.events[id] = &copyItem
	event.ID = id
	return nil
}

func (r *serviceEventRepo) UpdateStatus(_ context.Context, id uint64, from, to entity.EventStatus, validationErrors []string, processedAt *time.Time) error {
	item, ok := r.events[id]
	if !ok || item.Status != from {
		return repository.ErrEventNotFound
	}
	item.Status = to
	item.ValidationErrors = validationErrors
	item.ProcessedAt = processedAt
	return nil
}

func (r *serviceEventRepo) byStatus(status entity.EventStatus) []*entity.PaymentNotificationEvent {
	items := make([]*entity.PaymentNotificationEvent, 0)
	for _, item := range r.events {
		if item.Status == status {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items
}

type serviceEntryRepo struct {
	entries map[uint64]*entity.ReconciliationEntry
	nextID  uint64
}

func newServiceEntryRepo() *serviceEntryRepo {
	return &serviceEntryRepo{entries: map[uint64]*entity.ReconciliationEntry{}, nextID: 1}
}

func (r *serviceEntryRepo) Create(_ context.Context, entry *entity.ReconciliationEntry) error {
	for _, item := range r.entries {
		if item.EventID == entry.EventID {
			return repository.ErrReconciliationEntryExists
		}
	}
	id := r.nextID
	r.nextID++
	copyItem := *entry
	copyItem.ID = id
	r.entries[id] = &copyItem
	entry.ID = id
	return nil
}

func (r *serviceEntryRepo) FindByEventID(_ context.Context, eventID uint64) (*entity.ReconciliationEntry, error) {
	for _, item := range r.entries {
		if item.EventID == eventID {
			copyItem := *item
			return &copyItem, nil
		}
	}
	return nil, nil
}

func (r *serviceEntryRepo) MarkPublished(_ context.Context, id uint64, publishedAt time.Time) error {
	item, ok := r.entries[id]
	if !ok || item.PublishedAt != nil {
		return repository.ErrReconciliationEntryNotFound
	}
	item.PublishedAt = &publishedAt
	return nil
}

func (r *serviceEntryRepo) ListUnpublished(_ context.Context, limit int32) ([]*entity.ReconciliationEntry, error) {
	items := make([]*entity.ReconciliationEntry, 0)
	for _, item := range r.entries {
		if item.PublishedAt == nil {
			copyItem := *item
			items = append(items, &copyItem)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	if limit > 0 && len(items) > int(limit) {
		items = items[:limit]
	}
	return items, nil
}

func (r *serviceEntryRepo) BacklogByIntegration(_ context.Context, cutoff time.Time) (map[uint64]int64, error) {
	backlog := map[uint64]int64{}
	for _, item := range r.entries {
		if item.PublishedAt == nil && item.CreatedAt.Before(cutoff) {
			backlog[item.IntegrationID]++
		}
	}
	return backlog, nil
}

func (r *serviceEntryRepo) list() []*entity.ReconciliationEntry {
	items, _ := r.ListUnpublished(context.Background(), 0)
	for _, item := range r.entries {
		if item.PublishedAt != nil {
			copyItem := *item
			items = append(items, &copyItem)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items
}

type serviceAccountRepo struct {
	accounts []*entity.TenantAccount
}

func (r *serviceAccountRepo) ListEnabledByIntegration(_ context.Context, integrationID uint64) ([]*entity.TenantAccount, error) {
	items := make([]*entity.TenantAccount, 0)
	for _, item := range r.accounts {
		if item.IntegrationID == integrationID && item.IsEnabled {
			items = append(items, item)
		}
	}
	return items, nil
}

type servicePaymentRequestRepo struct {
	requests map[uint64]*entity.PaymentRequest
	nextID   uint64
}

func newServicePaymentRequestRepo() *servicePaymentRequestRepo {
	return &servicePaymentRequestRepo{requests: map[uint64]*entity.PaymentRequest{}, nextID: 1}
}

func (r *servicePaymentRequestRepo) Create(_ context.Context, req *entity.PaymentRequest) error {
	for _, item := range r.requests {
		if item.RequestUID == req.RequestUID {
			return repository.ErrPaymentRequestAlreadyExists
		}
	}
	id := r.nextID
	r.nextID++
	copyItem := *req
	copyItem.ID = id
	r.requests[id] = &copyItem
	req.ID = id
	return nil
}

func (r *servicePaymentRequestRepo) FindActiveDuplicate(_ context.Context, phone string, invoiceID uint64, since time.Time) (*entity.PaymentRequest, error) {
	for _, item := range r.requests {
		if item.PhoneNumber == phone && item.InvoiceID == invoiceID && !item.Status.Terminal() && !item.CreatedAt.Before(since) {
			copyItem := *item
			return &copyItem, nil
		}
	}
	return nil, nil
}

func (r *servicePaymentRequestRepo) MarkProcessing(_ context.Context, id uint64, correlationID string, now time.Time) error {
	item, ok := r.requests[id]
	if !ok || item.Status != entity.RequestStatusPending {
		return repository.ErrPaymentRequestNotFound
	}
	item.Status = entity.RequestStatusProcessing
	item.ProviderCorrelationID = &correlationID
	item.UpdatedAt = now
	return nil
}

func (r *servicePaymentRequestRepo) MarkFailed(_ context.Context, id uint64, description string, now time.Time) error {
	item, ok := r.requests[id]
	if !ok || item.Status.Terminal() {
		return repository.ErrPaymentRequestNotFound
	}
	item.Status = entity.RequestStatusFailed
	item.ResultDescription = description
	item.UpdatedAt = now
	item.CompletedAt = &now
	return nil
}

func (r *servicePaymentRequestRepo) Finalize(_ context.Context, correlationID string, status entity.PaymentRequestStatus, resultCode int32, description string, eventID uint64, now time.Time) (bool, error) {
	for _, item := range r.requests {
		if item.ProviderCorrelationID == nil || *item.ProviderCorrelationID != correlationID || item.Status.Terminal() {
			continue
		}
		item.Status = status
		item.ResultCode = &resultCode
		item.ResultDescription = description
		item.ConfirmedEventID = &eventID
		item.UpdatedAt = now
		item.CompletedAt = &now
		return true, nil
	}
	return false, nil
}

func (r *servicePaymentRequestRepo) ExpireStale(_ context.Context, cutoff time.Time, description string, now time.Time, limit int32) (int64, error) {
	var affected int64
	for _, item := range r.requests {
		if affected >= int64(limit) {
			break
		}
		if item.Status.Terminal() || !item.CreatedAt.Before(cutoff) {
			continue
		}
		item.Status = entity.RequestStatusFailed
		item.ResultDescription = description
		item.UpdatedAt = now
		item.CompletedAt = &now
		affected++
	}
	return affected, nil
}

func (r *servicePaymentRequestRepo) FindByUID(_ context.Context, requestUID string) (*entity.PaymentRequest, error) {
	for _, item := range r.requests {
		if item.RequestUID == requestUID {
			copyItem := *item
			return &copyItem, nil
		}
	}
	return nil, nil
}

func (r *servicePaymentRequestRepo) FindByCorrelationID(_ context.Context, correlationID string) (*entity.PaymentRequest, error) {
	for _, item := range r.requests {
		if item.ProviderCorrelationID != nil && *item.ProviderCorrelationID == correlationID {
			copyItem := *item
			return &copyItem, nil
		}
	}
	return nil, nil
}

type serviceInvoiceRepo struct {
	invoices map[uint64]*entity.Invoice
}

func (r *serviceInvoiceRepo) FindByID(_ context.Context, id uint64) (*entity.Invoice, error) {
	item, ok := r.invoices[id]
	if !ok {
		return nil, nil
	}
	copyItem := *item
	return &copyItem, nil
}

type serviceHealthLogRepo struct {
	entries []*entity.HealthLogEntry
}

func (r *serviceHealthLogRepo) Create(_ context.Context, entry *entity.HealthLogEntry) error {
	entry.ID = uint64(len(r.entries) + 1)
	copyItem := *entry
	r.entries = append(r.entries, &copyItem)
	return nil
}

func (r *serviceHealthLogRepo) WindowStats(_ context.Context, integrationID uint64, since time.Time) (repository.HealthWindowStats, error) {
	var stats repository.HealthWindowStats
	var totalMS int64
	for _, entry := range r.entries {
		if entry.IntegrationID != integrationID || entry.CheckedAt.Before(since) {
			continue
		}
		stats.Total++
		totalMS += entry.ResponseTimeMS
		if entry.Status == entity.CheckStatusSuccess {
			stats.Successful++
		}
	}
	if stats.Total > 0 {
		stats.AvgResponseMS = float64(totalMS) / float64(stats.Total)
	}
	return stats, nil
}

func (r *serviceHealthLogRepo) count(checkType entity.CheckType, status entity.CheckStatus) int {
	n := 0
	for _, entry := range r.entries {
		if entry.CheckType == checkType && entry.Status == status {
			n++
		}
	}
	return n
}

type serviceAlertRepo struct {
	alerts map[uint64]*entity.Alert
	nextID uint64
}

func newServiceAlertRepo() *serviceAlertRepo {
	return &serviceAlertRepo{alerts: map[uint64]*entity.Alert{}, nextID: 1}
}

func (r *serviceAlertRepo) Create(_ context.Context, alert *entity.Alert) error {
	id := r.nextID
	r.nextID++
	copyItem := *alert
	copyItem.ID = id
	r.alerts[id] = &copyItem
	alert.ID = id
	return nil
}

func (r *serviceAlertRepo) FindByID(_ context.Context, id uint64) (*entity.Alert, error) {
	item, ok := r.alerts[id]
	if !ok {
		return nil, nil
	}
	copyItem := *item
	return &copyItem, nil
}

func (r *serviceAlertRepo) FindOpen(_ context.Context, integrationID uint64, alertType entity.AlertType) (*entity.Alert, error) {
	for _, item := range r.alerts {
		if item.IntegrationID == integrationID && item.AlertType == alertType && item.Open() {
			copyItem := *item
			return &copyItem, nil
		}
	}
	return nil, nil
}

func (r *serviceAlertRepo) Acknowledge(_ context.Context, id uint64, by string, at time.Time) error {
	item, ok := r.alerts[id]
	if !ok {
		return repository.ErrAlertNotFound
	}
	item.IsAcknowledged = true
	item.AcknowledgedBy = &by
	item.AcknowledgedAt = &at
	return nil
}

func (r *serviceAlertRepo) Resolve(_ context.Context, id uint64, at time.Time) error {
	item, ok := r.alerts[id]
	if !ok {
		return repository.ErrAlertNotFound
	}
	item.ResolvedAt = &at
	return nil
}

func (r *serviceAlertRepo) CountOpenBySeverity(_ context.Context, integrationID uint64) (map[entity.AlertSeverity]int64, error) {
	counts := map[entity.AlertSeverity]int64{}
	for _, item := range r.alerts {
		if item.IntegrationID == integrationID && item.Open() {
			counts[item.Severity]++
		}
	}
	return counts, nil
}

func (r *serviceAlertRepo) List(_ context.Context, filter repository.AlertFilter) ([]*entity.Alert, error) {
	items := make([]*entity.Alert, 0)
	for _, item := range r.alerts {
		if filter.IntegrationID > 0 && item.IntegrationID != filter.IntegrationID {
			continue
		}
		if filter.OpenOnly && !item.Open() {
			continue
		}
		copyItem := *item
		items = append(items, &copyItem)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID > items[j].ID })
	return items, nil
}

func (r *serviceAlertRepo) ofType(alertType entity.AlertType) []*entity.Alert {
	items := make([]*entity.Alert, 0)
	for _, item := range r.alerts {
		if item.AlertType == alertType {
			items = append(items, item)
		}
	}
	return items
}

type servicePublisher struct {
	published []uint64
	err       error
}

func (p *servicePublisher) Publish(_ context.Context, entry *entity.ReconciliationEntry) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, entry.ID)
	return nil
}

type servicePusher struct {
	calls  []*provider.PushInput
	output *provider.PushOutput
	err    error
}

func (p *servicePusher) InitiatePush(_ context.Context, input *provider.PushInput) (*provider.PushOutput, error) {
	p.calls = append(p.calls, input)
	if p.err != nil {
		return nil, p.err
	}
	return p.output, nil
}

type serviceLocker struct {
	held     map[string]bool
	acquired []string
}

func (l *serviceLocker) WaitAcquire(_ context.Context, key string, _, _ time.Duration) (lock.ReleaseFunc, error) {
	if l.held[key] {
		return nil, lock.ErrLockHeld
	}
	if l.held == nil {
		l.held = map[string]bool{}
	}
	l.held[key] = true
	l.acquired = append(l.acquired, key)
	return func(context.Context) error {
		delete(l.held, key)
		return nil
	}, nil
}

func testMonitorConfig() config.MonitorConfig {
	return config.MonitorConfig{
		Window:                24 * time.Hour,
		LatencyThreshold:      5 * time.Second,
		HealthyUptimePercent:  99,
		DegradedUptimePercent: 90,
		BacklogThreshold:      2,
		BacklogAge:            10 * time.Minute,
	}
}

func testIntegration(id uint64, code string, family entity.ProviderFamily, allowlist ...string) *entity.Integration {
	return &entity.Integration{
		ID:           id,
		ProviderCode: code,
		DisplayName:  code,
		Family:       family,
		IsActive:     true,
		WebhookConfig: entity.WebhookConfig{
			Version:       entity.WebhookConfigVersion1,
			IPAllowlist:   allowlist,
			SigningKeyRef: "primary",
		},
		HealthStatus: entity.HealthUnknown,
	}
}

func mustDecimal(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}
