package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-payment-gateway/app/entity"
)

func newTestMonitor() (*MonitorService, *serviceHealthLogRepo, *serviceAlertRepo) {
	healthLogs := &serviceHealthLogRepo{}
	alerts := newServiceAlertRepo()
	return NewMonitorService(healthLogs, alerts, testMonitorConfig(), testLogger()), healthLogs, alerts
}

func TestSummaryWithoutSamplesIsUnknown(t *testing.T) {
	monitor, _, _ := newTestMonitor()

	summary, err := monitor.Summary(context.Background(), 1, 0)
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if summary.UptimePercent != 100 || summary.HealthStatus != entity.HealthUnknown || summary.TotalChecks != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.Window != 24*time.Hour {
		t.Fatalf("expected default window, got %s", summary.Window)
	}
}

func TestSummaryClassifiesUptime(t *testing.T) {
	cases := []struct {
		successes int
		failures  int
		want      entity.HealthStatus
	}{
		{100, 0, entity.HealthHealthy},
		{99, 1, entity.HealthHealthy},
		{95, 5, entity.HealthDegraded},
		{9, 1, entity.HealthDegraded},
		{1, 1, entity.HealthDown},
	}

	for _, tc := range cases {
		monitor, _, _ := newTestMonitor()
		for i := 0; i < tc.successes; i++ {
			monitor.RecordCheck(context.Background(), 1, entity.CheckTypeCallback, entity.CheckStatusSuccess, 20*time.Millisecond, "")
		}
		for i := 0; i < tc.failures; i++ {
			monitor.RecordCheck(context.Background(), 1, entity.CheckTypeAPI, entity.CheckStatusTimeout, 40*time.Millisecond, "timeout")
		}

		summary, err := monitor.Summary(context.Background(), 1, time.Hour)
		if err != nil {
			t.Fatalf("Summary() error = %v", err)
		}
		if summary.HealthStatus != tc.want {
			t.Fatalf("%d/%d: expected %s, got %s (uptime %.2f)", tc.successes, tc.failures, tc.want, summary.HealthStatus, summary.UptimePercent)
		}
	}
}

func TestSummaryCountsOpenAlertsAndLatency(t *testing.T) {
	monitor, _, _ := newTestMonitor()
	monitor.RecordCheck(context.Background(), 1, entity.CheckTypeAPI, entity.CheckStatusSuccess, 100*time.Millisecond, "")
	monitor.RecordCheck(context.Background(), 1, entity.CheckTypeAPI, entity.CheckStatusFailure, 300*time.Millisecond, "boom")
	monitor.RecordCheck(context.Background(), 2, entity.CheckTypeAPI, entity.CheckStatusFailure, time.Second, "other integration")

	if _, _, err := monitor.RaiseAlert(context.Background(), 1, entity.AlertServiceDown, "down"); err != nil {
		t.Fatalf("RaiseAlert() error = %v", err)
	}
	if _, _, err := monitor.RaiseAlert(context.Background(), 1, entity.AlertRateLimit, "limited"); err != nil {
		t.Fatalf("RaiseAlert() error = %v", err)
	}

	summary, err := monitor.Summary(context.Background(), 1, time.Hour)
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if summary.TotalChecks != 2 || summary.SuccessfulChecks != 1 || summary.UptimePercent != 50 {
		t.Fatalf("unexpected counts: %+v", summary)
	}
	if summary.AvgResponseMS != 200 {
		t.Fatalf("expected avg 200ms, got %.2f", summary.AvgResponseMS)
	}
	if summary.OpenAlerts[entity.SeverityCritical] != 1 || summary.OpenAlerts[entity.SeverityLow] != 1 {
		t.Fatalf("unexpected open alerts: %v", summary.OpenAlerts)
	}
}

func TestRaiseAlertSuppressesOpenDuplicate(t *testing.T) {
	monitor, _, alerts := newTestMonitor()

	first, created, err := monitor.RaiseAlert(context.Background(), 1, entity.AlertHighLatency, "slow")
	if err != nil || !created {
		t.Fatalf("first RaiseAlert() created=%v err=%v", created, err)
	}
	if first.Severity != entity.SeverityMedium {
		t.Fatalf("unexpected severity %s", first.Severity)
	}

	again, created, err := monitor.RaiseAlert(context.Background(), 1, entity.AlertHighLatency, "still slow")
	if err != nil || created || again.ID != first.ID {
		t.Fatalf("expected suppression, got created=%v id=%d err=%v", created, again.ID, err)
	}

	if _, created, _ := monitor.RaiseAlert(context.Background(), 2, entity.AlertHighLatency, "slow elsewhere"); !created {
		t.Fatalf("alerts for other integrations must not be suppressed")
	}

	if _, err := monitor.ResolveAlert(context.Background(), first.ID); err != nil {
		t.Fatalf("ResolveAlert() error = %v", err)
	}
	if _, created, _ := monitor.RaiseAlert(context.Background(), 1, entity.AlertHighLatency, "slow again"); !created {
		t.Fatalf("expected a new alert after resolution")
	}
	if got := len(alerts.ofType(entity.AlertHighLatency)); got != 3 {
		t.Fatalf("expected three alerts in total, got %d", got)
	}
}

func TestAlertLifecycleIsIdempotent(t *testing.T) {
	monitor, _, _ := newTestMonitor()
	first := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	monitor.now = func() time.Time { return first }

	alert, _, err := monitor.RaiseAlert(context.Background(), 1, entity.AlertAuthFailure, "bad signature")
	if err != nil {
		t.Fatalf("RaiseAlert() error = %v", err)
	}

	acked, err := monitor.AcknowledgeAlert(context.Background(), alert.ID, "ops@school.test")
	if err != nil {
		t.Fatalf("AcknowledgeAlert() error = %v", err)
	}
	if !acked.IsAcknowledged || acked.AcknowledgedBy == nil || *acked.AcknowledgedBy != "ops@school.test" {
		t.Fatalf("unexpected acknowledgement: %+v", acked)
	}
	if !acked.Open() {
		t.Fatalf("acknowledging must not resolve")
	}

	monitor.now = func() time.Time { return first.Add(time.Hour) }
	again, err := monitor.AcknowledgeAlert(context.Background(), alert.ID, "someone-else")
	if err != nil {
		t.Fatalf("second AcknowledgeAlert() error = %v", err)
	}
	if *again.AcknowledgedBy != "ops@school.test" || !again.AcknowledgedAt.Equal(first) {
		t.Fatalf("second acknowledgement must keep the first one: %+v", again)
	}

	resolved, err := monitor.ResolveAlert(context.Background(), alert.ID)
	if err != nil {
		t.Fatalf("ResolveAlert() error = %v", err)
	}
	resolvedAt := *resolved.ResolvedAt

	monitor.now = func() time.Time { return first.Add(2 * time.Hour) }
	resolvedAgain, err := monitor.ResolveAlert(context.Background(), alert.ID)
	if err != nil {
		t.Fatalf("second ResolveAlert() error = %v", err)
	}
	if !resolvedAgain.ResolvedAt.Equal(resolvedAt) {
		t.Fatalf("second resolve must keep resolved_at")
	}

	if _, err := monitor.AcknowledgeAlert(context.Background(), 999, "x"); !errors.Is(err, ErrAlertNotFound) {
		t.Fatalf("expected ErrAlertNotFound, got %v", err)
	}
}

func TestListAlertsFiltersOpen(t *testing.T) {
	monitor, _, _ := newTestMonitor()
	open, _, _ := monitor.RaiseAlert(context.Background(), 1, entity.AlertRateLimit, "limited")
	closed, _, _ := monitor.RaiseAlert(context.Background(), 1, entity.AlertServiceDown, "down")
	if _, err := monitor.ResolveAlert(context.Background(), closed.ID); err != nil {
		t.Fatalf("ResolveAlert() error = %v", err)
	}

	items, err := monitor.ListAlerts(context.Background(), 1, true, 0)
	if err != nil {
		t.Fatalf("ListAlerts() error = %v", err)
	}
	if len(items) != 1 || items[0].ID != open.ID {
		t.Fatalf("expected only the open alert, got %d items", len(items))
	}

	all, err := monitor.ListAlerts(context.Background(), 1, false, 0)
	if err != nil {
		t.Fatalf("ListAlerts() error = %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected two alerts, got %d", len(all))
	}
}
