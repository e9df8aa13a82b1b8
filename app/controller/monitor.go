package controller

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-payment-gateway/app/entity"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/factory"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/mapper"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/service"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/types"
)

type healthMonitor interface {
	Summary(ctx context.Context, integrationID uint64, window time.Duration) (*service.HealthSummary, error)
	ListAlerts(ctx context.Context, integrationID uint64, openOnly bool, limit int32) ([]*entity.Alert, error)
	AcknowledgeAlert(ctx context.Context, id uint64, by string) (*entity.Alert, error)
	ResolveAlert(ctx context.Context, id uint64) (*entity.Alert, error)
}

type integrationFinder interface {
	FindByID(ctx context.Context, id uint64) (*entity.Integration, error)
}

type MonitorController struct {
	monitor      healthMonitor
	integrations integrationFinder
	logger       logrus.FieldLogger
}

func NewMonitorController(monitor healthMonitor, integrations integrationFinder) *MonitorController {
	return &MonitorController{
		monitor:      monitor,
		integrations: integrations,
		logger:       factory.NewModuleLogger("monitor-controller"),
	}
}

func (c *MonitorController) IntegrationHealth(ctx echo.Context) error {
	req, err := types.NewIntegrationHealthRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}
	if ok, err := c.integrationExists(ctx, req.IntegrationID); err != nil || !ok {
		return err
	}

	summary, err := c.monitor.Summary(ctx.Request().Context(), req.IntegrationID, time.Duration(req.WindowMinutes)*time.Minute)
	if err != nil {
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Integration health summary failed")
		return writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, mapper.HealthSummaryToResponse(summary))
}

func (c *MonitorController) ListAlerts(ctx echo.Context) error {
	req, err := types.NewListAlertsRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}
	if ok, err := c.integrationExists(ctx, req.IntegrationID); err != nil || !ok {
		return err
	}

	items, err := c.monitor.ListAlerts(ctx.Request().Context(), req.IntegrationID, req.OpenOnly, req.Limit)
	if err != nil {
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("List alerts failed")
		return writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, &types.ListAlertsResponse{Alerts: mapper.AlertsToResponse(items)})
}

func (c *MonitorController) AcknowledgeAlert(ctx echo.Context) error {
	req, err := types.NewAlertActionRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	by := req.AcknowledgedBy
	if by == "" {
		by = ctx.Request().Header.Get("X-Caller-Service")
	}
	item, err := c.monitor.AcknowledgeAlert(ctx.Request().Context(), req.AlertID, by)
	return c.writeAlert(ctx, item, err, "Acknowledge alert failed")
}

func (c *MonitorController) ResolveAlert(ctx echo.Context) error {
	req, err := types.NewAlertActionRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.monitor.ResolveAlert(ctx.Request().Context(), req.AlertID)
	return c.writeAlert(ctx, item, err, "Resolve alert failed")
}

func (c *MonitorController) writeAlert(ctx echo.Context, item *entity.Alert, err error, message string) error {
	if err != nil {
		if errors.Is(err, service.ErrAlertNotFound) {
			return writeError(ctx, http.StatusNotFound, "alert not found")
		}
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error(message)
		return writeError(ctx, http.StatusInternalServerError, "internal server error")
	}
	return ctx.JSON(http.StatusOK, &types.AlertEnvelopeResponse{Alert: mapper.AlertToResponse(item)})
}

// integrationExists writes the 404 or 500 response itself and reports false when the caller should stop.
func (c *MonitorController) integrationExists(ctx echo.Context, id uint64) (bool, error) {
	integration, err := c.integrations.FindByID(ctx.Request().Context(), id)
	if err != nil {
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Integration lookup failed")
		return false, writeError(ctx, http.StatusInternalServerError, "internal server error")
	}
	if integration == nil {
		return false, writeError(ctx, http.StatusNotFound, "integration not found")
	}
	return true, nil
}
