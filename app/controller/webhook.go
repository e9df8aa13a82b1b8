package controller

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-payment-gateway/app/factory"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/mapper"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/service"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/types"
)

const acceptedDescription = "Accepted"

type webhookIngester interface {
	Ingest(ctx context.Context, req service.WebhookRequest) (*service.IngestResult, error)
	RecordRateLimited(ctx context.Context, providerCode string)
}

type WebhookController struct {
	gateway webhookIngester
	logger  logrus.FieldLogger
}

func NewWebhookController(gateway webhookIngester) *WebhookController {
	return &WebhookController{
		gateway: gateway,
		logger:  factory.NewModuleLogger("webhook-controller"),
	}
}

func (c *WebhookController) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &types.HealthResponse{Status: "ok"})
}

// Receive handles POST /webhooks/:provider and /webhooks/:provider/:token.
// Stored soft failures (failed or duplicate events) still answer 200 so providers stop retrying.
func (c *WebhookController) Receive(ctx echo.Context) error {
	req, err := types.NewWebhookRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	result, err := c.gateway.Ingest(ctx.Request().Context(), req)
	if err != nil {
		logger := factory.LoggerWithContext(c.logger, ctx).WithField("provider_code", req.ProviderCode)
		switch {
		case errors.Is(err, service.ErrIntegrationNotFound):
			return writeError(ctx, http.StatusNotFound, "integration not found")
		case errors.Is(err, service.ErrSourceIPRejected), errors.Is(err, service.ErrSignatureRejected):
			logger.WithError(err).WithField("source_ip", req.SourceIP).Warn("Callback rejected by security gate")
			return writeError(ctx, http.StatusForbidden, "forbidden")
		case errors.Is(err, service.ErrInvalidPayload):
			return writeError(ctx, http.StatusBadRequest, err.Error())
		default:
			logger.WithError(err).Error("Callback processing failed")
			return writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	if result.Integration.Family.RequiresResultAck() {
		return ctx.JSON(http.StatusOK, &types.ResultAckResponse{ResultCode: 0, ResultDescription: acceptedDescription})
	}
	return ctx.JSON(http.StatusOK, mapper.WebhookResultToResponse(result.Event))
}

// RateLimited is invoked by the rate limit middleware before it answers 429.
func (c *WebhookController) RateLimited(ctx echo.Context) {
	c.gateway.RecordRateLimited(ctx.Request().Context(), ctx.Param("provider"))
}

func writeError(ctx echo.Context, statusCode int, message string) error {
	return ctx.JSON(statusCode, &types.ErrorResponse{Error: message})
}
