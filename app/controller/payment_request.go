package controller

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-payment-gateway/app/entity"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/factory"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/mapper"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/service"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/types"
)

type paymentRequester interface {
	Initiate(ctx context.Context, req service.InitiateRequest) (*entity.PaymentRequest, error)
	Get(ctx context.Context, requestUID string) (*entity.PaymentRequest, error)
}

type PaymentRequestController struct {
	requests paymentRequester
	logger   logrus.FieldLogger
}

func NewPaymentRequestController(requests paymentRequester) *PaymentRequestController {
	return &PaymentRequestController{
		requests: requests,
		logger:   factory.NewModuleLogger("payment-request-controller"),
	}
}

func (c *PaymentRequestController) Initiate(ctx echo.Context) error {
	req, err := types.NewInitiatePaymentRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.requests.Initiate(ctx.Request().Context(), req)
	if err != nil {
		return c.writeServiceError(ctx, err, "Initiate payment request failed")
	}

	return ctx.JSON(http.StatusCreated, mapper.PaymentRequestToCreatedResponse(item))
}

func (c *PaymentRequestController) Get(ctx echo.Context) error {
	req, err := types.NewGetPaymentRequestRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.requests.Get(ctx.Request().Context(), req.RequestID)
	if err != nil {
		return c.writeServiceError(ctx, err, "Get payment request failed")
	}

	return ctx.JSON(http.StatusOK, &types.PaymentRequestEnvelopeResponse{PaymentRequest: mapper.PaymentRequestToResponse(item)})
}

func (c *PaymentRequestController) writeServiceError(ctx echo.Context, err error, message string) error {
	switch {
	case errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, service.ErrInvalidPhone),
		errors.Is(err, service.ErrInvoiceNotPayable),
		errors.Is(err, service.ErrInvoiceSettled),
		errors.Is(err, service.ErrAmountExceedsBalance):
		return writeError(ctx, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrInvoiceNotFound), errors.Is(err, service.ErrPaymentRequestNotFound):
		return writeError(ctx, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrDuplicateRequest):
		return writeError(ctx, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrProviderRejected),
		errors.Is(err, service.ErrProviderUnavailable),
		errors.Is(err, service.ErrPushUnavailable):
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Warn(message)
		return writeError(ctx, http.StatusInternalServerError, err.Error())
	default:
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error(message)
		return writeError(ctx, http.StatusInternalServerError, "internal server error")
	}
}
