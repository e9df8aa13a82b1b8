package grpc

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vibast-solutions/ms-go-payment-gateway/app/entity"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/mapper"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/service"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/types"
)

type paymentRequester interface {
	Initiate(ctx context.Context, req service.InitiateRequest) (*entity.PaymentRequest, error)
	Get(ctx context.Context, requestUID string) (*entity.PaymentRequest, error)
}

type healthMonitor interface {
	Summary(ctx context.Context, integrationID uint64, window time.Duration) (*service.HealthSummary, error)
	AcknowledgeAlert(ctx context.Context, id uint64, by string) (*entity.Alert, error)
	ResolveAlert(ctx context.Context, id uint64) (*entity.Alert, error)
}

type integrationFinder interface {
	FindByID(ctx context.Context, id uint64) (*entity.Integration, error)
}

// Server implements gateway.v1.GatewayOpsService for internal callers.
type Server struct {
	requests     paymentRequester
	monitor      healthMonitor
	integrations integrationFinder
}

func NewServer(requests paymentRequester, monitor healthMonitor, integrations integrationFinder) *Server {
	return &Server{requests: requests, monitor: monitor, integrations: integrations}
}

func (s *Server) InitiatePayment(ctx context.Context, msg *structpb.Struct) (*structpb.Struct, error) {
	l := loggerWithContext(ctx)
	req, err := types.NewInitiatePaymentRequestFromStruct(msg)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid request message")
	}
	if err := req.Validate(); err != nil {
		l.WithError(err).Debug("Initiate payment validation failed")
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	item, err := s.requests.Initiate(ctx, req)
	if err != nil {
		return nil, requestStatusError(ctx, err, "Initiate payment failed")
	}

	return toStruct(mapper.PaymentRequestToStruct(item))
}

func (s *Server) GetPaymentRequest(ctx context.Context, msg *structpb.Struct) (*structpb.Struct, error) {
	req, err := types.NewGetPaymentRequestRequestFromStruct(msg)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid request message")
	}
	if err := req.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	item, err := s.requests.Get(ctx, req.RequestID)
	if err != nil {
		return nil, requestStatusError(ctx, err, "Get payment request failed")
	}

	return toStruct(mapper.PaymentRequestToStruct(item))
}

func (s *Server) GetIntegrationHealth(ctx context.Context, msg *structpb.Struct) (*structpb.Struct, error) {
	req, err := types.NewIntegrationHealthRequestFromStruct(msg)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid request message")
	}
	if err := req.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	integration, err := s.integrations.FindByID(ctx, req.IntegrationID)
	if err != nil {
		loggerWithContext(ctx).WithError(err).Error("Integration lookup failed")
		return nil, status.Error(codes.Internal, "internal server error")
	}
	if integration == nil {
		return nil, status.Error(codes.NotFound, "integration not found")
	}

	summary, err := s.monitor.Summary(ctx, req.IntegrationID, time.Duration(req.WindowMinutes)*time.Minute)
	if err != nil {
		loggerWithContext(ctx).WithError(err).Error("Integration health summary failed")
		return nil, status.Error(codes.Internal, "internal server error")
	}

	return toStruct(mapper.HealthSummaryToStruct(summary))
}

func (s *Server) AcknowledgeAlert(ctx context.Context, msg *structpb.Struct) (*structpb.Struct, error) {
	req, err := types.NewAlertActionRequestFromStruct(msg)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid request message")
	}
	if err := req.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	item, err := s.monitor.AcknowledgeAlert(ctx, req.AlertID, req.AcknowledgedBy)
	if err != nil {
		return nil, alertStatusError(ctx, err, "Acknowledge alert failed")
	}
	return toStruct(mapper.AlertToStruct(item))
}

func (s *Server) ResolveAlert(ctx context.Context, msg *structpb.Struct) (*structpb.Struct, error) {
	req, err := types.NewAlertActionRequestFromStruct(msg)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid request message")
	}
	if err := req.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	item, err := s.monitor.ResolveAlert(ctx, req.AlertID)
	if err != nil {
		return nil, alertStatusError(ctx, err, "Resolve alert failed")
	}
	return toStruct(mapper.AlertToStruct(item))
}

func requestStatusError(ctx context.Context, err error, message string) error {
	switch {
	case errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, service.ErrInvalidPhone),
		errors.Is(err, service.ErrInvoiceNotPayable),
		errors.Is(err, service.ErrInvoiceSettled),
		errors.Is(err, service.ErrAmountExceedsBalance):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, service.ErrInvoiceNotFound), errors.Is(err, service.ErrPaymentRequestNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, service.ErrDuplicateRequest):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, service.ErrProviderRejected):
		loggerWithContext(ctx).WithError(err).Warn(message)
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, service.ErrProviderUnavailable), errors.Is(err, service.ErrPushUnavailable):
		loggerWithContext(ctx).WithError(err).Warn(message)
		return status.Error(codes.Unavailable, err.Error())
	default:
		loggerWithContext(ctx).WithError(err).Error(message)
		return status.Error(codes.Internal, "internal server error")
	}
}

func alertStatusError(ctx context.Context, err error, message string) error {
	if errors.Is(err, service.ErrAlertNotFound) {
		return status.Error(codes.NotFound, "alert not found")
	}
	loggerWithContext(ctx).WithError(err).Error(message)
	return status.Error(codes.Internal, "internal server error")
}

func toStruct(msg *structpb.Struct, err error) (*structpb.Struct, error) {
	if err != nil {
		return nil, status.Error(codes.Internal, "internal server error")
	}
	return msg, nil
}

// OpsService is the handler contract registered under OpsServiceDesc.
type OpsService interface {
	InitiatePayment(ctx context.Context, msg *structpb.Struct) (*structpb.Struct, error)
	GetPaymentRequest(ctx context.Context, msg *structpb.Struct) (*structpb.Struct, error)
	GetIntegrationHealth(ctx context.Context, msg *structpb.Struct) (*structpb.Struct, error)
	AcknowledgeAlert(ctx context.Context, msg *structpb.Struct) (*structpb.Struct, error)
	ResolveAlert(ctx context.Context, msg *structpb.Struct) (*structpb.Struct, error)
}

const OpsServiceName = "gateway.v1.GatewayOpsService"

type opsMethod func(OpsService, context.Context, *structpb.Struct) (*structpb.Struct, error)

var OpsServiceDesc = grpc.ServiceDesc{
	ServiceName: OpsServiceName,
	HandlerType: (*OpsService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "InitiatePayment", Handler: unaryHandler("InitiatePayment", OpsService.InitiatePayment)},
		{MethodName: "GetPaymentRequest", Handler: unaryHandler("GetPaymentRequest", OpsService.GetPaymentRequest)},
		{MethodName: "GetIntegrationHealth", Handler: unaryHandler("GetIntegrationHealth", OpsService.GetIntegrationHealth)},
		{MethodName: "AcknowledgeAlert", Handler: unaryHandler("AcknowledgeAlert", OpsService.AcknowledgeAlert)},
		{MethodName: "ResolveAlert", Handler: unaryHandler("ResolveAlert", OpsService.ResolveAlert)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "gateway/v1/ops.proto",
}

func RegisterOpsServer(registrar grpc.ServiceRegistrar, srv OpsService) {
	registrar.RegisterService(&OpsServiceDesc, srv)
}

func unaryHandler(name string, method opsMethod) grpc.MethodHandler {
	fullMethod := "/" + OpsServiceName + "/" + name
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return method(srv.(OpsService), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return method(srv.(OpsService), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// OpsClient calls gateway.v1.GatewayOpsService over an existing connection.
type OpsClient struct {
	cc grpc.ClientConnInterface
}

func NewOpsClient(cc grpc.ClientConnInterface) *OpsClient {
	return &OpsClient{cc: cc}
}

func (c *OpsClient) InitiatePayment(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "InitiatePayment", in, opts...)
}

func (c *OpsClient) GetPaymentRequest(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetPaymentRequest", in, opts...)
}

func (c *OpsClient) GetIntegrationHealth(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetIntegrationHealth", in, opts...)
}

func (c *OpsClient) AcknowledgeAlert(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "AcknowledgeAlert", in, opts...)
}

func (c *OpsClient) ResolveAlert(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "ResolveAlert", in, opts...)
}

func (c *OpsClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+OpsServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
