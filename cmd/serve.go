package cmd

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	authclient "github.com/vibast-solutions/lib-go-auth/client"
	authmiddleware "github.com/vibast-solutions/lib-go-auth/middleware"
	authlibservice "github.com/vibast-solutions/lib-go-auth/service"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/vibast-solutions/ms-go-payment-gateway/app/controller"
	gatewaygrpc "github.com/vibast-solutions/ms-go-payment-gateway/app/grpc"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/types"
	"github.com/vibast-solutions/ms-go-payment-gateway/config"
)

const webhookBodyLimit = "1M"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and gRPC servers",
	Long:  "Start the webhook and internal HTTP API (Echo) together with the gRPC ops and health services.",
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

type httpControllers struct {
	webhooks *controller.WebhookController
	requests *controller.PaymentRequestController
	monitor  *controller.MonitorController
}

func runServe(_ *cobra.Command, _ []string) {
	app, cleanup := mustCreateApp()
	defer cleanup()
	cfg := app.cfg

	controllers := &httpControllers{
		webhooks: controller.NewWebhookController(app.gateway),
		requests: controller.NewPaymentRequestController(app.requests),
		monitor:  controller.NewMonitorController(app.monitor, app.integrations),
	}
	opsServer := gatewaygrpc.NewServer(app.requests, app.monitor, app.integrations)
	healthServer := health.NewServer()

	authGRPCClient, err := authclient.NewGRPCClientFromAddr(context.Background(), cfg.InternalEndpoints.AuthGRPCAddr)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize auth gRPC client")
	}
	defer authGRPCClient.Close()

	internalAuthService := authlibservice.NewInternalAuthService(authGRPCClient)
	echoInternalAuthMiddleware := authmiddleware.NewEchoInternalAuthMiddleware(internalAuthService)
	grpcInternalAuthMiddleware := authmiddleware.NewGRPCInternalAuthMiddleware(internalAuthService)

	e := setupHTTPServer(cfg, controllers, echoInternalAuthMiddleware)
	grpcSrv, lis := setupGRPCServer(cfg, opsServer, healthServer, grpcInternalAuthMiddleware)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runHealthLoop(ctx, app, gatewaygrpc.NewHealthReporter(healthServer), cfg.Jobs.EvaluateMonitorInterval)

	go func() {
		httpAddr := net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port)
		logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
		if err := e.Start(httpAddr); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("HTTP server error")
		}
	}()

	go func() {
		logrus.WithField("addr", lis.Addr().String()).Info("Starting gRPC server")
		if err := grpcSrv.Serve(lis); err != nil {
			logrus.WithError(err).Fatal("gRPC server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down...")
	cancel()
	healthServer.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("HTTP shutdown error")
	}
	grpcSrv.GracefulStop()

	logrus.Info("Server stopped")
}

func setupHTTPServer(
	cfg *config.Config,
	controllers *httpControllers,
	internalAuthMiddleware *authmiddleware.EchoInternalAuthMiddleware,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.IPExtractor = controller.ClientIPExtractor(cfg.Gateway.TrustedProxies)

	e.Use(echomiddleware.RequestID())
	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
				"request_id": v.RequestID,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())

	e.GET("/health", controllers.webhooks.Health)

	webhooks := e.Group("/webhooks",
		echomiddleware.BodyLimit(webhookBodyLimit),
		controller.WebhookRateLimit(cfg.Gateway.RateLimitPerSecond, cfg.Gateway.RateLimitBurst, controllers.webhooks.RateLimited),
	)
	webhooks.POST("/:provider", controllers.webhooks.Receive)
	webhooks.POST("/:provider/:token", controllers.webhooks.Receive)

	internalOnly := []echo.MiddlewareFunc{
		requireRequestID(),
		internalAuthMiddleware.RequireInternalAccess(cfg.App.ServiceName),
	}

	requests := e.Group("/payment-requests", internalOnly...)
	requests.POST("", controllers.requests.Initiate)
	requests.GET("/:requestId", controllers.requests.Get)

	integrations := e.Group("/integrations", internalOnly...)
	integrations.GET("/:id/health", controllers.monitor.IntegrationHealth)
	integrations.GET("/:id/alerts", controllers.monitor.ListAlerts)

	alerts := e.Group("/alerts", internalOnly...)
	alerts.POST("/:id/acknowledge", controllers.monitor.AcknowledgeAlert)
	alerts.POST("/:id/resolve", controllers.monitor.ResolveAlert)

	return e
}

func requireRequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			requestID := strings.TrimSpace(ctx.Request().Header.Get(echo.HeaderXRequestID))
			if requestID == "" {
				return ctx.JSON(http.StatusBadRequest, &types.ErrorResponse{Error: "x-request-id header is required"})
			}
			ctx.Response().Header().Set(echo.HeaderXRequestID, requestID)
			return next(ctx)
		}
	}
}

func setupGRPCServer(
	cfg *config.Config,
	opsServer *gatewaygrpc.Server,
	healthServer *health.Server,
	internalAuthMiddleware *authmiddleware.GRPCInternalAuthMiddleware,
) (*grpc.Server, net.Listener) {
	grpcAddr := net.JoinHostPort(cfg.GRPC.Host, cfg.GRPC.Port)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to listen on gRPC port")
	}

	grpcSrv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			gatewaygrpc.RecoveryInterceptor(),
			gatewaygrpc.ExceptHealth(gatewaygrpc.RequestIDInterceptor()),
			gatewaygrpc.LoggingInterceptor(),
			gatewaygrpc.ExceptHealth(internalAuthMiddleware.UnaryRequireInternalAccess(cfg.App.ServiceName)),
		),
	)
	gatewaygrpc.RegisterOpsServer(grpcSrv, opsServer)
	healthpb.RegisterHealthServer(grpcSrv, healthServer)
	healthServer.SetServingStatus(gatewaygrpc.OpsServiceName, healthpb.HealthCheckResponse_SERVING)

	return grpcSrv, lis
}

// runHealthLoop keeps the gRPC health service in step with the integration health window.
func runHealthLoop(ctx context.Context, app *gatewayApp, reporter *gatewaygrpc.HealthReporter, interval time.Duration) {
	if interval <= 0 {
		return
	}
	evaluator := app.newHealthEvaluator(reporter)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		runJob("monitor_evaluate", func() error { return evaluator.RunEvaluateBatch(ctx) })
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
