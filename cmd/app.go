package cmd

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-payment-gateway/app/cache"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/entity"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/factory"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/lock"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/provider"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/queue"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/repository"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/service"
	"github.com/vibast-solutions/ms-go-payment-gateway/config"
)

const lockKeyPrefix = "gateway:lock:"

type entryPublisher interface {
	Publish(ctx context.Context, entry *entity.ReconciliationEntry) error
}

type requestLocker interface {
	WaitAcquire(ctx context.Context, key string, ttl, waitTimeout time.Duration) (lock.ReleaseFunc, error)
}

// gatewayApp holds the wired services shared by serve and the job commands.
type gatewayApp struct {
	cfg *config.Config

	integrations     *repository.IntegrationRepository
	integrationCache *cache.IntegrationCache
	monitor          *service.MonitorService
	gateway          *service.GatewayService
	requests         *service.PaymentRequestService
}

func mustCreateApp() (*gatewayApp, func()) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}
	shutdownTracing := setupTracing(cfg)

	db := mustOpenDB(cfg)

	var redisClient redis.UniversalClient
	var asynqClient *asynq.Client
	var publisher entryPublisher
	var locker requestLocker
	if cfg.Redis.Enabled() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logrus.WithError(err).Fatal("Failed to ping redis")
		}
		asynqClient = asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		publisher = queue.NewPublisher(asynqClient, cfg.Queue.Name, cfg.Queue.MaxRetry)
		locker = lock.NewRedisLocker(redisClient, lockKeyPrefix)
	} else {
		logrus.Warn("REDIS_ADDR not set: request locking, shared cache and queue hand-off are disabled")
	}

	integrationRepo := repository.NewIntegrationRepository(db)
	eventRepo := repository.NewNotificationEventRepository(db)
	entryRepo := repository.NewReconciliationEntryRepository(db)
	accountRepo := repository.NewTenantAccountRepository(db)
	invoiceRepo := repository.NewInvoiceRepository(db)
	requestRepo := repository.NewPaymentRequestRepository(db)
	healthLogRepo := repository.NewHealthLogRepository(db)
	alertRepo := repository.NewAlertRepository(db)

	integrationCache := cache.NewIntegrationCache(redisClient, integrationRepo, cfg.Gateway.IntegrationCacheTTL)
	resolver := service.NewSecretResolver(cfg.Gateway.SigningKeys)
	monitor := service.NewMonitorService(healthLogRepo, alertRepo, cfg.Monitor, factory.NewModuleLogger("monitor-service"))

	var pusher provider.PushProvider
	if cfg.Mpesa.ConsumerKey != "" {
		pusher = provider.NewMpesaPushProvider(provider.MpesaPushConfig{
			BaseURL:         cfg.Mpesa.BaseURL,
			ConsumerKey:     cfg.Mpesa.ConsumerKey,
			ConsumerSecret:  cfg.Mpesa.ConsumerSecret,
			ShortCode:       cfg.Mpesa.ShortCode,
			PassKey:         cfg.Mpesa.PassKey,
			TransactionType: cfg.Mpesa.TransactionType,
			HTTPTimeout:     cfg.Mpesa.HTTPTimeout,
			TokenAttempts:   cfg.Mpesa.TokenAttempts,
		})
	} else {
		logrus.Warn("MPESA_CONSUMER_KEY not set: outbound STK push is disabled")
	}

	requests := service.NewPaymentRequestService(
		requestRepo,
		invoiceRepo,
		integrationCache,
		pusher,
		resolver,
		locker,
		monitor,
		cfg.Requests,
		cfg.Mpesa.CallbackBaseURL,
		cfg.Monitor.LatencyThreshold,
		factory.NewModuleLogger("payment-request-service"),
	)

	gateway := service.NewGatewayService(
		integrationCache,
		service.NewSecurityGate(resolver, factory.NewModuleLogger("security-gate")),
		provider.NewDefaultRegistry(cfg.Gateway.DefaultCurrency),
		eventRepo,
		entryRepo,
		service.NewMatchingEngine(accountRepo, requestRepo),
		monitor,
		publisher,
		requests,
		cfg.Gateway.DefaultCurrency,
		factory.NewModuleLogger("gateway-service"),
	)

	cleanup := func() {
		if asynqClient != nil {
			if err := asynqClient.Close(); err != nil {
				logrus.WithError(err).Warn("Failed to close queue client")
			}
		}
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logrus.WithError(err).Warn("Failed to close redis client")
			}
		}
		if err := db.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close database")
		}
		shutdownTracing()
	}

	return &gatewayApp{
		cfg:              cfg,
		integrations:     integrationRepo,
		integrationCache: integrationCache,
		monitor:          monitor,
		gateway:          gateway,
		requests:         requests,
	}, cleanup
}

func mustOpenDB(cfg *config.Config) *sql.DB {
	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		logrus.WithError(err).Fatal("Failed to ping database")
	}
	return db
}

type healthReporter interface {
	SetIntegrationStatus(providerCode string, status entity.HealthStatus)
}

func (a *gatewayApp) newHealthEvaluator(reporter healthReporter) *service.HealthEvaluator {
	return service.NewHealthEvaluator(a.integrations, a.monitor, reporter, a.integrationCache, factory.NewModuleLogger("health-evaluator"))
}
