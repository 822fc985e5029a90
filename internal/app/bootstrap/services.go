package bootstrap

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/doorstepdoctor/doorstep-api/internal/api/router"
	"github.com/doorstepdoctor/doorstep-api/internal/appointments"
	"github.com/doorstepdoctor/doorstep-api/internal/booking"
	appconfig "github.com/doorstepdoctor/doorstep-api/internal/config"
	"github.com/doorstepdoctor/doorstep-api/internal/events"
	httpmiddleware "github.com/doorstepdoctor/doorstep-api/internal/http/middleware"
	"github.com/doorstepdoctor/doorstep-api/internal/identity"
	"github.com/doorstepdoctor/doorstep-api/internal/observability/metrics"
	"github.com/doorstepdoctor/doorstep-api/internal/payments"
	"github.com/doorstepdoctor/doorstep-api/internal/profiles"
	"github.com/doorstepdoctor/doorstep-api/internal/reconciliation"
	"github.com/doorstepdoctor/doorstep-api/internal/subscriptions"
	"github.com/doorstepdoctor/doorstep-api/pkg/logging"
)

const (
	promptWindow = time.Hour
	// The lock must outlive one gateway round trip.
	initiationLockFloor = 30 * time.Second
)

// Dependencies are the external handles the API runs against. Nil Pool
// selects in-memory stores; nil SQLDB disables the profile endpoints.
type Dependencies struct {
	Pool     *pgxpool.Pool
	SQLDB    *sql.DB
	Redis    *redis.Client
	Registry prometheus.Registerer
}

// BuildGateway picks the IntaSend client, or the fake gateway when fake
// payments are allowed and no secret key is configured.
func BuildGateway(cfg *appconfig.Config, logger *logging.Logger) (payments.Gateway, error) {
	if cfg.AllowFakePayments && cfg.IntasendSecretKey == "" {
		logger.Warn("using fake payment gateway; STK prompts are simulated")
		return payments.NewFakeGateway(logger), nil
	}
	if cfg.IntasendSecretKey == "" {
		return nil, fmt.Errorf("bootstrap: INTASEND_SECRET_KEY is not set")
	}
	return payments.NewIntasendClient(cfg.IntasendSecretKey, logger).
		WithBaseURL(cfg.IntasendBaseURL).
		WithTimeout(cfg.GatewayTimeout), nil
}

// BuildRouterConfig wires ledgers, the reconciliation listener and handlers
// into a router configuration.
func BuildRouterConfig(cfg *appconfig.Config, deps Dependencies, logger *logging.Logger) (*router.Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	gateway, err := BuildGateway(cfg, logger)
	if err != nil {
		return nil, err
	}
	verifier, err := reconciliation.NewVerifier(cfg.IntasendWebhookMode, cfg.IntasendWebhookSecret)
	if err != nil {
		return nil, err
	}

	paymentMetrics := metrics.NewPaymentMetrics(deps.Registry)
	lockTTL := 3 * cfg.GatewayTimeout
	if lockTTL < initiationLockFloor {
		lockTTL = initiationLockFloor
	}
	initiator := payments.NewInitiator(
		gateway,
		payments.NewPromptLimiter(deps.Redis, cfg.STKPromptsPerHour, promptWindow, logger),
		payments.NewInitiationLock(deps.Redis, lockTTL, logger),
		paymentMetrics,
		logger,
	)

	var (
		apptRepo  appointments.Repository
		subRepo   subscriptions.Repository
		roles     identity.RoleStore
		outbox    *events.OutboxStore
		processed *events.ProcessedStore
	)
	if deps.Pool != nil {
		apptRepo = appointments.NewPostgresRepository(deps.Pool)
		subRepo = subscriptions.NewPostgresRepository(deps.Pool)
		roles = identity.NewPostgresRoleStore(deps.Pool)
		outbox = events.NewOutboxStore(deps.Pool)
		processed = events.NewProcessedStore(deps.Pool)
	} else {
		logger.Warn("DATABASE_URL not set; using in-memory stores")
		apptRepo = appointments.NewInMemoryRepository()
		subRepo = subscriptions.NewInMemoryRepository()
		roles = identity.NewInMemoryRoleStore(nil)
	}

	apptLedger := appointments.NewLedger(apptRepo, logger)
	subLedger := subscriptions.NewLedger(subRepo, roles, initiator, cfg.SubscriptionTermMonths, cfg.DefaultCurrency, logger)
	orch := booking.NewOrchestrator(apptLedger, roles, initiator, outboxOrNil(outbox), booking.Config{
		MinFeeKES: cfg.BookingMinFeeKES,
		Currency:  cfg.DefaultCurrency,
	}, logger)

	listener := reconciliation.NewListener(apptLedger, subLedger, verifier,
		processedOrNil(processed), listenerOutboxOrNil(outbox), paymentMetrics, logger)

	rc := &router.Config{
		Logger:             logger,
		Booking:            booking.NewHandler(orch, logger),
		Appointments:       appointments.NewHandler(apptLedger, logger),
		Subscriptions:      subscriptions.NewHandler(subLedger, logger),
		Webhook:            reconciliation.NewWebhookHandler(listener, logger),
		Auth:               httpmiddleware.AuthConfig{Secret: cfg.AuthJWTSecret, Issuer: cfg.AuthJWTIssuer},
		Roles:              roles,
		WebhookLimiter:     httpmiddleware.NewRateLimiter(float64(cfg.WebhookRatePerSecond), cfg.WebhookBurst),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	}
	if deps.Pool != nil {
		rc.Readiness = deps.Pool
	}
	if deps.SQLDB != nil {
		rc.Profiles = profiles.NewHandler(profiles.NewService(profiles.NewRepository(deps.SQLDB), logger), logger)
	}
	if cfg.AllowFakePayments {
		rc.FakeCallbacks = reconciliation.NewFakeCallbackHandler(listener, logger)
	}
	return rc, nil
}

// The constructors take interfaces; a typed nil pointer must not reach them.

func outboxOrNil(o *events.OutboxStore) booking.OutboxWriter {
	if o == nil {
		return nil
	}
	return o
}

func listenerOutboxOrNil(o *events.OutboxStore) reconciliation.OutboxWriter {
	if o == nil {
		return nil
	}
	return o
}

func processedOrNil(p *events.ProcessedStore) reconciliation.ProcessedTracker {
	if p == nil {
		return nil
	}
	return p
}
