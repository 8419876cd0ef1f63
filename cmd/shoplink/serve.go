package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/shoplinkhq/shoplink/internal/config"
	"github.com/shoplinkhq/shoplink/internal/db"
	"github.com/shoplinkhq/shoplink/internal/dedup"
	"github.com/shoplinkhq/shoplink/internal/handlers"
	"github.com/shoplinkhq/shoplink/internal/line"
	"github.com/shoplinkhq/shoplink/internal/logger"
	"github.com/shoplinkhq/shoplink/internal/media"
	mediafs "github.com/shoplinkhq/shoplink/internal/media/providers/fs"
	"github.com/shoplinkhq/shoplink/internal/message"
	"github.com/shoplinkhq/shoplink/internal/ocr"
	"github.com/shoplinkhq/shoplink/internal/onboarding"
	"github.com/shoplinkhq/shoplink/internal/owners"
	"github.com/shoplinkhq/shoplink/internal/payments"
	"github.com/shoplinkhq/shoplink/internal/router"
	"github.com/shoplinkhq/shoplink/internal/server"
	"github.com/shoplinkhq/shoplink/internal/sweeper"
	"github.com/shoplinkhq/shoplink/internal/tenant"
	"github.com/shoplinkhq/shoplink/internal/webhook"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBConn,
			provideTenantRepository,
			provideSecretSource,
			provideResolver,
			provideDedupStore,
			provideMessageRepository,
			provideMessageService,
			provideSessionRepository,
			provideRequestRepository,
			onboarding.NewService,
			provideBindingRepository,
			provideProfileRepository,
			provideLinkRepository,
			provideLinkService,
			owners.NewService,
			provideMessenger,
			provideExtractor,
			provideMediaService,
			provideIntentRepository,
			providePaymentRepository,
			provideQuoteRepository,
			provideNotifier,
			providePaymentsService,
			provideRouter,
			provideSweeper,
			provideServerHandler(handlers.NewPingHandler),
			provideServerHandler(provideTenantsHandler),
			provideServerHandler(provideOnboardingHandler),
			provideServerHandler(provideLinksHandler),
			provideServerHandler(providePaymentsHandler),
			provideServerHandler(provideWebhookHandler),
			provideServer,
		),
		fx.Invoke(
			startSweeper,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideConfig() (config.Config, error) {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

// provideDBConn opens the pool unless the in-memory store is
// configured, in which case every repository provider falls back to
// its memory implementation.
func provideDBConn(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	if cfg.Tenant.MemoryStore {
		return nil, nil
	}
	pool, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { pool.Close(); return nil }})
	return pool, nil
}

func provideTenantRepository(pool *pgxpool.Pool) tenant.Repository {
	if pool == nil {
		return tenant.NewMemoryRepository()
	}
	return tenant.NewPostgresRepository(pool)
}

func provideSecretSource() tenant.SecretSource { return tenant.InlineSecrets{} }

func provideResolver(log *slog.Logger, repo tenant.Repository, secrets tenant.SecretSource, cfg config.Config) *tenant.Resolver {
	return tenant.NewResolver(log, repo, secrets, cfg.Tenant)
}

func provideDedupStore(pool *pgxpool.Pool) dedup.Store {
	if pool == nil {
		return dedup.NewMemoryStore()
	}
	return dedup.NewPostgresStore(pool)
}

func provideMessageRepository(pool *pgxpool.Pool) message.Repository {
	if pool == nil {
		return message.NewMemoryRepository()
	}
	return message.NewPostgresRepository(pool)
}

func provideMessageService(log *slog.Logger, repo message.Repository) *message.Service {
	return message.NewService(log, repo)
}

func provideSessionRepository(pool *pgxpool.Pool) onboarding.SessionRepository {
	if pool == nil {
		return onboarding.NewMemorySessionRepository()
	}
	return onboarding.NewPostgresSessionRepository(pool)
}

func provideRequestRepository(pool *pgxpool.Pool) onboarding.RequestRepository {
	if pool == nil {
		return onboarding.NewMemoryRequestRepository()
	}
	return onboarding.NewPostgresRequestRepository(pool)
}

func provideBindingRepository(pool *pgxpool.Pool) owners.BindingRepository {
	if pool == nil {
		return owners.NewMemoryBindingRepository()
	}
	return owners.NewPostgresBindingRepository(pool)
}

func provideProfileRepository(pool *pgxpool.Pool) owners.ProfileRepository {
	if pool == nil {
		return owners.NewMemoryProfileRepository()
	}
	return owners.NewPostgresProfileRepository(pool)
}

func provideLinkRepository(pool *pgxpool.Pool) owners.LinkRepository {
	if pool == nil {
		return owners.NewMemoryLinkRepository()
	}
	return owners.NewPostgresLinkRepository(pool)
}

func provideLinkService(log *slog.Logger, repo owners.LinkRepository, cfg config.Config) *owners.LinkService {
	return owners.NewLinkService(log, repo, cfg.Line)
}

func provideMessenger(log *slog.Logger, cfg config.Config) line.Messenger {
	return line.NewClient(log, cfg.Line)
}

func provideExtractor(log *slog.Logger, cfg config.Config) ocr.Extractor {
	return ocr.NewClient(log, cfg.OCR)
}

func provideMediaService(log *slog.Logger, cfg config.Config) (*media.Service, error) {
	provider, err := mediafs.New(cfg.Media.DataRoot)
	if err != nil {
		return nil, fmt.Errorf("init media provider: %w", err)
	}
	return media.NewService(log, provider), nil
}

func provideIntentRepository(pool *pgxpool.Pool) payments.IntentRepository {
	if pool == nil {
		return payments.NewMemoryIntentRepository()
	}
	return payments.NewPostgresIntentRepository(pool)
}

func providePaymentRepository(pool *pgxpool.Pool) payments.PaymentRepository {
	if pool == nil {
		return payments.NewMemoryPaymentRepository()
	}
	return payments.NewPostgresPaymentRepository(pool)
}

func provideQuoteRepository(pool *pgxpool.Pool) payments.QuoteRepository {
	if pool == nil {
		return payments.NewMemoryQuoteRepository()
	}
	return payments.NewPostgresQuoteRepository(pool)
}

func provideNotifier(log *slog.Logger, tenants tenant.Repository, secrets tenant.SecretSource, ownersSvc *owners.Service, messenger line.Messenger) payments.Notifier {
	return router.NewOwnerNotifier(log, tenants, secrets, ownersSvc, messenger)
}

func providePaymentsService(
	log *slog.Logger,
	intents payments.IntentRepository,
	paymentsRepo payments.PaymentRepository,
	quotes payments.QuoteRepository,
	messages *message.Service,
	extractor ocr.Extractor,
	notifier payments.Notifier,
	cfg config.Config,
) *payments.Service {
	return payments.NewService(log, intents, paymentsRepo, quotes, messages, extractor, notifier, cfg.Reconcile, cfg.OCR)
}

func provideRouter(
	log *slog.Logger,
	messenger line.Messenger,
	dedupStore dedup.Store,
	messages *message.Service,
	onboardingSvc *onboarding.Service,
	ownersSvc *owners.Service,
	links *owners.LinkService,
	paymentsSvc *payments.Service,
	mediaSvc *media.Service,
	cfg config.Config,
) *router.Router {
	return router.New(log, messenger, dedupStore, messages, onboardingSvc, ownersSvc, links, paymentsSvc, mediaSvc, cfg.Reconcile)
}

func provideSweeper(log *slog.Logger, cfg config.Config, dedupStore dedup.Store, links owners.LinkRepository, paymentsSvc *payments.Service) *sweeper.Sweeper {
	return sweeper.New(log, cfg.Sweeper, dedupStore, links, paymentsSvc)
}

func provideTenantsHandler(log *slog.Logger, repo tenant.Repository, resolver *tenant.Resolver) *handlers.TenantsHandler {
	return handlers.NewTenantsHandler(log, repo, resolver)
}

func provideOnboardingHandler(log *slog.Logger, requests onboarding.RequestRepository) *handlers.OnboardingHandler {
	return handlers.NewOnboardingHandler(log, requests)
}

func provideLinksHandler(log *slog.Logger, links *owners.LinkService) *handlers.LinksHandler {
	return handlers.NewLinksHandler(log, links)
}

func providePaymentsHandler(log *slog.Logger, svc *payments.Service, intents payments.IntentRepository, paymentsRepo payments.PaymentRepository) *handlers.PaymentsHandler {
	return handlers.NewPaymentsHandler(log, svc, intents, paymentsRepo)
}

func provideWebhookHandler(log *slog.Logger, resolver *tenant.Resolver, r *router.Router, cfg config.Config) *webhook.Handler {
	return webhook.NewHandler(log, resolver, r, cfg.Server.MaxBodyBytes)
}

type serverParams struct {
	fx.In
	Logger   *slog.Logger
	Config   config.Config
	Handlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.New(params.Logger, params.Config, params.Handlers)
}

func startSweeper(lc fx.Lifecycle, sw *sweeper.Sweeper) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error { return sw.Start() },
		OnStop:  func(ctx context.Context) error { return sw.Stop(ctx) },
	})
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner, cfg config.Config, pool *pgxpool.Pool) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if pool != nil {
				if err := db.Migrate(cfg.Postgres); err != nil {
					return err
				}
			}
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
