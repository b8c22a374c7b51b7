package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/go-chi/chi/v5"

	"github.com/fieldcraft/storefront/internal/cart"
	domain "github.com/fieldcraft/storefront/internal/domain"
	"github.com/fieldcraft/storefront/internal/handlers"
	"github.com/fieldcraft/storefront/internal/platform/config"
	"github.com/fieldcraft/storefront/internal/platform/idempotency"
	"github.com/fieldcraft/storefront/internal/platform/observability"
	"github.com/fieldcraft/storefront/internal/platform/session"
	"github.com/fieldcraft/storefront/internal/pricing"
	"github.com/fieldcraft/storefront/internal/repositories"
	"github.com/fieldcraft/storefront/internal/repositories/httpapi"
	"github.com/fieldcraft/storefront/internal/repositories/memory"
)

// Container wires configuration, repositories, the pricing engine, and the
// per-session cart registry into a servable router.
type Container struct {
	Config   config.Config
	Logger   *zap.Logger
	Pricing  *pricing.Engine
	Registry *cart.Registry
	Router   chi.Router
}

// NewContainer assembles the runtime dependencies. An empty backend base URL
// selects the in-memory store seeded with demo products, which keeps local
// development self-contained.
func NewContainer(cfg config.Config, logger *zap.Logger) (*Container, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	priceEngine, err := buildPricingEngine(cfg.Pricing)
	if err != nil {
		return nil, fmt.Errorf("build pricing engine: %w", err)
	}

	repo, catalog, err := buildBackend(cfg.Backend)
	if err != nil {
		return nil, fmt.Errorf("build backend: %w", err)
	}

	eventLogger := observability.EventLogger(logger)
	registry, err := cart.NewRegistry(func(ownerKey string) (*cart.Engine, error) {
		return cart.NewEngine(cart.EngineDeps{
			Repository: repo,
			Catalog:    catalog,
			Pricer:     enginePricer{engine: priceEngine},
			OwnerKey:   ownerKey,
			SyncDelay:  cfg.Sync.Delay,
			Logger:     eventLogger,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("build cart registry: %w", err)
	}

	cartHandlers := handlers.NewCartHandlers(registry, cfg.Pricing.DefaultLocale, cfg.Pricing.DefaultCountry)
	health := handlers.NewHealthHandlers(
		handlers.WithReadinessChecker(func(ctx context.Context) error {
			_, err := catalog.GetProductSnapshot(ctx, "readiness-probe")
			var repoErr repositories.RepositoryError
			if err != nil && errors.As(err, &repoErr) && repoErr.IsUnavailable() {
				return err
			}
			return nil
		}),
	)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger),
			observability.TraceMiddleware(),
			session.Middleware(cfg.Session.SecureCookies),
			observability.RequestLoggerMiddleware(),
			observability.RecoveryMiddleware(logger),
		),
		handlers.WithHealthHandlers(health),
		handlers.WithCartRoutes(cartHandlers.Routes,
			idempotency.Middleware(idempotency.NewMemoryStore(),
				idempotency.WithLogger(logger.Named("idempotency")),
			),
		),
	)

	return &Container{
		Config:   cfg,
		Logger:   logger,
		Pricing:  priceEngine,
		Registry: registry,
		Router:   router,
	}, nil
}

// Close flushes pending cart syncs and releases per-session engines.
func (c *Container) Close(ctx context.Context) {
	if c == nil || c.Registry == nil {
		return
	}
	c.Registry.Close(ctx)
}

func buildPricingEngine(cfg config.PricingConfig) (*pricing.Engine, error) {
	var (
		tables pricing.Config
		err    error
	)
	if path := strings.TrimSpace(cfg.TablesPath); path != "" {
		tables, err = pricing.LoadTables(path)
	} else {
		tables, err = pricing.DefaultTables()
	}
	if err != nil {
		return nil, err
	}
	return pricing.NewEngine(tables)
}

func buildBackend(cfg config.BackendConfig) (repositories.CartRepository, repositories.CatalogRepository, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		store := memory.NewStore(memory.StoreDeps{Products: memory.DemoProducts()})
		return store, store, nil
	}

	client, err := httpapi.NewClient(httpapi.ClientDeps{
		BaseURL:    cfg.BaseURL,
		AuthToken:  cfg.AuthToken,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
	})
	if err != nil {
		return nil, nil, err
	}
	return client, client, nil
}

// enginePricer adapts the pricing engine to the cart engine's contract.
type enginePricer struct {
	engine *pricing.Engine
}

func (p enginePricer) Price(items []domain.LineItem, countryCode string) (domain.PricingResult, error) {
	if p.engine == nil {
		return domain.PricingResult{}, fmt.Errorf("pricing engine is not configured")
	}
	return p.engine.Price(items, countryCode), nil
}
