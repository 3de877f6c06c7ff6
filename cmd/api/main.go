package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/harborleaf/storelocator/internal/adapters/cache"
	"github.com/harborleaf/storelocator/internal/adapters/catalog"
	"github.com/harborleaf/storelocator/internal/adapters/database"
	"github.com/harborleaf/storelocator/internal/adapters/events"
	"github.com/harborleaf/storelocator/internal/adapters/providers/maps"
	"github.com/harborleaf/storelocator/internal/adapters/providers/position"
	"github.com/harborleaf/storelocator/internal/api/handlers"
	"github.com/harborleaf/storelocator/internal/api/middleware"
	"github.com/harborleaf/storelocator/internal/api/routes"
	"github.com/harborleaf/storelocator/internal/application/services"
	"github.com/harborleaf/storelocator/internal/domain/entities"
	"github.com/harborleaf/storelocator/internal/domain/providers"
	"github.com/harborleaf/storelocator/internal/infrastructure/clients/postgres"
	"github.com/harborleaf/storelocator/internal/infrastructure/clients/redis"
	"github.com/harborleaf/storelocator/internal/infrastructure/observability"
	"github.com/harborleaf/storelocator/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	observability.InitLogger(cfg.OTEL.ServiceName, cfg.Log.Env, cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize OpenTelemetry if enabled
	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err := observability.Setup(ctx, cfg.OTEL.ServiceName, cfg.OTEL.ServiceVersion, cfg.OTEL.Endpoint)
		if err != nil {
			log.Warn().Err(err).Msg("failed to set up OpenTelemetry")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					log.Error().Err(err).Msg("error shutting down OpenTelemetry")
				}
			}()
			log.Info().Str("endpoint", cfg.OTEL.Endpoint).Msg("OpenTelemetry initialized")
		}
	}

	metrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize metrics")
	}

	// Redis backs the cache and the event bus when enabled; without it both
	// stay in process, which limits sessions to a single replica
	var (
		cacheProvider providers.CacheProvider
		eventBus      providers.EventBus
	)
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(ctx, &cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, falling back to in-process cache and event bus")
		} else {
			defer redisClient.Close()
			cacheProvider = cache.NewRedisAdapter(redisClient)
			eventBus = events.NewRedisEventBus(redisClient)
		}
	}
	if cacheProvider == nil {
		cacheProvider = cache.NewMemoryAdapter()
		eventBus = events.NewMemoryEventBus()
	}
	defer func() {
		if err := eventBus.Close(); err != nil {
			log.Error().Err(err).Msg("error closing event bus")
		}
	}()

	storeRepo, err := loadCatalog(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load store catalog")
	}
	log.Info().Int("stores", storeRepo.Len()).Msg("store catalog loaded")

	defaultCenter := entities.Coordinate{Lat: cfg.Geolocation.DefaultLat, Lng: cfg.Geolocation.DefaultLng}
	httpClient := &http.Client{Timeout: 10 * time.Second}
	rendererDeps := maps.RendererDeps{
		DefaultCenter: defaultCenter,
		Cache:         cacheProvider,
		HTTPClient:    httpClient,
		Metrics:       metrics,
	}

	discoveryService := services.NewDiscoveryService(storeRepo, cfg.Discovery.DefaultRadiusKm, cfg.Discovery.PageSize).
		WithMetrics(metrics)

	sessionService := services.NewSessionService(
		discoveryService,
		eventBus,
		positionProviderFactory(cfg.Geolocation, cacheProvider, httpClient),
		func() (services.SessionRenderer, error) {
			return maps.NewRenderer(cfg.Maps, rendererDeps)
		},
		services.SessionConfig{
			TTL:      cfg.Session.TTL,
			Debounce: cfg.Discovery.Debounce,
			Locator: services.LocatorConfig{
				Timeout: cfg.Geolocation.Timeout,
				MaxAge:  cfg.Geolocation.MaxAge,
				Default: defaultCenter,
			},
			MapWidth:  cfg.Maps.Width,
			MapHeight: cfg.Maps.Height,
		},
		metrics,
	)
	defer sessionService.Shutdown(context.Background())
	sessionService.StartJanitor(ctx, 0)

	// Stateless map renders share one backend per process
	sharedRenderer, err := maps.NewRenderer(cfg.Maps, rendererDeps)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create map renderer")
	}
	defer sharedRenderer.Close()
	sharedRenderer.Start(ctx)

	storeHandler := handlers.NewStoreHandler(discoveryService, defaultCenter).WithRenderer(sharedRenderer)
	if sharedRenderer.Name() != maps.BackendMock {
		offline := maps.NewMockRenderer(defaultCenter)
		if err := offline.Init(ctx); err == nil {
			storeHandler.WithRenderer(offline)
		}
	}

	router := routes.NewRouter(
		storeHandler,
		handlers.NewSessionHandler(sessionService),
		handlers.NewSSEHandler(sessionService),
		middleware.NewCacheMiddleware(cacheProvider, nil, metrics),
		cfg.Server.AllowedOrigins,
		metrics,
	)

	// No WriteTimeout: session streams stay open
	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info().Str("addr", server.Addr).Str("maps_backend", cfg.Maps.Backend).
			Str("geolocation", cfg.Geolocation.Provider).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info().Msg("server shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		return
	}
	log.Info().Msg("server stopped")
}

// loadCatalog reads the store list once; it stays immutable afterwards
func loadCatalog(ctx context.Context, cfg *config.Config) (*catalog.StaticCatalog, error) {
	switch {
	case cfg.Database.Enabled:
		client, err := postgres.NewClient(ctx, &cfg.Database)
		if err != nil {
			return nil, err
		}
		defer client.Close()

		stores, err := database.NewStoreLoader(client, cfg.Database.Table).LoadStores(ctx)
		if err != nil {
			return nil, err
		}
		return catalog.NewStaticCatalog(stores)
	case cfg.Discovery.CatalogPath != "":
		return catalog.LoadCatalogFile(cfg.Discovery.CatalogPath)
	default:
		return catalog.LoadDefaultCatalog()
	}
}

// positionProviderFactory picks the position source of new sessions.
// Browser reports are per session; the IP lookup is shared.
func positionProviderFactory(cfg config.GeolocationConfig, cacheProvider providers.CacheProvider, httpClient *http.Client) services.PositionProviderFactory {
	switch cfg.Provider {
	case "ipapi":
		shared := position.NewIPProviderWithClient(cfg.IPLookupURL, cacheProvider, httpClient)
		return func() providers.PositionProvider { return shared }
	case "mock":
		coord := entities.Coordinate{Lat: cfg.DefaultLat, Lng: cfg.DefaultLng}
		return func() providers.PositionProvider { return position.NewMockProvider(coord) }
	default:
		return func() providers.PositionProvider { return position.NewReportedProvider() }
	}
}
