package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/pagecraft/blocks-api/internal/catalog"
	"github.com/pagecraft/blocks-api/internal/geo"
	"github.com/pagecraft/blocks-api/internal/handlers"
	"github.com/pagecraft/blocks-api/internal/payments"
	"github.com/pagecraft/blocks-api/internal/platform/config"
	"github.com/pagecraft/blocks-api/internal/platform/eventbus"
	"github.com/pagecraft/blocks-api/internal/platform/observability"
	"github.com/pagecraft/blocks-api/internal/platform/secrets"
	"github.com/pagecraft/blocks-api/internal/realtime"
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	fetcher, err := newSecretFetcher(ctx, logger)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
	)
	if err != nil {
		var validation *config.ValidationError
		if errors.As(err, &validation) {
			logger.Fatal("invalid configuration", zap.Strings("fields", validation.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	bus := eventbus.New(logger.Named("events"))

	var fetchOffers catalog.FetchFunc
	if strings.TrimSpace(cfg.Catalog.OffersURL) != "" {
		fetchOffers = newOfferFetch(cfg.Catalog, logger.Named("catalog"))
	}
	store := catalog.NewStore(catalog.StoreDeps{
		Fetch:  fetchOffers,
		Bus:    bus,
		Logger: logger.Named("catalog"),
	})
	defer store.Close()

	if fetchOffers != nil {
		go func() {
			warmCtx, cancel := context.WithTimeout(ctx, cfg.Catalog.FetchTimeout)
			defer cancel()
			if _, err := store.EnsureFetch(warmCtx); err != nil {
				logger.Warn("offer cache warmup failed", zap.Error(err))
			}
		}()
	}

	var provider payments.Provider
	if strings.TrimSpace(cfg.Stripe.APIKey) != "" {
		stripeProvider, err := payments.NewStripeProvider(payments.StripeConfig{
			APIKey:         cfg.Stripe.APIKey,
			PublishableKey: cfg.Stripe.PublishableKey,
			Logger:         observability.EventLogger(logger.Named("payments")),
			Clock:          time.Now,
		})
		if err != nil {
			logger.Fatal("failed to initialise stripe payment provider", zap.Error(err))
		}
		provider = stripeProvider
	} else {
		logger.Warn("stripe api key not configured; checkout routes disabled")
	}

	hub := realtime.NewHub(realtime.HubDeps{
		HistoryLimit: cfg.Chat.HistoryLimit,
		Logger:       logger.Named("chat"),
		Clock:        time.Now,
	})
	stream := realtime.NewSSEHandler(hub, cfg.Chat.Heartbeat, logger.Named("chat"))

	var geoHandlers *handlers.GeoHandlers
	if strings.TrimSpace(cfg.Geo.BaseURL) != "" {
		geocoder, err := geo.NewClient(geo.ClientConfig{
			BaseURL:   cfg.Geo.BaseURL,
			UserAgent: cfg.Geo.UserAgent,
		})
		if err != nil {
			logger.Fatal("failed to initialise geocoding client", zap.Error(err))
		}
		area, err := geo.NewServiceArea(geo.ServiceAreaConfig{
			CenterLat:   cfg.Geo.CenterLat,
			CenterLon:   cfg.Geo.CenterLon,
			RadiusKm:    cfg.Geo.RadiusKm,
			ServiceDays: cfg.Geo.ServiceDays,
		})
		if err != nil {
			logger.Fatal("failed to initialise service area", zap.Error(err))
		}
		geoHandlers = handlers.NewGeoHandlers(geocoder, area)
	} else {
		logger.Warn("geocoding base url not configured; geo routes disabled")
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
	}

	healthHandlers := handlers.NewHealthHandlers(func() bool {
		return fetchOffers == nil || store.IsLoaded()
	})

	offerHandlers := handlers.NewOfferHandlers(store, bus)
	chatHandlers := handlers.NewChatHandlers(hub, stream)

	opts := []handlers.Option{
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithOfferRoutes(offerHandlers.Routes),
		handlers.WithChatRoutes(chatHandlers.Routes),
	}
	if provider != nil {
		checkoutHandlers := handlers.NewCheckoutHandlers(provider, store, cfg.Stripe.ReturnURL)
		opts = append(opts, handlers.WithCheckoutRoutes(checkoutHandlers.Routes))
	}
	if geoHandlers != nil {
		opts = append(opts, handlers.WithGeoRoutes(geoHandlers.Routes))
	}

	router := handlers.NewRouter(opts...)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("blocks api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// newOfferFetch builds the upstream transport for the offer store. The
// response body is decoded as-is; normalization happens inside the store.
func newOfferFetch(cfg config.CatalogConfig, logger *zap.Logger) catalog.FetchFunc {
	client := &http.Client{Timeout: cfg.FetchTimeout}
	url := strings.TrimSpace(cfg.OffersURL)
	return func(ctx context.Context) (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("catalog: build offers request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("catalog: fetch offers: %w", err)
		}
		defer func() {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}()

		if resp.StatusCode >= http.StatusBadRequest {
			return nil, fmt.Errorf("catalog: fetch offers: unexpected status %d", resp.StatusCode)
		}

		var payload any
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload); err != nil {
			return nil, fmt.Errorf("catalog: decode offers: %w", err)
		}
		logger.Debug("offers fetched", zap.String("url", url))
		return payload, nil
	}
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(os.Getenv(key))
	}

	envLabel := strings.ToLower(lookup("BLOCKS_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = "local"
	}
	defaultProject := lookup("BLOCKS_SECRET_PROJECT_ID")
	fallbackPath := lookup("BLOCKS_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}
	credentialsFile := lookup("BLOCKS_GCP_CREDENTIALS_FILE")

	opts := []secrets.Option{
		secrets.WithEnvironment(envLabel),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}
