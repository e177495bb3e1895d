// README: Entry point; loads config, wires services, starts HTTP server and the quote expiry monitor.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"quotecore/internal/config"
	httptransport "quotecore/internal/http"
	"quotecore/internal/infra"
	"quotecore/internal/maps"
	"quotecore/internal/modules/availability"
	"quotecore/internal/modules/pricing"
	"quotecore/internal/modules/quote"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := infra.NewLogger()
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loc, err := time.LoadLocation(cfg.Availability.Timezone)
	if err != nil {
		logger.Fatal("load business timezone", zap.String("tz", cfg.Availability.Timezone), zap.Error(err))
	}

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		logger.Fatal("connect db", zap.Error(err))
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr)
	defer func() { _ = redisClient.Close() }()

	resolverDeps := maps.ResolverDeps{
		Cache:     maps.NewRedisDistanceCache(redisClient, cfg.Distance.CacheTTL),
		DefaultKm: cfg.Distance.DefaultKm,
		Logger:    logger,
	}
	if cfg.Maps.APIKey != "" {
		router, err := maps.NewRouteService(cfg.Maps.APIKey)
		if err != nil {
			logger.Fatal("maps routing init", zap.Error(err))
		}
		geocoder, err := maps.NewGeocodeService(cfg.Maps.APIKey)
		if err != nil {
			logger.Fatal("maps geocoding init", zap.Error(err))
		}
		resolverDeps.Router = router
		resolverDeps.Geocoder = geocoder
	} else {
		logger.Warn("QUOTE_MAPS_API_KEY not set; distances fall back to estimates")
	}
	distances := maps.NewDistanceResolver(resolverDeps)

	pricingSvc := pricing.NewService(pricing.NewStore(dbPool), distances, logger, cfg.Pricing.CacheTTL)

	availabilitySvc := availability.NewService(availability.ServiceDeps{
		Repo:           availability.NewStore(dbPool),
		Leads:          pricingSvc,
		Holds:          availability.NewRedisHolds(redisClient),
		Location:       loc,
		MaxHorizonDays: cfg.Availability.MaxHorizonDays,
		MaxSlots:       cfg.Availability.MaxSlots,
		Logger:         logger,
	})

	quoteSvc := quote.NewService(quote.ServiceDeps{
		Repo:   quote.NewStore(dbPool),
		Pricer: pricingSvc,
		Booker: availabilitySvc,
		TTL:    cfg.Quote.TTL,
		Logger: logger,
	})

	handler := httptransport.NewServer(httptransport.ServerDeps{
		Pricing:      pricingSvc,
		Quotes:       quoteSvc,
		Availability: availabilitySvc,
		Logger:       logger,
	})

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler.Routes()}

	go quoteSvc.RunExpiryMonitor(ctx, cfg.Quote.ExpiryTick)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown", zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("addr", cfg.HTTP.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("http server", zap.Error(err))
	}
}
