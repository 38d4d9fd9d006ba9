package main

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"transit-aggregator/internal/aggregator"
	"transit-aggregator/internal/alerts"
	"transit-aggregator/internal/cache"
	"transit-aggregator/internal/config"
	"transit-aggregator/internal/gateway"
	"transit-aggregator/internal/proximity"
	"transit-aggregator/pkg/models"
)

// buildGateways creates one upstream gateway per mode, sharing a single
// HTTP client and a global concurrency cap per gateway
func buildGateways(cfg *config.Config, logger *zap.Logger) map[models.TransportType]gateway.Gateway {
	up := cfg.Upstream
	client := gateway.NewClient(up.Timeout, up.MaxRetries, logger.Named("upstream"))

	gateways := map[models.TransportType]gateway.Gateway{
		models.TransportMetro:    gateway.NewTMBMetro(client, up.TMB),
		models.TransportBus:      gateway.NewTMBBus(client, up.TMB),
		models.TransportTram:     gateway.NewTram(client, up.Tram),
		models.TransportRodalies: gateway.NewRodalies(client, up.Rodalies),
		models.TransportFGC:      gateway.NewFGC(client, up.FGC),
		models.TransportBicing:   gateway.NewBicing(client, up.Bicing),
	}
	for mode, gw := range gateways {
		gateways[mode] = gateway.Limited(gw, up.MaxConcurrency)
	}
	return gateways
}

// buildServices creates the aggregator of every enabled mode in display
// order. Rodalies stations are linked to the nearest metro station when
// metro is enabled.
func buildServices(cfg *config.Config, co *cache.Coordinator, registry *alerts.Registry, logger *zap.Logger) []*aggregator.Service {
	gateways := buildGateways(cfg, logger)

	var (
		services []*aggregator.Service
		metro    *aggregator.Service
	)
	for _, transport := range models.TransportTypes {
		mode := cfg.Mode(transport)
		if !mode.Enabled {
			logger.Info("transport mode disabled", zap.String("mode", string(transport)))
			continue
		}

		opts := []aggregator.Option{aggregator.WithRegistry(registry)}
		if transport == models.TransportRodalies && metro != nil && cfg.Proximity.InterchangeRadius > 0 {
			opts = append(opts, aggregator.WithResolver(
				proximity.NewNearestResolver(metro, cfg.Proximity.InterchangeRadius)))
		}

		svc := aggregator.NewService(mode, gateways[transport], co, logger, opts...)
		if transport == models.TransportMetro {
			metro = svc
		}
		services = append(services, svc)
	}
	return services
}

// warmup fills the line and station caches of every mode in parallel
func warmup(ctx context.Context, services []*aggregator.Service, timeout time.Duration, logger *zap.Logger) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for _, svc := range services {
		svc := svc
		g.Go(func() error {
			svc.Warmup(ctx)
			return nil
		})
	}
	_ = g.Wait()

	logger.Info("warmup finished",
		zap.Int("modes", len(services)),
		zap.Duration("duration", time.Since(start)))
}
