package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"instoreorder/backend/internal/cache"
	"instoreorder/backend/internal/config"
	"instoreorder/backend/internal/credentials"
	"instoreorder/backend/internal/erp"
	"instoreorder/backend/internal/httpapi"
	"instoreorder/backend/internal/oauth"
	"instoreorder/backend/internal/omf"
	"instoreorder/backend/internal/omsa"
	"instoreorder/backend/internal/opps"
	"instoreorder/backend/internal/orchestrator"
	"instoreorder/backend/internal/store"
	"instoreorder/backend/internal/store/memory"
	pgstore "instoreorder/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Println("order journal: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Println("order journal: in-memory")
	}

	availCache := cache.AvailabilityCache(cache.NewMemoryAvailabilityCache())
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisAvailabilityCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using in-memory availability cache", err)
		} else {
			availCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Println("availability cache: redis")
		}
	} else {
		log.Println("availability cache: in-memory")
	}

	gateway := oauth.NewGateway(credentials.NewResolver(), nil)

	erpClient, err := erp.NewClient(erp.Config{
		BaseURL:  cfg.ERPBaseURL,
		User:     cfg.ERPUser,
		Password: cfg.ERPPassword,
		ProxyURL: cfg.ERPProxyURL,
		Timeout:  cfg.RequestTimeout,
	})
	if err != nil {
		log.Fatalf("invalid ERP configuration: %v", err)
	}
	if !erpClient.Configured() {
		log.Println("ERP base URL not set, catalog served from fallback data")
	}

	pricing := opps.NewService(gateway, opps.Config{
		CacheTTL:       cfg.PriceCacheTTL,
		SessionTTL:     cfg.PriceSessionTTL,
		RequestTimeout: cfg.RequestTimeout,
		Currency:       cfg.DefaultCurrency,
	})
	if cfg.PriceWarmupDisabled {
		log.Println("price warm-up disabled")
	} else {
		pricing.Warmup(ctx)
	}

	sourcing := omsa.NewService(gateway, availCache, omsa.Config{
		StrategyID:      cfg.SourcingStrategyID,
		StoreSites:      cfg.StoreSites,
		OnlineSite:      cfg.OnlineSite,
		Country:         cfg.DefaultCountry,
		SourcingTTL:     cfg.SourcingCacheTTL,
		AvailabilityTTL: cfg.AvailabilityCacheTTL,
		RequestTimeout:  cfg.RequestTimeout,
		SubmitTimeout:   cfg.SubmitTimeout,
	})

	orders := omf.NewService(gateway, omf.Config{
		Currency:       cfg.DefaultCurrency,
		Country:        cfg.DefaultCountry,
		RequestTimeout: cfg.RequestTimeout,
		SubmitTimeout:  cfg.SubmitTimeout,
	})

	facade := orchestrator.New(erpClient, pricing, sourcing, orders, repo, orchestrator.Config{
		Currency: cfg.DefaultCurrency,
	})
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	api := httpapi.New(facade, auth, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("in-store order backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	return nil
}
