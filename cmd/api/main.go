package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"pitchvault.io/internal/audit"
	"pitchvault.io/internal/authz"
	"pitchvault.io/internal/config"
	"pitchvault.io/internal/httpapi"
	"pitchvault.io/internal/obs"
	"pitchvault.io/internal/store/pg"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)

	if cfg.PGDSN == "" {
		log.Fatal("PITCHVAULT_PG_DSN is required")
	}
	store, err := pg.Open(cfg.PGDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := store.EnsureCatalog(ctx); err != nil {
		cancel()
		log.Fatalf("seed catalog: %v", err)
	}
	cancel()

	recorder := audit.NewRecorder(store)
	registry := authz.NewRegistry(store)
	resolver := authz.NewResolver(store, store, registry, recorder)
	grants := authz.NewGrantService(store, recorder)
	ndaSvc := authz.NewNdaService(store, grants, recorder, cfg.NdaGrantTTL)
	roles := authz.NewRoleService(store, registry, recorder)
	sweeper := authz.NewSweeper(store, grants, cfg.SweepBatch)

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.SweepSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		n, err := sweeper.Sweep(ctx)
		if err != nil {
			log.Printf("nda sweep: %v", err)
		}
		if n > 0 {
			log.Printf("nda sweep expired %d requests", n)
		}
	}); err != nil {
		log.Fatalf("schedule sweep: %v", err)
	}
	scheduler.Start()

	api := httpapi.New(httpapi.Options{
		ReadyProbe: httpapi.ReadyProbe{DB: store.DB()},
		Version:    version,

		Resolver: resolver,
		Grants:   grants,
		Nda:      ndaSvc,
		Roles:    roles,
		Audit:    recorder,

		JWTSecret: cfg.JWTSecret,
		JWTIssuer: cfg.JWTIssuer,

		RateBurst:     cfg.RateBurst,
		RatePerSecond: cfg.RatePerSecond,
		MaxBodyBytes:  cfg.MaxBodyBytes,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	log.Printf("Starting pitchvault-authz %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	cronCtx := scheduler.Stop()
	<-cronCtx.Done()

	_ = srv.Shutdown(shutdownCtx)
	_ = store.Close()
	log.Println("Stopped")
}
