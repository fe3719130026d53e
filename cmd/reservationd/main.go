package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/victorseo0526-a/minister-reservation/internal/api"
	"github.com/victorseo0526-a/minister-reservation/internal/config"
	"github.com/victorseo0526-a/minister-reservation/internal/obs"
	"github.com/victorseo0526-a/minister-reservation/internal/reservation"
	"github.com/victorseo0526-a/minister-reservation/internal/storage"
)

func main() {
	// Cancel context on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Default()
	if path := os.Getenv("RESERVATIOND_CONFIG"); path != "" {
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			log.Fatalf("config load: %v", err)
		}
	}
	cfg.Addr = getenv("RESERVATIOND_ADDR", cfg.Addr)
	cfg.DBPath = getenv("RESERVATIOND_DB", cfg.DBPath)
	cfg.AdminToken = getenv("RESERVATIOND_ADMIN_TOKEN", cfg.AdminToken)

	db, err := storage.Open(ctx, storage.Config{
		Path:         cfg.DBPath,
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 20,
		MaxIdleConns: 20,
	})
	if err != nil {
		log.Fatalf("db open: %v", err)
	}
	defer db.Close()

	logger := obs.NewLogger()
	metrics := obs.NewMetrics()

	store := storage.NewStore(db)
	svc := reservation.NewService(store, reservation.ServiceConfig{
		Roles:   cfg.Roles,
		Horizon: cfg.Horizon,
	}, logger, metrics)
	apiServer := api.NewServer(svc, cfg.AdminToken)

	// Expiry sweep
	sweeper := reservation.NewSweeper(svc, logger, metrics, cfg.Retention, cfg.SweepInterval)

	mux := http.NewServeMux()
	mux.Handle("/", apiServer.Handler())
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	var wg sync.WaitGroup

	// Start expiry sweeper
	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Run(ctx) // exits when ctx is cancelled
	}()

	// Start HTTP server
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("reservationd up addr=%s db=%s retention=%s", cfg.Addr, cfg.DBPath, cfg.Retention)
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http server error: %v", err)
			// If server fails unexpectedly, trigger shutdown.
			stop()
		}
	}()

	// Wait for signal
	<-ctx.Done()
	log.Printf("shutdown signal received")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}

	// Wait for goroutines to finish
	wg.Wait()
	log.Printf("reservationd stopped")
}

func getenv(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
