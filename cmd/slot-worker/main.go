package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/smartmed/scheduling/internal/config"
	"github.com/smartmed/scheduling/internal/db"
	"github.com/smartmed/scheduling/internal/schedule"
)

// slot-worker keeps the bookable horizon full: it periodically expands
// every weekly availability window into concrete time slots out to
// HORIZON_DAYS, so that days patients have not yet browsed still get
// materialized ahead of demand.
func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("slot-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running slot worker in env=%s interval=%s horizon_days=%d",
		cfg.Env, cfg.WorkerInterval, cfg.HorizonDays)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()
	log.Println("connected to Postgres")

	store := schedule.NewPgStore(pgPool)
	svc := schedule.NewService(store, cfg.HorizonDays)

	// Run once at startup
	runOnce(rootCtx, svc)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Println("shutdown signal received, stopping slot worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc)
		}
	}
}

func runOnce(ctx context.Context, svc *schedule.Service) {
	runCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	start := time.Now()
	if err := svc.ExtendHorizon(runCtx, time.Now()); err != nil {
		log.Printf("horizon run error: %v", err)
		return
	}
	log.Printf("horizon run complete in %s", time.Since(start))
}
