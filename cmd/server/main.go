package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	checkinhandler "shepherd/internal/checkin/handler"
	checkinmetrics "shepherd/internal/checkin/metrics"
	"shepherd/internal/checkin/service"
	"shepherd/internal/checkin/statemachine"
	"shepherd/internal/checkin/store"
	"shepherd/internal/checkin/store/memory"
	"shepherd/internal/checkin/store/postgres"
	"shepherd/internal/platform/config"
	"shepherd/internal/platform/httpserver"
	"shepherd/internal/platform/kafka"
	"shepherd/internal/platform/logger"
	"shepherd/internal/platform/middleware"
	redisplatform "shepherd/internal/platform/redis"
	"shepherd/internal/realtime/hub"
	httptransport "shepherd/internal/transport/http"
	"shepherd/pkg/platform/audit"
	auditmemory "shepherd/pkg/platform/audit/store/memory"
	auditworker "shepherd/pkg/platform/audit/worker"
)

// main wires the check-in server: repository, audit pipeline, realtime hub,
// and the HTTP surface. Business logic lives in the internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		repo   store.Repository
		pool   *pgxpool.Pool
		health func(ctx context.Context) error
	)
	if cfg.DatabaseURL != "" {
		var err error
		pool, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("connect postgres", "error", err)
			return
		}
		defer pool.Close()
		if err := postgres.Migrate(ctx, pool); err != nil {
			log.Error("migrate postgres", "error", err)
			return
		}
		repo = postgres.New(pool)
		health = pool.Ping
		log.Info("using postgres repository")
	} else {
		repo = memory.New()
		log.Info("using in-memory repository")
	}

	redisClient, err := redisplatform.New(cfg.Redis)
	if err != nil {
		log.Error("connect redis", "error", err)
		return
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	producer, err := kafka.NewProducer(cfg.Kafka)
	if err != nil {
		log.Error("connect kafka", "error", err)
		return
	}
	var publisher audit.Publisher
	if producer != nil {
		defer producer.Close()
		publisher = producer
		log.Info("audit publishing enabled", "topic", cfg.Kafka.AuditTopic)
	}

	auditInbox := make(chan audit.Event, 256)
	auditStore := auditmemory.New()
	worker := auditworker.NewWorker(auditStore, publisher, auditInbox, log)

	syncHub := hub.New(hub.WithLogger(log))

	svc, err := service.New(repo, statemachine.New(),
		service.WithLogger(log),
		service.WithMetrics(checkinmetrics.New()),
		service.WithNotifier(syncHub),
		service.WithAuditInbox(auditInbox),
	)
	if err != nil {
		log.Error("build check-in service", "error", err)
		return
	}

	router := httptransport.NewRouter(httptransport.Deps{
		CheckIn: checkinhandler.New(svc, log),
		Hub:     syncHub,
		Auth:    middleware.NewTokenValidator(cfg.JWTSigningKey),
		Logger:  log,
		Health:  health,
	})
	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := worker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.Info("starting shepherd check-in server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited", "error", err)
	}
}
