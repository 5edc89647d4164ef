package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/robertarktes/seat-reservation-engine/internal/adapters/crdb"
	mongoadapter "github.com/robertarktes/seat-reservation-engine/internal/adapters/mongo"
	"github.com/robertarktes/seat-reservation-engine/internal/adapters/rabbit"
	redisadapter "github.com/robertarktes/seat-reservation-engine/internal/adapters/redis"
	"github.com/robertarktes/seat-reservation-engine/internal/config"
	httphandler "github.com/robertarktes/seat-reservation-engine/internal/http"
	"github.com/robertarktes/seat-reservation-engine/internal/idempotency"
	"github.com/robertarktes/seat-reservation-engine/internal/inventory"
	"github.com/robertarktes/seat-reservation-engine/internal/ledger"
	"github.com/robertarktes/seat-reservation-engine/internal/notify"
	"github.com/robertarktes/seat-reservation-engine/internal/observability"
	"github.com/robertarktes/seat-reservation-engine/internal/ratelimit"
	"github.com/robertarktes/seat-reservation-engine/internal/sweeper"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	store := crdb.NewStore(pool)
	if err := store.Migrate(context.Background()); err != nil {
		log.Fatalf("failed to migrate: %v", err)
	}

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	mongoDB := mongoClient.Database("reservations")
	catalog := mongoadapter.NewCatalogRepository(mongoDB, logger)
	auditor := mongoadapter.NewAuditLogger(mongoDB, logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	redisCache := redisadapter.NewCache(redisClient)
	redisIdemp := redisadapter.NewIdempotency(redisClient)
	idemp := idempotency.NewIdempotency(redisIdemp, cfg.IdempotencyTTL)
	rl := ratelimit.NewRateLimiter(redisCache)

	rabbitConn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer rabbitConn.Close()
	rabbitPub, err := rabbit.NewPublisher(rabbitConn)
	if err != nil {
		log.Fatalf("failed to create publisher: %v", err)
	}
	emitter := notify.NewRabbitEmitter(rabbitPub, logger)

	seats, reservations, err := store.Load(context.Background())
	if err != nil {
		log.Fatalf("failed to load state: %v", err)
	}
	inv := inventory.New(inventory.WithLockWait(cfg.LockWait))
	inv.Load(seats)

	ldg := ledger.New(inv, store, catalog, emitter, logger,
		ledger.WithHoldTTL(cfg.HoldTTL),
		ledger.WithCancelCutoff(cfg.CancelCutoff),
		ledger.WithPastEventCancel(cfg.AllowPastEventCancel),
		ledger.WithAuditor(auditor),
	)
	ldg.Restore(reservations)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sw := sweeper.New(ldg, logger, sweeper.WithInterval(cfg.SweepInterval))
	sw.Start(ctx)

	handlers := httphandler.NewHandlers(ldg, inv, idemp)
	router := httphandler.SetupRouter(handlers, logger, rl, cfg.JWTSecret)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()
	logger.WithField("addr", cfg.ListenAddr).Info("api started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	sw.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}
	logger.Info("Server exiting")
}
