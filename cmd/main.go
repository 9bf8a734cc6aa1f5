package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vnkhanh/forum-notify-backend/broker"
	"github.com/vnkhanh/forum-notify-backend/config"
	"github.com/vnkhanh/forum-notify-backend/controllers"
	"github.com/vnkhanh/forum-notify-backend/logging"
	"github.com/vnkhanh/forum-notify-backend/middleware"
	"github.com/vnkhanh/forum-notify-backend/routes"
	"github.com/vnkhanh/forum-notify-backend/services"
	"github.com/vnkhanh/forum-notify-backend/ws"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	db, err := config.OpenDB(cfg)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	rdb, err := config.NewRedis(ctx, cfg, logging.Component(log, "redis"))
	if err != nil {
		return err
	}
	defer rdb.Close()

	mgr := broker.NewManager(cfg.RabbitMQURL, logging.Component(log, "broker"),
		broker.WithDeadLetterExchange(cfg.DeadLetterExchange))
	defer mgr.Close()

	broadcaster := services.NewRedisBroadcaster(rdb)
	cache := services.NewRecentCache(rdb)
	publisher := services.NewNotificationPublisher(broadcaster, mgr, logging.Component(log, "publisher"))
	store := services.NewNotificationStore(db)
	svc := services.NewNotificationService(
		store,
		publisher,
		cache,
		logging.Component(log, "notifications"),
	)

	hub := ws.NewHub(broadcaster, logging.Component(log, "hub"))
	gateway := ws.NewGateway(hub, cfg.JWTSecret, cfg.CORSAllowOrigins, logging.Component(log, "gateway"))

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(logging.Component(log, "http")))

	//Bật CORS
	corsCfg := cors.Config{
		AllowOrigins:     cfg.CORSAllowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Auth-Token"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}
	if len(cfg.CORSAllowOrigins) == 0 {
		corsCfg.AllowOrigins = nil
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	}
	r.Use(cors.New(corsCfg))

	routes.SetupRouter(r, routes.Deps{
		JWTSecret:     cfg.JWTSecret,
		Notifications: controllers.NewNotificationController(svc),
		Health: controllers.NewHealthController(
			controllers.PingFunc(svc.PingStore),
			controllers.PingFunc(svc.PingCache),
			hub,
		),
		Gateway: gateway,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if cfg.WorkerEnabled {
		workerLog := logging.Component(log, "worker")
		consumer := broker.NewConsumer(mgr, broker.ConsumerConfig{
			Tag:                "notification-worker",
			DeadLetterExchange: cfg.DeadLetterExchange,
		}, workerLog)
		worker := services.NewNotificationWorker(cache, consumer, workerLog)
		g.Go(func() error { return worker.Run(gctx) })
	}

	if cfg.RetentionMaxAge > 0 {
		job := services.NewRetentionJob(store, cfg.RetentionMaxAge, cfg.RetentionInterval, logging.Component(log, "retention"))
		g.Go(func() error { return job.Run(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		return shutdown(srv, hub, log)
	})

	return g.Wait()
}

// shutdown đóng các websocket trước để handler của chúng kết thúc, rồi mới dừng HTTP server.
func shutdown(srv *http.Server, hub *ws.Hub, log zerolog.Logger) error {
	log.Info().Msg("shutting down")
	hub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
