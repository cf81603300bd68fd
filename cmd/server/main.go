package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"

	docs "github.com/tazhibayda/feed-service/docs"
	"github.com/tazhibayda/feed-service/internal/config"
	api "github.com/tazhibayda/feed-service/internal/http"
	"github.com/tazhibayda/feed-service/internal/log"
	"github.com/tazhibayda/feed-service/internal/metrics"
	"github.com/tazhibayda/feed-service/internal/provider"
	"github.com/tazhibayda/feed-service/internal/provider/memory"
	"github.com/tazhibayda/feed-service/internal/queue"
	"github.com/tazhibayda/feed-service/internal/repo"
)

// @title Feed API
// @version 0.1.0
// @description Email/password accounts, category posts and live feeds.
// @schemes http https
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg := config.Load()

	logger, err := log.Init(cfg.Production)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if cfg.Tracing {
		tracer.Start(tracer.WithService("feed-service"), tracer.WithServiceVersion("0.1.0"))
		defer tracer.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var (
		backend provider.Backend
		health  []api.Pinger
		// closed in reverse order after the server stops
		closers []func(context.Context) error
	)
	switch cfg.Backend {
	case "memory":
		logger.Warn("using in-memory backend; data is lost on restart")
		backend = memory.New()
	case "mongo":
		opts := []repo.Option{
			repo.WithJWTSecret(cfg.JWTSecret),
			repo.WithSessionTTL(time.Duration(cfg.TokenTTLHours) * time.Hour),
		}
		if cfg.RedisAddr != "" {
			rdb := repo.NewRedis(cfg.RedisAddr)
			if err := rdb.Ping(ctx); err != nil {
				logger.Fatal("redis ping", zap.Error(err))
			}
			closers = append(closers, func(context.Context) error { return rdb.Close() })
			opts = append(opts,
				repo.WithNotifier(repo.NewRedisNotifier(rdb, "")),
				repo.WithThrottle(repo.NewRedisThrottle(rdb, 5, 15*time.Minute)),
			)
			health = append(health, rdb)
		}
		store, err := repo.NewStore(ctx, cfg.MongoURI, cfg.MongoDB, opts...)
		if err != nil {
			logger.Fatal("mongo connect", zap.Error(err))
		}
		closers = append(closers, store.Close)
		if err := store.EnsureIndexes(ctx); err != nil {
			logger.Fatal("ensure indexes", zap.Error(err))
		}
		backend = store
		health = append(health, store)
	default:
		logger.Fatal("unknown backend", zap.String("backend", cfg.Backend))
	}

	var pub queue.Publisher = queue.NewNoop()
	if cfg.RabbitURL != "" {
		pub, err = queue.NewRabbit(cfg.RabbitURL, cfg.Exchange)
		if err != nil {
			logger.Fatal("rabbit connect", zap.Error(err))
		}
	}
	closers = append(closers, func(context.Context) error { return pub.Close() })

	metrics.MustRegister()
	docs.SwaggerInfo.BasePath = "/"

	h := api.NewHandler(backend, pub, cfg.Exchange)
	h.FeedLimit = cfg.FeedLimit
	h.SignInPerMin = cfg.SignInPerMin
	h.RateLimitPerMin = cfg.RateLimitPerMin
	h.TokenTTL = time.Duration(cfg.TokenTTLHours) * time.Hour
	h.Dev = !cfg.Production
	h.Health = health

	// cancelled on shutdown so open feed streams return
	baseCtx, cancelStreams := context.WithCancel(context.Background())
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(h),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	srv.RegisterOnShutdown(cancelStreams)

	srvErr := make(chan error, 1)
	go func() { srvErr <- srv.ListenAndServe() }()
	logger.Info("feed-service listening", zap.String("port", cfg.Port), zap.String("backend", cfg.Backend))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		logger.Info("shutting down", zap.String("signal", s.String()))
	case err := <-srvErr:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
		}
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	errs := srv.Shutdown(shutdownCtx)
	for i := len(closers) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, closers[i](shutdownCtx))
	}
	if errs != nil {
		logger.Error("shutdown", zap.Errors("errors", multierr.Errors(errs)))
	}
}
