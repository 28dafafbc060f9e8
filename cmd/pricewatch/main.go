// Command pricewatch serves the product API and runs scheduled monitoring passes.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"price-tracker/internal/api"
	"price-tracker/internal/config"
	"price-tracker/internal/lease"
	"price-tracker/internal/model"
	"price-tracker/internal/monitor"
	"price-tracker/internal/notify"
	"price-tracker/internal/queue"
	"price-tracker/internal/scraper"
	"price-tracker/internal/store"
	"price-tracker/pkg/contextx"
	"price-tracker/pkg/logx"
)

const shutdownTimeout = 15 * time.Second

// passFunc lets queued passes go through the scheduler so their status is recorded.
type passFunc func(ctx context.Context) (*model.PassResult, error)

func (f passFunc) RunPass(ctx context.Context) (*model.PassResult, error) {
	return f(ctx)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load", logx.Error(err))
		os.Exit(1)
	}

	log := logx.New(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)
	ctx = contextx.WithLogger(ctx, log)

	if err := run(ctx, cfg, log); err != nil {
		log.Error("application failed", logx.Error(err))
		os.Exit(1)
	}

	log.Info("application stopped")
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	// 1. Storage
	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Error("store.Close", logx.Error(err))
		}
	}()

	// 2. Pass lease
	var locker lease.Locker = lease.NewMemoryLocker()
	if cfg.Redis.Address != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		log.Info("redis connected", slog.String("address", cfg.Redis.Address), slog.Int("database", cfg.Redis.DB))

		locker = lease.NewRedisLocker(rdb)
	}

	// 3. Scraper
	client, err := scraper.NewClient(scraper.ClientOptions{
		UserAgent:  cfg.Scraper.UserAgent,
		Timeout:    cfg.Scraper.Timeout,
		MaxRetries: cfg.Scraper.MaxRetries,
		ProxyURL:   cfg.Scraper.ProxyURL,
	})
	if err != nil {
		return fmt.Errorf("scraper client: %w", err)
	}
	pageScraper := scraper.NewProductPageScraper(client)

	// 4. Notifications
	dispatcher, err := newDispatcher(cfg, log)
	if err != nil {
		return err
	}

	// 5. Monitor
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	mon := monitor.New(st, pageScraper, dispatcher, monitor.Options{
		HistoryLimit: cfg.Store.HistoryLimit,
		Concurrency:  cfg.Monitor.Concurrency,
		PassTimeout:  cfg.Monitor.PassTimeout,
		Locker:       locker,
		Registerer:   registry,
	})
	scheduler := scraper.NewScheduler(mon, cfg.Scraper.Interval, log)

	g, gctx := errgroup.WithContext(ctx)

	switch cfg.Scheduler.Mode {
	case "ticker":
		scheduler.Start(gctx)
		defer scheduler.Stop()
	case "asynq":
		queue.Server{
			RedisUsername: cfg.Redis.Username,
			RedisPassword: cfg.Redis.Password,
			RedisAddress:  cfg.Redis.Address,
			RedisDB:       cfg.Redis.DB,
			CronSpec:      cfg.Scheduler.Cron,
			PassTimeout:   cfg.Monitor.PassTimeout,
		}.Run(gctx, g, queue.NewHandler(passFunc(scheduler.ScrapeNow)))
	default:
		log.Info("scheduled passes disabled")
	}

	// 6. HTTP
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	api.SetupRoutes(router, api.NewHandlers(st, pageScraper, dispatcher, scheduler), log, registry, cfg.CronSecret)

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		go func() {
			<-gctx.Done()

			ctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout) //nolint:govet
			defer cancel()

			if err := server.Shutdown(ctx); err != nil {
				log.Error("server.Shutdown", logx.Error(err))
			}
		}()

		log.Info("http server started", slog.String("address", server.Addr))

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("httpServer.ListenAndServe: %w", err)
		}

		log.Info("http server stopped", slog.String("address", server.Addr))

		return nil
	})

	return g.Wait()
}

func openStore(ctx context.Context, cfg config.Store) (store.Store, error) {
	switch cfg.Driver {
	case "file":
		return store.NewFileStore(cfg.DataDir)
	case "postgres":
		return openSQL(ctx, store.DriverPostgres, cfg.DSN, cfg)
	default:
		dsn := cfg.DSN
		if dsn == "" {
			var err error
			if dsn, err = store.SQLiteDSN(cfg.DataDir); err != nil {
				return nil, err
			}
		}
		return openSQL(ctx, store.DriverSQLite, dsn, cfg)
	}
}

func openSQL(ctx context.Context, driver, dsn string, cfg config.Store) (store.Store, error) {
	return store.Open(ctx, store.Options{
		Driver:          driver,
		DSN:             dsn,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})
}

func newDispatcher(cfg config.Config, log *slog.Logger) (*notify.Dispatcher, error) {
	email := notify.NewEmailService(notify.EmailOptions{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.User,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})
	if !email.IsEnabled() {
		log.Warn("email notifications disabled, SMTP credentials missing")
	}

	var mirrors []notify.Mirror

	if cfg.Telegram.BotToken != "" {
		tg, err := notify.NewTelegramMirror(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			return nil, fmt.Errorf("telegram mirror: %w", err)
		}
		mirrors = append(mirrors, tg)
	}

	if cfg.Bark.Key != "" {
		mirrors = append(mirrors, notify.NewBarkMirror(cfg.Bark.ServerURL, cfg.Bark.Key))
	}

	return notify.NewDispatcher(email, mirrors...), nil
}
