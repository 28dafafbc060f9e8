// Package queue schedules monitoring passes through asynq so that replicas
// sharing one Redis run each scheduled pass once.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"price-tracker/internal/model"
	"price-tracker/internal/monitor"
	"price-tracker/pkg/contextx"
	"price-tracker/pkg/logx"
)

const (
	TypeRunPass = "pricewatch:run_pass"
	queueName   = "pricewatch"
)

var logger = contextx.LoggerFromContextOrDefault //nolint:gochecknoglobals

type PassRunner interface {
	RunPass(ctx context.Context) (*model.PassResult, error)
}

// NewRunPassTask builds the task that triggers one pass. Failed passes are not
// retried; the next scheduled pass picks the products up again.
func NewRunPassTask(timeout time.Duration) *asynq.Task {
	return asynq.NewTask(TypeRunPass, nil,
		asynq.Queue(queueName),
		asynq.MaxRetry(0),
		asynq.Timeout(timeout),
	)
}

type Handler struct {
	runner PassRunner
}

func NewHandler(runner PassRunner) Handler {
	return Handler{runner: runner}
}

func (h Handler) HandleRunPass(ctx context.Context, _ *asynq.Task) error {
	result, err := h.runner.RunPass(ctx)
	if errors.Is(err, monitor.ErrPassInProgress) {
		logger(ctx).Info("scheduled pass skipped, another pass is running")
		return nil
	}
	if err != nil {
		return fmt.Errorf("run pass: %w: %w", err, asynq.SkipRetry)
	}

	logger(ctx).Info("scheduled pass finished",
		slog.Int(logx.FieldCount, len(result.Data)),
		slog.Int("updated", result.Updated),
	)

	return nil
}

// Server runs the asynq worker and the periodic scheduler that enqueues passes.
type Server struct {
	RedisUsername string
	RedisPassword string
	RedisAddress  string
	RedisDB       int
	// CronSpec is a cron expression or "@every <duration>".
	CronSpec    string
	PassTimeout time.Duration
}

func (s Server) redisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     s.RedisAddress,
		Username: s.RedisUsername,
		Password: s.RedisPassword,
		DB:       s.RedisDB,
	}
}

func (s Server) Run(ctx context.Context, g *errgroup.Group, handler Handler) {
	g.Go(func() error {
		worker := asynq.NewServer(s.redisOpt(), asynq.Config{
			BaseContext: func() context.Context { return ctx },
			Queues:      map[string]int{queueName: 1},
			Concurrency: 1,
		})

		mux := asynq.NewServeMux()
		mux.HandleFunc(TypeRunPass, handler.HandleRunPass)

		if err := worker.Start(mux); err != nil {
			return fmt.Errorf("asynqServer.Start: %w", err)
		}

		logger(ctx).Info("asynq server started", slog.String("redis-address", s.RedisAddress), slog.Int("redis-db", s.RedisDB))

		<-ctx.Done()
		worker.Shutdown()

		logger(ctx).Info("asynq server stopped", slog.String("redis-address", s.RedisAddress), slog.Int("redis-db", s.RedisDB))

		return nil
	})

	g.Go(func() error {
		scheduler := asynq.NewScheduler(s.redisOpt(), &asynq.SchedulerOpts{
			Location: time.UTC,
		})

		entryID, err := scheduler.Register(s.CronSpec, NewRunPassTask(s.PassTimeout))
		if err != nil {
			return fmt.Errorf("asynqScheduler.Register: %w", err)
		}

		if err := scheduler.Start(); err != nil {
			return fmt.Errorf("asynqScheduler.Start: %w", err)
		}

		logger(ctx).Info("asynq scheduler started", slog.String("cron", s.CronSpec), slog.String("entry-id", entryID))

		<-ctx.Done()
		scheduler.Shutdown()

		logger(ctx).Info("asynq scheduler stopped")

		return nil
	})
}
