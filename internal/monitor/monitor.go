// Package monitor runs monitoring passes: every tracked product is scraped,
// its price history and statistics are updated, and subscribers are notified.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"price-tracker/internal/lease"
	"price-tracker/internal/model"
	"price-tracker/internal/notify"
	"price-tracker/internal/pricing"
	"price-tracker/internal/scraper"
	"price-tracker/internal/store"
	"price-tracker/pkg/contextx"
	"price-tracker/pkg/logx"
)

const (
	passLeaseName      = "pricewatch:pass"
	passLeaseGrace     = 10 * time.Second
	defaultPassTimeout = 60 * time.Second
)

var logger = contextx.LoggerFromContextOrDefault //nolint:gochecknoglobals

// Notifier renders and delivers subscriber notifications.
type Notifier interface {
	Render(info notify.ProductInfo, t model.NotificationType) (notify.EmailContent, error)
	Deliver(ctx context.Context, content notify.EmailContent, recipients []string) error
}

type Options struct {
	// HistoryLimit caps the stored price history, oldest first. 0 keeps all.
	HistoryLimit int
	// Concurrency bounds the pipelines running at once. 0 runs all together.
	Concurrency int
	PassTimeout time.Duration
	// Locker coordinates overlapping passes. nil disables coordination.
	Locker     lease.Locker
	Registerer prometheus.Registerer
}

type Monitor struct {
	gateway  store.Gateway
	scraper  scraper.Scraper
	notifier Notifier
	opts     Options
	metrics  *metrics
	now      func() time.Time
}

func New(gateway store.Gateway, s scraper.Scraper, notifier Notifier, opts Options) *Monitor {
	if opts.PassTimeout <= 0 {
		opts.PassTimeout = defaultPassTimeout
	}

	return &Monitor{
		gateway:  gateway,
		scraper:  s,
		notifier: notifier,
		opts:     opts,
		metrics:  newMetrics(opts.Registerer),
		now:      time.Now,
	}
}

type outcome struct {
	product model.Product
	result  string
}

// RunPass runs one monitoring pass. It fails only when the product set cannot
// be fetched, is empty, or another pass holds the lease. Per-product failures
// leave that product unchanged in the result.
func (m *Monitor) RunPass(ctx context.Context) (*model.PassResult, error) {
	start := m.now()

	passID, err := contextx.PassIDFromContext(ctx)
	if err != nil {
		passID = contextx.NewPassID()
		ctx = contextx.WithPassID(ctx, passID)
	}

	log := logger(ctx).With(logx.Stringer(logx.FieldPassID, passID))
	ctx = contextx.WithLogger(ctx, log)

	ctx, cancel := context.WithTimeout(ctx, m.opts.PassTimeout)
	defer cancel()

	if m.opts.Locker != nil {
		held, err := m.opts.Locker.Acquire(ctx, passLeaseName, m.opts.PassTimeout+passLeaseGrace)
		if errors.Is(err, lease.ErrHeld) {
			m.metrics.passes.WithLabelValues(passInProgress).Inc()
			log.Warn("monitoring pass skipped, another pass is running")
			return nil, ErrPassInProgress
		}
		if err != nil {
			m.metrics.passes.WithLabelValues(passFailed).Inc()
			return nil, fmt.Errorf("acquire pass lease: %w", err)
		}

		defer func() {
			if err := held.Release(context.WithoutCancel(ctx)); err != nil {
				log.Warn("release pass lease", logx.Error(err))
			}
		}()
	}

	products, err := m.gateway.FetchAll(ctx)
	if err == nil && len(products) == 0 {
		err = ErrNoProducts
	}
	if err != nil {
		m.metrics.passes.WithLabelValues(passFailed).Inc()
		log.Error("monitoring pass failed", logx.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrBatchFetch, err)
	}

	log.Info("monitoring pass started", slog.Int(logx.FieldCount, len(products)))

	outcomes := make([]outcome, len(products))

	var g errgroup.Group
	if m.opts.Concurrency > 0 {
		g.SetLimit(m.opts.Concurrency)
	}

	for i, p := range products {
		g.Go(func() error {
			outcomes[i] = m.runPipeline(ctx, p)
			return nil
		})
	}

	_ = g.Wait()

	result := &model.PassResult{
		Message: "Ok",
		Data:    make([]model.Product, len(outcomes)),
	}

	for i, o := range outcomes {
		result.Data[i] = o.product
		if o.result == outcomeUpdated {
			result.Updated++
		}
		m.metrics.outcomes.WithLabelValues(o.result).Inc()
	}

	duration := m.now().Sub(start)
	m.metrics.passes.WithLabelValues(passSuccess).Inc()
	m.metrics.duration.Observe(duration.Seconds())

	log.Info("monitoring pass completed",
		slog.Int(logx.FieldCount, len(products)),
		slog.Int("updated", result.Updated),
		slog.Int64(logx.FieldDurationMs, duration.Milliseconds()),
	)

	return result, nil
}

// runPipeline processes one product. Every failure, panics included, leaves
// the stored product as the outcome.
func (m *Monitor) runPipeline(ctx context.Context, stored model.Product) (out outcome) {
	log := logger(ctx).With(slog.String(logx.FieldURL, stored.URL))

	defer func() {
		if r := recover(); r != nil {
			err := &ProductError{Stage: StageUnexpected, URL: stored.URL, Err: fmt.Errorf("panic: %v", r)}
			log.Error("product pipeline panicked",
				slog.String(logx.FieldStage, StageUnexpected.String()),
				slog.String(logx.FieldOutcome, outcomeUnexpected),
				logx.Error(err),
			)
			out = outcome{product: stored, result: outcomeUnexpected}
		}
	}()

	scraped, err := m.scraper.Scrape(ctx, stored.URL)
	if err == nil && (scraped == nil || (scraped.CurrentPrice <= 0 && !scraped.IsOutOfStock)) {
		err = errEmptyScrape
	}
	if err != nil {
		err = &ProductError{Stage: StageScrape, URL: stored.URL, Err: err}
		log.Warn("product left unchanged",
			slog.String(logx.FieldStage, StageScrape.String()),
			slog.String(logx.FieldOutcome, outcomeScrapeFailed),
			logx.Error(err),
		)
		return outcome{product: stored, result: outcomeScrapeFailed}
	}

	next, err := m.merge(stored, *scraped)
	if err != nil {
		err = &ProductError{Stage: StageUnexpected, URL: stored.URL, Err: err}
		log.Error("product left unchanged",
			slog.String(logx.FieldStage, StageUnexpected.String()),
			slog.String(logx.FieldOutcome, outcomeUnexpected),
			logx.Error(err),
		)
		return outcome{product: stored, result: outcomeUnexpected}
	}

	updated, err := m.gateway.UpsertByURL(ctx, stored.URL, next)
	if err == nil && updated == nil {
		err = store.ErrProductNotFound
	}
	if err != nil {
		err = &ProductError{Stage: StagePersist, URL: stored.URL, Err: err}
		log.Warn("product left unchanged",
			slog.String(logx.FieldStage, StagePersist.String()),
			slog.String(logx.FieldOutcome, outcomePersistFailed),
			logx.Error(err),
		)
		return outcome{product: stored, result: outcomePersistFailed}
	}

	kind := pricing.Classify(*scraped, stored)
	if kind != model.NotificationNone && len(updated.Users) > 0 {
		if err := m.dispatch(ctx, *updated, kind); err != nil {
			log.Warn("notification not delivered",
				slog.String(logx.FieldStage, StageDispatch.String()),
				logx.Stringer("type", kind),
				logx.Error(err),
			)
		}
	}

	log.Debug("product updated",
		slog.String(logx.FieldOutcome, outcomeUpdated),
		slog.Float64("price", updated.CurrentPrice),
	)

	return outcome{product: *updated, result: outcomeUpdated}
}

// merge builds the next state of stored from a scrape: scraped fields, the
// new price appended to the history and recomputed statistics. An out of
// stock scrape without a price records the stock state and keeps the stored
// prices, history and statistics.
func (m *Monitor) merge(stored model.Product, scraped model.ScrapeResult) (model.Product, error) {
	next := stored.Clone()

	if scraped.CurrentPrice <= 0 {
		scraped.Currency = stored.Currency
		scraped.CurrentPrice = stored.CurrentPrice
		scraped.OriginalPrice = stored.OriginalPrice
		scraped.DiscountRate = stored.DiscountRate
		next.Apply(scraped)
		return next, nil
	}

	next.Apply(scraped)

	next.PriceHistory = append(next.PriceHistory, model.PricePoint{
		Price: scraped.CurrentPrice,
		Date:  m.now().UTC(),
	})
	next.PriceHistory = pricing.Trim(next.PriceHistory, m.opts.HistoryLimit)

	summary, err := pricing.Summarize(next.PriceHistory)
	if err != nil {
		return model.Product{}, err
	}

	next.LowestPrice = summary.Lowest
	next.HighestPrice = summary.Highest
	next.AveragePrice = summary.Average

	return next, nil
}

func (m *Monitor) dispatch(ctx context.Context, p model.Product, kind model.NotificationType) error {
	err := m.deliver(ctx, p, kind)
	if err != nil {
		m.metrics.notifications.WithLabelValues(kind.String(), "failed").Inc()
		return &ProductError{Stage: StageDispatch, URL: p.URL, Err: err}
	}

	m.metrics.notifications.WithLabelValues(kind.String(), "sent").Inc()

	logger(ctx).Info("notification sent",
		slog.String(logx.FieldURL, p.URL),
		logx.Stringer("type", kind),
		slog.Int(logx.FieldRecipients, len(p.Users)),
	)

	return nil
}

func (m *Monitor) deliver(ctx context.Context, p model.Product, kind model.NotificationType) error {
	content, err := m.notifier.Render(notify.InfoFromProduct(p), kind)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}

	return m.notifier.Deliver(ctx, content, p.Emails())
}
