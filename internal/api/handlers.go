package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"price-tracker/internal/model"
	"price-tracker/internal/monitor"
	"price-tracker/internal/notify"
	"price-tracker/internal/pricing"
	"price-tracker/internal/scraper"
	"price-tracker/internal/store"
	"price-tracker/pkg/contextx"
	"price-tracker/pkg/logx"
)

var logger = contextx.LoggerFromContextOrDefault //nolint:gochecknoglobals

// SchedulerInterface defines the scheduler interface for handlers
type SchedulerInterface interface {
	ScrapeNow(ctx context.Context) (*model.PassResult, error)
	Status() scraper.SchedulerStatus
}

// Notifier sends subscriber emails.
type Notifier interface {
	Render(info notify.ProductInfo, t model.NotificationType) (notify.EmailContent, error)
	Deliver(ctx context.Context, content notify.EmailContent, recipients []string) error
}

// Handlers contains all API handlers
type Handlers struct {
	store     store.Store
	scraper   scraper.Scraper
	notifier  Notifier
	scheduler SchedulerInterface
	now       func() time.Time
}

// NewHandlers creates a new handlers instance
func NewHandlers(s store.Store, sc scraper.Scraper, notifier Notifier, scheduler SchedulerInterface) *Handlers {
	return &Handlers{
		store:     s,
		scraper:   sc,
		notifier:  notifier,
		scheduler: scheduler,
		now:       time.Now,
	}
}

// pinger is implemented by stores backed by a database connection.
type pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheck returns the health status. Stores with a connection are pinged.
func (h *Handlers) HealthCheck(c *gin.Context) {
	if p, ok := h.store.(pinger); ok {
		if err := p.Ping(c.Request.Context()); err != nil {
			logger(c.Request.Context()).Error("store ping", logx.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "unavailable",
				"timestamp": h.now().Unix(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": h.now().Unix(),
	})
}

// RunPass runs one monitoring pass and returns every product's outcome.
func (h *Handlers) RunPass(c *gin.Context) {
	// A disconnecting caller must not cancel the pass; the pass timeout bounds it.
	result, err := h.scheduler.ScrapeNow(context.WithoutCancel(c.Request.Context()))
	if errors.Is(err, monitor.ErrPassInProgress) {
		c.JSON(http.StatusConflict, model.PassFailure{
			Message: "Failed to get all products: " + err.Error(),
			Error:   true,
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.PassFailure{
			Message: "Failed to get all products: " + err.Error(),
			Error:   true,
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetProducts returns all products with optional filters
func (h *Handlers) GetProducts(c *gin.Context) {
	products, err := h.store.FetchAll(c.Request.Context())
	if err != nil {
		h.internalError(c, "list products", err)
		return
	}

	if category := c.Query("category"); category != "" {
		products = slices.DeleteFunc(products, func(p model.Product) bool {
			return !strings.EqualFold(p.Category, category)
		})
	}

	if stock := c.Query("in_stock"); stock != "" {
		inStock := stock == "true" || stock == "1"
		products = slices.DeleteFunc(products, func(p model.Product) bool {
			return p.IsOutOfStock == inStock
		})
	}

	sortProducts(products, c.Query("sort"), c.Query("order") == "desc")

	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.JSON(http.StatusOK, gin.H{
		"count":    len(products),
		"products": products,
	})
}

// GetProduct returns a single product by ID
func (h *Handlers) GetProduct(c *gin.Context) {
	product, err := h.store.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.storeError(c, "get product", err)
		return
	}

	c.JSON(http.StatusOK, product)
}

// GetProductHistory returns the newest price points of a product
func (h *Handlers) GetProductHistory(c *gin.Context) {
	product, err := h.store.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.storeError(c, "get product", err)
		return
	}

	// Parse limit parameter (capped at maxLimit)
	const maxLimit = 1000
	limit := 50
	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = min(l, maxLimit)
		}
	}

	history := pricing.Trim(product.PriceHistory, limit)

	c.JSON(http.StatusOK, gin.H{
		"product_id":    product.ID,
		"count":         len(history),
		"history":       history,
		"lowest_price":  product.LowestPrice,
		"highest_price": product.HighestPrice,
		"average_price": product.AveragePrice,
	})
}

// TrackProduct scrapes a new product page and starts tracking it. An already
// tracked url returns the stored product.
func (h *Handlers) TrackProduct(c *gin.Context) {
	var req struct {
		URL         string   `json:"url" binding:"required,url"`
		TargetPrice *float64 `json:"target_price" binding:"omitempty,gte=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()

	existing, err := h.store.GetByURL(ctx, req.URL)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, existing)
		return
	case !errors.Is(err, store.ErrProductNotFound):
		h.internalError(c, "get product", err)
		return
	}

	scraped, err := h.scraper.Scrape(ctx, req.URL)
	if err != nil || scraped == nil {
		logger(ctx).Warn("scrape for tracking failed", slog.String(logx.FieldURL, req.URL), logx.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "could not read product page"})
		return
	}

	product, err := newProduct(req.URL, *scraped, h.now())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	product.TargetPrice = req.TargetPrice

	stored, created, err := h.store.TrackProduct(ctx, product)
	if err != nil {
		h.storeError(c, "track product", err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		logger(ctx).Info("product tracked",
			slog.String(logx.FieldURL, stored.URL),
			slog.String(logx.FieldCategory, stored.Category),
		)
	}

	c.JSON(status, stored)
}

func newProduct(url string, scraped model.ScrapeResult, now time.Time) (model.Product, error) {
	if scraped.CurrentPrice <= 0 {
		return model.Product{}, fmt.Errorf("no price found on %s", url)
	}

	product := model.Product{URL: url}
	product.Apply(scraped)
	product.PriceHistory = []model.PricePoint{{Price: scraped.CurrentPrice, Date: now.UTC()}}

	summary, err := pricing.Summarize(product.PriceHistory)
	if err != nil {
		return model.Product{}, err
	}

	product.LowestPrice = summary.Lowest
	product.HighestPrice = summary.Highest
	product.AveragePrice = summary.Average

	return product, nil
}

// AddSubscriber subscribes an email to a product and sends the welcome email.
func (h *Handlers) AddSubscriber(c *gin.Context) {
	var req model.User
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()

	product, added, err := h.store.AddSubscriber(ctx, c.Param("id"), req)
	if err != nil {
		h.storeError(c, "add subscriber", err)
		return
	}

	if !added {
		c.JSON(http.StatusOK, gin.H{"product": product, "notified": false})
		return
	}

	notified := h.sendWelcome(ctx, *product, strings.ToLower(strings.TrimSpace(req.Email)))

	c.JSON(http.StatusCreated, gin.H{"product": product, "notified": notified})
}

func (h *Handlers) sendWelcome(ctx context.Context, product model.Product, email string) bool {
	content, err := h.notifier.Render(notify.InfoFromProduct(product), model.NotificationWelcome)
	if err == nil {
		err = h.notifier.Deliver(ctx, content, []string{email})
	}
	if err != nil {
		logger(ctx).Warn("welcome email not delivered",
			slog.String(logx.FieldURL, product.URL),
			logx.Error(err),
		)
		return false
	}

	return true
}

// SetTargetPrice sets or clears (null) the alert threshold of a product.
func (h *Handlers) SetTargetPrice(c *gin.Context) {
	var req struct {
		TargetPrice *float64 `json:"target_price" binding:"omitempty,gte=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	product, err := h.store.SetTargetPrice(c.Request.Context(), c.Param("id"), req.TargetPrice)
	if err != nil {
		h.storeError(c, "set target price", err)
		return
	}

	c.JSON(http.StatusOK, product)
}

// DeleteProduct stops tracking a product
func (h *Handlers) DeleteProduct(c *gin.Context) {
	if err := h.store.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.storeError(c, "delete product", err)
		return
	}

	c.Status(http.StatusNoContent)
}

// GetStats returns product and subscriber totals with the last pass.
func (h *Handlers) GetStats(c *gin.Context) {
	products, err := h.store.FetchAll(c.Request.Context())
	if err != nil {
		h.internalError(c, "list products", err)
		return
	}

	subscribers := map[string]struct{}{}
	outOfStock := 0
	for _, p := range products {
		if p.IsOutOfStock {
			outOfStock++
		}
		for _, u := range p.Users {
			subscribers[u.Email] = struct{}{}
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"products":     len(products),
		"out_of_stock": outOfStock,
		"subscribers":  len(subscribers),
		"last_pass":    h.scheduler.Status().LastPass,
	})
}

// GetSchedulerStatus returns the scheduler state
func (h *Handlers) GetSchedulerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.scheduler.Status())
}

func (h *Handlers) storeError(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, store.ErrProductNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
	case errors.Is(err, store.ErrInvalidProduct), errors.Is(err, model.ErrInvalidUser):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.internalError(c, op, err)
	}
}

func (h *Handlers) internalError(c *gin.Context, op string, err error) {
	logger(c.Request.Context()).Error(op, logx.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

// sortProducts sorts in place by price, discount, lowest or created (default).
func sortProducts(products []model.Product, sortBy string, desc bool) {
	key := func(p model.Product) float64 {
		switch sortBy {
		case "price":
			return p.CurrentPrice
		case "discount":
			return p.DiscountRate
		case "lowest":
			return p.LowestPrice
		default:
			return float64(p.CreatedAt.UnixMilli())
		}
	}

	slices.SortStableFunc(products, func(a, b model.Product) int {
		ka, kb := key(a), key(b)
		if desc {
			ka, kb = kb, ka
		}
		switch {
		case ka < kb:
			return -1
		case ka > kb:
			return 1
		default:
			return 0
		}
	})
}
