package api_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"price-tracker/internal/api"
	"price-tracker/internal/model"
	"price-tracker/internal/monitor"
	"price-tracker/internal/monitor/mocks"
	"price-tracker/internal/notify"
	"price-tracker/internal/scraper"
	"price-tracker/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary //nolint:gochecknoglobals

type fakeScheduler struct {
	result *model.PassResult
	err    error
	ctxErr error
}

func (f *fakeScheduler) ScrapeNow(ctx context.Context) (*model.PassResult, error) {
	f.ctxErr = ctx.Err()
	return f.result, f.err
}

func (f *fakeScheduler) Status() scraper.SchedulerStatus {
	return scraper.SchedulerStatus{Interval: "1h0m0s", LastPass: model.PassStatus{Status: "never"}}
}

type env struct {
	router    *gin.Engine
	store     *store.FileStore
	scraper   *mocks.MockScraper
	notifier  *mocks.MockNotifier
	scheduler *fakeScheduler
}

func newEnv(t *testing.T, cronSecret string) env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	fs, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)

	e := env{
		router:    gin.New(),
		store:     fs,
		scraper:   new(mocks.MockScraper),
		notifier:  new(mocks.MockNotifier),
		scheduler: &fakeScheduler{},
	}

	handlers := api.NewHandlers(fs, e.scraper, e.notifier, e.scheduler)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	api.SetupRoutes(e.router, handlers, log, prometheus.NewRegistry(), cronSecret)

	return e
}

func (e env) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func (e env) seed(t *testing.T, url string, price float64) model.Product {
	t.Helper()

	p, _, err := e.store.TrackProduct(context.Background(), model.Product{
		URL:          url,
		Title:        "Product " + url,
		CurrentPrice: price,
		PriceHistory: []model.PricePoint{{Price: price}},
		LowestPrice:  price,
		HighestPrice: price,
		AveragePrice: price,
	})
	require.NoError(t, err)
	return *p
}

func TestHealthCheck(t *testing.T) {
	e := newEnv(t, "")

	w := e.do(http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ok", decode[map[string]any](t, w)["status"])
}

func TestHealthCheckPingsStore(t *testing.T) {
	rq := require.New(t)
	gin.SetMode(gin.TestMode)

	sqlStore, err := store.Open(context.Background(), store.Options{
		Driver:       store.DriverSQLite,
		DSN:          ":memory:",
		MaxOpenConns: 1,
	})
	rq.NoError(err)

	router := gin.New()
	handlers := api.NewHandlers(sqlStore, new(mocks.MockScraper), new(mocks.MockNotifier), &fakeScheduler{})
	api.SetupRoutes(router, handlers, slog.New(slog.NewTextHandler(io.Discard, nil)), prometheus.NewRegistry(), "")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	rq.Equal(http.StatusOK, w.Code)

	rq.NoError(sqlStore.Close())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	rq.Equal(http.StatusServiceUnavailable, w.Code)
}

func TestRunPassOutlivesCallerCancellation(t *testing.T) {
	rq := require.New(t)
	e := newEnv(t, "")
	e.scheduler.result = &model.PassResult{Message: "Ok"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/cron", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	rq.Equal(http.StatusOK, w.Code)
	rq.NoError(e.scheduler.ctxErr)
}

func TestRunPassEndpoint(t *testing.T) {
	testCases := []struct {
		name       string
		result     *model.PassResult
		err        error
		secret     string
		auth       string
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "success",
			result:     &model.PassResult{Message: "Ok", Data: []model.Product{{URL: "a"}}},
			wantStatus: http.StatusOK,
			wantMsg:    "Ok",
		},
		{
			name:       "batch failure",
			err:        errors.Join(monitor.ErrBatchFetch, monitor.ErrNoProducts),
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "Failed to get all products: ",
		},
		{
			name:       "pass in progress",
			err:        monitor.ErrPassInProgress,
			wantStatus: http.StatusConflict,
			wantMsg:    "Failed to get all products: monitoring pass already in progress",
		},
		{
			name:       "missing secret",
			secret:     "s3cret",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "valid secret",
			result:     &model.PassResult{Message: "Ok"},
			secret:     "s3cret",
			auth:       "Bearer s3cret",
			wantStatus: http.StatusOK,
			wantMsg:    "Ok",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rq := require.New(t)

			e := newEnv(t, tc.secret)
			e.scheduler.result, e.scheduler.err = tc.result, tc.err

			var headers []string
			if tc.auth != "" {
				headers = []string{"Authorization", tc.auth}
			}

			w := e.do(http.MethodGet, "/api/cron", "", headers...)
			rq.Equal(tc.wantStatus, w.Code)

			if tc.wantMsg == "" {
				return
			}

			body := decode[map[string]any](t, w)
			rq.True(strings.HasPrefix(body["message"].(string), tc.wantMsg), body["message"])

			if tc.err != nil {
				rq.Equal(true, body["error"])
			} else if len(tc.result.Data) > 0 {
				rq.Len(body["data"], len(tc.result.Data))
			}
		})
	}
}

func TestTrackProduct(t *testing.T) {
	rq := require.New(t)
	e := newEnv(t, "")

	url := "https://shop.test/dp/1"
	e.scraper.On("Scrape", mock.Anything, url).Return(&model.ScrapeResult{
		Title:         "Headphones",
		CurrentPrice:  80,
		OriginalPrice: 100,
		DiscountRate:  20,
		Category:      "Audio",
	}, nil).Once()

	w := e.do(http.MethodPost, "/api/products", `{"url":"`+url+`","target_price":70}`)
	rq.Equal(http.StatusCreated, w.Code)

	p := decode[model.Product](t, w)
	rq.NotEmpty(p.ID)
	rq.Equal("Headphones", p.Title)
	rq.Len(p.PriceHistory, 1)
	rq.Equal(80.0, p.LowestPrice)
	rq.Equal(80.0, p.HighestPrice)
	rq.Equal(80.0, p.AveragePrice)
	rq.Equal(70.0, *p.TargetPrice)

	// Tracking the same url again returns the stored product without scraping.
	w = e.do(http.MethodPost, "/api/products", `{"url":"`+url+`"}`)
	rq.Equal(http.StatusOK, w.Code)
	rq.Equal(p.ID, decode[model.Product](t, w).ID)

	e.scraper.AssertExpectations(t)
}

func TestTrackProductErrors(t *testing.T) {
	rq := require.New(t)
	e := newEnv(t, "")

	w := e.do(http.MethodPost, "/api/products", `{"url":"not a url"}`)
	rq.Equal(http.StatusBadRequest, w.Code)

	e.scraper.On("Scrape", mock.Anything, "https://shop.test/blocked").Return(nil, errors.New("403")).Once()
	w = e.do(http.MethodPost, "/api/products", `{"url":"https://shop.test/blocked"}`)
	rq.Equal(http.StatusBadGateway, w.Code)

	n, err := e.store.Count(context.Background())
	rq.NoError(err)
	rq.Zero(n)
}

func TestAddSubscriber(t *testing.T) {
	rq := require.New(t)
	e := newEnv(t, "")
	p := e.seed(t, "https://shop.test/a", 10)

	welcome := notify.EmailContent{Subject: "Welcome to Price Tracking for Product"}
	e.notifier.On("Render", notify.InfoFromProduct(p), model.NotificationWelcome).Return(welcome, nil).Once()
	e.notifier.On("Deliver", mock.Anything, welcome, []string{"jane@example.com"}).Return(nil).Once()

	w := e.do(http.MethodPost, "/api/products/"+p.ID+"/subscribers", `{"email":" Jane@Example.com ","name":"Jane"}`)
	rq.Equal(http.StatusCreated, w.Code)

	body := decode[struct {
		Product  model.Product `json:"product"`
		Notified bool          `json:"notified"`
	}](t, w)
	rq.True(body.Notified)
	rq.Equal([]model.User{{Email: "jane@example.com", Name: "Jane"}}, body.Product.Users)

	w = e.do(http.MethodPost, "/api/products/"+p.ID+"/subscribers", `{"email":"jane@example.com"}`)
	rq.Equal(http.StatusOK, w.Code)

	w = e.do(http.MethodPost, "/api/products/"+p.ID+"/subscribers", `{"email":"nope"}`)
	rq.Equal(http.StatusBadRequest, w.Code)

	w = e.do(http.MethodPost, "/api/products/missing/subscribers", `{"email":"u@x.com"}`)
	rq.Equal(http.StatusNotFound, w.Code)

	e.notifier.AssertExpectations(t)
}

func TestAddSubscriberWelcomeFailure(t *testing.T) {
	rq := require.New(t)
	e := newEnv(t, "")
	p := e.seed(t, "https://shop.test/a", 10)

	e.notifier.On("Render", mock.Anything, model.NotificationWelcome).Return(notify.EmailContent{}, nil).Once()
	e.notifier.On("Deliver", mock.Anything, mock.Anything, mock.Anything).Return(notify.ErrDisabled).Once()

	w := e.do(http.MethodPost, "/api/products/"+p.ID+"/subscribers", `{"email":"u@x.com"}`)
	rq.Equal(http.StatusCreated, w.Code)
	rq.Equal(false, decode[map[string]any](t, w)["notified"])
}

func TestProductCRUD(t *testing.T) {
	rq := require.New(t)
	e := newEnv(t, "")

	cheap := e.seed(t, "https://shop.test/cheap", 10)
	pricey := e.seed(t, "https://shop.test/pricey", 99)

	w := e.do(http.MethodGet, "/api/products?sort=price&order=desc", "")
	rq.Equal(http.StatusOK, w.Code)
	list := decode[struct {
		Count    int             `json:"count"`
		Products []model.Product `json:"products"`
	}](t, w)
	rq.Equal(2, list.Count)
	rq.Equal(pricey.ID, list.Products[0].ID)
	rq.Equal(cheap.ID, list.Products[1].ID)

	w = e.do(http.MethodGet, "/api/products/"+cheap.ID, "")
	rq.Equal(http.StatusOK, w.Code)
	rq.Equal(cheap.URL, decode[model.Product](t, w).URL)

	w = e.do(http.MethodGet, "/api/products/"+cheap.ID+"/history?limit=5", "")
	rq.Equal(http.StatusOK, w.Code)
	rq.Equal(float64(1), decode[map[string]any](t, w)["count"])

	w = e.do(http.MethodPut, "/api/products/"+cheap.ID+"/target-price", `{"target_price":7.5}`)
	rq.Equal(http.StatusOK, w.Code)
	rq.Equal(7.5, *decode[model.Product](t, w).TargetPrice)

	w = e.do(http.MethodPut, "/api/products/"+cheap.ID+"/target-price", `{"target_price":-1}`)
	rq.Equal(http.StatusBadRequest, w.Code)

	w = e.do(http.MethodPut, "/api/products/"+cheap.ID+"/target-price", `{"target_price":null}`)
	rq.Equal(http.StatusOK, w.Code)
	rq.Nil(decode[model.Product](t, w).TargetPrice)

	w = e.do(http.MethodDelete, "/api/products/"+cheap.ID, "")
	rq.Equal(http.StatusNoContent, w.Code)

	w = e.do(http.MethodGet, "/api/products/"+cheap.ID, "")
	rq.Equal(http.StatusNotFound, w.Code)

	w = e.do(http.MethodGet, "/api/stats", "")
	rq.Equal(http.StatusOK, w.Code)
	rq.Equal(float64(1), decode[map[string]any](t, w)["products"])
}

func TestMetricsEndpoint(t *testing.T) {
	e := newEnv(t, "")

	w := e.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
}
