package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"price-tracker/internal/model"
)

type MockScraper struct {
	mock.Mock
}

func (m *MockScraper) Scrape(ctx context.Context, url string) (*model.ScrapeResult, error) {
	args := m.Called(ctx, url)
	if r := args.Get(0); r != nil {
		return r.(*model.ScrapeResult), args.Error(1)
	}
	return nil, args.Error(1)
}
