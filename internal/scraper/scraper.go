package scraper

import (
	"context"
	"errors"

	"price-tracker/internal/model"
)

var (
	ErrPriceNotFound = errors.New("price not found on page")
	ErrEmptyURL      = errors.New("empty url")
)

// Scraper reads the current state of a product page.
type Scraper interface {
	Scrape(ctx context.Context, url string) (*model.ScrapeResult, error)
}

var _ Scraper = (*ProductPageScraper)(nil)
