package store

import (
	"context"
	"errors"

	"price-tracker/internal/model"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrInvalidProduct  = errors.New("invalid product")
)

// Gateway is what a monitoring pass needs from storage.
type Gateway interface {
	FetchAll(ctx context.Context) ([]model.Product, error)
	// UpsertByURL replaces the scraped fields, price history and statistics of the
	// product stored under url and returns the stored result. Subscribers and the
	// target price are left as stored. Returns ErrProductNotFound on no match.
	UpsertByURL(ctx context.Context, url string, product model.Product) (*model.Product, error)
}

// Store is the complete product storage used by the API and tools.
// Both SQLStore and FileStore implement it.
type Store interface {
	Gateway

	GetByID(ctx context.Context, id string) (*model.Product, error)
	GetByURL(ctx context.Context, url string) (*model.Product, error)
	// TrackProduct inserts product unless its url is already tracked. created
	// reports whether a new row was written.
	TrackProduct(ctx context.Context, product model.Product) (stored *model.Product, created bool, err error)
	AddSubscriber(ctx context.Context, id string, user model.User) (stored *model.Product, added bool, err error)
	SetTargetPrice(ctx context.Context, id string, price *float64) (*model.Product, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
	Close() error
}

var (
	_ Store = (*SQLStore)(nil)
	_ Store = (*FileStore)(nil)
)

// prepareNew validates a product about to be tracked. Subscribers are
// normalized; invalid and repeated emails are dropped.
func prepareNew(p model.Product) (model.Product, error) {
	if p.URL == "" {
		return model.Product{}, errors.Join(ErrInvalidProduct, errors.New("url is required"))
	}
	if p.TargetPrice != nil && *p.TargetPrice < 0 {
		return model.Product{}, errors.Join(ErrInvalidProduct, errors.New("target price must not be negative"))
	}

	p.Users, _ = model.NormalizeUsers(p.Users)

	return p, nil
}
