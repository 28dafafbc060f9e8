package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"price-tracker/internal/model"
)

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) FetchAll(ctx context.Context) ([]model.Product, error) {
	args := m.Called(ctx)
	if products := args.Get(0); products != nil {
		return products.([]model.Product), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGateway) UpsertByURL(ctx context.Context, url string, product model.Product) (*model.Product, error) {
	args := m.Called(ctx, url, product)
	if fn, ok := args.Get(0).(func(context.Context, string, model.Product) (*model.Product, error)); ok {
		return fn(ctx, url, product)
	}
	if p := args.Get(0); p != nil {
		return p.(*model.Product), args.Error(1)
	}
	return nil, args.Error(1)
}
