package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"price-tracker/internal/model"
	"price-tracker/internal/notify"
)

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Render(info notify.ProductInfo, t model.NotificationType) (notify.EmailContent, error) {
	args := m.Called(info, t)
	return args.Get(0).(notify.EmailContent), args.Error(1)
}

func (m *MockNotifier) Deliver(ctx context.Context, content notify.EmailContent, recipients []string) error {
	args := m.Called(ctx, content, recipients)
	return args.Error(0)
}
