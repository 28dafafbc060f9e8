package notify

import (
	"context"
	"log/slog"

	"price-tracker/internal/model"
	"price-tracker/pkg/contextx"
	"price-tracker/pkg/logx"
)

// Mirror receives a copy of every delivered notification.
type Mirror interface {
	Name() string
	Post(ctx context.Context, content EmailContent) error
}

// Deliverer sends rendered content to subscribers.
type Deliverer interface {
	Deliver(ctx context.Context, content EmailContent, recipients []string) error
}

// Dispatcher renders notifications, delivers them by email and copies them
// to the configured mirrors.
type Dispatcher struct {
	email   Deliverer
	mirrors []Mirror
}

func NewDispatcher(email Deliverer, mirrors ...Mirror) *Dispatcher {
	return &Dispatcher{
		email:   email,
		mirrors: mirrors,
	}
}

func (d *Dispatcher) Render(info ProductInfo, t model.NotificationType) (EmailContent, error) {
	return Render(info, t)
}

// Deliver returns the email error only. Mirror failures are logged.
func (d *Dispatcher) Deliver(ctx context.Context, content EmailContent, recipients []string) error {
	if err := d.email.Deliver(ctx, content, recipients); err != nil {
		return err
	}

	logger := contextx.LoggerFromContextOrDefault(ctx)

	for _, m := range d.mirrors {
		if err := m.Post(ctx, content); err != nil {
			logger.Warn("notification mirror failed",
				slog.String("mirror", m.Name()),
				logx.Error(err),
			)
		}
	}

	return nil
}
