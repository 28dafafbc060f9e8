// Package lease provides named locks that expire on their own, so a crashed
// holder cannot block the next monitoring pass forever.
package lease

import (
	"context"
	"errors"
	"time"

	"github.com/rs/xid"
)

var ErrHeld = errors.New("lease is held by another owner")

// Locker hands out leases.
type Locker interface {
	// Acquire takes the lease name for ttl or fails with ErrHeld.
	Acquire(ctx context.Context, name string, ttl time.Duration) (Lease, error)
}

// Lease is a held lock. Release is a no-op once the lease has expired or was
// taken over by someone else.
type Lease interface {
	Release(ctx context.Context) error
}

func newToken() string {
	return xid.New().String()
}
