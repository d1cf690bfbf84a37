package webhooks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/solestack/storefront/pkg/enums"
	"github.com/solestack/storefront/pkg/redis"
)

const scopePrefix = "webhook"

// Guard de-duplicates provider callbacks by event id, one key space per rail.
type Guard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

func NewGuard(store redis.IdempotencyStore, ttl time.Duration) (*Guard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Guard{store: store, ttl: ttl}, nil
}

// Seen reports whether eventID was already settled on rail.
func (g *Guard) Seen(ctx context.Context, rail enums.PaymentRail, eventID string) (bool, error) {
	key, err := g.key(rail, eventID)
	if err != nil {
		return false, err
	}
	if _, err := g.store.Get(ctx, key); err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("read idempotency key: %w", err)
	}
	return true, nil
}

// Mark records eventID once its settlement has committed. Concurrent
// deliveries of the same event may both pass Seen; the order status
// compare-and-set turns the later one into a duplicate.
func (g *Guard) Mark(ctx context.Context, rail enums.PaymentRail, eventID string) error {
	key, err := g.key(rail, eventID)
	if err != nil {
		return err
	}
	if err := g.store.Set(ctx, key, "1", g.ttl); err != nil {
		return fmt.Errorf("set idempotency key: %w", err)
	}
	return nil
}

func (g *Guard) key(rail enums.PaymentRail, eventID string) (string, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return "", errors.New("event id is required")
	}
	if !rail.IsValid() {
		return "", fmt.Errorf("unknown rail %q", rail)
	}
	return g.store.IdempotencyKey(scopePrefix+":"+string(rail), eventID), nil
}
