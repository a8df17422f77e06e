// Package redis stores shopper carts in Redis.
package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/xenking/storefront/internal/domain/cart"
)

// CartStore keeps each shopper's encoded cart under "<prefix>:cart:<userID>".
type CartStore struct {
	client goredis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewCartStore creates a CartStore. Trailing colons of prefix are dropped.
// A zero ttl keeps carts forever.
func NewCartStore(client goredis.UniversalClient, prefix string, ttl time.Duration) *CartStore {
	return &CartStore{client: client, prefix: strings.TrimRight(prefix, ":"), ttl: ttl}
}

// Key returns the Redis key for userID's cart.
func (s *CartStore) Key(userID string) string {
	if s.prefix == "" {
		return fmt.Sprintf("cart:%s", userID)
	}
	return fmt.Sprintf("%s:cart:%s", s.prefix, userID)
}

// For returns the persister of userID's cart.
func (s *CartStore) For(userID string) cart.Persister {
	return &persister{store: s, key: s.Key(userID)}
}

type persister struct {
	store *CartStore
	key   string
}

var _ cart.Persister = (*persister)(nil)

func (p *persister) Load(ctx context.Context) ([]byte, error) {
	data, err := p.store.client.Get(ctx, p.key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get %s", p.key)
	}
	return data, nil
}

func (p *persister) Save(ctx context.Context, data []byte) error {
	if err := p.store.client.Set(ctx, p.key, data, p.store.ttl).Err(); err != nil {
		return errors.Wrapf(err, "set %s", p.key)
	}
	return nil
}
