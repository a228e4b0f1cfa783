package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"RoundLedger/internal/state"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "oracle:price:"

// priceDoc is the JSON document stored per feed by the price relay.
type priceDoc struct {
	Price       int64 `json:"price"`
	Exponent    int32 `json:"exponent"`
	PublishTime int64 `json:"publish_time"`
}

// RedisReader reads oracle prices from Redis, where the pricefeed relay
// publishes them. Keys are "oracle:price:<feed-hex>".
type RedisReader struct {
	rdb *redis.Client
}

func NewRedisReader(rdb *redis.Client) *RedisReader {
	return &RedisReader{rdb: rdb}
}

func (r *RedisReader) ReadPrice(ctx context.Context, feed state.FeedID) (Price, error) {
	raw, err := r.rdb.Get(ctx, keyPrefix+feed.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return Price{}, fmt.Errorf("%w: feed %s", ErrPriceNotFound, feed)
	}
	if err != nil {
		return Price{}, fmt.Errorf("redis get feed %s: %w", feed, err)
	}

	var doc priceDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Price{}, fmt.Errorf("decode price for feed %s: %w", feed, err)
	}

	return Price{
		Price:       doc.Price,
		Exponent:    doc.Exponent,
		PublishTime: doc.PublishTime,
	}, nil
}

// RedisWriter publishes oracle prices to Redis. Used by the pricefeed relay.
// Entries carry a TTL so a dead relay cannot serve arbitrarily stale prices
// forever; the engine additionally enforces max_price_age on every read.
type RedisWriter struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisWriter(rdb *redis.Client, ttl time.Duration) *RedisWriter {
	return &RedisWriter{rdb: rdb, ttl: ttl}
}

func (w *RedisWriter) WritePrice(ctx context.Context, feed state.FeedID, p Price) error {
	doc := priceDoc{
		Price:       p.Price,
		Exponent:    p.Exponent,
		PublishTime: p.PublishTime,
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode price for feed %s: %w", feed, err)
	}

	if err := w.rdb.Set(ctx, keyPrefix+feed.String(), raw, w.ttl).Err(); err != nil {
		return fmt.Errorf("redis set feed %s: %w", feed, err)
	}
	return nil
}

// Connect opens a Redis client and verifies connectivity.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}
