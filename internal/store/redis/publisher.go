package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"signal-engine/internal/strategy"
)

const (
	// recentLen matches the history a monitor retains per symbol.
	recentLen = 50
	// streamMaxLen bounds the cross-symbol signal stream.
	streamMaxLen = 10000
	lastTTL      = 24 * time.Hour

	// StreamKey is the Redis stream every surfaced signal is appended to.
	StreamKey = "signals:stream"
)

// ChannelKey returns the pub/sub channel for symbol: "signals:{SYMBOL}".
func ChannelKey(symbol string) string { return "signals:" + strings.ToUpper(symbol) }

// RecentKey returns the list holding the latest signals for symbol.
func RecentKey(symbol string) string { return "signals:recent:" + strings.ToUpper(symbol) }

// LastKey returns the key holding the most recent signal for symbol.
func LastKey(symbol string) string { return "signals:last:" + strings.ToUpper(symbol) }

// Config configures the Redis connection.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Publisher hands surfaced signals to display consumers through Redis.
type Publisher struct {
	client *goredis.Client
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// New creates a Publisher and pings the server.
func New(cfg Config) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Publisher{client: client}, nil
}

// Send publishes s in one pipeline: PUBLISH to the symbol channel, LPUSH onto
// the recent list (trimmed to recentLen), SET as the last signal and XADD to
// the shared signal stream.
func (p *Publisher) Send(ctx context.Context, s strategy.Signal) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("redis: marshal signal %s: %w", s.ID, err)
	}
	payload := string(data)

	pipe := p.client.Pipeline()
	pipe.Publish(ctx, ChannelKey(s.Symbol), payload)
	pipe.LPush(ctx, RecentKey(s.Symbol), payload)
	pipe.LTrim(ctx, RecentKey(s.Symbol), 0, recentLen-1)
	pipe.Set(ctx, LastKey(s.Symbol), payload, lastTTL)
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: StreamKey,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"id":     s.ID,
			"symbol": s.Symbol,
			"data":   payload,
		},
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: pipeline for %s: %w", s.ID, err)
	}
	return nil
}

// Ping checks connectivity.
func (p *Publisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
