package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/go-redis/redis/v8"

	"signal-engine/internal/strategy"
)

// Recent reads up to limit of the latest signals for symbol, most recent first.
// Entries that fail to decode are skipped.
func (p *Publisher) Recent(ctx context.Context, symbol string, limit int) ([]strategy.Signal, error) {
	if limit <= 0 || limit > recentLen {
		limit = recentLen
	}
	raw, err := p.client.LRange(ctx, RecentKey(symbol), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: lrange %s: %w", RecentKey(symbol), err)
	}
	out := make([]strategy.Signal, 0, len(raw))
	for _, r := range raw {
		var s strategy.Signal
		if err := json.Unmarshal([]byte(r), &s); err != nil {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// Last reads the most recent signal for symbol. ok is false if none is stored.
func (p *Publisher) Last(ctx context.Context, symbol string) (s strategy.Signal, ok bool, err error) {
	raw, err := p.client.Get(ctx, LastKey(symbol)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return strategy.Signal{}, false, nil
	}
	if err != nil {
		return strategy.Signal{}, false, fmt.Errorf("redis: get %s: %w", LastKey(symbol), err)
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return strategy.Signal{}, false, fmt.Errorf("redis: decode %s: %w", LastKey(symbol), err)
	}
	return s, true, nil
}

// Subscribe opens a pub/sub subscription to the channels of symbols.
// The caller must Close the returned PubSub.
func (p *Publisher) Subscribe(ctx context.Context, symbols ...string) *goredis.PubSub {
	channels := make([]string, len(symbols))
	for i, s := range symbols {
		channels[i] = ChannelKey(s)
	}
	return p.client.Subscribe(ctx, channels...)
}
