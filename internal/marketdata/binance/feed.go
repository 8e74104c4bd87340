// Package binance streams kline updates from the Binance websocket API.
package binance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"signal-engine/internal/model"
)

// DefaultBaseURL is the public Binance spot stream endpoint.
const DefaultBaseURL = "wss://stream.binance.com:9443/ws"

// Config configures the feed.
type Config struct {
	BaseURL  string // e.g. DefaultBaseURL
	Interval string // kline interval, e.g. "1m"

	// ForwardForming also forwards updates for candles that are still open.
	// By default only closed candles are forwarded.
	ForwardForming bool

	HandshakeTimeout time.Duration
	// ReadTimeout bounds the silence tolerated before reconnecting.
	ReadTimeout time.Duration

	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Interval == "" {
		c.Interval = "1m"
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 5 * time.Minute
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 500 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
}

// StreamURL returns the kline stream URL for symbol.
func StreamURL(baseURL, symbol, interval string) string {
	return strings.TrimRight(baseURL, "/") + "/" + strings.ToLower(symbol) + "@kline_" + interval
}

// Feed is a model.KlineSource backed by the Binance kline stream.
// Each Stream call owns one websocket connection and reconnects with
// exponential backoff until its context is cancelled.
type Feed struct {
	cfg    Config
	dialer *websocket.Dialer

	// Optional hooks (metrics, health)
	OnConnect     func(symbol string)
	OnDisconnect  func(symbol string, err error)
	OnDecodeError func(symbol string, err error)
}

// New creates a feed.
func New(cfg Config) *Feed {
	cfg.defaults()
	return &Feed{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
	}
}

// Stream forwards kline updates for symbol to out until ctx is cancelled.
// Connection failures are retried; Stream only returns on cancellation.
func (f *Feed) Stream(ctx context.Context, symbol string, out chan<- model.KlineUpdate) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = f.cfg.InitialBackoff
	bo.MaxInterval = f.cfg.MaxBackoff
	bo.MaxElapsedTime = 0 // retry forever
	bo.Reset()

	url := StreamURL(f.cfg.BaseURL, symbol, f.cfg.Interval)
	for {
		err := f.session(ctx, url, symbol, out, bo)
		if ctx.Err() != nil {
			return nil
		}
		if f.OnDisconnect != nil {
			f.OnDisconnect(symbol, err)
		}

		wait := bo.NextBackOff()
		log.Printf("[binance] %s stream dropped: %v (reconnecting in %v)", symbol, err, wait)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// session runs one connection until it fails or ctx is cancelled.
func (f *Feed) session(ctx context.Context, url, symbol string, out chan<- model.KlineUpdate, bo backoff.BackOff) error {
	conn, _, err := f.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.Close()

	bo.Reset()
	log.Printf("[binance] connected to %s", url)
	if f.OnConnect != nil {
		f.OnConnect(symbol)
	}

	// Unblock ReadMessage on cancellation.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(f.cfg.ReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		u, err := DecodeKlineEvent(msg)
		if errors.Is(err, ErrNotKline) {
			continue
		}
		if err != nil {
			if f.OnDecodeError != nil {
				f.OnDecodeError(symbol, err)
			}
			continue
		}
		if !u.Closed && !f.cfg.ForwardForming {
			continue
		}

		select {
		case out <- u:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
