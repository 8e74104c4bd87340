// Package notification hands surfaced trading signals to downstream
// consumers (logs, display layers, webhooks).
package notification

import (
	"context"
	"log/slog"

	"signal-engine/internal/strategy"
)

// Level represents how prominently a signal should be shown.
type Level string

const (
	LevelInfo   Level = "INFO"
	LevelStrong Level = "STRONG"
)

// LevelOf classifies a signal by its strength.
func LevelOf(s strategy.Signal) Level {
	if s.Strong() {
		return LevelStrong
	}
	return LevelInfo
}

// Notifier is the interface for all signal sinks.
type Notifier interface {
	// Send delivers a signal. Returns error if delivery fails.
	Send(ctx context.Context, s strategy.Signal) error
}

// LogNotifier writes signals to the structured log.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a log-based notifier. A nil logger uses slog.Default().
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "notify")}
}

func (n *LogNotifier) Send(ctx context.Context, s strategy.Signal) error {
	level := slog.LevelInfo
	if s.Strong() {
		level = slog.LevelWarn
	}
	n.logger.Log(ctx, level, "signal",
		"id", s.ID,
		"symbol", s.Symbol,
		"type", string(s.Type),
		"source", string(s.Source),
		"strength", s.Strength,
		"price", s.Price,
		"message", s.Message,
	)
	return nil
}

// Dispatch drains signals into n until the channel is closed or ctx is
// cancelled. Delivery errors are reported to onErr and do not stop the loop.
func Dispatch(ctx context.Context, signals <-chan strategy.Signal, n Notifier, onErr func(strategy.Signal, error)) {
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-signals:
			if !ok {
				return
			}
			if err := n.Send(ctx, s); err != nil && onErr != nil {
				onErr(s, err)
			}
		}
	}
}
