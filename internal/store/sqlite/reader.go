package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"signal-engine/internal/model"
	"signal-engine/internal/strategy"
)

// Recent reads up to limit journaled signals for symbol, most recent first.
// Signals from the same candle keep their detection order.
func (j *Journal) Recent(ctx context.Context, symbol string, limit int) ([]strategy.Signal, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, symbol, type, source, ts, price, strength, message, indicators
		FROM signals
		WHERE symbol = ?
		ORDER BY ts DESC, seq ASC
		LIMIT ?
	`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query signals: %w", err)
	}
	defer rows.Close()

	var out []strategy.Signal
	for rows.Next() {
		var (
			s          strategy.Signal
			typ, src   string
			tsMillis   int64
			indicators string
		)
		if err := rows.Scan(&s.ID, &s.Symbol, &typ, &src, &tsMillis, &s.Price, &s.Strength, &s.Message, &indicators); err != nil {
			return nil, fmt.Errorf("sqlite scan signals: %w", err)
		}
		s.Type = strategy.SignalType(typ)
		s.Source = strategy.Source(src)
		s.Timestamp = model.UnixMilli(tsMillis)
		if err := json.Unmarshal([]byte(indicators), &s.Indicators); err != nil {
			return nil, fmt.Errorf("sqlite decode indicators for %s: %w", s.ID, err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Count returns the number of journaled signals for symbol.
func (j *Journal) Count(ctx context.Context, symbol string) (int, error) {
	var n int
	err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM signals WHERE symbol = ?`, symbol).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite count signals: %w", err)
	}
	return n, nil
}
