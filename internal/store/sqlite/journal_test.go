package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-engine/internal/indicator"
	"signal-engine/internal/strategy"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := New(Config{DBPath: filepath.Join(t.TempDir(), "signals.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func sig(symbol string, minute int, tag string) strategy.Signal {
	ts := time.Date(2024, 5, 1, 0, minute, 0, 0, time.UTC)
	return strategy.Signal{
		ID:        fmt.Sprintf("%s-%d-%s", symbol, ts.UnixMilli(), tag),
		Type:      strategy.SignalSell,
		Source:    strategy.SourceRSIOverbought,
		Symbol:    symbol,
		Timestamp: ts,
		Price:     50,
		Message:   "RSI overbought: 100.00 (threshold 70)",
		Strength:  60,
		Indicators: strategy.Snapshot{
			RSI: indicator.Some(100),
		},
	}
}

func TestJournal_SendAndRecent(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.Send(ctx, sig("BTCUSDT", 1, "rsi-overbought")))
	require.NoError(t, j.Send(ctx, sig("BTCUSDT", 2, "rsi-overbought")))
	require.NoError(t, j.Send(ctx, sig("BTCUSDT", 2, "bb-upper")))
	require.NoError(t, j.Send(ctx, sig("ETHUSDT", 2, "rsi-overbought")))

	got, err := j.Recent(ctx, "BTCUSDT", 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, sig("BTCUSDT", 2, "rsi-overbought"), got[0])
	assert.Equal(t, sig("BTCUSDT", 2, "bb-upper").ID, got[1].ID)
	assert.Equal(t, sig("BTCUSDT", 1, "rsi-overbought").ID, got[2].ID)
	assert.False(t, got[0].Indicators.MACD.Valid)

	limited, err := j.Recent(ctx, "BTCUSDT", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestJournal_DuplicateIDIgnored(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	s := sig("BTCUSDT", 1, "rsi-overbought")
	require.NoError(t, j.Send(ctx, s))
	require.NoError(t, j.Send(ctx, s))

	n, err := j.Count(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestJournal_RunFlushesOnClose(t *testing.T) {
	j := openTestJournal(t)

	ch := make(chan strategy.Signal, 10)
	for i := 0; i < 5; i++ {
		ch <- sig("BTCUSDT", i, "rsi-overbought")
	}
	close(ch)

	done := make(chan struct{})
	go func() {
		j.Run(context.Background(), ch)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}

	n, err := j.Count(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	require.NoError(t, j.Ping(context.Background()))
}

func TestJournal_InsertErrorIsWrapped(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS signals").WillReturnResult(sqlmock.NewResult(0, 0))
	j, err := newJournal(db)
	require.NoError(t, err)

	diskFull := errors.New("disk I/O error")
	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT OR IGNORE INTO signals").
		ExpectExec().
		WillReturnError(diskFull)
	mock.ExpectRollback()

	err = j.Send(context.Background(), sig("BTCUSDT", 1, "rsi-overbought"))
	require.ErrorIs(t, err, diskFull)
	assert.Contains(t, err.Error(), "sqlite insert BTCUSDT-")
	assert.NoError(t, mock.ExpectationsWereMet())
}
