// Package replay provides a kline source that reads recorded klines from JSON
// files and emits them at configurable speed, for offline evaluation and for
// warming windows from saved history.
package replay

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"signal-engine/internal/model"
)

// maxGap caps the simulated wait between two klines.
const maxGap = 5 * time.Second

// Source replays kline tuple files. A file holds a JSON array of 12-field
// kline tuples, the exchange REST klines format.
type Source struct {
	resolve func(symbol string) string
	speed   float64
}

// NewFile creates a Source that replays the same file for every symbol.
// speed controls the playback rate: 1.0 = real-time, 10.0 = 10x, 0 = as fast as possible.
func NewFile(path string, speed float64) *Source {
	return &Source{resolve: func(string) string { return path }, speed: speed}
}

// NewDir creates a Source that replays dir/<SYMBOL>.json for each symbol.
func NewDir(dir string, speed float64) *Source {
	return &Source{
		resolve: func(symbol string) string {
			return filepath.Join(dir, strings.ToUpper(symbol)+".json")
		},
		speed: speed,
	}
}

// Load reads and decodes a kline tuple file, sorted by OpenTime.
func Load(path string) ([]model.Kline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("replay: read %s: %w", path, err)
	}
	klines, err := model.ParseKlineTuples(data)
	if err != nil {
		return nil, fmt.Errorf("replay: %s: %w", path, err)
	}
	sort.SliceStable(klines, func(i, j int) bool {
		return klines[i].OpenTime.Before(klines[j].OpenTime)
	})
	return klines, nil
}

// LoadHistory returns the recorded klines for symbol.
func (s *Source) LoadHistory(_ context.Context, symbol string) ([]model.Kline, error) {
	return Load(s.resolve(symbol))
}

// Stream replays the recorded klines for symbol into out as closed updates.
// Returns nil once every kline has been sent.
func (s *Source) Stream(ctx context.Context, symbol string, out chan<- model.KlineUpdate) error {
	klines, err := Load(s.resolve(symbol))
	if err != nil {
		return err
	}
	if len(klines) == 0 {
		log.Printf("[replay] no klines found for %s", symbol)
		return nil
	}

	log.Printf("[replay] loaded %d klines for %s, speed=%.1fx", len(klines), symbol, s.speed)

	var prev time.Time
	emitted := 0
	for _, k := range klines {
		// Simulate time gaps between klines
		if s.speed > 0 && !prev.IsZero() {
			if gap := k.OpenTime.Sub(prev); gap > 0 {
				scaled := time.Duration(float64(gap) / s.speed)
				if scaled > maxGap {
					scaled = maxGap
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(scaled):
				}
			}
		}
		prev = k.OpenTime

		select {
		case <-ctx.Done():
			log.Printf("[replay] cancelled after %d klines", emitted)
			return ctx.Err()
		case out <- model.KlineUpdate{Symbol: strings.ToUpper(symbol), Kline: k, Closed: true}:
		}
		emitted++
	}

	log.Printf("[replay] completed: %d klines replayed for %s", emitted, symbol)
	return nil
}
