// cmd/klinesim serves a demo kline stream.
// Serves simulated klines in the Binance kline event format so signald can
// run without exchange access:
//
//	BINANCE_WS_URL=ws://localhost:9001/ws go run ./cmd/signald
//
// Config (env vars, overridden by flags):
//
//	KLINESIM_ADDR       listen address (default: ":9001")
//	SYMBOLS             comma-separated symbols (default: "BTCUSDT")
//	KLINE_INTERVAL      interval label (default: "1m")
//	KLINESIM_CANDLE_MS  wall milliseconds per simulated candle (default: "1000")
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"signal-engine/config"
	"signal-engine/internal/marketdata/wssim"
)

var rootCmd = &cobra.Command{
	Use:          "klinesim",
	Short:        "Serve simulated Binance kline streams",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().String("addr", envOr("KLINESIM_ADDR", ":9001"), "listen address")
	rootCmd.Flags().String("symbols", envOr("SYMBOLS", "BTCUSDT"), "comma-separated symbols")
	rootCmd.Flags().String("interval", envOr("KLINE_INTERVAL", "1m"), "kline interval label")
	rootCmd.Flags().Int("candle-ms", envInt("KLINESIM_CANDLE_MS", 1000), "wall milliseconds per simulated candle")
	rootCmd.Flags().Int("updates", 4, "events per candle, the last one closed")
	rootCmd.Flags().Float64("price", 100, "starting price")
	rootCmd.Flags().Int64("seed", 0, "random seed (0 seeds from the clock)")
}

func run(cmd *cobra.Command, _ []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	symbols, _ := cmd.Flags().GetString("symbols")
	interval, _ := cmd.Flags().GetString("interval")
	candleMS, _ := cmd.Flags().GetInt("candle-ms")
	updates, _ := cmd.Flags().GetInt("updates")
	price, _ := cmd.Flags().GetFloat64("price")
	seed, _ := cmd.Flags().GetInt64("seed")

	sim, err := wssim.NewServer(wssim.Config{
		Symbols:          config.ParseSymbols(symbols),
		Interval:         interval,
		CandleEvery:      time.Duration(candleMS) * time.Millisecond,
		UpdatesPerCandle: updates,
		StartPrice:       price,
		Seed:             seed,
	})
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	go sim.Run(ctx)

	srv := &http.Server{Addr: addr, Handler: sim.Handler()}
	go func() {
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("[klinesim] listening on %s, symbols: %s, interval: %s, %dms/candle", addr, symbols, interval, candleMS)
	log.Printf("[klinesim] connect via: ws://localhost%s/ws/<symbol>@kline_%s", addr, interval)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil && n > 0 {
		return n
	}
	return def
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
