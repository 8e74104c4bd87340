// cmd/signald runs the live signal engine: one Binance kline stream per
// configured symbol, evaluated on every closed candle, with surfaced signals
// handed to the log, Redis, the SQLite journal and an optional webhook.
//
// Usage:
//
//	go run ./cmd/signald --symbols=BTCUSDT,ETHUSDT --http=:9096
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"signal-engine/config"
	"signal-engine/internal/logger"
	"signal-engine/internal/signald"
)

var rootCmd = &cobra.Command{
	Use:          "signald",
	Short:        "Stream klines and surface technical-analysis signals",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringSlice("env-file", []string{".env.local", ".env"}, "dotenv files to load (missing files are skipped)")
	rootCmd.Flags().String("symbols", "", "comma-separated symbols, overrides SYMBOLS")
	rootCmd.Flags().String("http", "", "API listen address, overrides HTTP_ADDR")
	rootCmd.Flags().String("history", "", "directory of <SYMBOL>.json kline tuple files used to warm windows, overrides HISTORY_DIR")
}

func run(cmd *cobra.Command, _ []string) error {
	envFiles, err := cmd.Flags().GetStringSlice("env-file")
	if err != nil {
		return err
	}
	if err := config.LoadEnvFiles(envFiles...); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if v, _ := cmd.Flags().GetString("symbols"); v != "" {
		cfg.Symbols = config.ParseSymbols(v)
	}
	if v, _ := cmd.Flags().GetString("http"); v != "" {
		cfg.HTTPAddr = v
	}
	if v, _ := cmd.Flags().GetString("history"); v != "" {
		cfg.HistoryDir = v
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	slogger := logger.Init("signald", level)
	log.Printf("[signald] symbols: %v, interval: %s, forming: %v", cfg.Symbols, cfg.KlineInterval, cfg.EvaluateForming)

	svc, err := signald.New(cfg, signald.Deps{Logger: slogger})
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return svc.Run(ctx)
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
