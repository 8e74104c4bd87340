// cmd/replay replays recorded klines through the signal pipeline to inspect
// which signals a data set produces without a live feed.
//
// Usage:
//
//	go run ./cmd/replay --file=data/BTCUSDT.json --symbols=BTCUSDT --speed=0
//	go run ./cmd/replay --dir=data/klines --symbols=BTCUSDT,ETHUSDT --sort=strength
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"signal-engine/config"
	"signal-engine/internal/logger"
	"signal-engine/internal/marketdata/replay"
	"signal-engine/internal/signald"
	"signal-engine/internal/strategy"
)

var rootCmd = &cobra.Command{
	Use:          "replay (--file FILE | --dir DIR) [--symbols SYMBOLS]",
	Short:        "Replay recorded klines and print the surfaced signals",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().String("file", "", "kline tuple file replayed for every symbol")
	rootCmd.Flags().String("dir", "", "directory of <SYMBOL>.json kline tuple files")
	rootCmd.Flags().String("symbols", "", "comma-separated symbols (default: SYMBOLS env)")
	rootCmd.Flags().Float64("speed", 0, "playback speed multiplier (0=max, 1=realtime, 100=100x)")
	rootCmd.Flags().String("sqlite", "", "journal surfaced signals to this SQLite file")
	rootCmd.Flags().String("redis", "", "publish surfaced signals to this Redis address")
	rootCmd.Flags().String("sort", "time", "order of the printed signals: time or strength")
	rootCmd.Flags().Bool("quiet", false, "print only the summary")
}

func run(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	file, _ := flags.GetString("file")
	dir, _ := flags.GetString("dir")
	if (file == "") == (dir == "") {
		return errors.New("exactly one of --file or --dir is required")
	}
	speed, _ := flags.GetFloat64("speed")
	sortBy, _ := flags.GetString("sort")
	if sortBy != "time" && sortBy != "strength" {
		return fmt.Errorf("--sort must be time or strength, got %q", sortBy)
	}
	quiet, _ := flags.GetBool("quiet")

	if err := config.LoadEnvFiles(".env.local", ".env"); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if v, _ := flags.GetString("symbols"); v != "" {
		cfg.Symbols = config.ParseSymbols(v)
	}
	cfg.SQLitePath, _ = flags.GetString("sqlite")
	cfg.RedisAddr, _ = flags.GetString("redis")
	cfg.WebhookURL = ""
	cfg.HTTPAddr = ""
	cfg.HistoryDir = ""

	var source *replay.Source
	if file != "" {
		source = replay.NewFile(file, speed)
	} else {
		source = replay.NewDir(dir, speed)
	}

	// Signals are printed below; keep the log sink quiet.
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	slogger := logger.New(io.Discard, "replay", level)
	if level == slog.LevelDebug {
		slogger = logger.New(os.Stderr, "replay", level)
	}

	svc, err := signald.New(cfg, signald.Deps{Source: source, Logger: slogger})
	if err != nil {
		return err
	}

	collected := make(chan []strategy.Signal, 1)
	sub := svc.SubscribeAll("replay")
	go func() {
		var all []strategy.Signal
		for s := range sub {
			all = append(all, s)
		}
		collected <- all
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	runErr := svc.Run(ctx)
	signals := <-collected

	if sortBy == "strength" {
		strategy.SortByStrength(signals)
	}
	if !quiet {
		for _, s := range signals {
			fmt.Printf("  [%s] %-8s %-4s %-22s %6.2f  %s\n",
				s.Timestamp.Format("2006-01-02 15:04"), s.Symbol, s.Type, s.Source, s.Strength, s.Message)
		}
	}
	printSummary(svc, signals)
	return runErr
}

func printSummary(svc *signald.Service, signals []strategy.Signal) {
	bySource := make(map[strategy.Source]int)
	buys, sells, strong := 0, 0, 0
	for _, s := range signals {
		bySource[s.Source]++
		if s.Type == strategy.SignalBuy {
			buys++
		} else {
			sells++
		}
		if s.Strong() {
			strong++
		}
	}
	sources := make([]string, 0, len(bySource))
	for src := range bySource {
		sources = append(sources, string(src))
	}
	sort.Strings(sources)

	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════╗")
	fmt.Println("║           REPLAY COMPLETE                ║")
	fmt.Println("╠══════════════════════════════════════════╣")
	for _, sym := range svc.Symbols() {
		m, _ := svc.Monitor(sym)
		fmt.Printf("║  %-12s window: %-19d ║\n", sym, m.WindowLen())
	}
	fmt.Printf("║  Signals:           %-20d ║\n", len(signals))
	fmt.Printf("║  BUY / SELL:        %-20s ║\n", fmt.Sprintf("%d / %d", buys, sells))
	fmt.Printf("║  Strong (>=%d):     %-20d ║\n", int(strategy.StrongThreshold), strong)
	fmt.Println("╠══════════════════════════════════════════╣")
	for _, src := range sources {
		fmt.Printf("║  %-24s %-14d ║\n", src, bySource[strategy.Source(src)])
	}
	fmt.Println("╚══════════════════════════════════════════╝")
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
