package signald

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"signal-engine/internal/logger"
	"signal-engine/internal/marketdata/window"
	"signal-engine/internal/model"
	"signal-engine/internal/monitor"
	"signal-engine/internal/notification"
	"signal-engine/internal/strategy"
)

// process applies every update for one symbol to its monitor and forwards
// the surfaced signals. It is the monitor's single writer.
func (svc *Service) process(ctx context.Context, m *monitor.Monitor, updates <-chan model.KlineUpdate) {
	sym := m.Symbol()
	for u := range updates {
		svc.prom.KlineUpdatesTotal.WithLabelValues(sym, strconv.FormatBool(u.Closed)).Inc()
		tctx := logger.WithTraceID(ctx, logger.GenerateTraceID(sym, u.Kline.OpenTime))

		start := time.Now()
		res, err := m.ApplyCandleUpdate(u)
		svc.prom.EvaluateDur.Observe(time.Since(start).Seconds())
		if errors.Is(err, window.ErrOutOfOrder) {
			svc.log.Debug("stale kline rejected", append(logger.LogWithTrace(tctx), "symbol", sym)...)
			continue
		}
		if err != nil {
			svc.log.Warn("kline update rejected", append(logger.LogWithTrace(tctx), "symbol", sym, "error", err)...)
			continue
		}

		svc.health.SetLastKlineTime(u.Kline.CloseTime)
		svc.prom.LastKlineLag.Set(time.Since(u.Kline.CloseTime).Seconds())
		svc.prom.WindowSize.WithLabelValues(sym).Set(float64(res.Outcome.Len))
		svc.prom.SignalsDetected.WithLabelValues(sym).Add(float64(res.Detected))
		svc.prom.SignalsSuppressed.WithLabelValues(sym).Add(float64(res.Suppressed))

		if len(res.Signals) > 0 {
			svc.log.Debug("signals surfaced", append(logger.LogWithTrace(tctx),
				"symbol", sym, "new", len(res.Signals), "suppressed", res.Suppressed)...)
		}
		for _, s := range res.Signals {
			svc.prom.SignalsEmitted.WithLabelValues(string(s.Source), string(s.Type)).Inc()
			// signalCh is drained until Run closes it, so this never blocks for long.
			svc.signalCh <- s
		}
	}
}

// startSinks subscribes every configured sink to the bus and starts the bus.
// The returned group finishes once the bus is drained and every sink has
// returned.
func (svc *Service) startSinks() *sync.WaitGroup {
	var wg sync.WaitGroup
	ctx := svc.sinkCtx

	dispatch := func(name string, n notification.Notifier) {
		ch := svc.bus.Subscribe(name)
		onErr := func(s strategy.Signal, err error) {
			svc.prom.SinkErrors.WithLabelValues(name).Inc()
			svc.log.Warn("sink delivery failed", "sink", name, "id", s.ID, "error", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			notification.Dispatch(ctx, ch, n, onErr)
		}()
	}

	dispatch("log", notification.NewLogNotifier(svc.log))
	if svc.buffered != nil {
		dispatch("redis", timedNotifier{Notifier: svc.buffered, obs: svc.prom.RedisWriteDur})
	}
	if svc.webhook != nil {
		dispatch("webhook", svc.webhook)
	}
	if svc.journal != nil {
		ch := svc.bus.Subscribe("sqlite")
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.journal.Run(ctx, ch)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		svc.bus.Run(ctx, svc.signalCh)
	}()
	return &wg
}

func (svc *Service) sinkNames() []string {
	names := []string{"log"}
	if svc.buffered != nil {
		names = append(names, "redis")
	}
	if svc.webhook != nil {
		names = append(names, "webhook")
	}
	if svc.journal != nil {
		names = append(names, "sqlite")
	}
	return names
}

// timedNotifier records the latency of each delivery.
type timedNotifier struct {
	notification.Notifier
	obs prometheus.Observer
}

func (t timedNotifier) Send(ctx context.Context, s strategy.Signal) error {
	start := time.Now()
	err := t.Notifier.Send(ctx, s)
	t.obs.Observe(time.Since(start).Seconds())
	return err
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
