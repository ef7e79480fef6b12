package alfengine

import (
	"context"
	"fmt"
	"log"
	"time"

	"laguerre-systemv1/internal/model"
	"laguerre-systemv1/internal/notification"
)

// startConsumer starts the Redis stream XREADGROUP consumer in a goroutine.
func (svc *Service) startConsumer(ctx context.Context) {
	if len(svc.streams) == 0 {
		return
	}
	go func() {
		if err := svc.redisReader.ConsumeBars(ctx, svc.streams, svc.barCh); err != nil {
			log.Printf("[alfengine] consumer error: %v", err)
		}
	}()
}

// startPELReclaimer starts periodic reclamation of stale PEL messages.
func (svc *Service) startPELReclaimer(ctx context.Context) {
	if len(svc.streams) == 0 {
		return
	}
	go svc.redisReader.StartPELReclaimer(ctx, svc.streams,
		svc.cfg.ConsumerGroup, svc.cfg.ConsumerName,
		time.Duration(svc.cfg.PELIntervalS)*time.Second,
		svc.cfg.PELMinIdleMs, svc.barCh,
		func(count int) {
			svc.prom.PELMessagesReclaimed.Add(float64(count))
			log.Printf("[alfengine] reclaimed %d stale PEL messages", count)
		})
	log.Printf("[alfengine] PEL reclaimer started (interval=%ds, minIdle=%dms)",
		svc.cfg.PELIntervalS, svc.cfg.PELMinIdleMs)
}

// processLoop consumes bars from the channel and runs the filters.
// Uses Process() for completed bars and ProcessPeek() for forming bars.
func (svc *Service) processLoop(ctx context.Context) {
	const (
		filterLatencyKey           = "metrics:alfengine:filter_compute_ms"
		filterLatencyTTL           = 30 * time.Second
		filterLatencyPublishMinDur = 2 * time.Second
		filterLatencyAlpha         = 0.2
	)
	var (
		latencyEwmaMs      float64
		lastLatencyPublish time.Time
	)

	for {
		select {
		case <-ctx.Done():
			return
		case bar, ok := <-svc.barCh:
			if !ok {
				return
			}

			var results []model.FilterResult
			start := time.Now()
			if bar.Forming {
				results = svc.engine.ProcessPeek(bar)
				if len(results) > 0 {
					svc.prom.PeeksTotal.Inc()
				}
			} else {
				results = svc.engine.Process(bar)
				svc.prom.BarsTotal.Inc()
				svc.health.SetLastBarTime(bar.TS)
				svc.prom.ResultLag.Set(time.Since(bar.TS).Seconds())
			}
			elapsed := time.Since(start)
			svc.prom.FilterComputeDur.Observe(elapsed.Seconds())
			if len(results) > 0 {
				svc.prom.ResultsTotal.WithLabelValues(model.Itoa(bar.TF)).Add(float64(len(results)))
			}

			if !bar.Forming {
				svc.detectTrendFlips(ctx, results)
			}

			// Track EWMA latency and publish periodically
			latencyMs := float64(elapsed.Microseconds()) / 1000.0
			if latencyEwmaMs == 0 {
				latencyEwmaMs = latencyMs
			} else {
				latencyEwmaMs = latencyEwmaMs*(1.0-filterLatencyAlpha) + latencyMs*filterLatencyAlpha
			}
			if time.Since(lastLatencyPublish) >= filterLatencyPublishMinDur {
				cctx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
				if cctx.Err() == nil {
					_ = svc.redisWriter.Client().Set(
						cctx,
						filterLatencyKey,
						fmt.Sprintf("%.3f", latencyEwmaMs),
						filterLatencyTTL,
					).Err()
				}
				cancel()
				lastLatencyPublish = time.Now()
			}

			svc.writeResults(ctx, results)
		}
	}
}

// detectTrendFlips compares each steady result's trend against the last
// seen one and dispatches an alert on every flip. Warm-up results never
// alert — their trend is not a signal yet.
func (svc *Service) detectTrendFlips(ctx context.Context, results []model.FilterResult) {
	for _, r := range results {
		if !r.Ready {
			continue
		}
		key := r.Name + ":" + model.Itoa(r.TF) + ":" + r.Symbol
		prev, seen := svc.lastTrend[key]
		svc.lastTrend[key] = r.Trend
		if !seen || prev == r.Trend {
			continue
		}

		svc.prom.TrendFlipsTotal.WithLabelValues(r.Trend.String()).Inc()
		if svc.notifier == nil {
			continue
		}
		alert := notification.TrendFlip(r.Symbol, r.TF, r.Name, prev, r.Trend, r.Value, r.TS)
		go func() {
			nctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			if err := svc.notifier.Send(nctx, alert); err != nil {
				log.Printf("[alfengine] trend alert delivery failed: %v", err)
			}
		}()
	}
}
