package alfengine

import (
	"context"
	"fmt"
	"log"
	"time"

	"laguerre-systemv1/internal/livefeed"
	"laguerre-systemv1/internal/model"
	"laguerre-systemv1/internal/ringbuf"
	"laguerre-systemv1/internal/sessions"
)

// startLiveFeed wires the vendor WebSocket as the bar source: session
// login, the ingest loop with auto re-login, and the ring drain that
// feeds the process loop while persisting bars to Redis and SQLite.
func (svc *Service) startLiveFeed(ctx context.Context) error {
	cfg := svc.cfg
	if cfg.FeedAPIURL == "" || cfg.FeedAPIKey == "" || cfg.FeedAccountID == "" || cfg.FeedTOTPSecret == "" {
		return fmt.Errorf("live source requires FEED_API_URL, FEED_API_KEY, FEED_ACCOUNT_ID and FEED_TOTP_SECRET")
	}

	sessClient, err := livefeed.NewSessionClient(livefeed.SessionConfig{
		BaseURL:    cfg.FeedAPIURL,
		APIKey:     cfg.FeedAPIKey,
		AccountID:  cfg.FeedAccountID,
		TOTPSecret: cfg.FeedTOTPSecret,
	})
	if err != nil {
		return err
	}

	ring := ringbuf.New(8192)

	// Persistence fan-out channels. The redis path goes through the
	// plain writer — the breaker wraps result writes; bar history loss
	// during an outage is recovered from SQLite on restart.
	redisCh := make(chan model.Candle, 5000)
	sqlCh := make(chan model.Candle, 5000)
	go svc.redisWriter.RunBars(ctx, redisCh)
	if svc.sqlWriter != nil {
		go svc.sqlWriter.RunBars(ctx, sqlCh)
	}

	// Ingest loop with re-login on token rejection.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			sess, err := sessClient.Login(ctx)
			if err != nil {
				log.Printf("[alfengine] feed login failed: %v — retrying in 10s", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(10 * time.Second):
				}
				continue
			}
			log.Printf("[alfengine] feed session established (issued %s)", sess.IssuedAt.Format(time.RFC3339))

			ing, err := livefeed.NewIngest(livefeed.IngestConfig{
				URL:         cfg.FeedWSURL,
				APIKey:      cfg.FeedAPIKey,
				AccountID:   cfg.FeedAccountID,
				AccessToken: sess.AccessToken,
				FeedToken:   sess.FeedToken,
				Symbols:     cfg.Symbols,
				TFs:         cfg.EnabledTFs,
			})
			if err != nil {
				log.Printf("[alfengine] ingest setup failed: %v", err)
				return
			}
			ing.OnReconnect = func() {
				svc.prom.WSReconnects.Inc()
				svc.health.SetFeedConnected(false)
			}

			svc.health.SetFeedConnected(true)
			err = ing.Start(ctx, ring)
			svc.health.SetFeedConnected(false)
			if err == livefeed.ErrAuthRejected {
				log.Println("[alfengine] feed tokens rejected — re-logging in")
				continue
			}
			return // ctx cancelled
		}
	}()

	// Drain loop: ring → process channel + persistence, gated by the
	// trading calendar.
	go func() {
		drainCh := make(chan model.Candle, 5000)
		go livefeed.Drain(ctx, ring, drainCh)

		for {
			select {
			case <-ctx.Done():
				return
			case bar := <-drainCh:
				if !bar.Forming && !sessions.IsMarketOpen(bar.TS) {
					svc.prom.DroppedBars.Inc()
					log.Printf("[alfengine] dropping out-of-session bar %s @ %s (%s)",
						bar.Key(), bar.TS.Format(time.RFC3339), sessions.StatusString(bar.TS))
					continue
				}

				select {
				case redisCh <- bar:
				default:
					svc.prom.DroppedBars.Inc()
				}
				if svc.sqlWriter != nil && !bar.Forming {
					select {
					case sqlCh <- bar:
					default:
						svc.prom.DroppedBars.Inc()
					}
				}

				select {
				case svc.barCh <- bar:
				default:
					svc.prom.DroppedBars.Inc()
				}
			}
		}
	}()

	// Ring overflow counter sync.
	go func() {
		var last uint64
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cur := ring.Overflow()
				if cur > last {
					svc.prom.RingBufOverflow.Add(float64(cur - last))
					last = cur
				}
			}
		}
	}()

	return nil
}
