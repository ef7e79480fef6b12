// cmd/backtest runs the Laguerre trend strategy over historical bars and
// prints the performance report. Bars come from an OHLCV CSV or from the
// engine's SQLite store.
//
// Usage:
//
//	go run ./cmd/backtest --csv=data/GBPJPY_H1.csv --symbol=GBPJPY --tf=3600 --filters=4:10
//	go run ./cmd/backtest --db=data/bars.db --symbol=GBPJPY --tf=3600 --filters=4:10:MEDIAN:5 --allow-short
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"

	"laguerre-systemv1/internal/alfengine"
	"laguerre-systemv1/internal/backtest"
	"laguerre-systemv1/internal/execution"
	"laguerre-systemv1/internal/model"
	"laguerre-systemv1/internal/pricefile"
	"laguerre-systemv1/internal/replay"
	sqlitestore "laguerre-systemv1/internal/store/sqlite"
	"laguerre-systemv1/internal/strategy"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	csvPath := flag.String("csv", "", "OHLCV CSV file to backtest")
	dbPath := flag.String("db", "", "SQLite store to backtest (alternative to --csv)")
	symbol := flag.String("symbol", "GBPJPY", "Symbol to backtest")
	tf := flag.Int("tf", 3600, "Bar duration in seconds")
	fromTS := flag.Int64("from", 0, "Unix timestamp to start from (0=all, --db only)")
	filterSpecs := flag.String("filters", "4:10", "Filter specs: ORDER:LENGTH[:MODE:PERIOD],...")
	tradeFilter := flag.String("trade-filter", "", "Result name the strategy trades (default: first of --filters)")
	qty := flag.Int64("qty", 1, "Units per trade")
	minDistance := flag.Float64("min-distance", 0, "Min |close-filter| price distance before entering")
	persistBars := flag.Int("persist", 0, "Bars the trend must hold before entry")
	allowShort := flag.Bool("allow-short", false, "Open shorts on DOWN trends")
	slippageBps := flag.Int64("slippage-bps", 0, "Slippage per fill in basis points")
	equity := flag.Float64("equity", 0, "Initial equity in price units (0=default)")
	journalPath := flag.String("journal", "", "SQLite file to journal the simulated fills to")
	jsonOut := flag.String("json", "", "Write the full result JSON to this file")
	flag.Parse()

	filters := alfengine.ParseFilterSpecs(*filterSpecs)
	if len(filters) == 0 {
		log.Fatal("[backtest] no valid filter specs")
	}

	filterName := *tradeFilter
	if filterName == "" {
		filterName = filters[0].Name()
	}

	bars, err := loadBars(*csvPath, *dbPath, *symbol, *tf, *fromTS)
	if err != nil {
		log.Fatalf("[backtest] bar load failed: %v", err)
	}
	if len(bars) == 0 {
		log.Fatal("[backtest] no bars to backtest")
	}
	log.Printf("[backtest] %d bars loaded: %s %ds, %s – %s",
		len(bars), *symbol, *tf,
		bars[0].TS.Format("2006-01-02"), bars[len(bars)-1].TS.Format("2006-01-02"))

	strat := strategy.NewLaguerreTrend(strategy.LaguerreTrendConfig{
		FilterName:  filterName,
		TF:          *tf,
		Qty:         *qty,
		MinDistance: model.PriceToPoints(*minDistance),
		PersistBars: *persistBars,
		AllowShort:  *allowShort,
	})

	engine, err := backtest.New(backtest.Config{
		TF:            *tf,
		Filters:       filters,
		Strategy:      strat,
		InitialEquity: model.PriceToPoints(*equity),
		SlippageBps:   *slippageBps,
	})
	if err != nil {
		log.Fatalf("[backtest] engine init failed: %v", err)
	}

	result, err := engine.Run(bars)
	if err != nil {
		log.Fatalf("[backtest] run failed: %v", err)
	}

	printReport(&result, filterName)

	if *journalPath != "" {
		journal, err := execution.NewJournal(*journalPath)
		if err != nil {
			log.Fatalf("[backtest] journal open failed: %v", err)
		}
		if err := journal.RecordFills(engine.Fills()); err != nil {
			log.Fatalf("[backtest] journal write failed: %v", err)
		}
		journal.Close()
		log.Printf("[backtest] %d fills journaled to %s", result.Fills, *journalPath)
	}

	if *jsonOut != "" {
		data, err := json.MarshalIndent(&result, "", "  ")
		if err != nil {
			log.Fatalf("[backtest] result marshal failed: %v", err)
		}
		if err := os.WriteFile(*jsonOut, data, 0o644); err != nil {
			log.Fatalf("[backtest] result write failed: %v", err)
		}
		log.Printf("[backtest] result written to %s", *jsonOut)
	}
}

// loadBars reads the series from the CSV or replays it out of SQLite.
func loadBars(csvPath, dbPath, symbol string, tf int, fromTS int64) ([]model.Candle, error) {
	if csvPath != "" {
		return pricefile.ReadBars(csvPath, symbol, tf, pricefile.LoadOptions{AllowGaps: true})
	}
	if dbPath == "" {
		return nil, fmt.Errorf("one of --csv or --db is required")
	}

	reader, err := sqlitestore.NewReader(dbPath)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	replayer := replay.New(reader)
	barCh := make(chan model.Candle, 10000)
	var replayErr error
	go func() {
		replayErr = replayer.Run(context.Background(), []int{tf}, fromTS, 0, barCh)
		close(barCh)
	}()

	var bars []model.Candle
	for bar := range barCh {
		if bar.Symbol == symbol && bar.TF == tf {
			bars = append(bars, bar)
		}
	}
	return bars, replayErr
}

func printReport(res *backtest.Result, filterName string) {
	metrics := res.Metrics()

	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════════╗")
	fmt.Println("║              BACKTEST COMPLETE               ║")
	fmt.Println("╠══════════════════════════════════════════════╣")
	fmt.Printf("║  Strategy filter:   %-24s ║\n", filterName)
	fmt.Printf("║  Bars processed:    %-24d ║\n", res.Bars)
	fmt.Printf("║  Signals:           %-24d ║\n", res.Signals)
	fmt.Printf("║  Fills:             %-24d ║\n", res.Fills)
	fmt.Printf("║  Risk-rejected:     %-24d ║\n", res.Rejected)
	fmt.Printf("║  Closed trades:     %-24d ║\n", len(res.Trades))
	fmt.Printf("║  Initial equity:    %-24.2f ║\n", model.PointsToPrice(res.InitialEquity))
	fmt.Printf("║  Final equity:      %-24.2f ║\n", model.PointsToPrice(res.FinalEquity))
	fmt.Println("╠══════════════════════════════════════════════╣")

	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("║  %-18s %-24.4f ║\n", name+":", metrics[name])
	}
	fmt.Println("╚══════════════════════════════════════════════╝")
}
