package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/RyanLisse/mexc-sniper-bot/internal/config"
	"github.com/RyanLisse/mexc-sniper-bot/internal/domain"
	"github.com/RyanLisse/mexc-sniper-bot/internal/infrastructure/exchange"
	"github.com/RyanLisse/mexc-sniper-bot/internal/infrastructure/logger"
	"github.com/RyanLisse/mexc-sniper-bot/internal/infrastructure/storage"
	"github.com/RyanLisse/mexc-sniper-bot/internal/usecase"
)

// Operator tool: recovers open positions from the local store and sells
// them out one by one, printing a per-position breakdown. Useful when the
// bot is down and positions must be flattened right now.
func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	dryRun := flag.Bool("dry-run", false, "show positions without closing")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	store, err := storage.NewSQLiteStore(cfg.Storage.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "storage error: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	mexc := exchange.NewMexcAdapter(
		cfg.Exchange.APIKey, cfg.Exchange.APISecret,
		cfg.Exchange.RESTEndpoint, cfg.Exchange.WSEndpoint, log)
	defer mexc.Close()

	ctx := context.Background()
	clock := domain.SystemClock{}
	positions := usecase.NewPositionManager(mexc, store, cfg.Safety.HistorySize, cfg.CallTimeout(), clock, log)

	if _, err := positions.Restore(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "restore error: %v\n", err)
		os.Exit(1)
	}

	open := positions.OpenPositions()
	if len(open) == 0 {
		fmt.Println("No open positions in the store.")
		return
	}

	fmt.Printf("Found %d open position(s):\n\n", len(open))
	for _, p := range open {
		fmt.Printf("  %s: qty %.6f, entry %.6f, stop %.6f, target %.6f\n",
			p.Symbol, p.Quantity, p.EntryPrice, p.StopLossPrice, p.TakeProfitPrice)
	}
	fmt.Println()

	if *dryRun {
		fmt.Println("Dry run, no orders placed.")
		return
	}

	var closed, failed int
	for _, p := range open {
		if err := positions.Close(ctx, p.ID, "operator close-all"); err != nil {
			fmt.Fprintf(os.Stderr, "  [FAIL] %s: %v\n", p.Symbol, err)
			failed++
			continue
		}
		fmt.Printf("  [OK]   %s closed\n", p.Symbol)
		closed++
	}

	fmt.Printf("\nDone: %d closed, %d failed.\n", closed, failed)
	if failed > 0 {
		os.Exit(1)
	}
}
