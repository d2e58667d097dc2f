package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/RyanLisse/mexc-sniper-bot/internal/config"
	"github.com/RyanLisse/mexc-sniper-bot/internal/domain"
	"github.com/RyanLisse/mexc-sniper-bot/internal/infrastructure/exchange"
	"github.com/RyanLisse/mexc-sniper-bot/internal/infrastructure/locker"
	"github.com/RyanLisse/mexc-sniper-bot/internal/infrastructure/logger"
	"github.com/RyanLisse/mexc-sniper-bot/internal/infrastructure/notifier"
	"github.com/RyanLisse/mexc-sniper-bot/internal/infrastructure/safety"
	"github.com/RyanLisse/mexc-sniper-bot/internal/infrastructure/storage"
	"github.com/RyanLisse/mexc-sniper-bot/internal/usecase"
	"github.com/RyanLisse/mexc-sniper-bot/internal/web"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	// Local development secrets; missing file is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Logging.Level)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	store, err := storage.NewSQLiteStore(cfg.Storage.Path)
	if err != nil {
		log.Fatal("Failed to init sqlite", zap.Error(err))
	}
	defer store.Close()

	mexc := exchange.NewMexcAdapter(
		cfg.Exchange.APIKey, cfg.Exchange.APISecret,
		cfg.Exchange.RESTEndpoint, cfg.Exchange.WSEndpoint, log)
	defer mexc.Close()

	clock := domain.SystemClock{}
	locks := locker.NewLockManager(clock)
	probe := safety.NewExchangeProbe(mexc, "BTCUSDT", log)
	alerts := notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.Enabled, log)

	breaker := usecase.NewCircuitBreaker(cfg.Safety.CircuitThreshold, cfg.CircuitResetDelay(), clock, log)
	risk := usecase.NewRiskAssessor(cfg.Trading.MaxPositions, cfg.Trading.PositionSize, cfg.Trading.MaxDrawdownPct)
	positions := usecase.NewPositionManager(mexc, store, cfg.Safety.HistorySize, cfg.CallTimeout(), clock, log)
	if n, err := positions.Restore(context.Background()); err != nil {
		log.Error("Failed to restore open positions", zap.Error(err))
	} else if n > 0 {
		log.Info("Recovered open positions", zap.Int("count", n))
	}

	engine := usecase.NewExecutionEngine(cfg, mexc, risk, breaker, positions, probe, alerts, clock, log)
	processor := usecase.NewTargetProcessor(store, locks, engine, clock, log)
	engine.BindTargets(processor)

	orchestrator := usecase.NewOrchestrator(cfg, engine, processor, positions, breaker, risk, clock, log)

	if result := orchestrator.Start(); !result.Success {
		log.Fatal("Failed to start orchestrator", zap.String("error", result.Error))
	}

	var ctrl *web.Server
	if cfg.Web.Enabled {
		ctrl = web.NewServer(cfg.Web.Port, orchestrator, log)
		go func() {
			if err := ctrl.Start(); err != nil {
				log.Error("Control server failed", zap.Error(err))
			}
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down...")
	if ctrl != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		if err := ctrl.Shutdown(shutdownCtx); err != nil {
			log.Error("Control server shutdown error", zap.Error(err))
		}
		cancelShutdown()
	}
	if result := orchestrator.Stop(); !result.Success {
		log.Error("Shutdown error", zap.String("error", result.Error))
	}
}
