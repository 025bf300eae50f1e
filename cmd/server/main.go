package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/wardenhq/warden/internal/alerts"
	"github.com/wardenhq/warden/internal/brokers"
	"github.com/wardenhq/warden/internal/brokers/angelone"
	"github.com/wardenhq/warden/internal/brokers/fyers"
	"github.com/wardenhq/warden/internal/brokers/zerodha"
	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/database"
	"github.com/wardenhq/warden/internal/domain"
	"github.com/wardenhq/warden/internal/events"
	"github.com/wardenhq/warden/internal/execstate"
	"github.com/wardenhq/warden/internal/guardrails"
	"github.com/wardenhq/warden/internal/modules/market_hours"
	"github.com/wardenhq/warden/internal/modules/portfolio"
	"github.com/wardenhq/warden/internal/modules/reconciliation"
	"github.com/wardenhq/warden/internal/modules/trading"
	"github.com/wardenhq/warden/internal/scheduler"
	"github.com/wardenhq/warden/internal/server"
	"github.com/wardenhq/warden/internal/symbols"
	"github.com/wardenhq/warden/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting Warden")

	// Databases: the execution ledger is the audit trail and gets the
	// durable profile; the position ledger tolerates NORMAL sync.
	ledgerDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "ledger.db"),
		Profile: database.ProfileLedger,
		Name:    "ledger",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger database")
	}
	defer ledgerDB.Close()

	portfolioDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "portfolio.db"),
		Profile: database.ProfileStandard,
		Name:    "portfolio",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open portfolio database")
	}
	defer portfolioDB.Close()

	for _, db := range []*database.DB{ledgerDB, portfolioDB} {
		if err := db.Migrate(); err != nil {
			log.Fatal().Err(err).Str("database", db.Name()).Msg("Failed to run migrations")
		}
	}

	// Execution state: the bbolt override store is shared with operator
	// tooling, so the kill switch works even when this process is wedged.
	overrideStore, err := execstate.NewBoltStore(cfg.OverrideStorePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open execution override store")
	}
	defer overrideStore.Close()

	execState := execstate.NewService(cfg.ExecutionEnabledDefault, overrideStore, log)

	eventManager := events.NewManager(log)
	alerter := alerts.Multi{
		alerts.NewLogAlerter(log),
		alerts.NewEventAlerter(eventManager),
	}

	// Broker registry: discovery reads credentials only; adapters and
	// their HTTP clients are built lazily on first use.
	registry := brokers.NewRegistry(log)
	registry.RegisterFactory(domain.BrokerZerodha, zerodha.NewAdapter)
	registry.RegisterFactory(domain.BrokerAngelOne, angelone.NewAdapter)
	registry.RegisterFactory(domain.BrokerFyers, fyers.NewAdapter)
	discovered := registry.Discover(cfg.Brokers)
	log.Info().Strs("brokers", discovered).Msg("Broker discovery complete")

	tradingRepo := trading.NewRepository(ledgerDB.Conn(), log)
	positionRepo := portfolio.NewPositionRepository(portfolioDB.Conn(), log)
	reconRepo := reconciliation.NewRepository(portfolioDB.Conn(), log)

	transformer := symbols.NewTransformer(log)

	validator := guardrails.NewValidator(
		guardrails.Config{
			HomeExchange:          cfg.HomeExchange,
			AllowedExchanges:      cfg.AllowedExchanges,
			AllowedSymbols:        cfg.AllowedSymbols,
			AllowedStrategies:     cfg.AllowedStrategies,
			MaxQuantity:           cfg.MaxQuantity,
			MaxNotional:           cfg.MaxNotional,
			MaxTradesPerSymbolDay: cfg.MaxTradesPerSymbolDay,
		},
		execState,
		tradingRepo,
		tradingRepo,
		alerter,
		log,
	)

	engine := reconciliation.NewEngine(
		registry,
		positionRepo,
		reconRepo,
		transformer,
		alerter,
		eventManager,
		reconciliation.Config{
			AutoCorrect:         cfg.AutoCorrect,
			PriceDriftTolerance: cfg.PriceDriftTolerance,
		},
		log,
	)

	marketHours := market_hours.NewService()
	reconJob := scheduler.NewReconciliationJob(engine, marketHours, alerter, cfg.SessionExchange, log)

	maintenanceJob := scheduler.NewMaintenanceJob(map[string]*database.DB{
		"ledger":    ledgerDB,
		"portfolio": portfolioDB,
	}, log)

	sched := scheduler.New(log)
	schedule := fmt.Sprintf("@every %s", cfg.ReconcileInterval)
	if err := sched.AddJob(schedule, reconJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register reconciliation job")
	}
	// Well before the 09:15 session open
	if err := sched.AddJob("0 0 4 * * *", maintenanceJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register maintenance job")
	}
	sched.Start()
	defer sched.Stop()

	srv := server.New(server.Config{
		Port:       cfg.Port,
		DevMode:    cfg.DevMode,
		Log:        log,
		ExecState:  execState,
		Brokers:    registry,
		Guardrails: validator,
		Engine:     engine,
		ReconRepo:  reconRepo,
		Positions:  positionRepo,
		Trading:    tradingRepo,
		Events:     eventManager,
		ReconJob:   reconJob,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	status := execState.Status()
	log.Info().
		Int("port", cfg.Port).
		Bool("execution_enabled", status.EffectiveEnabled).
		Msg("Warden started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Warden stopped")
}
