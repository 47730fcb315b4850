package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"

	"github.com/kirillm/verigate/internal/anchor"
	"github.com/kirillm/verigate/internal/api"
	"github.com/kirillm/verigate/internal/config"
	"github.com/kirillm/verigate/internal/domain"
	"github.com/kirillm/verigate/internal/notify"
	"github.com/kirillm/verigate/internal/orchestrator"
	"github.com/kirillm/verigate/internal/policy"
	"github.com/kirillm/verigate/internal/preview"
	"github.com/kirillm/verigate/internal/storage"
	"github.com/kirillm/verigate/internal/verification"
	"github.com/kirillm/verigate/pkg/utils"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("verigate: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := utils.NewFileLogger(cfg.LogLevel, cfg.LogFile)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Хранилище опционально; интерфейсные переменные остаются nil без БД
	var (
		st        *storage.PostgresStorage
		positions domain.PositionRepository
		audit     orchestrator.AuditStore
		reader    api.AuditReader
	)
	if cfg.Database.Enabled() {
		st, err = storage.NewPostgresStorage(ctx, cfg.Database)
		if err != nil {
			return err
		}
		positions, audit, reader = st, st, st
		logger.Info("💾 Connected to PostgreSQL %s:%d/%s", cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName)
	} else {
		logger.Warn("DB_HOST not set: positions are treated as flat, audit disabled")
	}

	var policyService preview.PolicyService
	if cfg.Verification.PolicyURL != "" {
		policyService = verification.NewPolicyClient(verification.Options{
			BaseURL:    cfg.Verification.PolicyURL,
			Timeout:    cfg.Verification.PolicyTimeout,
			Retries:    cfg.Verification.Retries,
			RetryDelay: cfg.Verification.RetryDelay,
			Logger:     logger,
		})
	} else {
		engine, err := policy.NewEngine(cfg.Verification.PolicyPath, cfg.Verification.PolicyProfile, logger)
		if err != nil {
			return err
		}
		policyService = engine
		logger.Info("📋 Local policy profile %q loaded from %s", cfg.Verification.PolicyProfile, cfg.Verification.PolicyPath)
	}

	riskService := verification.NewRiskClient(verification.Options{
		BaseURL:    cfg.Verification.RiskURL,
		Timeout:    cfg.Verification.RiskTimeout,
		Retries:    cfg.Verification.Retries,
		RetryDelay: cfg.Verification.RetryDelay,
		Logger:     logger,
	})

	pipeline := preview.NewPipeline(policyService, riskService, preview.Config{
		PolicyTimeout: cfg.Verification.PolicyTimeout,
		RiskTimeout:   cfg.Verification.RiskTimeout,
		Deadline:      cfg.Verification.Deadline,
	}, logger.With("component", "preview"))

	var worker *anchor.Worker
	if cfg.Anchor.Enabled {
		ledger, err := anchor.NewEthLedger(ctx, cfg.Anchor)
		if err != nil {
			return err
		}
		defer ledger.Close()
		worker = anchor.NewWorker(anchor.NewClient(ledger, cfg.Anchor.Timeout, logger), logger.With("component", "anchor"))
		logger.Info("⚓ Anchoring to %s as %s", cfg.Anchor.ContractAddress, ledger.Sender().Hex())
	} else {
		logger.Warn("ANCHOR_ENABLED=false: previews and fills are not anchored")
	}

	var notifier notify.Notifier = notify.NopNotifier{}
	if cfg.Telegram.Enabled() {
		tg, err := notify.NewTelegramNotifier(cfg.Telegram, logger)
		if err != nil {
			// алерты не являются условием работы гейта
			logger.Error("Telegram alerts disabled: %v", err)
		} else {
			notifier = tg
		}
	}

	gate := orchestrator.New(positions, pipeline, worker, audit, notifier, orchestrator.Config{
		QueueSize: cfg.Anchor.QueueSize,
	}, logger.With("component", "gate"))
	if err := gate.Start(ctx); err != nil {
		return err
	}

	server := api.NewServer(logger, pipeline, gate, reader, cfg.Server.Port)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	var errs error
	select {
	case errs = <-errCh:
	case <-ctx.Done():
		logger.Info("🛑 Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		errs = server.Shutdown(shutdownCtx)
	}

	// gate останавливается только после HTTP-сервера
	gate.Stop()
	if st != nil {
		errs = multierr.Append(errs, st.Close())
	}
	return errs
}
