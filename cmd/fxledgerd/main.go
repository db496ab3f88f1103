package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fxledger/fxledger/params"
	"github.com/fxledger/fxledger/pkg/api"
	"github.com/fxledger/fxledger/pkg/ledger"
	"github.com/fxledger/fxledger/pkg/rates"
	"github.com/fxledger/fxledger/pkg/storage"
	"github.com/fxledger/fxledger/pkg/util"
)

func main() {
	cfg := params.LoadFromEnv("")

	logger, err := util.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	// ---- Ledger store ----
	store, err := storage.Open(cfg.Ledger.DBPath)
	if err != nil {
		sugar.Fatalw("store_open_failed", "path", cfg.Ledger.DBPath, "err", err)
	}
	defer store.Close()
	sugar.Infow("store_opened", "path", cfg.Ledger.DBPath)

	// ---- Settlement core ----
	core := ledger.New(store, util.RealClock{}, sugar)

	// ---- Rate source ----
	var src rates.Source
	if cfg.Rates.APIKey != "" {
		src = rates.NewClient(cfg.Rates.APIURL, cfg.Rates.APIKey, sugar)
		sugar.Info("using apilayer rate source")
	} else {
		src = rates.NewMock(0)
		sugar.Info("no RATES_API_KEY set, using mock rate source")
	}

	// ---- API ----
	server := api.NewServer(core, src, cfg.Server.CorsOrigins, sugar)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	poller := rates.NewPoller(src, cfg.Rates.Base, cfg.Rates.PollInterval, server.BroadcastRates, sugar)
	go poller.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.Server.ListenAddr)
	}()

	select {
	case <-ctx.Done():
		sugar.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			sugar.Warnw("shutdown_failed", "err", err)
		}
	case err := <-errCh:
		if err != nil {
			sugar.Fatalw("server_failed", "err", err)
		}
	}
}
