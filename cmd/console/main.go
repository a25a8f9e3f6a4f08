package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/uhyunpark/driftdesk/params"
	"github.com/uhyunpark/driftdesk/pkg/api"
	"github.com/uhyunpark/driftdesk/pkg/console"
	"github.com/uhyunpark/driftdesk/pkg/storage"
	"github.com/uhyunpark/driftdesk/pkg/util"
	"github.com/uhyunpark/driftdesk/pkg/wallet"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("") // "" means load from .env in current directory

	// Setup logging (write to both console and file)
	logger, err := util.NewLoggerWithFile(cfg.Log.File, cfg.Log.Level)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Log.File, "level", cfg.Log.Level)

	// ---- Journal ----
	journal, err := storage.OpenJournal(cfg.JournalPath, util.RealClock{})
	if err != nil {
		sugar.Fatalw("journal_open_failed", "path", cfg.JournalPath, "err", err)
	}
	defer journal.Close()

	// ---- Console session ----
	session, err := console.New(console.Options{
		Networks: cfg.Networks,
		Network:  cfg.Network,
		Factory:  console.RPCClientFactory(cfg.Commitment, sugar),
		Journal:  journal,
		Logger:   sugar,
	})
	if err != nil {
		sugar.Fatalw("console_init_failed", "network", cfg.Network, "err", err)
	}
	defer session.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Local keypair for headless use; otherwise the browser connects its
	// wallet over /ws?wallet=<pubkey>
	if cfg.Wallet.KeypairPath != "" {
		kp, err := wallet.FromKeygenFile(cfg.Wallet.KeypairPath)
		if err != nil {
			sugar.Fatalw("keypair_load_failed", "path", cfg.Wallet.KeypairPath, "err", err)
		}
		accounts, err := session.ConnectWallet(ctx, kp)
		if err != nil {
			sugar.Warnw("wallet_connect_failed", "authority", kp.PublicKey(), "err", err)
		} else {
			sugar.Infow("wallet_loaded", "authority", kp.PublicKey(), "sub_accounts", len(accounts))
		}
	}

	network := session.Network()
	sugar.Infow("console_starting",
		"network", network.Name,
		"rpc", network.RPCURL,
		"commitment", cfg.Commitment,
		"journal", cfg.JournalPath,
	)

	// Start HTTP/WebSocket server for frontend
	server := api.NewServer(session, cfg.API, sugar)
	if err := server.Start(ctx, cfg.API.Addr); err != nil {
		sugar.Errorw("api_server_failed", "err", err)
	}
	sugar.Infow("console_stopped")
}
