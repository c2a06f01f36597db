package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"dag-stitch/config"
	"dag-stitch/controller"
	"dag-stitch/dag"
	"dag-stitch/db"
	"dag-stitch/handlers"
	"dag-stitch/ledger"
	"dag-stitch/logger"
	"dag-stitch/p2p"
	"dag-stitch/repository"
	"dag-stitch/routers"
	"dag-stitch/stitcher"
	"dag-stitch/wallet"
)

func main() {
	// Load config
	cfg, err := config.Load(config.DefaultPath)
	if err != nil {
		fmt.Println("Config file error:", err)
		os.Exit(1)
	}

	if err := logger.InitLogger(cfg.Log.AppLogFile, cfg.Log.Level); err != nil {
		fmt.Println("Failed to initialize logger:", err)
		os.Exit(1)
	}
	defer logger.Logger.Sync()

	logger.Logger.Info("Starting DAG stitcher...",
		zap.String("rpc_url", cfg.RPCURL),
		zap.Bool("adaptive", cfg.Adaptive),
		zap.Int("dag_window", cfg.DAGWindow))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Stitch journal
	ldb, err := db.NewLevelDB(cfg.LevelDB.Path)
	if err != nil {
		logger.Logger.Fatal("Failed to open leveldb", zap.Error(err))
	}
	defer ldb.Close()
	journal := repository.NewStitchRepository(ldb)

	w, err := wallet.LoadOrCreate(cfg.Wallet.KeyFile)
	if err != nil {
		logger.Logger.Fatal("Failed to load wallet", zap.Error(err))
	}
	logger.Logger.Info("Wallet loaded", zap.String("address", w.Address()))

	client, err := ledger.New(cfg.RPCURL, cfg.RPCMaxRPS)
	if err != nil {
		logger.Logger.Fatal("Failed to create ledger client", zap.Error(err))
	}

	node, err := p2p.Setup(ctx, p2p.Config{
		Port:           cfg.P2PPort,
		BootstrapPeers: cfg.P2PBootstrapPeers,
		Topic:          cfg.P2PTopic,
	})
	if err != nil {
		logger.Logger.Fatal("Failed to start p2p node", zap.Error(err))
	}
	defer node.Close()
	logger.Logger.Info("P2P node started", zap.String("peer_id", node.ID()))

	s, err := stitcher.New(stitcher.Deps{
		Window:      dag.NewWindow(cfg.DAGWindow, dag.HeaviestFirst{}),
		Controller:  controller.New(cfg.Controller()),
		Ledger:      client,
		Broadcaster: node,
		Payer:       wallet.NewRewardPayer(w, client),
		Key:         w.PrivateKey(),
		Journal:     journal,
	})
	if err != nil {
		logger.Logger.Fatal("Failed to create stitcher", zap.Error(err))
	}

	if err := s.Bootstrap(ctx); err != nil {
		logger.Logger.Fatal("Failed to bootstrap DAG", zap.Error(err))
	}

	sub, err := client.Subscribe(ctx)
	if err != nil {
		logger.Logger.Fatal("Failed to subscribe to block notifications", zap.Error(err))
	}
	defer sub.Close()

	// Status API
	var srv *http.Server
	if cfg.Server.Port > 0 {
		r := mux.NewRouter()
		routers.RegisterRoutes(r, handlers.NewHandler(s, journal))

		srv = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
			Handler: r,
		}

		go func() {
			if err := srv.ListenAndServe(); err != nil {
				logger.Logger.Info("Server stopped", zap.Error(err))
			}
		}()

		logger.Logger.Info("Server running on port", zap.Int("port", cfg.Server.Port))
	}

	err = s.Run(ctx, sub)

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		srv.Shutdown(shutdownCtx)
		cancel()
	}

	switch {
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		logger.Logger.Info("Shutdown signal received, exiting...")
	case err != nil:
		logger.Logger.Fatal("Block notification stream ended", zap.Error(err))
	}
}
