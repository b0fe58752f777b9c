package main

import (
	"context"
	"crypto/rand"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scrogson/walle/pkg/key"
	"github.com/scrogson/walle/pkg/log"
	"github.com/scrogson/walle/pkg/rpc"
	"github.com/scrogson/walle/pkg/sign"
	"github.com/scrogson/walle/pkg/store"
)

const (
	rpcListenEndpoint    = "/ws"
	metricsEndpoint      = "/metrics"
	storeMetricsInterval = 30 * time.Second
	shutdownTimeout      = 5 * time.Second
)

func main() {
	bootLogger := log.NewZapLogger(log.Config{Level: log.LevelInfo})

	config, err := LoadConfig(bootLogger)
	if err != nil {
		bootLogger.Fatal("failed to load configuration", "error", err)
	}

	logger := log.NewZapLogger(config.Log).WithName("walle")

	db, err := store.ConnectToDB(config.Database, logger)
	if err != nil {
		logger.Fatal("failed to setup database", "error", err)
	}
	wallets := store.NewKeystoreStore(db)

	signer, err := newNodeSigner(config.NodePrivateKey, logger)
	if err != nil {
		logger.Fatal("failed to initialise node signer", "error", err)
	}
	defer signer.Close()
	logger.Info("node signer initialized", "address", signer.PublicKey().Address().String())

	metrics := NewMetrics()

	node, err := rpc.NewWebsocketNode(rpc.WebsocketNodeConfig{
		Signer:               signer,
		Logger:               logger,
		OnConnectHandler:     metrics.HandleConnect,
		OnDisconnectHandler:  metrics.HandleDisconnect,
		OnMessageSentHandler: metrics.HandleMessageSent,
	})
	if err != nil {
		logger.Fatal("failed to create RPC node", "error", err)
	}
	NewRPCRouter(node, config, wallets, metrics, logger)

	rpcMux := http.NewServeMux()
	rpcMux.Handle(rpcListenEndpoint, node)
	rpcServer := &http.Server{
		Addr:              config.ListenAddr,
		Handler:           rpcMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle(metricsEndpoint, promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              config.MetricsAddr,
		Handler:           metricsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go metrics.RecordMetricsPeriodically(ctx, wallets, storeMetricsInterval, logger)

	go func() {
		logger.Info("Prometheus metrics available", "listenAddr", config.MetricsAddr, "endpoint", metricsEndpoint)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failure", "error", err)
		}
	}()

	go func() {
		logger.Info("RPC server available", "listenAddr", config.ListenAddr, "endpoint", rpcListenEndpoint)
		if err := rpcServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("RPC server failure", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := rpcServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shut down RPC server", "error", err)
	}
	node.Close()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shut down metrics server", "error", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}

	logger.Info("shutdown complete")
}

// newNodeSigner loads the node identity, or generates a throwaway one.
func newNodeSigner(privateKeyHex string, logger log.Logger) (*sign.EthereumSigner, error) {
	if privateKeyHex != "" {
		return sign.NewEthereumSignerFromHex(privateKeyHex)
	}

	k, err := key.Generate(rand.Reader)
	if err != nil {
		return nil, err
	}
	logger.Warn("WALLE_NODE_PRIVATE_KEY not set, using an ephemeral node key")
	return sign.NewEthereumSigner(k), nil
}
