package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	arbengine "github.com/vantablack/arbengine"
	"github.com/vantablack/arbengine/configs"
	"github.com/vantablack/arbengine/internal/dispatch"
	"github.com/vantablack/arbengine/internal/observer"
)

// Exit codes: 0 normal shutdown, 2 fatal config error, 3 emergency stop
// latched at startup, 4 lost a required upstream feed beyond recovery.
const (
	exitOK            = 0
	exitConfigError   = 2
	exitEmergencyStop = 3
	exitFeedLost      = 4
)

func main() {
	os.Exit(run())
}

func run() int {
	log, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		return exitConfigError
	}
	defer log.Sync()

	if err := configs.LoadDotEnv(".env"); err != nil {
		fmt.Println("no .env file loaded, continuing with process environment:", err)
	}

	cfg, err := configs.LoadConfig("configs/config.yml")
	if err != nil {
		fmt.Println("load config:", err)
		return exitConfigError
	}

	signerKey, err := configs.SigningKey()
	if err != nil {
		fmt.Println("decrypt signing key:", err)
		return exitConfigError
	}
	signerAddr := crypto.PubkeyToAddress(signerKey.PublicKey)

	client, err := ethclient.Dial(cfg.RPC)
	if err != nil {
		fmt.Println("dial rpc:", err)
		return exitConfigError
	}

	var relay dispatch.RelayClient
	if cfg.PrivateRelay.Enabled && cfg.PrivateRelay.URL != "" {
		rpcClient, err := rpc.Dial(cfg.PrivateRelay.URL)
		if err != nil {
			fmt.Println("dial private relay:", err)
			return exitConfigError
		}
		relay = rpcClient
	}

	engine, err := arbengine.New(cfg, client, signerAddr, signerKey, relay, log)
	if err != nil {
		fmt.Println("build engine:", err)
		return exitConfigError
	}

	registry := prometheus.NewRegistry()
	engine.Subscribe(observer.NewMetricsObserver(registry))

	metricsServer := &http.Server{Addr: ":9090", Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{})}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn("metrics server stopped", zap.Error(err))
		}
	}()

	if err := engine.Healthy(); err != nil {
		fmt.Println("refusing to start, safety gate already tripped:", err)
		return exitEmergencyStop
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	fmt.Println("arbengine starting, chain id", cfg.ChainID, "dry run", cfg.DryRun)

	if err := engine.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error("engine stopped", zap.Error(err))
		_ = metricsServer.Close()
		return exitFeedLost
	}

	_ = metricsServer.Close()
	fmt.Println("arbengine shut down")
	return exitOK
}
