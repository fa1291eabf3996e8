// Command gateway spreads client calls over the backend nodes in the RPC
// group, round-robin, retrying unreachable backends.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/dd0wney/cluso-filestore/pkg/cluster"
	"github.com/dd0wney/cluso-filestore/pkg/config"
	"github.com/dd0wney/cluso-filestore/pkg/gateway"
	"github.com/dd0wney/cluso-filestore/pkg/group"
	"github.com/dd0wney/cluso-filestore/pkg/health"
	"github.com/dd0wney/cluso-filestore/pkg/logging"
	"github.com/dd0wney/cluso-filestore/pkg/metrics"
	"github.com/dd0wney/cluso-filestore/pkg/rpc"
	"github.com/dd0wney/cluso-filestore/pkg/server"
	"github.com/dd0wney/cluso-filestore/pkg/transport"
)

func main() {
	configPath := flag.String("config", "", "Path to the gateway YAML configuration")
	flag.Parse()

	cfg, err := config.LoadGateway(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gateway: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewJSONLogger(os.Stdout, logging.ParseLevel(cfg.LogLevel))
	logging.SetDefaultLogger(logger)

	if err := run(*configPath, cfg, logger); err != nil {
		logger.Error("gateway failed", logging.Error(err))
		os.Exit(1)
	}
}

func run(configPath string, cfg *config.GatewayConfig, logger *logging.JSONLogger) error {
	ctx := context.Background()
	reg := metrics.DefaultRegistry()

	factory, err := transport.New(cfg.RPC.Transport)
	if err != nil {
		return err
	}
	self := group.Member{ID: cfg.ID, Addr: cfg.RPC.Bind, StateAddr: cfg.RPC.StateBind}
	ch, err := group.NewNNGChannel(group.NNGConfig{
		Name:              cfg.RPC.Name,
		Self:              self,
		Seeds:             cfg.RPC.Seeds,
		HeartbeatInterval: cfg.RPC.HeartbeatInterval,
		FailureTimeout:    cfg.RPC.FailureTimeout,
		JoinTimeout:       cfg.RPC.JoinTimeout,
		Factory:           factory,
		Logger:            logger,
	})
	if err != nil {
		return err
	}

	tracker := cluster.NewTracker(cluster.Config{Self: self, Logger: logger, Metrics: reg})
	client := &http.Client{Timeout: cfg.RequestTimeout}
	dispatcher := gateway.NewDispatcher(gateway.Config{
		Members:  tracker,
		Factory:  func(m group.Member) gateway.Backend { return rpc.NewClient(m.API, client) },
		Attempts: cfg.Attempts,
		Logger:   logger,
		Metrics:  reg,
	})
	tracker.OnViewChange(dispatcher.ViewChanged)
	ch.SetReceiver(group.ViewListener(func(v group.View) { tracker.Apply(v) }))

	joinCtx, cancel := context.WithTimeout(ctx, cfg.RPC.JoinTimeout+time.Second)
	err = ch.Connect(joinCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("join %s: %w", cfg.RPC.Name, err)
	}

	probes := health.NewChecker(0)
	probes.RegisterReadinessCheck("backends", health.BackendsCheck(func() int { return len(dispatcher.Backends()) }))
	probes.RegisterLivenessCheck("rpc-group", health.MembershipCheck(func() (bool, int) {
		v := tracker.View()
		return v.Size() > 0, v.Size()
	}, 1))

	handler := rpc.NewHandler(rpc.GatewayService{Dispatcher: dispatcher, Tracker: tracker}, rpc.HandlerOptions{
		Probes:  probes,
		Logger:  logger,
		Metrics: reg,
	})
	srv := server.NewGracefulServer(server.Config{
		Addr:            cfg.HTTP.Listen,
		Handler:         handler,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
		Logger:          logger,
	})
	srv.OnShutdown("rpc-group", ch.Close)
	srv.SetConfigReloadFunc(func() error {
		fresh, err := config.LoadGateway(configPath)
		if err != nil {
			return err
		}
		logger.SetLevel(logging.ParseLevel(fresh.LogLevel))
		return nil
	})

	logger.Info("gateway serving",
		logging.Member(cfg.ID),
		logging.String("listen", cfg.HTTP.Listen),
		logging.Int("attempts", cfg.Attempts))
	return srv.Run(ctx)
}
