// Command filenode runs one backend node of the replicated file store.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dd0wney/cluso-filestore/pkg/accounts"
	"github.com/dd0wney/cluso-filestore/pkg/auth"
	"github.com/dd0wney/cluso-filestore/pkg/cluster"
	"github.com/dd0wney/cluso-filestore/pkg/config"
	"github.com/dd0wney/cluso-filestore/pkg/group"
	"github.com/dd0wney/cluso-filestore/pkg/logging"
	"github.com/dd0wney/cluso-filestore/pkg/metrics"
	"github.com/dd0wney/cluso-filestore/pkg/node"
	"github.com/dd0wney/cluso-filestore/pkg/rpc"
	"github.com/dd0wney/cluso-filestore/pkg/server"
	"github.com/dd0wney/cluso-filestore/pkg/storage"
	"github.com/dd0wney/cluso-filestore/pkg/transport"
)

func main() {
	configPath := flag.String("config", "", "Path to the node YAML configuration")
	id := flag.String("id", "", "Node id (overrides the configuration)")
	flag.Parse()

	if *id != "" {
		_ = os.Setenv("FILESTORE_NODE_ID", *id)
	}
	cfg, err := config.LoadNode(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "filenode: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewJSONLogger(os.Stdout, logging.ParseLevel(cfg.LogLevel))
	logging.SetDefaultLogger(logger)

	if err := run(*configPath, cfg, logger); err != nil {
		logger.Error("filenode failed", logging.Error(err))
		os.Exit(1)
	}
}

func run(configPath string, cfg *config.NodeConfig, logger *logging.JSONLogger) error {
	ctx := context.Background()
	reg := metrics.DefaultRegistry()

	// Everything opened before the server takes over is closed on error.
	cleanup := transport.NewResourceCleanup(logger)
	defer cleanup.Cleanup()

	blobs, err := openBlobs(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	store, err := openAccounts(ctx, cfg.Accounts)
	if err != nil {
		return err
	}
	cleanup.Add(store, "accounts")
	scheme, err := accounts.SchemeByName(cfg.Accounts.Scheme)
	if err != nil {
		return err
	}
	if _, ok := scheme.(accounts.PlaintextScheme); ok {
		logger.Warn("passwords are stored in plaintext; set accounts.password_scheme to bcrypt")
	}
	tokens, err := auth.NewTokenManager(cfg.Auth.Secret, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}
	strategy, ok := cluster.StrategyByName(cfg.Leader)
	if !ok {
		return fmt.Errorf("unknown leader strategy %q", cfg.Leader)
	}

	self := group.Member{ID: cfg.ID, Addr: cfg.Cluster.Bind, StateAddr: cfg.Cluster.StateBind}
	clusterCh, err := newChannel(cfg.Cluster, self, logger)
	if err != nil {
		return err
	}
	rpcSelf := group.Member{ID: cfg.ID, Addr: cfg.RPC.Bind, StateAddr: cfg.RPC.StateBind, API: cfg.HTTP.AdvertiseURL}
	rpcCh, err := newChannel(cfg.RPC, rpcSelf, logger)
	if err != nil {
		return err
	}

	n, err := node.New(node.Config{
		Cluster:  clusterCh,
		RPC:      rpcCh,
		Blobs:    blobs,
		Accounts: store,
		Scheme:   scheme,
		Tokens:   tokens,
		Strategy: strategy,
		Timeouts: node.Timeouts{
			Lock:          cfg.Timeouts.Lock,
			Quorum:        cfg.Timeouts.Quorum,
			Transaction:   cfg.Timeouts.Transaction,
			StateTransfer: cfg.Timeouts.StateTransfer,
			UndoTTL:       cfg.Timeouts.UndoTTL,
		},
		Logger:  logger,
		Metrics: reg,
	})
	if err != nil {
		return err
	}

	// The node owns the account store from here on.
	cleanup.Clear()

	startCtx, cancel := context.WithTimeout(ctx, cfg.Cluster.JoinTimeout+cfg.Timeouts.StateTransfer+cfg.RPC.JoinTimeout)
	err = n.Start(startCtx)
	cancel()
	if err != nil {
		_ = n.Stop()
		return err
	}

	handler := rpc.NewHandler(n, rpc.HandlerOptions{
		Tokens:       tokens,
		RequireToken: cfg.Auth.RequireToken,
		Probes:       n.Probes(),
		Logger:       logger,
		Metrics:      reg,
	})
	srv := server.NewGracefulServer(server.Config{
		Addr:            cfg.HTTP.Listen,
		Handler:         handler,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
		Logger:          logger,
	})
	srv.OnShutdown("node", n.Stop)
	srv.SetConfigReloadFunc(func() error {
		fresh, err := config.LoadNode(configPath)
		if err != nil {
			return err
		}
		logger.SetLevel(logging.ParseLevel(fresh.LogLevel))
		return nil
	})

	go reportSystemMetrics(srv.ShutdownChannel(), reg)

	logger.Info("filenode serving",
		logging.Member(cfg.ID),
		logging.String("listen", cfg.HTTP.Listen),
		logging.String("advertise", cfg.HTTP.AdvertiseURL))
	return srv.Run(ctx)
}

func openBlobs(ctx context.Context, cfg config.StorageConfig) (storage.BlobStore, error) {
	switch cfg.Backend {
	case "memory":
		return storage.NewMemoryStore(), nil
	case "s3":
		return storage.NewS3Store(ctx, storage.S3Options{
			Bucket:          cfg.S3.Bucket,
			Prefix:          cfg.S3.Prefix,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			UsePathStyle:    cfg.S3.UsePathStyle,
		})
	default:
		return storage.NewDiskStore(cfg.Dir)
	}
}

func openAccounts(ctx context.Context, cfg config.AccountsConfig) (accounts.Store, error) {
	switch cfg.Backend {
	case "file":
		return accounts.NewFileStore(cfg.File)
	case "postgres":
		return accounts.NewPGStore(ctx, cfg.DatabaseURL)
	default:
		return accounts.NewMemoryStore(), nil
	}
}

func newChannel(cfg config.GroupConfig, self group.Member, logger logging.Logger) (*group.NNGChannel, error) {
	factory, err := transport.New(cfg.Transport)
	if err != nil {
		return nil, err
	}
	return group.NewNNGChannel(group.NNGConfig{
		Name:              cfg.Name,
		Self:              self,
		Seeds:             cfg.Seeds,
		HeartbeatInterval: cfg.HeartbeatInterval,
		FailureTimeout:    cfg.FailureTimeout,
		JoinTimeout:       cfg.JoinTimeout,
		Factory:           factory,
		Logger:            logger,
	})
}

func reportSystemMetrics(stop <-chan struct{}, reg *metrics.Registry) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		reg.UpdateSystemMetrics()
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}
