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

	"github.com/natefinch/lumberjack"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"wasmScope/internal/chain"
	"wasmScope/internal/config"
	"wasmScope/internal/handler"
	"wasmScope/internal/indexer"
	"wasmScope/internal/source"
)

func main() {
	root := &cobra.Command{
		Use:          "indexer",
		Short:        "CosmWasm event reconciliation indexer",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the indexers over a message feed",
		RunE:  runIndexer,
	}

	runCmd.Flags().String("source", "jsonl", "message feed (jsonl, kafka)")
	runCmd.Flags().String("in", "", "input messages JSONL (jsonl source)")
	runCmd.Flags().StringSlice("kafka-brokers", nil, "kafka brokers (comma-separated)")
	runCmd.Flags().String("kafka-topic", "", "kafka topic holding the message feed")
	runCmd.Flags().String("kafka-group", "", "kafka consumer group, empty to read without committing offsets")
	runCmd.Flags().StringSlice("indexers", []string{handler.NameCW20}, "indexers to run (cw20, stake, daos, proposals, wasmswap)")
	runCmd.Flags().String("rpc", "", "CometBFT RPC URL")
	runCmd.Flags().StringSlice("allowed-code-ids", nil, "cw20 code ids whose events are trusted (comma-separated)")
	runCmd.Flags().StringSlice("dao-code-ids", nil, "DAO core code ids, empty tracks every DAO")
	runCmd.Flags().StringSlice("staking-contracts", nil, "staking contracts, empty tracks every contract")
	runCmd.Flags().StringSlice("pool-contracts", nil, "wasmswap pools, empty tracks every pool")
	runCmd.Flags().Int("code-id-cache-size", chain.DefaultCodeIDCacheSize, "contract code ids kept in memory")
	runCmd.Flags().Uint64("from", 0, "first block height to process")
	runCmd.Flags().Uint64("to", 0, "last block height to process, 0 means no limit")
	runCmd.Flags().String("checkpoint", "", "checkpoint file path, empty keeps the checkpoint in the store")
	runCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	runCmd.Flags().Int("max-retries", 5, "maximum retry attempts when reading the feed")
	runCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	runCmd.Flags().String("metrics-addr", "", "address serving /metrics, empty disables it")
	addStoreFlags(runCmd, "memory")
	addLogFlags(runCmd)

	root.AddCommand(runCmd)

	decodeCmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode message logs into contract events and classified actions",
		RunE:  runDecode,
	}

	decodeCmd.Flags().String("in", "", "input messages JSONL")
	decodeCmd.Flags().String("out", "./data/decoded.jsonl", "output decoded messages JSONL")
	decodeCmd.Flags().String("errors", "./data/decode_errors.jsonl", "decode errors JSONL")
	decodeCmd.Flags().StringSlice("actions", nil, "action vocabulary, empty uses the cw20 actions")
	addLogFlags(decodeCmd)

	root.AddCommand(decodeCmd)

	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Compare balances with their latest snapshots",
		RunE:  runAudit,
	}

	auditCmd.Flags().String("contract", "", "token or staking contract to audit")
	auditCmd.Flags().String("address", "", "single holder to audit, empty audits every holder")
	auditCmd.Flags().String("out", "", "optional drift report JSONL")
	addStoreFlags(auditCmd, "postgres")
	addLogFlags(auditCmd)

	root.AddCommand(auditCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addStoreFlags(cmd *cobra.Command, backend string) {
	cmd.Flags().String("store", backend, "entity store (memory, postgres, sqlite)")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN")
	cmd.Flags().String("sqlite-path", "./data/wasmscope.db", "SQLite database path")
	cmd.Flags().String("journal", "", "optional JSONL file receiving every store write")
}

func addLogFlags(cmd *cobra.Command) {
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	cmd.Flags().String("log-file", "", "optional rotated log file, written alongside stdout")
}

func runIndexer(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if _, err := maxprocs.Set(maxprocs.Logger(logger.Sugar().Infof)); err != nil {
		logger.Warn("failed to set max processes", zap.Error(err))
	}

	allowed, err := indexer.ParseCodeIDs(cfg.AllowedCodeIDs)
	if err != nil {
		return err
	}
	daoCodeIDs, err := indexer.ParseCodeIDs(cfg.DaoCodeIDs)
	if err != nil {
		return err
	}
	heights, err := indexer.NewHeightRange(cfg.FromHeight, cfg.ToHeight)
	if err != nil {
		return err
	}
	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	stores, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer stores.close()

	handlers, err := handler.New(handler.Env{
		Chain:  chainClient,
		Store:  stores.entities,
		Logger: logger,
	}, cfg.Indexers, handler.Options{
		AllowedCodeIDs:   allowed,
		DaoCodeIDs:       daoCodeIDs,
		StakingContracts: cfg.StakingContracts,
		PoolContracts:    cfg.PoolContracts,
		CodeIDCacheSize:  cfg.CodeIDCacheSize,
	})
	if err != nil {
		return err
	}
	if len(allowed) == 0 && containsName(cfg.Indexers, handler.NameCW20) {
		logger.Warn("no allowed code ids: every cw20 message will be skipped")
	}

	src, err := openSource(cfg, logger)
	if err != nil {
		return err
	}
	defer src.Close()

	var checkpoint indexer.Checkpointer
	switch {
	case !cfg.CheckpointEnabled:
	case cfg.Checkpoint != "":
		if cfg.Store.Backend == "memory" {
			logger.Warn("resuming from a checkpoint file with an empty memory store", zap.String("checkpoint", cfg.Checkpoint))
		}
		checkpoint = indexer.NewCheckpointStore(cfg.Checkpoint, true)
	case stores.cursors != nil:
		checkpoint = indexer.NewCursorCheckpoint(stores.cursors, "run")
	}

	runner := indexer.NewRunner(indexer.RunConfig{
		Heights:      heights,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, src, handlers, checkpoint, logger)

	logger.Info("indexer start",
		zap.String("rpc", cfg.RPCURL),
		zap.String("source", cfg.Source),
		zap.String("store", cfg.Store.Backend),
		zap.Strings("indexers", cfg.Indexers),
		zap.Uint64s("allowed_code_ids", allowed),
		zap.Uint64("from", cfg.FromHeight),
		zap.Uint64("to", cfg.ToHeight),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
		zap.String("metrics_addr", cfg.MetricsAddr),
	)

	g, gctx := errgroup.WithContext(ctx)
	runDone := make(chan struct{})
	g.Go(func() error {
		defer close(runDone)
		stats, err := runner.Run(gctx)
		logger.Info("indexer stopped",
			zap.Int("received", stats.Received),
			zap.Int("processed", stats.Processed),
			zap.Int("failed", stats.Failed),
		)
		return err
	})
	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			return serveMetrics(gctx, runDone, cfg.MetricsAddr, logger)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// serveMetrics exposes /metrics until ctx is cancelled or the run ends.
func serveMetrics(ctx context.Context, runDone <-chan struct{}, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics server start", zap.String("addr", addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
	case <-runDone:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics server shutdown: %w", err)
	}
	return nil
}

func openSource(cfg config.Config, logger *zap.Logger) (source.Source, error) {
	switch cfg.Source {
	case "jsonl":
		if cfg.In == "" {
			return nil, fmt.Errorf("input path is required")
		}
		return source.OpenJSONL(cfg.In)
	case "kafka":
		return source.NewKafka(source.KafkaConfig{
			Brokers:  cfg.KafkaBrokers,
			Topic:    cfg.KafkaTopic,
			GroupID:  cfg.KafkaGroup,
			MinBytes: 1,
			MaxBytes: 10 * 1024 * 1024,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown source %q", cfg.Source)
	}
}

func containsName(names []string, name string) bool {
	for _, candidate := range names {
		if candidate == name {
			return true
		}
	}
	return false
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevel()
	if err := zcfg.Level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, err
	}

	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if cfg.File == "" {
		return zcfg.Build()
	}

	if dir := filepath.Dir(cfg.File); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
	}
	encoder := zapcore.NewJSONEncoder(zcfg.EncoderConfig)
	core := zapcore.NewTee(
		zapcore.NewCore(encoder, zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			Compress:   true,
		}), zcfg.Level),
		zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), zcfg.Level),
	)
	return zap.New(core, zap.AddCaller()), nil
}
