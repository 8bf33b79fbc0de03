package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"wasmScope/internal/config"
	"wasmScope/internal/reconcile"
)

func runAudit(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadAudit(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Contract == "" {
		return fmt.Errorf("contract is required")
	}
	if cfg.Store.Backend == "memory" {
		return fmt.Errorf("audit needs a persistent store (postgres, sqlite)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer stores.close()

	auditor := reconcile.New(stores.entities, nil, logger)

	var (
		drifts  []reconcile.Drift
		checked int
	)
	if cfg.Address != "" {
		drift, found, err := auditor.Audit(ctx, cfg.Contract, cfg.Address)
		if err != nil {
			return err
		}
		checked = 1
		if found {
			drifts = append(drifts, drift)
		}
	} else {
		drifts, checked, err = auditor.AuditContract(ctx, cfg.Contract)
		if err != nil {
			return err
		}
	}

	var report *jsonlWriter
	if cfg.Out != "" {
		report, err = newJSONLWriter(cfg.Out, false)
		if err != nil {
			return err
		}
		defer report.Close()
	}

	for _, drift := range drifts {
		logger.Warn("balance differs from latest snapshot",
			zap.String("balance", drift.BalanceID),
			zap.String("snapshot", drift.SnapshotID),
			zap.String("amount", drift.Amount),
			zap.String("snapshot_amount", drift.SnapshotAmount),
			zap.String("staked_amount", drift.StakedAmount),
			zap.String("snapshot_staked", drift.SnapshotStaked),
		)
		if report != nil {
			if err := report.Write(drift); err != nil {
				return err
			}
		}
	}

	logger.Info("audit complete",
		zap.String("contract", cfg.Contract),
		zap.Int("checked", checked),
		zap.Int("drifted", len(drifts)),
	)
	return nil
}
