package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "miniswap",
		Short:        "Constant-product pool client",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file path")
	flags.String("rpc", "", "RPC URL (ws:// or ipc for head subscriptions)")
	flags.String("pool", "", "pool contract address")
	flags.StringSlice("keys", nil, "hex private keys (comma-separated), first is active")
	flags.StringSlice("keystore", nil, "encrypted keystore files (comma-separated)")
	flags.String("keystore-password", "", "keystore password")
	flags.String("journal", "./data/actions.jsonl", "action journal JSONL path")
	flags.String("pg-dsn", "", "optional Postgres DSN for the journal and snapshots")
	flags.String("cache-file", "./data/snapshot.json", "last snapshot cache file")
	flags.Int("max-retries", 5, "maximum retry attempts for ledger reads")
	flags.Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	flags.Bool("refresh-on-failure", true, "reload pool state after a failed action")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(newStatsCmd())
	root.AddCommand(newQuoteCmd())
	root.AddCommand(newApproveCmd())
	root.AddCommand(newSwapCmd())
	root.AddCommand(newAddLiquidityCmd())
	root.AddCommand(newRemoveLiquidityCmd())
	root.AddCommand(newWatchCmd())
	root.AddCommand(newHistoryCmd())
	return root
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
