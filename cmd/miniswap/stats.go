package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"miniSwap/internal/config"
	"miniSwap/internal/model"
	"miniSwap/internal/quote"
	"miniSwap/internal/session"
	"miniSwap/internal/storage/postgres"
	"miniSwap/internal/wallet"
)

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show pool reserves, shares and the active identity's position",
		RunE:  runStats,
	}
	cmd.Flags().Bool("offline", false, "print the last cached snapshot without contacting the ledger")
	return cmd
}

func runStats(cmd *cobra.Command, _ []string) error {
	offline, _ := cmd.Flags().GetBool("offline")
	if offline {
		return runOfflineStats(cmd)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	unsubscribe, err := a.load(ctx)
	defer unsubscribe()
	if err != nil {
		return err
	}

	printStats(cmd.OutOrStdout(), a.store.Snapshot(), a.store.Assets())
	return nil
}

// runOfflineStats prints the last known state without contacting the ledger.
// The cache file is the primary source; with a Postgres DSN the stored
// snapshot is used when it is newer than the cache or the cache is missing.
func runOfflineStats(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	mirror, cached, err := session.NewCacheFile(cfg.CacheFile).Load()
	if err != nil {
		if cfg.PGDSN == "" {
			return err
		}
		logger.Warn("ignoring unreadable snapshot cache", zap.Error(err))
		cached = false
	}

	source := "cache " + cfg.CacheFile
	if cfg.PGDSN != "" {
		stored, ok, err := storedSnapshot(ctx, cfg, mirror, cached)
		switch {
		case err != nil && !cached:
			return err
		case err != nil:
			logger.Warn("stored snapshot unavailable, using cache", zap.Error(err))
		case ok && (!cached || stored.Block > mirror.Snapshot.Block):
			mirror = mirrorFromStored(mirror, cached, stored)
			cached = true
			source = "postgres"
		}
	}
	if !cached {
		return fmt.Errorf("no cached snapshot at %s", cfg.CacheFile)
	}

	logger.Debug("using offline snapshot", zap.String("source", source), zap.Uint64("block", mirror.Snapshot.Block))
	fmt.Fprintf(cmd.OutOrStdout(), "offline snapshot from %s", source)
	if mirror.SavedAt != "" {
		fmt.Fprintf(cmd.OutOrStdout(), " (saved at %s)", mirror.SavedAt)
	}
	fmt.Fprintln(cmd.OutOrStdout())
	printStats(cmd.OutOrStdout(), mirror.Snapshot, mirror.Assets)
	return nil
}

// storedSnapshot looks up the Postgres snapshot for the cached account, or for
// the first configured identity when there is no cache.
func storedSnapshot(ctx context.Context, cfg config.Config, mirror session.Mirror, cached bool) (model.PoolSnapshot, bool, error) {
	poolAddr, err := cfg.PoolAddress()
	if err != nil {
		return model.PoolSnapshot{}, false, err
	}
	caller := mirror.Account
	if !cached {
		keys, err := wallet.LoadKeys(cfg.Keys, cfg.Keystores, cfg.KeystorePassword)
		if err != nil {
			return model.PoolSnapshot{}, false, err
		}
		if accounts := wallet.NewKeyring(nil, keys, nil).Accounts(); len(accounts) > 0 {
			caller = accounts[0].Hex()
		}
	}

	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return model.PoolSnapshot{}, false, fmt.Errorf("connect postgres: %w", err)
	}
	defer store.Close()
	return store.LatestSnapshot(ctx, poolAddr.Hex(), caller)
}

// mirrorFromStored replaces the cached snapshot with a newer stored one.
// Postgres keeps no asset data, so cached metadata is reused and holder
// fields are dropped; without a cache amounts print in minor units.
func mirrorFromStored(mirror session.Mirror, cached bool, stored model.PoolSnapshot) session.Mirror {
	out := session.Mirror{Account: stored.Caller, Snapshot: stored}
	for i := range out.Assets {
		if cached {
			out.Assets[i] = mirror.Assets[i].Cleared()
			continue
		}
		out.Assets[i] = model.AssetHandle{AssetMeta: model.AssetMeta{Symbol: fmt.Sprintf("asset%d (minor units)", i)}}
	}
	return out
}

func printStats(out io.Writer, snap model.PoolSnapshot, assets [2]model.AssetHandle) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintf(w, "pool\t%s\n", snap.Pool)
	fmt.Fprintf(w, "block\t%d\n", snap.Block)
	for i, asset := range assets {
		fmt.Fprintf(w, "reserve%d\t%s %s\n", i, snap.Reserve(model.Side(i)).Display(asset.Decimals), asset.Label())
	}
	fmt.Fprintf(w, "total shares\t%s\n", snap.TotalShares.Display(18))
	if !snap.Reserve0.IsZero() && !snap.Reserve1.IsZero() {
		fmt.Fprintf(w, "price\t1 %s = %s %s\n", assets[0].Label(),
			quote.SpotPrice(snap, model.ZeroForOne, assets[0].Decimals, assets[1].Decimals).StringFixed(6), assets[1].Label())
	}
	if snap.Caller == "" {
		fmt.Fprintf(w, "account\t(none)\n")
		return
	}
	fmt.Fprintf(w, "account\t%s\n", snap.Caller)
	fmt.Fprintf(w, "your shares\t%s (%s%% of pool)\n", snap.CallerShares.Display(18), quote.CallerPoolShare(snap).StringFixed(2))
	for i, asset := range assets {
		allowance := asset.Allowance.Display(asset.Decimals)
		if asset.Allowance.Eq(maxAllowance) {
			allowance = "unlimited"
		}
		fmt.Fprintf(w, "balance%d\t%s %s (allowance %s)\n", i, asset.Balance.Display(asset.Decimals), asset.Label(), allowance)
	}
}
