package main

import (
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"miniSwap/internal/config"
	"miniSwap/internal/session"
	"miniSwap/internal/wallet"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the pool mirror fresh, following new blocks and identity changes",
		Long: "Reloads the mirror on every new head (or every --poll interval when the RPC " +
			"endpoint cannot stream heads). SIGHUP re-reads keys from config and switches identity.",
		RunE: runWatch,
	}
	cmd.Flags().Duration("poll", 12*time.Second, "reload interval when head subscriptions are unavailable")
	cmd.Flags().String("metrics-addr", "", "serve prometheus metrics on this address (e.g. :9100)")
	return cmd
}

func runWatch(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if mirror, ok, err := a.cache.Load(); err != nil {
		a.logger.Warn("ignoring unreadable snapshot cache", zap.Error(err))
	} else if ok {
		a.store.Restore(mirror)
	}

	unsubscribe, err := a.load(ctx)
	defer unsubscribe()
	if err != nil {
		if !a.store.Loaded() {
			return err
		}
		a.logger.Warn("initial reload failed, serving cached snapshot until the next reload", zap.Error(err))
	}

	if a.cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: a.cfg.MetricsAddr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer srv.Close()
		a.logger.Info("serving metrics", zap.String("addr", a.cfg.MetricsAddr))
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	poll, _ := cmd.Flags().GetDuration("poll")
	heads := make(chan *types.Header, 16)
	var headErr <-chan error
	sub, err := a.client.SubscribeNewHead(ctx, heads)
	if err != nil {
		a.logger.Info("head subscription unavailable, polling", zap.Duration("interval", poll), zap.Error(err))
	} else {
		defer sub.Unsubscribe()
		headErr = sub.Err()
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	reload := func(reason string) {
		if err := a.watcher.Reload(ctx); err != nil && !errors.Is(err, session.ErrStaleReload) && ctx.Err() == nil {
			a.logger.Warn("reload failed", zap.String("reason", reason), zap.Error(err))
		}
	}

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("watch stopped")
			return nil
		case head := <-heads:
			a.logger.Debug("new head", zap.Uint64("block", head.Number.Uint64()))
			reload("head")
		case err := <-headErr:
			a.logger.Warn("head subscription ended, polling", zap.Error(err))
			headErr = nil
		case <-ticker.C:
			if headErr == nil {
				reload("poll")
			}
		case <-hup:
			reloadKeys(cmd, a)
		}
	}
}

// reloadKeys re-reads the key configuration. The keyring notifies the watcher
// only when the identity list changed.
func reloadKeys(cmd *cobra.Command, a *app) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		a.logger.Warn("reload config failed", zap.Error(err))
		return
	}
	keys, err := wallet.LoadKeys(cfg.Keys, cfg.Keystores, cfg.KeystorePassword)
	if err != nil {
		a.logger.Warn("reload keys failed", zap.Error(err))
		return
	}
	a.keyring.SetKeys(keys)
}
