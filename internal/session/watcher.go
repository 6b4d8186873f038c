package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"miniSwap/internal/metrics"
	"miniSwap/internal/model"
)

// ErrStaleReload is returned by a reload superseded by a newer request.
var ErrStaleReload = errors.New("reload superseded by a newer request")

// Reader is the ledger read surface used to build the mirror.
type Reader interface {
	LatestBlock(ctx context.Context) (uint64, error)
	Tokens(ctx context.Context) (common.Address, common.Address, error)
	ReadPool(ctx context.Context, holder common.Address, block uint64) (model.PoolSnapshot, error)
	ReadAsset(ctx context.Context, asset common.Address, holder common.Address, block uint64) (model.AssetHandle, error)
}

// Identities reports the wallet's identity list and its changes.
type Identities interface {
	Accounts() []common.Address
	Subscribe(fn func([]common.Address)) func()
}

// SnapshotSink receives every committed snapshot.
type SnapshotSink interface {
	PutSnapshot(ctx context.Context, snap model.PoolSnapshot) error
}

// Options configures optional watcher collaborators.
type Options struct {
	Cache  *CacheFile
	Sink   SnapshotSink
	Logger *zap.Logger
}

// Watcher keeps the store in sync with the ledger and the wallet's identities.
type Watcher struct {
	reader Reader
	store  *Store
	cache  *CacheFile
	sink   SnapshotSink
	logger *zap.Logger

	mu         sync.Mutex
	generation uint64
	requested  common.Address

	tokensMu sync.Mutex
	tokens   [2]common.Address
	hasToks  bool
}

func NewWatcher(reader Reader, store *Store, opts Options) *Watcher {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		reader: reader,
		store:  store,
		cache:  opts.Cache,
		sink:   opts.Sink,
		logger: logger,
	}
}

// Store returns the mirror the watcher writes to.
func (w *Watcher) Store() *Store {
	return w.store
}

func (w *Watcher) Snapshot() model.PoolSnapshot { return w.store.Snapshot() }
func (w *Watcher) Assets() [2]model.AssetHandle { return w.store.Assets() }
func (w *Watcher) Account() (common.Address, bool) { return w.store.Account() }

// Start applies the current identity list and follows later changes until ctx
// is done. The returned func unsubscribes and is non-nil even when the first
// reload fails, so a caller holding a cached mirror can keep following.
func (w *Watcher) Start(ctx context.Context, ids Identities) (func(), error) {
	unsubscribe := ids.Subscribe(func(accounts []common.Address) {
		if err := w.HandleIdentities(ctx, accounts); err != nil && !errors.Is(err, ErrStaleReload) {
			w.logger.Warn("reload after identity change failed", zap.Error(err))
		}
	})

	if err := w.HandleIdentities(ctx, ids.Accounts()); err != nil && !errors.Is(err, ErrStaleReload) {
		return unsubscribe, err
	}
	return unsubscribe, nil
}

// HandleIdentities reacts to an identity list. An empty list clears the
// caller-specific state and keeps pool reserves; otherwise the first identity
// is requested and the mirror is reloaded for it. Switching to another
// identity clears the previous identity's state at once, so the store never
// reports one account next to another account's shares or allowances.
func (w *Watcher) HandleIdentities(ctx context.Context, accounts []common.Address) error {
	if len(accounts) == 0 {
		w.mu.Lock()
		w.generation++
		w.requested = common.Address{}
		w.store.clearCaller()
		w.persist(ctx, false)
		w.mu.Unlock()

		metrics.Reloads.WithLabelValues(metrics.ReloadCleared).Inc()
		w.logger.Info("no active identity, caller state cleared")
		return nil
	}

	next := accounts[0]
	w.mu.Lock()
	w.requested = next
	if current, _ := w.store.Account(); current != next {
		w.store.clearCaller()
	}
	w.mu.Unlock()

	w.logger.Info("active identity requested", zap.String("account", next.Hex()))
	return w.Reload(ctx)
}

// Reload reads the pool and both assets at one block for the requested
// identity and commits them, together with that identity, if no newer reload
// was requested meanwhile. On failure the previous snapshot is kept and the
// error is recorded on the store.
func (w *Watcher) Reload(ctx context.Context) error {
	w.mu.Lock()
	w.generation++
	gen := w.generation
	holder := w.requested
	w.mu.Unlock()

	start := time.Now()
	snap, assets, err := w.read(ctx, holder)

	w.mu.Lock()
	defer w.mu.Unlock()

	if gen != w.generation {
		metrics.Reloads.WithLabelValues(metrics.ReloadStale).Inc()
		w.logger.Debug("dropping stale reload", zap.Uint64("generation", gen), zap.Uint64("latest", w.generation))
		return ErrStaleReload
	}
	if err == nil {
		err = snap.Validate()
	}
	if err != nil {
		w.store.setErr(err)
		metrics.Reloads.WithLabelValues(metrics.ReloadFailed).Inc()
		w.logger.Warn("reload failed, keeping previous snapshot", zap.Error(err))
		return err
	}

	w.store.commit(holder, snap, assets)
	metrics.Reloads.WithLabelValues(metrics.ReloadCommitted).Inc()
	metrics.ReloadDuration.Observe(time.Since(start).Seconds())
	metrics.SnapshotBlock.Set(float64(snap.Block))
	w.logger.Info("snapshot committed",
		zap.String("account", holder.Hex()),
		zap.Uint64("block", snap.Block),
		zap.String("reserve0", snap.Reserve0.String()),
		zap.String("reserve1", snap.Reserve1.String()),
		zap.String("total_shares", snap.TotalShares.String()),
		zap.String("caller_shares", snap.CallerShares.String()),
	)
	w.persist(ctx, true)
	return nil
}

func (w *Watcher) read(ctx context.Context, holder common.Address) (model.PoolSnapshot, [2]model.AssetHandle, error) {
	var assets [2]model.AssetHandle

	tokens, err := w.poolTokens(ctx)
	if err != nil {
		return model.PoolSnapshot{}, assets, err
	}
	block, err := w.reader.LatestBlock(ctx)
	if err != nil {
		return model.PoolSnapshot{}, assets, fmt.Errorf("latest block: %w", err)
	}

	var snap model.PoolSnapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snap, err = w.reader.ReadPool(gctx, holder, block)
		if err != nil {
			return fmt.Errorf("read pool: %w", err)
		}
		return nil
	})
	for i := range tokens {
		i := i
		g.Go(func() error {
			handle, err := w.reader.ReadAsset(gctx, tokens[i], holder, block)
			if err != nil {
				return fmt.Errorf("read asset%d: %w", i, err)
			}
			assets[i] = handle
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model.PoolSnapshot{}, assets, err
	}
	return snap, assets, nil
}

func (w *Watcher) poolTokens(ctx context.Context) ([2]common.Address, error) {
	w.tokensMu.Lock()
	defer w.tokensMu.Unlock()
	if w.hasToks {
		return w.tokens, nil
	}
	token0, token1, err := w.reader.Tokens(ctx)
	if err != nil {
		return [2]common.Address{}, fmt.Errorf("pool tokens: %w", err)
	}
	w.tokens = [2]common.Address{token0, token1}
	w.hasToks = true
	return w.tokens, nil
}

// persist is called with w.mu held so cache writes follow commit order.
func (w *Watcher) persist(ctx context.Context, committed bool) {
	if err := w.cache.Save(w.store.Mirror()); err != nil {
		w.logger.Warn("save snapshot cache failed", zap.Error(err))
	}
	if committed && w.sink != nil {
		if err := w.sink.PutSnapshot(ctx, w.store.Snapshot()); err != nil {
			w.logger.Warn("store snapshot failed", zap.Error(err))
		}
	}
}
