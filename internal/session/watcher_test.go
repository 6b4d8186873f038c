package session

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"miniSwap/internal/model"
	"miniSwap/internal/units"
)

var (
	token0 = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	token1 = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	alice  = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob    = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

// fakeReader numbers ReadPool calls; reserves scale with the call number so a
// committed snapshot identifies the reload that produced it.
type fakeReader struct {
	mu         sync.Mutex
	poolCalls  int
	tokenCalls int
	gates      map[int]chan struct{}
	poolErr    error
}

func (f *fakeReader) LatestBlock(context.Context) (uint64, error) { return 7, nil }

func (f *fakeReader) Tokens(context.Context) (common.Address, common.Address, error) {
	f.mu.Lock()
	f.tokenCalls++
	f.mu.Unlock()
	return token0, token1, nil
}

func (f *fakeReader) ReadPool(ctx context.Context, holder common.Address, block uint64) (model.PoolSnapshot, error) {
	f.mu.Lock()
	f.poolCalls++
	n := uint64(f.poolCalls)
	gate := f.gates[f.poolCalls]
	err := f.poolErr
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return model.PoolSnapshot{}, ctx.Err()
		}
	}
	if err != nil {
		return model.PoolSnapshot{}, err
	}
	snap := model.PoolSnapshot{
		Reserve0:    units.FromUint64(100 * n),
		Reserve1:    units.FromUint64(400 * n),
		TotalShares: units.FromUint64(200 * n),
		Block:       block,
	}
	if holder != (common.Address{}) {
		snap.Caller = holder.Hex()
		snap.CallerShares = units.FromUint64(50)
	}
	return snap, nil
}

func (f *fakeReader) ReadAsset(_ context.Context, asset common.Address, holder common.Address, _ uint64) (model.AssetHandle, error) {
	handle := model.AssetHandle{AssetMeta: model.AssetMeta{Address: asset.Hex(), Decimals: 18, Symbol: "TK"}}
	if holder != (common.Address{}) {
		handle.Holder = holder.Hex()
		handle.Balance = units.FromUint64(1000)
		handle.Allowance = units.FromUint64(10)
	}
	return handle, nil
}

func (f *fakeReader) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.poolCalls
}

type fakeIdentities struct {
	accounts []common.Address
	fn       func([]common.Address)
}

func (f *fakeIdentities) Accounts() []common.Address { return f.accounts }

func (f *fakeIdentities) Subscribe(fn func([]common.Address)) func() {
	f.fn = fn
	return func() { f.fn = nil }
}

type recordingSink struct {
	snaps []model.PoolSnapshot
}

func (r *recordingSink) PutSnapshot(_ context.Context, snap model.PoolSnapshot) error {
	r.snaps = append(r.snaps, snap)
	return nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestReloadCommitsSnapshotAndAssets(t *testing.T) {
	sink := &recordingSink{}
	store := NewStore()
	w := NewWatcher(&fakeReader{}, store, Options{Sink: sink})

	if err := w.HandleIdentities(context.Background(), []common.Address{alice, bob}); err != nil {
		t.Fatalf("handle identities: %v", err)
	}

	account, ok := store.Account()
	if !ok || account != alice {
		t.Fatalf("first identity should be active, got %s", account.Hex())
	}
	snap := store.Snapshot()
	if snap.Reserve0.String() != "100" || snap.CallerShares.String() != "50" || snap.Block != 7 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	assets := store.Assets()
	if assets[0].Address != token0.Hex() || assets[1].Address != token1.Hex() {
		t.Fatalf("assets out of order: %+v", assets)
	}
	if assets[1].Balance.String() != "1000" {
		t.Fatalf("asset balance not loaded: %+v", assets[1])
	}
	if len(sink.snaps) != 1 {
		t.Fatalf("expected snapshot to reach the sink")
	}
}

func TestOverlappingReloadsLastRequesterWins(t *testing.T) {
	gateA := make(chan struct{})
	reader := &fakeReader{gates: map[int]chan struct{}{1: gateA}}
	store := NewStore()
	w := NewWatcher(reader, store, Options{})
	w.requested = alice

	errA := make(chan error, 1)
	go func() { errA <- w.Reload(context.Background()) }()
	waitFor(t, func() bool { return reader.calls() == 1 })

	if err := w.Reload(context.Background()); err != nil {
		t.Fatalf("reload B: %v", err)
	}
	close(gateA)

	if err := <-errA; !errors.Is(err, ErrStaleReload) {
		t.Fatalf("expected reload A to be stale, got %v", err)
	}
	if got := store.Snapshot().Reserve0.String(); got != "200" {
		t.Fatalf("expected reload B to win, reserve0=%s", got)
	}
}

func TestIdentitySwitchCommitsLatestIdentity(t *testing.T) {
	gateAlice := make(chan struct{})
	reader := &fakeReader{gates: map[int]chan struct{}{1: gateAlice}}
	store := NewStore()
	w := NewWatcher(reader, store, Options{})

	errAlice := make(chan error, 1)
	go func() { errAlice <- w.HandleIdentities(context.Background(), []common.Address{alice}) }()
	waitFor(t, func() bool { return reader.calls() == 1 })

	if err := w.HandleIdentities(context.Background(), []common.Address{bob}); err != nil {
		t.Fatalf("switch to bob: %v", err)
	}
	close(gateAlice)

	if err := <-errAlice; !errors.Is(err, ErrStaleReload) {
		t.Fatalf("expected alice's reload to be stale, got %v", err)
	}
	account, ok := store.Account()
	if !ok || account != bob {
		t.Fatalf("expected bob to be active, got %s", account.Hex())
	}
	if got := store.Snapshot().Caller; got != bob.Hex() {
		t.Fatalf("snapshot caller = %s, want bob", got)
	}
	for i, asset := range store.Assets() {
		if asset.Holder != bob.Hex() {
			t.Fatalf("asset%d holder = %s, want bob", i, asset.Holder)
		}
	}
}

func TestFailedSwitchNeverMixesIdentities(t *testing.T) {
	reader := &fakeReader{}
	store := NewStore()
	w := NewWatcher(reader, store, Options{})

	if err := w.HandleIdentities(context.Background(), []common.Address{alice}); err != nil {
		t.Fatalf("load alice: %v", err)
	}

	reader.mu.Lock()
	reader.poolErr = errors.New("node unavailable")
	reader.mu.Unlock()

	if err := w.HandleIdentities(context.Background(), []common.Address{bob}); err == nil {
		t.Fatalf("expected reload for bob to fail")
	}
	if account, ok := store.Account(); ok {
		t.Fatalf("no identity should be active until bob's state commits, got %s", account.Hex())
	}
	snap := store.Snapshot()
	if snap.Caller != "" || !snap.CallerShares.IsZero() {
		t.Fatalf("alice's shares must not survive the switch: %+v", snap)
	}
	if snap.Reserve0.String() != "100" {
		t.Fatalf("reserves should be kept, reserve0=%s", snap.Reserve0)
	}
	for i, asset := range store.Assets() {
		if asset.Holder != "" || !asset.Allowance.IsZero() || !asset.Balance.IsZero() {
			t.Fatalf("asset%d still carries alice's fields: %+v", i, asset)
		}
	}
	if store.LastReloadError() == nil {
		t.Fatalf("reload error should be recorded on the store")
	}

	reader.mu.Lock()
	reader.poolErr = nil
	reader.mu.Unlock()
	if err := w.Reload(context.Background()); err != nil {
		t.Fatalf("retry reload: %v", err)
	}
	account, ok := store.Account()
	if !ok || account != bob || store.Snapshot().Caller != bob.Hex() {
		t.Fatalf("expected bob's state after retry, account=%s caller=%s", account.Hex(), store.Snapshot().Caller)
	}
}

func TestReloadFailureKeepsPreviousSnapshot(t *testing.T) {
	reader := &fakeReader{}
	store := NewStore()
	w := NewWatcher(reader, store, Options{})

	if err := w.HandleIdentities(context.Background(), []common.Address{alice}); err != nil {
		t.Fatalf("initial reload: %v", err)
	}

	reader.mu.Lock()
	reader.poolErr = errors.New("node unavailable")
	reader.mu.Unlock()

	if err := w.Reload(context.Background()); err == nil {
		t.Fatalf("expected reload error")
	}
	if store.LastReloadError() == nil {
		t.Fatalf("reload error should be recorded on the store")
	}
	if got := store.Snapshot().Reserve0.String(); got != "100" {
		t.Fatalf("previous snapshot should be kept, reserve0=%s", got)
	}

	reader.mu.Lock()
	reader.poolErr = nil
	reader.mu.Unlock()
	if err := w.Reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if store.LastReloadError() != nil {
		t.Fatalf("successful reload should clear the error")
	}
	if reader.tokenCalls != 1 {
		t.Fatalf("pool tokens should be loaded once, got %d", reader.tokenCalls)
	}
}

func TestEmptyIdentitiesClearCallerState(t *testing.T) {
	store := NewStore()
	w := NewWatcher(&fakeReader{}, store, Options{})
	ids := &fakeIdentities{accounts: []common.Address{alice}}

	unsubscribe, err := w.Start(context.Background(), ids)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer unsubscribe()

	ids.fn(nil)

	if _, ok := store.Account(); ok {
		t.Fatalf("no identity should be active")
	}
	snap := store.Snapshot()
	if !snap.CallerShares.IsZero() || snap.Caller != "" {
		t.Fatalf("caller shares should be cleared: %+v", snap)
	}
	if snap.Reserve0.IsZero() {
		t.Fatalf("reserves should be kept")
	}
	for i, asset := range store.Assets() {
		if !asset.Balance.IsZero() || !asset.Allowance.IsZero() {
			t.Fatalf("asset%d holder fields should be cleared: %+v", i, asset)
		}
		if asset.Symbol == "" {
			t.Fatalf("asset%d metadata should be kept", i)
		}
	}

	ids.fn([]common.Address{bob})
	account, _ := store.Account()
	if account != bob {
		t.Fatalf("expected bob to be active, got %s", account.Hex())
	}
}

func TestStartKeepsFollowingAfterFailedFirstReload(t *testing.T) {
	reader := &fakeReader{poolErr: errors.New("node unavailable")}
	store := NewStore()
	w := NewWatcher(reader, store, Options{})
	ids := &fakeIdentities{accounts: []common.Address{alice}}

	unsubscribe, err := w.Start(context.Background(), ids)
	if err == nil {
		t.Fatalf("expected first reload to fail")
	}
	if unsubscribe == nil || ids.fn == nil {
		t.Fatalf("identity subscription should stay active after a failed first reload")
	}
	defer unsubscribe()

	reader.mu.Lock()
	reader.poolErr = nil
	reader.mu.Unlock()

	ids.fn([]common.Address{bob})
	account, ok := store.Account()
	if !ok || account != bob || store.Snapshot().Caller != bob.Hex() {
		t.Fatalf("expected bob's state after the identity change, got %s", account.Hex())
	}
}

func TestCacheFileRoundTripAndRestore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "snapshot.json")
	cache := NewCacheFile(path)

	if _, ok, err := cache.Load(); err != nil || ok {
		t.Fatalf("expected empty cache, ok=%v err=%v", ok, err)
	}

	store := NewStore()
	w := NewWatcher(&fakeReader{}, store, Options{Cache: cache})
	if err := w.HandleIdentities(context.Background(), []common.Address{alice}); err != nil {
		t.Fatalf("reload: %v", err)
	}

	mirror, ok, err := cache.Load()
	if err != nil || !ok {
		t.Fatalf("expected cached mirror, ok=%v err=%v", ok, err)
	}
	if mirror.Account != alice.Hex() || mirror.SavedAt == "" {
		t.Fatalf("unexpected mirror header: %+v", mirror)
	}

	restored := NewStore()
	restored.Restore(mirror)
	if !restored.Loaded() {
		t.Fatalf("restored store should be loaded")
	}
	if !restored.Snapshot().Reserve1.Eq(store.Snapshot().Reserve1) {
		t.Fatalf("restored reserves mismatch")
	}
	if restored.Asset(model.Side1).Symbol != "TK" {
		t.Fatalf("restored asset mismatch")
	}
}
