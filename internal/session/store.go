package session

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"miniSwap/internal/model"
)

// Store is the single mirror of ledger state shared by the quote engine,
// the orchestrator and the UI layer. Writers are the watcher only.
type Store struct {
	mu       sync.RWMutex
	account  common.Address
	snapshot model.PoolSnapshot
	assets   [2]model.AssetHandle
	loaded   bool
	lastErr  error
}

func NewStore() *Store {
	return &Store{}
}

// Snapshot returns the last committed pool snapshot.
func (s *Store) Snapshot() model.PoolSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Assets returns both asset handles.
func (s *Store) Assets() [2]model.AssetHandle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.assets
}

// Asset returns the handle for one side.
func (s *Store) Asset(side model.Side) model.AssetHandle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if side == model.Side1 {
		return s.assets[1]
	}
	return s.assets[0]
}

// Account returns the active identity, if any.
func (s *Store) Account() (common.Address, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.account, s.account != (common.Address{})
}

// Loaded reports whether at least one snapshot has been committed or restored.
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// LastReloadError returns the error of the most recent failed reload, cleared
// by the next successful one.
func (s *Store) LastReloadError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Mirror returns a copy of the whole store for persistence.
func (s *Store) Mirror() Mirror {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := Mirror{Snapshot: s.snapshot, Assets: s.assets}
	if s.account != (common.Address{}) {
		m.Account = s.account.Hex()
	}
	return m
}

// Restore loads a persisted mirror. It is used before the first reload.
func (s *Store) Restore(m Mirror) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = m.Snapshot
	s.assets = m.Assets
	s.account = common.Address{}
	if m.Account != "" && common.IsHexAddress(m.Account) {
		s.account = common.HexToAddress(m.Account)
	}
	s.loaded = true
}

// commit replaces the account, the snapshot and both assets in one step.
func (s *Store) commit(account common.Address, snap model.PoolSnapshot, assets [2]model.AssetHandle) {
	s.mu.Lock()
	s.account = account
	s.snapshot = snap
	s.assets = assets
	s.loaded = true
	s.lastErr = nil
	s.mu.Unlock()
}

// clearCaller drops identity-specific fields and keeps reserves and metadata.
func (s *Store) clearCaller() {
	s.mu.Lock()
	s.account = common.Address{}
	s.snapshot = s.snapshot.WithoutCaller()
	s.assets[0] = s.assets[0].Cleared()
	s.assets[1] = s.assets[1].Cleared()
	s.mu.Unlock()
}

func (s *Store) setErr(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}
