package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// ErrUnknownAccount is returned when asked to sign for an identity the ring does not hold.
var ErrUnknownAccount = errors.New("unknown account")

// Backend is the part of the chain client needed to build and submit transactions.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// Keyring holds an ordered set of signing identities. The first identity is active.
type Keyring struct {
	backend Backend
	logger  *zap.Logger

	mu      sync.RWMutex
	keys    []*ecdsa.PrivateKey
	addrs   []common.Address
	subs    map[int]func([]common.Address)
	nextSub int

	// sendMu serializes nonce lookup and broadcast.
	sendMu sync.Mutex
}

// NewKeyring creates a key ring with the given keys.
func NewKeyring(backend Backend, keys []*ecdsa.PrivateKey, logger *zap.Logger) *Keyring {
	if logger == nil {
		logger = zap.NewNop()
	}
	k := &Keyring{
		backend: backend,
		logger:  logger,
		subs:    make(map[int]func([]common.Address)),
	}
	k.keys, k.addrs = dedupe(keys)
	return k
}

// LoadKeys reads hex private keys and encrypted keystore files, in that order.
func LoadKeys(hexKeys []string, keystoreFiles []string, password string) ([]*ecdsa.PrivateKey, error) {
	keys := make([]*ecdsa.PrivateKey, 0, len(hexKeys)+len(keystoreFiles))
	for i, raw := range hexKeys {
		raw = strings.TrimPrefix(strings.TrimSpace(raw), "0x")
		if raw == "" {
			continue
		}
		key, err := crypto.HexToECDSA(raw)
		if err != nil {
			return nil, fmt.Errorf("private key #%d: %w", i+1, err)
		}
		keys = append(keys, key)
	}
	for _, path := range keystoreFiles {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read keystore %s: %w", path, err)
		}
		key, err := keystore.DecryptKey(data, password)
		if err != nil {
			return nil, fmt.Errorf("decrypt keystore %s: %w", path, err)
		}
		keys = append(keys, key.PrivateKey)
	}
	return keys, nil
}

// Accounts returns the identities in order.
func (k *Keyring) Accounts() []common.Address {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return append([]common.Address(nil), k.addrs...)
}

// Active returns the first identity.
func (k *Keyring) Active() (common.Address, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if len(k.addrs) == 0 {
		return common.Address{}, false
	}
	return k.addrs[0], true
}

// Subscribe registers fn for identity-list changes and returns an unsubscribe func.
func (k *Keyring) Subscribe(fn func([]common.Address)) func() {
	k.mu.Lock()
	id := k.nextSub
	k.nextSub++
	k.subs[id] = fn
	k.mu.Unlock()

	return func() {
		k.mu.Lock()
		delete(k.subs, id)
		k.mu.Unlock()
	}
}

// SetKeys replaces the identity set. Subscribers are notified only when the
// ordered address list actually changes.
func (k *Keyring) SetKeys(keys []*ecdsa.PrivateKey) {
	nextKeys, nextAddrs := dedupe(keys)

	k.mu.Lock()
	if sameAddresses(k.addrs, nextAddrs) {
		k.keys = nextKeys
		k.mu.Unlock()
		return
	}
	k.keys, k.addrs = nextKeys, nextAddrs
	subs := make([]func([]common.Address), 0, len(k.subs))
	for _, fn := range k.subs {
		subs = append(subs, fn)
	}
	k.mu.Unlock()

	k.logger.Info("identities changed", zap.Int("count", len(nextAddrs)))
	for _, fn := range subs {
		fn(append([]common.Address(nil), nextAddrs...))
	}
}

// Send builds, signs and broadcasts a call from the given identity.
func (k *Keyring) Send(ctx context.Context, from common.Address, to common.Address, data []byte) (common.Hash, error) {
	key, ok := k.key(from)
	if !ok {
		return common.Hash{}, fmt.Errorf("%w: %s", ErrUnknownAccount, from.Hex())
	}
	if k.backend == nil {
		return common.Hash{}, fmt.Errorf("chain backend is nil")
	}

	k.sendMu.Lock()
	defer k.sendMu.Unlock()

	chainID, err := k.backend.ChainID(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain id: %w", err)
	}
	nonce, err := k.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("nonce: %w", err)
	}
	gasPrice, err := k.backend.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("gas price: %w", err)
	}
	gas, err := k.backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Data: data})
	if err != nil {
		return common.Hash{}, fmt.Errorf("estimate gas: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &to,
		Value:    new(big.Int),
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign: %w", err)
	}
	if err := k.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("broadcast: %w", err)
	}

	k.logger.Debug("transaction broadcast",
		zap.String("from", from.Hex()),
		zap.String("to", to.Hex()),
		zap.Uint64("nonce", nonce),
		zap.Uint64("gas", gas),
		zap.String("tx", signed.Hash().Hex()),
	)
	return signed.Hash(), nil
}

func (k *Keyring) key(addr common.Address) (*ecdsa.PrivateKey, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	for i, a := range k.addrs {
		if a == addr {
			return k.keys[i], true
		}
	}
	return nil, false
}

func dedupe(keys []*ecdsa.PrivateKey) ([]*ecdsa.PrivateKey, []common.Address) {
	seen := make(map[common.Address]struct{}, len(keys))
	outKeys := make([]*ecdsa.PrivateKey, 0, len(keys))
	outAddrs := make([]common.Address, 0, len(keys))
	for _, key := range keys {
		if key == nil {
			continue
		}
		addr := crypto.PubkeyToAddress(key.PublicKey)
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		outKeys = append(outKeys, key)
		outAddrs = append(outAddrs, addr)
	}
	return outKeys, outAddrs
}

func sameAddresses(a, b []common.Address) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
