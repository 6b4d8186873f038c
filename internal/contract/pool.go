package contract

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"miniSwap/internal/model"
	"miniSwap/internal/units"
)

// Backend is the read side of the chain client.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
}

// Sender signs and submits a transaction on behalf of from.
type Sender interface {
	Send(ctx context.Context, from common.Address, to common.Address, data []byte) (common.Hash, error)
}

// Waiter waits for a transaction to be mined and checks its status.
type Waiter interface {
	WaitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// Config controls the pool adapter.
type Config struct {
	Address       common.Address
	MaxRetries    int
	RetryBackoff  time.Duration
	MetaCacheSize int
}

// Pool talks to one deployed constant-product pool and its two tokens.
type Pool struct {
	address common.Address
	backend Backend
	sender  Sender
	waiter  Waiter
	retry   retryPolicy
	meta    *AssetMetaCache
	logger  *zap.Logger

	poolABI  abi.ABI
	erc20ABI abi.ABI
}

// NewPool builds a Pool adapter. sender and waiter may be nil for read-only use.
func NewPool(cfg Config, backend Backend, sender Sender, waiter Waiter, logger *zap.Logger) (*Pool, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if backend == nil {
		return nil, fmt.Errorf("chain backend is nil")
	}
	if cfg.Address == (common.Address{}) {
		return nil, fmt.Errorf("pool address is required")
	}

	poolABI, err := PoolABI()
	if err != nil {
		return nil, fmt.Errorf("parse pool abi: %w", err)
	}
	erc20ABI, err := ERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	meta, err := NewAssetMetaCache(cfg.MetaCacheSize)
	if err != nil {
		return nil, err
	}

	return &Pool{
		address:  cfg.Address,
		backend:  backend,
		sender:   sender,
		waiter:   waiter,
		retry:    retryPolicy{maxRetries: cfg.MaxRetries, baseDelay: cfg.RetryBackoff, logger: logger},
		meta:     meta,
		logger:   logger,
		poolABI:  poolABI,
		erc20ABI: erc20ABI,
	}, nil
}

// Address returns the pool contract address.
func (p *Pool) Address() common.Address {
	return p.address
}

// LatestBlock returns the head block number, used to pin a consistent reload.
func (p *Pool) LatestBlock(ctx context.Context) (uint64, error) {
	var block uint64
	err := p.retry.do(ctx, "blockNumber", func(ctx context.Context) error {
		var err error
		block, err = p.backend.LatestBlockNumber(ctx)
		return err
	})
	return block, err
}

// Tokens returns the pool's asset0 and asset1 addresses.
func (p *Pool) Tokens(ctx context.Context) (common.Address, common.Address, error) {
	token0, err := p.readAddress(ctx, "getToken0")
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	token1, err := p.readAddress(ctx, "getToken1")
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	return token0, token1, nil
}

// ReadPool reads reserves, total shares and holder's shares at block (0 = latest).
// A zero holder skips the share lookup.
func (p *Pool) ReadPool(ctx context.Context, holder common.Address, block uint64) (model.PoolSnapshot, error) {
	blockPtr := blockArg(block)

	values, err := p.call(ctx, p.address, p.poolABI, "getReserves", blockPtr)
	if err != nil {
		return model.PoolSnapshot{}, err
	}
	if len(values) < 2 {
		return model.PoolSnapshot{}, fmt.Errorf("getReserves returned %d values", len(values))
	}
	reserve0, err := asAmount(values[0])
	if err != nil {
		return model.PoolSnapshot{}, fmt.Errorf("reserve0: %w", err)
	}
	reserve1, err := asAmount(values[1])
	if err != nil {
		return model.PoolSnapshot{}, fmt.Errorf("reserve1: %w", err)
	}

	total, err := p.readAmount(ctx, p.address, p.poolABI, "getTotalShares", blockPtr)
	if err != nil {
		return model.PoolSnapshot{}, err
	}

	snap := model.PoolSnapshot{
		Pool:        p.address.Hex(),
		Reserve0:    reserve0,
		Reserve1:    reserve1,
		TotalShares: total,
		Block:       block,
		LoadedAt:    time.Now().UTC(),
	}

	if holder != (common.Address{}) {
		shares, err := p.readAmount(ctx, p.address, p.poolABI, "getShares", blockPtr, holder)
		if err != nil {
			return model.PoolSnapshot{}, err
		}
		snap.Caller = holder.Hex()
		snap.CallerShares = shares
	}

	return snap, nil
}

// AssetMeta returns cached token metadata, loading it on first use.
func (p *Pool) AssetMeta(ctx context.Context, asset common.Address) (model.AssetMeta, error) {
	if meta, ok := p.meta.Get(asset); ok {
		return meta, nil
	}
	var meta model.AssetMeta
	err := p.retry.do(ctx, "assetMeta", func(ctx context.Context) error {
		var err error
		meta, err = FetchAssetMeta(ctx, p.backend, asset, p.logger)
		return err
	})
	if err != nil {
		return model.AssetMeta{}, fmt.Errorf("asset meta %s: %w", asset.Hex(), err)
	}
	p.meta.Set(asset, meta)
	return meta, nil
}

// ReadAsset reads the holder's balance of asset and the allowance granted to the pool.
func (p *Pool) ReadAsset(ctx context.Context, asset common.Address, holder common.Address, block uint64) (model.AssetHandle, error) {
	meta, err := p.AssetMeta(ctx, asset)
	if err != nil {
		return model.AssetHandle{}, err
	}
	handle := model.AssetHandle{AssetMeta: meta}
	if holder == (common.Address{}) {
		return handle, nil
	}

	blockPtr := blockArg(block)
	balance, err := p.readAmount(ctx, asset, p.erc20ABI, "balanceOf", blockPtr, holder)
	if err != nil {
		return model.AssetHandle{}, err
	}
	allowance, err := p.readAmount(ctx, asset, p.erc20ABI, "allowance", blockPtr, holder, p.address)
	if err != nil {
		return model.AssetHandle{}, err
	}

	handle.Holder = holder.Hex()
	handle.Balance = balance
	handle.Allowance = allowance
	return handle, nil
}

// Approve grants the pool an allowance of amount on asset.
func (p *Pool) Approve(ctx context.Context, from common.Address, asset common.Address, amount units.Amount) (common.Hash, error) {
	return p.transact(ctx, from, asset, p.erc20ABI, "approve", p.address, amount.Big())
}

// Swap sells amountIn of assetIn.
func (p *Pool) Swap(ctx context.Context, from common.Address, assetIn common.Address, amountIn units.Amount) (common.Hash, error) {
	return p.transact(ctx, from, p.address, p.poolABI, "swap", assetIn, amountIn.Big())
}

// AddLiquidity deposits amount0 and amount1.
func (p *Pool) AddLiquidity(ctx context.Context, from common.Address, amount0, amount1 units.Amount) (common.Hash, error) {
	return p.transact(ctx, from, p.address, p.poolABI, "addLiquidity", amount0.Big(), amount1.Big())
}

// RemoveLiquidity burns shares.
func (p *Pool) RemoveLiquidity(ctx context.Context, from common.Address, shares units.Amount) (common.Hash, error) {
	return p.transact(ctx, from, p.address, p.poolABI, "removeLiquidity", shares.Big())
}

// WaitSettled blocks until hash is mined and fails if it reverted.
func (p *Pool) WaitSettled(ctx context.Context, hash common.Hash) error {
	if p.waiter == nil {
		return fmt.Errorf("no receipt waiter configured")
	}
	_, err := p.waiter.WaitMined(ctx, hash)
	return err
}

func (p *Pool) transact(ctx context.Context, from, to common.Address, parsed abi.ABI, method string, args ...interface{}) (common.Hash, error) {
	if p.sender == nil {
		return common.Hash{}, fmt.Errorf("no transaction sender configured")
	}
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack %s: %w", method, err)
	}
	hash, err := p.sender.Send(ctx, from, to, data)
	if err != nil {
		return common.Hash{}, fmt.Errorf("send %s: %w", method, err)
	}
	p.logger.Info("transaction submitted", zap.String("method", method), zap.String("from", from.Hex()), zap.String("to", to.Hex()), zap.String("tx", hash.Hex()))
	return hash, nil
}

func (p *Pool) call(ctx context.Context, to common.Address, parsed abi.ABI, method string, block *big.Int, args ...interface{}) ([]interface{}, error) {
	var values []interface{}
	err := p.retry.do(ctx, method, func(ctx context.Context) error {
		var err error
		values, err = callMethod(ctx, p.backend, to, parsed, method, block, args...)
		return err
	})
	return values, err
}

func (p *Pool) readAmount(ctx context.Context, to common.Address, parsed abi.ABI, method string, block *big.Int, args ...interface{}) (units.Amount, error) {
	values, err := p.call(ctx, to, parsed, method, block, args...)
	if err != nil {
		return units.Amount{}, err
	}
	amount, err := asAmount(values[0])
	if err != nil {
		return units.Amount{}, fmt.Errorf("%s: %w", method, err)
	}
	return amount, nil
}

func (p *Pool) readAddress(ctx context.Context, method string) (common.Address, error) {
	values, err := p.call(ctx, p.address, p.poolABI, method, nil)
	if err != nil {
		return common.Address{}, err
	}
	addr, err := asAddress(values[0])
	if err != nil {
		return common.Address{}, fmt.Errorf("%s: %w", method, err)
	}
	return addr, nil
}

func blockArg(block uint64) *big.Int {
	if block == 0 {
		return nil
	}
	return new(big.Int).SetUint64(block)
}
