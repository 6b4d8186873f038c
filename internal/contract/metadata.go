package contract

import (
	"bytes"
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"miniSwap/internal/model"
	"miniSwap/internal/units"
)

const defaultMetaCacheSize = 64

// AssetMetaCache caches immutable token metadata by address.
type AssetMetaCache struct {
	cache *lru.Cache[common.Address, model.AssetMeta]
}

func NewAssetMetaCache(size int) (*AssetMetaCache, error) {
	if size <= 0 {
		size = defaultMetaCacheSize
	}
	cache, err := lru.New[common.Address, model.AssetMeta](size)
	if err != nil {
		return nil, fmt.Errorf("create asset meta cache: %w", err)
	}
	return &AssetMetaCache{cache: cache}, nil
}

func (c *AssetMetaCache) Get(address common.Address) (model.AssetMeta, bool) {
	return c.cache.Get(address)
}

func (c *AssetMetaCache) Set(address common.Address, meta model.AssetMeta) {
	c.cache.Add(address, meta)
}

// FetchAssetMeta loads decimals and symbol via ERC20 calls. A symbol that
// cannot be read is left empty; decimals are required.
func FetchAssetMeta(ctx context.Context, backend Backend, token common.Address, logger *zap.Logger) (model.AssetMeta, error) {
	meta := model.AssetMeta{Address: token.Hex()}
	if backend == nil {
		return meta, fmt.Errorf("chain backend is nil")
	}

	stringABI, err := ERC20ABI()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 abi: %w", err)
	}
	bytes32ABI, err := erc20ABIBytes32Instance()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}

	values, err := callMethod(ctx, backend, token, stringABI, "decimals", nil)
	if err != nil {
		return meta, err
	}
	decimals, err := asUint8(values[0])
	if err != nil {
		return meta, permanent(fmt.Errorf("decimals: %w", err))
	}
	meta.Decimals = decimals

	if values, err := callMethod(ctx, backend, token, stringABI, "symbol", nil); err == nil {
		if symbol, ok := values[0].(string); ok {
			meta.Symbol = symbol
		}
	} else if values, err := callMethod(ctx, backend, token, bytes32ABI, "symbol", nil); err == nil {
		if symbol, ok := bytes32ToString(values[0]); ok {
			meta.Symbol = symbol
		}
	} else if logger != nil {
		logger.Debug("symbol call failed", zap.String("token", token.Hex()), zap.Error(err))
	}

	return meta, nil
}

// callMethod packs, calls and unpacks a view method. Unpack failures are permanent.
func callMethod(ctx context.Context, backend Backend, to common.Address, parsed abi.ABI, method string, block *big.Int, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, permanent(fmt.Errorf("pack %s: %w", method, err))
	}
	msg := ethereum.CallMsg{To: &to, Data: data}
	resp, err := backend.CallContract(ctx, msg, block)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, permanent(fmt.Errorf("unpack %s: %w", method, err))
	}
	if len(values) == 0 {
		return nil, permanent(fmt.Errorf("%s returned no values", method))
	}
	return values, nil
}

func bytes32ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case [32]byte:
		return string(bytes.TrimRight(v[:], "\x00")), true
	case []byte:
		return string(bytes.TrimRight(v, "\x00")), true
	default:
		return "", false
	}
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

func asAmount(value interface{}) (units.Amount, error) {
	switch v := value.(type) {
	case *big.Int:
		return units.FromBig(v)
	case big.Int:
		return units.FromBig(&v)
	default:
		return units.Amount{}, fmt.Errorf("unsupported uint256 type %T", value)
	}
}

func asUint8(value interface{}) (uint8, error) {
	switch v := value.(type) {
	case uint8:
		return v, nil
	case uint16:
		return uint8(v), nil
	case uint32:
		return uint8(v), nil
	case uint64:
		return uint8(v), nil
	case *big.Int:
		return uint8(v.Uint64()), nil
	default:
		return 0, fmt.Errorf("unsupported uint8 type %T", value)
	}
}
