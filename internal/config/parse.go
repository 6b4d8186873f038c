package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"miniSwap/internal/model"
	"miniSwap/internal/units"
)

// ParseAddress converts a hex string into common.Address.
func ParseAddress(input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("invalid address: %q", input)
	}
	return common.HexToAddress(input), nil
}

// PoolAddress validates the configured pool address.
func (c Config) PoolAddress() (common.Address, error) {
	if c.Pool == "" {
		return common.Address{}, fmt.Errorf("pool address is required")
	}
	return ParseAddress(c.Pool)
}

// ParseAmount reads a user-entered token amount. A trailing "wei" suffix reads
// the value in minor units.
func ParseAmount(input string, decimals uint8) (units.Amount, error) {
	input = strings.TrimSpace(input)
	if raw, ok := strings.CutSuffix(input, "wei"); ok {
		return units.FromString(strings.TrimSpace(raw))
	}
	return units.Parse(input, decimals)
}

// ParseSide accepts 0/1 or the asset symbol of either side.
func ParseSide(input string, assets [2]model.AssetHandle) (model.Side, error) {
	if side, err := model.ParseSide(input); err == nil {
		return side, nil
	}
	for i, a := range assets {
		if a.Symbol != "" && strings.EqualFold(a.Symbol, strings.TrimSpace(input)) {
			return model.Side(i), nil
		}
	}
	return 0, fmt.Errorf("invalid side %q (want 0, 1, %s or %s)", input, assets[0].Label(), assets[1].Label())
}
