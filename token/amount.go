// token/amount.go
package token

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("invalid token amount")

// UIAmount 最小单位数量转成带小数的展示数量，例如 (1_500_000_000, 9) -> 1.5
func UIAmount(amount uint64, decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -int32(decimals))
}

// ParseUIAmount 展示数量转成最小单位；小数位超过 decimals 或超出 uint64 时报错
func ParseUIAmount(s string, decimals uint8) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidAmount, s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("%w: %q is negative", ErrInvalidAmount, s)
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("%w: %q has more than %d decimals", ErrInvalidAmount, s, decimals)
	}
	n := scaled.BigInt()
	if !n.IsUint64() {
		return 0, fmt.Errorf("%w: %q", ErrOverflow, s)
	}
	return n.Uint64(), nil
}

// MustParseUIAmount 测试和常量初始化使用
func MustParseUIAmount(s string, decimals uint8) uint64 {
	v, err := ParseUIAmount(s, decimals)
	if err != nil {
		panic(err)
	}
	return v
}
