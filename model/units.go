package model

import (
	"fmt"
	"math/big"
	"strings"
)

// EtherDecimals は Wei から ETH への桁数
const EtherDecimals = 18

// FormatEther は Wei を ETH 表示用の10進文字列に変換する ("1.0", "0.025" など)
func FormatEther(wei *big.Int) string {
	return FormatUnits(wei, EtherDecimals)
}

// ParseEther は ETH 表示の10進文字列を Wei に戻す
func ParseEther(value string) (*big.Int, error) {
	return ParseUnits(value, EtherDecimals)
}

// FormatUnits は最小単位の値を decimals 桁の10進文字列に変換する。
// 小数部は末尾の0を除くが、最低1桁は残す。
func FormatUnits(value *big.Int, decimals int) string {
	if value == nil {
		value = new(big.Int)
	}

	negative := value.Sign() < 0
	abs := new(big.Int).Abs(value)

	base := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	whole, frac := new(big.Int).QuoRem(abs, base, new(big.Int))

	fraction := ""
	if decimals > 0 {
		fraction = frac.String()
		fraction = strings.Repeat("0", decimals-len(fraction)) + fraction
		fraction = strings.TrimRight(fraction, "0")
	}
	if fraction == "" {
		fraction = "0"
	}

	s := whole.String() + "." + fraction
	if negative {
		s = "-" + s
	}
	return s
}

// ParseUnits は decimals 桁の10進文字列を最小単位の整数に変換する。
// 負の値や桁あふれする小数部は ErrInvalidPrice になる。
func ParseUnits(value string, decimals int) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" || value == "." {
		return nil, fmt.Errorf("%w: empty value", ErrInvalidPrice)
	}
	if strings.HasPrefix(value, "-") {
		return nil, fmt.Errorf("%w: negative value %q", ErrInvalidPrice, value)
	}

	parts := strings.Split(value, ".")
	if len(parts) > 2 {
		return nil, fmt.Errorf("%w: too many decimal points in %q", ErrInvalidPrice, value)
	}

	whole := parts[0]
	if whole == "" {
		whole = "0"
	}
	fraction := ""
	if len(parts) == 2 {
		fraction = strings.TrimRight(parts[1], "0")
	}
	if len(fraction) > decimals {
		return nil, fmt.Errorf("%w: fractional component exceeds %d decimals in %q", ErrInvalidPrice, decimals, value)
	}

	digits := whole + fraction + strings.Repeat("0", decimals-len(fraction))
	for _, r := range digits {
		if r < '0' || r > '9' {
			return nil, fmt.Errorf("%w: %q is not a decimal number", ErrInvalidPrice, value)
		}
	}

	result, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a decimal number", ErrInvalidPrice, value)
	}
	return result, nil
}
