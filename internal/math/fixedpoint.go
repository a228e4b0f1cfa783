package math

import (
	"fmt"
	"math/big"
	"sync"
)

// int128Pool recycles big.Ints for intermediate products. Weight and payout
// math multiplies token amounts by bps factors, which overflows int64 for
// large stakes, so all products go through 128-bit intermediates.
var int128Pool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt128() *big.Int {
	return int128Pool.Get().(*big.Int)
}

func putInt128(v *big.Int) {
	v.SetInt64(0) // Clear before returning to pool
	int128Pool.Put(v)
}

// MulDiv computes a × b / den with a 128-bit intermediate, truncating toward
// zero. Errors if den is zero or the result overflows int64.
func MulDiv(a, b, den int64) (int64, error) {
	if den == 0 {
		return 0, fmt.Errorf("division by zero in %d * %d / 0", a, b)
	}

	v := getInt128()
	defer putInt128(v)

	v.Mul(big.NewInt(a), big.NewInt(b))
	v.Quo(v, big.NewInt(den))

	if !v.IsInt64() {
		return 0, fmt.Errorf("overflow in %d * %d / %d", a, b, den)
	}
	return v.Int64(), nil
}

// Mul3Div computes a × b × c / den with a wide intermediate, truncating
// toward zero.
func Mul3Div(a, b, c, den int64) (int64, error) {
	if den == 0 {
		return 0, fmt.Errorf("division by zero in %d * %d * %d / 0", a, b, c)
	}

	v := getInt128()
	defer putInt128(v)

	v.Mul(big.NewInt(a), big.NewInt(b))
	v.Mul(v, big.NewInt(c))
	v.Quo(v, big.NewInt(den))

	if !v.IsInt64() {
		return 0, fmt.Errorf("overflow in %d * %d * %d / %d", a, b, c, den)
	}
	return v.Int64(), nil
}
