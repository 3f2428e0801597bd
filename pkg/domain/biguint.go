package domain

import (
	"math/big"
)

// BigUint is an arbitrary-precision non-negative integer used for gas
// amounts and token payments, which routinely exceed 64 bits on EVM
// chains. It marshals to JSON as a decimal string so log-store rows
// round-trip without precision loss.
type BigUint struct {
	v *big.Int
}

// NewBigUint wraps an existing big.Int. A nil input is treated as zero.
func NewBigUint(v *big.Int) BigUint {
	if v == nil {
		return BigUint{v: new(big.Int)}
	}
	return BigUint{v: new(big.Int).Set(v)}
}

// BigUintFromUint64 constructs a BigUint from a uint64 value.
func BigUintFromUint64(v uint64) BigUint {
	return BigUint{v: new(big.Int).SetUint64(v)}
}

// Int returns the underlying big.Int, defaulting to zero when unset.
func (b BigUint) Int() *big.Int {
	if b.v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(b.v)
}

// Add returns the sum of two BigUint values.
func (b BigUint) Add(o BigUint) BigUint {
	return BigUint{v: new(big.Int).Add(b.Int(), o.Int())}
}

// Cmp compares b against o, mirroring big.Int.Cmp.
func (b BigUint) Cmp(o BigUint) int {
	return b.Int().Cmp(o.Int())
}

// Bytes32 returns the big-endian 32-byte representation used by the
// fixed-width ISM metadata token layout.
func (b BigUint) Bytes32() [32]byte {
	var out [32]byte
	bs := b.Int().Bytes()
	copy(out[32-len(bs):], bs)
	return out
}

func (b BigUint) String() string {
	return b.Int().String()
}

// MarshalJSON encodes the value as a quoted decimal string.
func (b BigUint) MarshalJSON() ([]byte, error) {
	return []byte(`"` + b.Int().String() + `"`), nil
}

// UnmarshalJSON decodes a quoted (or bare) decimal string.
func (b *BigUint) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		v = new(big.Int)
	}
	b.v = v
	return nil
}
