package types

import (
	"errors"
	"fmt"
	"strings"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/holiman/uint256"
)

// AmountBits is the width of an allocation amount.
const AmountBits = 128

var (
	ErrEmptyAmount     = errors.New("amount is empty")
	ErrMalformedAmount = errors.New("amount is not a decimal integer")
	ErrAmountOverflow  = errors.New("amount does not fit in 128 bits")
)

// Amount is an unsigned 128-bit token quantity. The zero value is 0.
type Amount struct {
	value uint256.Int
}

// AmountFromUint64 returns v as an Amount.
func AmountFromUint64(v uint64) Amount {
	var a Amount
	a.value.SetUint64(v)
	return a
}

// ParseAmount parses a base-10 unsigned integer that fits in 128 bits. An
// optional leading '+' is accepted.
func ParseAmount(s string) (Amount, error) {
	digits := s
	if len(digits) > 0 && digits[0] == '+' {
		digits = digits[1:]
	}
	if digits == "" {
		return Amount{}, ErrEmptyAmount
	}
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return Amount{}, fmt.Errorf("%w: %q", ErrMalformedAmount, s)
		}
	}

	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		return Amount{}, nil
	}

	v, err := uint256.FromDecimal(digits)
	if err != nil {
		// FromDecimal only fails on malformed input or values above 2^256-1.
		return Amount{}, fmt.Errorf("%w: %q", ErrAmountOverflow, s)
	}
	if v.BitLen() > AmountBits {
		return Amount{}, fmt.Errorf("%w: %q", ErrAmountOverflow, s)
	}
	return Amount{value: *v}, nil
}

// ParseAmountOrZero parses s and substitutes zero when it is not a valid
// amount. The boolean reports whether parsing succeeded.
func ParseAmountOrZero(s string) (Amount, bool) {
	a, err := ParseAmount(s)
	if err != nil {
		return Amount{}, false
	}
	return a, true
}

// CheckedAdd returns a+b and false if the sum exceeds 128 bits.
func (a Amount) CheckedAdd(b Amount) (Amount, bool) {
	var sum Amount
	if _, overflow := sum.value.AddOverflow(&a.value, &b.value); overflow {
		return Amount{}, false
	}
	if sum.value.BitLen() > AmountBits {
		return Amount{}, false
	}
	return sum, true
}

func (a Amount) IsZero() bool {
	return a.value.IsZero()
}

func (a Amount) Cmp(other Amount) int {
	return a.value.Cmp(&other.value)
}

// Felt lifts the amount into the field. Every 128-bit value is below P.
func (a Amount) Felt() *felt.Felt {
	b := a.value.Bytes32()
	return new(felt.Felt).SetBytes(b[:])
}

// Hex renders the amount as lowercase 0x-prefixed hex; zero is "0x0".
func (a Amount) Hex() string {
	return a.value.Hex()
}

// String renders the amount in decimal.
func (a Amount) String() string {
	return a.value.Dec()
}

func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Amount) UnmarshalText(text []byte) error {
	parsed, err := ParseAmount(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
