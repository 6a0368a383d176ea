package types

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/consensys/gnark-crypto/ecc/stark-curve/fp"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

var (
	ErrEmptyAddress      = errors.New("address is empty")
	ErrMalformedAddress  = errors.New("address is not a valid hex or decimal integer")
	ErrAddressOutOfRange = errors.New("address is not below the field modulus")
)

// Address is a Starknet account address: a field element in [0, P).
// The zero value is address 0x0. Address is comparable and safe to use as a
// map key since felt.Felt keeps a canonical internal representation.
type Address struct {
	value felt.Felt
}

// ParseAddress parses a hex string with a lowercase 0x prefix (digits in
// either case, leading zeros allowed) or a plain decimal string.
func ParseAddress(s string) (Address, error) {
	v, err := parseFieldInteger(s)
	if err != nil {
		return Address{}, err
	}
	var a Address
	a.value.SetBytes(v.Bytes())
	return a, nil
}

// MustParseAddress is ParseAddress for constants in tests and fixtures.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(fmt.Sprintf("invalid address %q: %v", s, err))
	}
	return a
}

func parseFieldInteger(s string) (*big.Int, error) {
	if s == "" {
		return nil, ErrEmptyAddress
	}

	digits, base := s, 10
	if strings.HasPrefix(s, "0x") {
		digits, base = s[2:], 16
	}
	if digits == "" || digits[0] == '+' || digits[0] == '-' {
		return nil, fmt.Errorf("%w: %q", ErrMalformedAddress, s)
	}

	v, ok := new(big.Int).SetString(digits, base)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMalformedAddress, s)
	}
	if v.Cmp(fp.Modulus()) >= 0 {
		return nil, fmt.Errorf("%w: %q", ErrAddressOutOfRange, s)
	}
	return v, nil
}

// Felt returns a copy of the underlying field element.
func (a Address) Felt() *felt.Felt {
	f := a.value
	return &f
}

// Cmp compares two addresses numerically.
func (a Address) Cmp(other Address) int {
	return a.value.Cmp(&other.value)
}

func (a Address) Equal(other Address) bool {
	return a.value.Equal(&other.value)
}

// Hex renders the address in canonical form: lowercase, 0x prefix, no padding.
func (a Address) Hex() string {
	return FormatFelt(&a.value)
}

func (a Address) String() string {
	return a.Hex()
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.Hex()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// FormatFelt renders a field element as lowercase 0x-prefixed hex without
// leading zeros; zero renders as "0x0".
func FormatFelt(f *felt.Felt) string {
	b := f.Bytes()
	return hexutil.EncodeBig(new(big.Int).SetBytes(b[:]))
}
