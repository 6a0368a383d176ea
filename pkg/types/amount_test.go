package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const maxAmount = "340282366920938463463374607431768211455"

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{name: "small", input: "18", want: "18"},
		{name: "zero", input: "0", want: "0"},
		{name: "leading zeros", input: "0007", want: "7"},
		{name: "plus sign", input: "+5", want: "5"},
		{name: "max u128", input: maxAmount, want: maxAmount},
		{name: "u128 overflow", input: "340282366920938463463374607431768211456", wantErr: ErrAmountOverflow},
		{name: "u256 overflow", input: "1000000000000000000000000000000000000000000000000000000000000000000000000000000", wantErr: ErrAmountOverflow},
		{name: "empty", input: "", wantErr: ErrEmptyAmount},
		{name: "sign only", input: "+", wantErr: ErrEmptyAmount},
		{name: "negative", input: "-1", wantErr: ErrMalformedAmount},
		{name: "fraction", input: "1.5", wantErr: ErrMalformedAmount},
		{name: "hex", input: "0x10", wantErr: ErrMalformedAmount},
		{name: "padded", input: " 10", wantErr: ErrMalformedAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount, err := ParseAmount(tt.input)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, amount.String())
		})
	}
}

func TestParseAmountOrZero(t *testing.T) {
	amount, ok := ParseAmountOrZero("42")
	assert.True(t, ok)
	assert.Equal(t, AmountFromUint64(42), amount)

	amount, ok = ParseAmountOrZero("forty-two")
	assert.False(t, ok)
	assert.True(t, amount.IsZero())
}

func TestAmount_CheckedAdd(t *testing.T) {
	sum, ok := AmountFromUint64(5).CheckedAdd(AmountFromUint64(13))
	require.True(t, ok)
	assert.Equal(t, "18", sum.String())

	largest, err := ParseAmount(maxAmount)
	require.NoError(t, err)

	_, ok = largest.CheckedAdd(AmountFromUint64(1))
	assert.False(t, ok)

	same, ok := largest.CheckedAdd(Amount{})
	require.True(t, ok)
	assert.Equal(t, 0, same.Cmp(largest))
}

func TestAmount_Hex(t *testing.T) {
	assert.Equal(t, "0x0", Amount{}.Hex())
	assert.Equal(t, "0x12", AmountFromUint64(18).Hex())
	assert.Equal(t, "0x29", AmountFromUint64(41).Hex())
}

func TestAmount_Felt(t *testing.T) {
	assert.Equal(t, "0x1e", FormatFelt(AmountFromUint64(30).Felt()))

	largest, err := ParseAmount(maxAmount)
	require.NoError(t, err)
	assert.Equal(t, "0xffffffffffffffffffffffffffffffff", FormatFelt(largest.Felt()))
}
