package model

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func weiFromString(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	require.True(t, ok, "bad fixture %q", s)
	return v
}

func TestFormatEther(t *testing.T) {
	tests := []struct {
		wei  string
		want string
	}{
		{"0", "0.0"},
		{"1", "0.000000000000000001"},
		{"1000000000000000000", "1.0"},
		{"25000000000000000", "0.025"},
		{"1500000000000000000", "1.5"},
		{"123456789000000000000", "123.456789"},
		{"-2000000000000000000", "-2.0"},
	}

	for _, tt := range tests {
		t.Run(tt.wei, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatEther(weiFromString(t, tt.wei)))
		})
	}
}

func TestFormatEtherNil(t *testing.T) {
	assert.Equal(t, "0.0", FormatEther(nil))
}

func TestParseEther(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1.0", "1000000000000000000"},
		{"1", "1000000000000000000"},
		{"0.025", "25000000000000000"},
		{".5", "500000000000000000"},
		{" 2.50 ", "2500000000000000000"},
		{"0.000000000000000001", "1"},
		{"0.0", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseEther(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestParseEtherRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", ".", "-1", "1.2.3", "abc", "1e18", "0.0000000000000000001"} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseEther(in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidPrice))
		})
	}
}

func TestParseEtherInvertsFormatEther(t *testing.T) {
	for _, s := range []string{"0", "1", "999", "25000000000000000", "1000000000000000000", "340282366920938463463374607431768211455"} {
		wei := weiFromString(t, s)
		back, err := ParseEther(FormatEther(wei))
		require.NoError(t, err)
		assert.Equal(t, 0, wei.Cmp(back), "round trip of %s", s)
	}
}
