package money

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	a, err := Parse("1234.56")
	require.NoError(t, err)
	require.Equal(t, "1234.56", a.StringFixed(2))

	_, err = Parse("not-a-number")
	require.Error(t, err)
}

func TestFromFloatRoundsToCents(t *testing.T) {
	require.Equal(t, "0.10", FromFloat(0.1).StringFixed(2))
	require.Equal(t, "1499.99", FromFloat(1499.985000001).StringFixed(2))
}

func TestExactAddition(t *testing.T) {
	// 0.1 + 0.2 == 0.3 exactly, which float64 cannot express.
	sum := MustParse("0.1").Add(MustParse("0.2"))
	require.True(t, sum.Equal(MustParse("0.3")))
}

func TestWithinPercent(t *testing.T) {
	base := MustParse("1000.00")

	require.True(t, WithinPercent(MustParse("1000.00"), base, 1.0))
	require.True(t, WithinPercent(MustParse("990.00"), base, 1.0))
	require.True(t, WithinPercent(MustParse("1010.00"), base, 1.0))
	require.False(t, WithinPercent(MustParse("989.99"), base, 1.0))
	require.False(t, WithinPercent(MustParse("1010.01"), base, 1.0))
}

func TestWithinPercentZeroBase(t *testing.T) {
	require.True(t, WithinPercent(Zero, Zero, 1.0))
	require.False(t, WithinPercent(MustParse("0.01"), Zero, 1.0))
}

func TestWithinPercentNegativeBase(t *testing.T) {
	base := MustParse("-500.00")
	require.True(t, WithinPercent(MustParse("-495.00"), base, 1.0))
	require.False(t, WithinPercent(MustParse("-494.99"), base, 1.0))
}
