package calculator

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestBondFactor(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		np, tp int64
		want   string
	}{
		{"floor", 100, 100, "0.01"},
		{"at floor", 110, 100, "0.01"},
		{"between", 200, 100, "0.1"},
		{"cap", 1000, 100, "0.3"},
		{"zero tp", 100, 0, "0.01"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := BondFactor(decimal.NewFromInt(tc.np), decimal.NewFromInt(tc.tp))
			require.True(t, decimal.RequireFromString(tc.want).Equal(got), "got %s", got)
		})
	}
}

func TestLiquidationBond(t *testing.T) {
	t.Parallel()

	debt := FloatToWad(1000)
	bond := LiquidationBond(debt, decimal.NewFromInt(200), decimal.NewFromInt(100))
	require.Equal(t, FloatToWad(100).String(), bond.String())
}

func TestApplyMargin(t *testing.T) {
	t.Parallel()

	require.Equal(t, "1100000000000000000", ApplyMargin(FloatToWad(1), 1.1).String())
	require.Equal(t, "0", ApplyMargin(FloatToWad(0), 1.1).String())
}
