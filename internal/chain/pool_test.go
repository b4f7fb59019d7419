package chain

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var (
	testPoolAddr  = common.HexToAddress("0x0a5e5B4fAAE30c5eF2997d6a882DE52c4ec01B6D")
	testUtilsAddr = common.HexToAddress("0x30c5eF2997d6a882DE52c4ec01B6D0a5e5B4fAAE")
	testBorrower  = common.HexToAddress("0x00000000000000000000000000000000000000A1")
)

// fakeCaller answers eth_call by method name with canned outputs.
type fakeCaller struct {
	abi     abi.ABI
	outputs map[string][]interface{}
	calls   []string
}

func (f *fakeCaller) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	m, err := f.abi.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	f.calls = append(f.calls, m.Name)
	return m.Outputs.Pack(f.outputs[m.Name]...)
}

func wadInt(s string) *big.Int {
	d := decimal.RequireFromString(s)
	return d.Shift(18).BigInt()
}

func newTestPool(utils, pool *fakeCaller) *Pool {
	return &Pool{
		name:     "WETH/DAI",
		address:  testPoolAddr,
		utils:    &PoolInfoUtils{contract: bind.NewBoundContract(testUtilsAddr, poolInfoUtilsABI, utils, nil, nil)},
		contract: bind.NewBoundContract(testPoolAddr, poolABI, pool, nil, nil),
	}
}

func TestPoolPrices(t *testing.T) {
	t.Parallel()

	utils := &fakeCaller{abi: poolInfoUtilsABI, outputs: map[string][]interface{}{
		"poolPricesInfo": {wadInt("1850.5"), big.NewInt(2650), wadInt("1200"), big.NewInt(2738), wadInt("1700"), big.NewInt(2667)},
	}}
	u := &PoolInfoUtils{contract: bind.NewBoundContract(testUtilsAddr, poolInfoUtilsABI, utils, nil, nil)}

	got, err := u.PoolPrices(context.Background(), testPoolAddr)
	require.NoError(t, err)
	require.True(t, decimal.RequireFromString("1850.5").Equal(got.HPB))
	require.Equal(t, int64(2650), got.HPBIndex)
	require.True(t, decimal.RequireFromString("1200").Equal(got.HTP))
	require.True(t, decimal.RequireFromString("1700").Equal(got.LUP))
	require.Equal(t, int64(2667), got.LUPIndex)
	require.False(t, got.LLB.Valid)
}

func TestGetLoanDerivesNeutralPriceAndBond(t *testing.T) {
	t.Parallel()

	utils := &fakeCaller{abi: poolInfoUtilsABI, outputs: map[string][]interface{}{
		"borrowerInfo": {wadInt("1000"), wadInt("1"), wadInt("1100"), wadInt("1000")},
	}}
	pool := &fakeCaller{abi: poolABI, outputs: map[string][]interface{}{
		"inflatorInfo": {wadInt("1.1"), big.NewInt(1_700_000_000)},
	}}
	p := newTestPool(utils, pool)

	loan, err := p.GetLoan(context.Background(), testBorrower)
	require.NoError(t, err)
	require.Equal(t, 0, loan.Debt.Cmp(wadInt("1000")))
	require.True(t, decimal.RequireFromString("1210").Equal(loan.NeutralPrice), loan.NeutralPrice.String())
	require.True(t, decimal.RequireFromString("1000").Equal(loan.ThresholdPrice))
	// np/tp - 1 = 0.21, factor 0.021, bond 21.
	require.Equal(t, 0, loan.LiquidationBond.Cmp(wadInt("21")), loan.LiquidationBond.String())
}

func TestAuctionStatus(t *testing.T) {
	t.Parallel()

	utils := &fakeCaller{abi: poolInfoUtilsABI, outputs: map[string][]interface{}{
		"auctionStatus": {
			big.NewInt(1_700_000_000), wadInt("2"), wadInt("3000"), false,
			wadInt("1500"), wadInt("1600"), wadInt("1650"), wadInt("1500"), wadInt("0.01"),
		},
	}}
	p := newTestPool(utils, &fakeCaller{abi: poolABI})

	status, err := p.AuctionStatus(context.Background(), testBorrower)
	require.NoError(t, err)
	require.True(t, status.Takeable())
	require.Equal(t, int64(1_700_000_000), status.KickTime.Unix())
	require.True(t, decimal.RequireFromString("1500").Equal(status.Price))
	require.False(t, status.IsCollateralized)

	utils.outputs["auctionStatus"] = []interface{}{
		big.NewInt(0), big.NewInt(0), big.NewInt(0), false,
		big.NewInt(0), big.NewInt(0), big.NewInt(0), big.NewInt(0), big.NewInt(0),
	}
	status, err = p.AuctionStatus(context.Background(), testBorrower)
	require.NoError(t, err)
	require.False(t, status.Takeable())
}

func TestBucketAndKickerInfo(t *testing.T) {
	t.Parallel()

	utils := &fakeCaller{abi: poolInfoUtilsABI, outputs: map[string][]interface{}{
		"bucketInfo": {wadInt("2000"), wadInt("50"), wadInt("1"), wadInt("49"), wadInt("1"), wadInt("1.02")},
	}}
	pool := &fakeCaller{abi: poolABI, outputs: map[string][]interface{}{
		"kickerInfo": {wadInt("5"), big.NewInt(0)},
	}}
	p := newTestPool(utils, pool)

	b, err := p.Bucket(context.Background(), 2650)
	require.NoError(t, err)
	require.Equal(t, 0, b.Deposit.Cmp(wadInt("50")))
	require.Equal(t, 0, b.ExchangeRate.Cmp(wadInt("1.02")))

	k, err := p.KickerInfo(context.Background(), testBorrower)
	require.NoError(t, err)
	require.Equal(t, 0, k.Claimable.Cmp(wadInt("5")))
	require.Zero(t, k.Locked.Sign())
}

func TestApplySlippage(t *testing.T) {
	t.Parallel()

	require.Equal(t, int64(9950), applySlippage(big.NewInt(10_000), 0.5).Int64())
	require.Equal(t, int64(10_000), applySlippage(big.NewInt(10_000), 0).Int64())
	require.Zero(t, applySlippage(big.NewInt(10_000), 100).Sign())
}

func TestWithdrawableQuote(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		lupIndex int64
		aboveHTP string
		debt     string
		want     string
	}{
		{"below LUP is fully redeemable", 2600, "500", "480", "40"},
		{"utilized bucket limited by spare deposit", 2700, "500", "480", "20"},
		{"utilized bucket with no spare deposit", 2700, "480", "500", "0"},
		{"spare deposit above redeemable", 2700, "1000", "100", "40"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			utils := &fakeCaller{abi: poolInfoUtilsABI, outputs: map[string][]interface{}{
				"lpToQuoteTokens": {wadInt("45")},
				"bucketInfo":      {wadInt("2000"), wadInt("40"), big.NewInt(0), wadInt("40"), wadInt("1"), wadInt("1")},
				"poolPricesInfo": {
					wadInt("2000"), big.NewInt(2650), wadInt("1200"), big.NewInt(2738),
					wadInt("1700"), big.NewInt(tt.lupIndex),
				},
			}}
			pool := &fakeCaller{abi: poolABI, outputs: map[string][]interface{}{
				"lenderInfo":       {wadInt("45"), big.NewInt(0)},
				"debtInfo":         {wadInt(tt.debt), wadInt(tt.debt), big.NewInt(0), big.NewInt(0)},
				"depositUpToIndex": {wadInt(tt.aboveHTP)},
			}}
			p := newTestPool(utils, pool)

			got, err := p.WithdrawableQuote(context.Background(), 2650, testBorrower)
			require.NoError(t, err)
			require.Equal(t, 0, got.Cmp(wadInt(tt.want)), got.String())
		})
	}
}
