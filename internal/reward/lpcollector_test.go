package reward

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"PoolKeeper/internal/model"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

var (
	lpPoolAddr = common.HexToAddress("0x0a5e5B4fAAE30c5eF2997d6a882DE52c4ec01B6D")
	quoteToken = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	collToken  = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
)

type fakeLPPool struct {
	lender       *big.Int
	bucket       model.BucketStatus
	withdrawable *big.Int // nil means min(lender, deposit)
	removeErr    error
	removed      []*big.Int
	kinds        []string
}

func (p *fakeLPPool) Info() model.PoolInfo {
	return model.PoolInfo{Name: "WETH/DAI", Address: lpPoolAddr, Quote: quoteToken, Collateral: collToken}
}

func (p *fakeLPPool) LenderLP(context.Context, int64, common.Address) (*big.Int, error) {
	return p.lender, nil
}

func (p *fakeLPPool) Bucket(context.Context, int64) (model.BucketStatus, error) {
	return p.bucket, nil
}

// One LP redeems for exactly one token in these fakes.
func (p *fakeLPPool) LPToQuote(_ context.Context, lp *big.Int, _ int64) (*big.Int, error) {
	return new(big.Int).Set(lp), nil
}

func (p *fakeLPPool) LPToCollateral(_ context.Context, lp *big.Int, _ int64) (*big.Int, error) {
	return new(big.Int).Set(lp), nil
}

func (p *fakeLPPool) WithdrawableQuote(context.Context, int64, common.Address) (*big.Int, error) {
	if p.withdrawable != nil {
		return p.withdrawable, nil
	}
	if p.lender.Cmp(p.bucket.Deposit) < 0 {
		return p.lender, nil
	}
	return p.bucket.Deposit, nil
}

func (p *fakeLPPool) RemoveQuote(_ context.Context, amount *big.Int, _ int64) error {
	return p.remove("quote", amount)
}

func (p *fakeLPPool) RemoveCollateral(_ context.Context, amount *big.Int, _ int64) error {
	return p.remove("collateral", amount)
}

func (p *fakeLPPool) remove(kind string, amount *big.Int) error {
	if p.removeErr != nil {
		return p.removeErr
	}
	p.kinds = append(p.kinds, kind)
	p.removed = append(p.removed, amount)
	return nil
}

type fakeCreditor struct {
	credits []model.Credit
}

func (f *fakeCreditor) AddCredit(action model.RewardAction, token common.Address, amount *big.Int) error {
	f.credits = append(f.credits, model.Credit{CreditKey: model.CreditKey{Action: action, Token: token}, Amount: amount})
	return nil
}

func unitBucket() model.BucketStatus {
	return model.BucketStatus{
		Price:        wad(2),
		Deposit:      wad(100),
		Collateral:   wad(100),
		BucketLP:     wad(100),
		ExchangeRate: wad(1),
	}
}

func newCollector(pool *fakeLPPool, cred Creditor, as model.RedeemAs, dryRun bool) *LPCollector {
	action := transferAction
	return NewLPCollector(LPCollectorParams{
		Pool:      pool,
		Queue:     &directQueue{},
		Tracker:   cred,
		Signer:    signer,
		RedeemAs:  as,
		MinAmount: big.NewInt(0),
		Action:    &action,
		DryRun:    dryRun,
		Logger:    quietLogger(),
	})
}

func TestHandleAwardAccumulates(t *testing.T) {
	t.Parallel()

	c := newCollector(&fakeLPPool{}, nil, model.RedeemQuote, false)
	c.HandleAward(model.LPAward{BucketIndex: 3000, LP: big.NewInt(5)})
	c.HandleAward(model.LPAward{BucketIndex: 3000, LP: big.NewInt(7)})
	c.HandleAward(model.LPAward{BucketIndex: 3000, LP: big.NewInt(0)})
	c.HandleAward(model.LPAward{BucketIndex: 3001})

	require.Equal(t, int64(12), c.Pending(3000).Int64())
	require.Zero(t, c.Pending(3001).Sign())
}

func TestCollectQuote(t *testing.T) {
	t.Parallel()

	pool := &fakeLPPool{lender: wad(50), bucket: unitBucket()}
	cred := &fakeCreditor{}
	c := newCollector(pool, cred, model.RedeemQuote, false)
	c.HandleAward(model.LPAward{BucketIndex: 3000, LP: wad(10)})

	require.NoError(t, c.Collect(context.Background()))
	require.Equal(t, []string{"quote"}, pool.kinds)
	require.Equal(t, 0, pool.removed[0].Cmp(wad(10)))
	require.Len(t, cred.credits, 1)
	require.Equal(t, quoteToken, cred.credits[0].Token)
	require.Equal(t, transferAction, cred.credits[0].Action)
	require.Zero(t, c.Pending(3000).Sign())
}

func TestCollectCapsAtLenderBalanceAndDeposit(t *testing.T) {
	t.Parallel()

	bucket := unitBucket()
	bucket.Deposit = wad(3)
	pool := &fakeLPPool{lender: wad(4), bucket: bucket}
	c := newCollector(pool, &fakeCreditor{}, model.RedeemQuote, false)
	c.HandleAward(model.LPAward{BucketIndex: 3000, LP: wad(10)})

	require.NoError(t, c.Collect(context.Background()))
	require.Equal(t, 0, pool.removed[0].Cmp(wad(3)))
	// 3 LP consumed at a unit exchange rate.
	require.Equal(t, 0, c.Pending(3000).Cmp(wad(7)))
}

func TestCollectQuoteCapsAtWithdrawable(t *testing.T) {
	t.Parallel()

	pool := &fakeLPPool{lender: wad(50), bucket: unitBucket(), withdrawable: wad(2)}
	cred := &fakeCreditor{}
	c := newCollector(pool, cred, model.RedeemQuote, false)
	c.HandleAward(model.LPAward{BucketIndex: 3000, LP: wad(10)})

	require.NoError(t, c.Collect(context.Background()))
	require.Equal(t, 0, pool.removed[0].Cmp(wad(2)))
	require.Equal(t, 0, cred.credits[0].Amount.Cmp(wad(2)))
	require.Equal(t, 0, c.Pending(3000).Cmp(wad(8)))
}

func TestCollectCollateralConsumesPricedLP(t *testing.T) {
	t.Parallel()

	bucket := unitBucket()
	bucket.ExchangeRate = wad(4)
	pool := &fakeLPPool{lender: wad(100), bucket: bucket}
	cred := &fakeCreditor{}
	c := newCollector(pool, cred, model.RedeemCollateral, false)
	c.HandleAward(model.LPAward{BucketIndex: 3000, LP: wad(10)})

	require.NoError(t, c.Collect(context.Background()))
	require.Equal(t, []string{"collateral"}, pool.kinds)
	require.Equal(t, collToken, cred.credits[0].Token)
	// 10 collateral * price 2 / rate 4 = 5 LP.
	require.Equal(t, 0, c.Pending(3000).Cmp(wad(5)))
}

func TestCollectBelowMinimumOrDryRun(t *testing.T) {
	t.Parallel()

	pool := &fakeLPPool{lender: wad(100), bucket: unitBucket()}
	cred := &fakeCreditor{}
	c := newCollector(pool, cred, model.RedeemQuote, true)
	c.HandleAward(model.LPAward{BucketIndex: 3000, LP: wad(10)})

	require.NoError(t, c.Collect(context.Background()))
	require.Empty(t, pool.removed)
	require.Empty(t, cred.credits)
	require.Equal(t, 0, c.Pending(3000).Cmp(wad(10)))

	c = NewLPCollector(LPCollectorParams{
		Pool:      pool,
		Queue:     &directQueue{},
		Tracker:   cred,
		MinAmount: wad(10),
		Logger:    quietLogger(),
	})
	c.HandleAward(model.LPAward{BucketIndex: 3000, LP: wad(10)})
	require.NoError(t, c.Collect(context.Background()))
	require.Empty(t, pool.removed)
}

func TestCollectFailureKeepsReward(t *testing.T) {
	t.Parallel()

	pool := &fakeLPPool{lender: wad(100), bucket: unitBucket(), removeErr: errors.New("execution reverted")}
	cred := &fakeCreditor{}
	c := newCollector(pool, cred, model.RedeemQuote, false)
	c.HandleAward(model.LPAward{BucketIndex: 3000, LP: wad(10)})

	require.NoError(t, c.Collect(context.Background()))
	require.Empty(t, cred.credits)
	require.Equal(t, 0, c.Pending(3000).Cmp(wad(10)))
}
