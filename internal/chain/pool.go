package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"PoolKeeper/internal/calculator"
	"PoolKeeper/internal/model"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// PoolInfoUtils reads derived pool state from the protocol's view contract.
type PoolInfoUtils struct {
	contract *bind.BoundContract
}

func NewPoolInfoUtils(backend Backend, address common.Address) *PoolInfoUtils {
	return &PoolInfoUtils{contract: bind.NewBoundContract(address, poolInfoUtilsABI, backend, backend, backend)}
}

// PoolPrices returns the pool's reference prices. LLB has no view and is left unset.
func (u *PoolInfoUtils) PoolPrices(ctx context.Context, pool common.Address) (model.PoolPrices, error) {
	out, err := call(ctx, u.contract, "poolPricesInfo", pool)
	if err != nil {
		return model.PoolPrices{}, err
	}
	v, err := bigsAt(out, 6)
	if err != nil {
		return model.PoolPrices{}, fmt.Errorf("poolPricesInfo: %w", err)
	}
	return model.PoolPrices{
		HPB:      calculator.WadToDecimal(v[0]),
		HPBIndex: v[1].Int64(),
		HTP:      calculator.WadToDecimal(v[2]),
		LUP:      calculator.WadToDecimal(v[4]),
		LUPIndex: v[5].Int64(),
	}, nil
}

// Pool is one lending pool as seen by the keeper signer.
type Pool struct {
	name       string
	address    common.Address
	quote      common.Address
	collateral common.Address

	signer   *Signer
	tokens   *ERC20
	utils    *PoolInfoUtils
	contract *bind.BoundContract
}

// NewPool reads the pool's token addresses.
func NewPool(ctx context.Context, signer *Signer, tokens *ERC20, utils *PoolInfoUtils, name string, address common.Address) (*Pool, error) {
	b := signer.backend
	p := &Pool{
		name:     name,
		address:  address,
		signer:   signer,
		tokens:   tokens,
		utils:    utils,
		contract: bind.NewBoundContract(address, poolABI, b, b, b),
	}
	var err error
	if p.quote, err = p.readAddress(ctx, "quoteTokenAddress"); err != nil {
		return nil, fmt.Errorf("pool %s: %w", name, err)
	}
	if p.collateral, err = p.readAddress(ctx, "collateralAddress"); err != nil {
		return nil, fmt.Errorf("pool %s: %w", name, err)
	}
	return p, nil
}

func (p *Pool) readAddress(ctx context.Context, method string) (common.Address, error) {
	out, err := call(ctx, p.contract, method)
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%s: unexpected type %T", method, out[0])
	}
	return addr, nil
}

func (p *Pool) Info() model.PoolInfo {
	return model.PoolInfo{Name: p.name, Address: p.address, Quote: p.quote, Collateral: p.collateral}
}

// GetLoan reads a borrower's debt and derives the neutral price and bond.
func (p *Pool) GetLoan(ctx context.Context, borrower common.Address) (model.LoanDetails, error) {
	out, err := call(ctx, p.utils.contract, "borrowerInfo", p.address, borrower)
	if err != nil {
		return model.LoanDetails{}, err
	}
	v, err := bigsAt(out, 4)
	if err != nil {
		return model.LoanDetails{}, fmt.Errorf("borrowerInfo: %w", err)
	}
	debt, collateral, t0Np, tp := v[0], v[1], v[2], v[3]

	out, err = call(ctx, p.contract, "inflatorInfo")
	if err != nil {
		return model.LoanDetails{}, err
	}
	inflator, err := bigAt(out, 0)
	if err != nil {
		return model.LoanDetails{}, fmt.Errorf("inflatorInfo: %w", err)
	}
	np, err := calculator.Wmul(t0Np, inflator)
	if err != nil {
		return model.LoanDetails{}, fmt.Errorf("neutral price: %w", err)
	}

	npDec, tpDec := calculator.WadToDecimal(np), calculator.WadToDecimal(tp)
	return model.LoanDetails{
		Debt:            debt,
		Collateral:      collateral,
		ThresholdPrice:  tpDec,
		NeutralPrice:    npDec,
		LiquidationBond: calculator.LiquidationBond(debt, npDec, tpDec),
	}, nil
}

// QuoteBalance returns owner's quote token balance scaled to 18 decimals.
func (p *Pool) QuoteBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	bal, err := p.tokens.BalanceOf(ctx, p.quote, owner)
	if err != nil {
		return nil, err
	}
	d, err := p.tokens.Decimals(ctx, p.quote)
	if err != nil {
		return nil, err
	}
	return calculator.ChangeDecimals(bal, d, calculator.WadDecimals), nil
}

// ApproveQuote sets the pool's quote allowance from an 18 decimal amount.
func (p *Pool) ApproveQuote(ctx context.Context, amount *big.Int) error {
	d, err := p.tokens.Decimals(ctx, p.quote)
	if err != nil {
		return err
	}
	return p.tokens.Approve(ctx, p.quote, p.address, calculator.ChangeDecimals(amount, calculator.WadDecimals, d))
}

func (p *Pool) Kick(ctx context.Context, borrower common.Address, limitIndex int64) error {
	_, err := p.signer.transact(ctx, p.contract, "kick", borrower, big.NewInt(limitIndex))
	return err
}

func (p *Pool) KickerInfo(ctx context.Context, kicker common.Address) (model.KickerInfo, error) {
	out, err := call(ctx, p.contract, "kickerInfo", kicker)
	if err != nil {
		return model.KickerInfo{}, err
	}
	v, err := bigsAt(out, 2)
	if err != nil {
		return model.KickerInfo{}, fmt.Errorf("kickerInfo: %w", err)
	}
	return model.KickerInfo{Claimable: v[0], Locked: v[1]}, nil
}

func (p *Pool) WithdrawBonds(ctx context.Context, recipient common.Address) error {
	_, err := p.signer.transact(ctx, p.contract, "withdrawBonds", recipient, calculator.MaxUint256())
	return err
}

func (p *Pool) AuctionStatus(ctx context.Context, borrower common.Address) (model.AuctionStatus, error) {
	out, err := call(ctx, p.utils.contract, "auctionStatus", p.address, borrower)
	if err != nil {
		return model.AuctionStatus{}, err
	}
	if len(out) < 6 {
		return model.AuctionStatus{}, fmt.Errorf("auctionStatus: %d outputs", len(out))
	}
	collateralized, ok := out[3].(bool)
	if !ok {
		return model.AuctionStatus{}, fmt.Errorf("auctionStatus: unexpected type %T", out[3])
	}
	var v [6]*big.Int
	for _, i := range []int{0, 1, 2, 4, 5} {
		if v[i], err = bigAt(out, i); err != nil {
			return model.AuctionStatus{}, fmt.Errorf("auctionStatus: %w", err)
		}
	}
	status := model.AuctionStatus{
		Collateral:       v[1],
		DebtToCover:      v[2],
		IsCollateralized: collateralized,
		Price:            calculator.WadToDecimal(v[4]),
		NeutralPrice:     calculator.WadToDecimal(v[5]),
	}
	if v[0].Sign() > 0 {
		status.KickTime = time.Unix(v[0].Int64(), 0)
	}
	return status, nil
}

// ArbTake takes the borrower's auction into bucketIndex without depositing quote.
func (p *Pool) ArbTake(ctx context.Context, borrower common.Address, bucketIndex int64) error {
	_, err := p.signer.transact(ctx, p.contract, "bucketTake", borrower, false, big.NewInt(bucketIndex))
	return err
}

// WithdrawLiquidity removes all of the signer's quote from bucketIndex, then
// any collateral the remaining LP still claims.
func (p *Pool) WithdrawLiquidity(ctx context.Context, bucketIndex int64) error {
	if err := p.RemoveQuote(ctx, calculator.MaxUint256(), bucketIndex); err != nil {
		return err
	}
	lp, err := p.LenderLP(ctx, bucketIndex, p.signer.Address())
	if err != nil {
		return err
	}
	if lp.Sign() == 0 {
		return nil
	}
	bucket, err := p.Bucket(ctx, bucketIndex)
	if err != nil {
		return err
	}
	if bucket.Collateral.Sign() == 0 {
		return nil
	}
	return p.RemoveCollateral(ctx, calculator.MaxUint256(), bucketIndex)
}

func (p *Pool) LenderLP(ctx context.Context, bucketIndex int64, lender common.Address) (*big.Int, error) {
	out, err := call(ctx, p.contract, "lenderInfo", big.NewInt(bucketIndex), lender)
	if err != nil {
		return nil, err
	}
	return bigAt(out, 0)
}

func (p *Pool) Bucket(ctx context.Context, bucketIndex int64) (model.BucketStatus, error) {
	out, err := call(ctx, p.utils.contract, "bucketInfo", p.address, big.NewInt(bucketIndex))
	if err != nil {
		return model.BucketStatus{}, err
	}
	v, err := bigsAt(out, 6)
	if err != nil {
		return model.BucketStatus{}, fmt.Errorf("bucketInfo: %w", err)
	}
	return model.BucketStatus{
		Price:        v[0],
		Deposit:      v[1],
		Collateral:   v[2],
		BucketLP:     v[3],
		ExchangeRate: v[5],
	}, nil
}

// WithdrawableQuote is the quote the lender can remove from a bucket. It is
// the lender's redeemable deposit, and at or above the LUP it is further
// limited to the deposit above the HTP that is not backing debt, so the
// removal cannot push the LUP below the HTP.
func (p *Pool) WithdrawableQuote(ctx context.Context, bucketIndex int64, lender common.Address) (*big.Int, error) {
	lp, err := p.LenderLP(ctx, bucketIndex, lender)
	if err != nil {
		return nil, err
	}
	redeemable, err := p.LPToQuote(ctx, lp, bucketIndex)
	if err != nil {
		return nil, err
	}
	bucket, err := p.Bucket(ctx, bucketIndex)
	if err != nil {
		return nil, err
	}
	redeemable = calculator.MinBig(redeemable, bucket.Deposit)

	out, err := call(ctx, p.utils.contract, "poolPricesInfo", p.address)
	if err != nil {
		return nil, err
	}
	prices, err := bigsAt(out, 6)
	if err != nil {
		return nil, fmt.Errorf("poolPricesInfo: %w", err)
	}
	htpIndex, lupIndex := prices[3], prices[5]
	if big.NewInt(bucketIndex).Cmp(lupIndex) > 0 {
		return redeemable, nil
	}

	out, err = call(ctx, p.contract, "debtInfo")
	if err != nil {
		return nil, err
	}
	debt, err := bigAt(out, 0)
	if err != nil {
		return nil, fmt.Errorf("debtInfo: %w", err)
	}
	out, err = call(ctx, p.contract, "depositUpToIndex", htpIndex)
	if err != nil {
		return nil, err
	}
	aboveHTP, err := bigAt(out, 0)
	if err != nil {
		return nil, fmt.Errorf("depositUpToIndex: %w", err)
	}
	spare := new(big.Int).Sub(aboveHTP, debt)
	if spare.Sign() <= 0 {
		return new(big.Int), nil
	}
	return calculator.MinBig(redeemable, spare), nil
}

func (p *Pool) LPToQuote(ctx context.Context, lp *big.Int, bucketIndex int64) (*big.Int, error) {
	out, err := call(ctx, p.utils.contract, "lpToQuoteTokens", p.address, lp, big.NewInt(bucketIndex))
	if err != nil {
		return nil, err
	}
	return bigAt(out, 0)
}

func (p *Pool) LPToCollateral(ctx context.Context, lp *big.Int, bucketIndex int64) (*big.Int, error) {
	out, err := call(ctx, p.utils.contract, "lpToCollateral", p.address, lp, big.NewInt(bucketIndex))
	if err != nil {
		return nil, err
	}
	return bigAt(out, 0)
}

func (p *Pool) RemoveQuote(ctx context.Context, amount *big.Int, bucketIndex int64) error {
	_, err := p.signer.transact(ctx, p.contract, "removeQuoteToken", amount, big.NewInt(bucketIndex))
	return err
}

func (p *Pool) RemoveCollateral(ctx context.Context, amount *big.Int, bucketIndex int64) error {
	_, err := p.signer.transact(ctx, p.contract, "removeCollateral", amount, big.NewInt(bucketIndex))
	return err
}
