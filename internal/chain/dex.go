package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"PoolKeeper/internal/calculator"
	"PoolKeeper/internal/model"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

var ErrNoSwapVenue = errors.New("chain: no swap venue configured")

const swapDeadline = 20 * time.Minute

// UniswapConfig locates the Uniswap V3 router and, optionally, its quoter.
type UniswapConfig struct {
	Router     common.Address
	Quoter     common.Address
	DefaultFee uint32
}

// Swapper performs reward swaps through Uniswap V3, or through 1inch when a
// request asks for the alternate route. Amounts arrive in 18 decimals.
type Swapper struct {
	signer  *Signer
	tokens  *ERC20
	uniswap UniswapConfig
	oneInch *OneInchClient
	now     func() time.Time
	log     *slog.Logger
}

func NewSwapper(signer *Signer, tokens *ERC20, uniswap UniswapConfig, oneInch *OneInchClient, logger *slog.Logger) *Swapper {
	if logger == nil {
		logger = slog.Default()
	}
	if uniswap.DefaultFee == 0 {
		uniswap.DefaultFee = 3000
	}
	return &Swapper{
		signer:  signer,
		tokens:  tokens,
		uniswap: uniswap,
		oneInch: oneInch,
		now:     time.Now,
		log:     logger,
	}
}

func (s *Swapper) Swap(ctx context.Context, req model.SwapRequest) error {
	decimals, err := s.tokens.Decimals(ctx, req.TokenIn)
	if err != nil {
		return err
	}
	amount := calculator.ChangeDecimals(req.AmountIn, calculator.WadDecimals, decimals)
	if amount.Sign() <= 0 {
		return fmt.Errorf("swap amount of %s rounds to zero", req.TokenIn.Hex())
	}
	if req.Recipient == (common.Address{}) {
		req.Recipient = s.signer.Address()
	}

	if req.UseAlternateRoute {
		if s.oneInch == nil {
			return fmt.Errorf("%w: 1inch", ErrNoSwapVenue)
		}
		return s.swapOneInch(ctx, req, amount)
	}
	if s.uniswap.Router == (common.Address{}) {
		return fmt.Errorf("%w: uniswap router", ErrNoSwapVenue)
	}
	return s.swapUniswap(ctx, req, amount)
}

type exactInputSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	Fee               *big.Int
	Recipient         common.Address
	Deadline          *big.Int
	AmountIn          *big.Int
	AmountOutMinimum  *big.Int
	SqrtPriceLimitX96 *big.Int
}

type quoteExactInputSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	AmountIn          *big.Int
	Fee               *big.Int
	SqrtPriceLimitX96 *big.Int
}

func (s *Swapper) swapUniswap(ctx context.Context, req model.SwapRequest, amount *big.Int) error {
	fee := req.FeeTier
	if fee == 0 {
		fee = s.uniswap.DefaultFee
	}
	minOut, err := s.minAmountOut(ctx, req, amount, fee)
	if err != nil {
		return err
	}

	if err := s.tokens.Approve(ctx, req.TokenIn, s.uniswap.Router, amount); err != nil {
		return fmt.Errorf("approve router: %w", err)
	}
	b := s.signer.backend
	router := bind.NewBoundContract(s.uniswap.Router, swapRouterABI, b, b, b)
	params := exactInputSingleParams{
		TokenIn:           req.TokenIn,
		TokenOut:          req.TokenOut,
		Fee:               new(big.Int).SetUint64(uint64(fee)),
		Recipient:         req.Recipient,
		Deadline:          big.NewInt(s.now().Add(swapDeadline).Unix()),
		AmountIn:          amount,
		AmountOutMinimum:  minOut,
		SqrtPriceLimitX96: new(big.Int),
	}
	receipt, err := s.signer.transact(ctx, router, "exactInputSingle", params)
	if err != nil {
		return err
	}
	s.log.Info("uniswap swap mined",
		"tokenIn", req.TokenIn.Hex(),
		"tokenOut", req.TokenOut.Hex(),
		"amountIn", amount.String(),
		"minOut", minOut.String(),
		"tx", receipt.TxHash.Hex())
	return nil
}

// minAmountOut quotes the swap and applies slippage percent. Without a
// quoter no minimum is enforced.
func (s *Swapper) minAmountOut(ctx context.Context, req model.SwapRequest, amount *big.Int, fee uint32) (*big.Int, error) {
	if s.uniswap.Quoter == (common.Address{}) {
		s.log.Warn("no uniswap quoter configured, swapping without a minimum output", "tokenIn", req.TokenIn.Hex())
		return new(big.Int), nil
	}
	b := s.signer.backend
	quoter := bind.NewBoundContract(s.uniswap.Quoter, quoterABI, b, b, b)
	out, err := call(ctx, quoter, "quoteExactInputSingle", quoteExactInputSingleParams{
		TokenIn:           req.TokenIn,
		TokenOut:          req.TokenOut,
		AmountIn:          amount,
		Fee:               new(big.Int).SetUint64(uint64(fee)),
		SqrtPriceLimitX96: new(big.Int),
	})
	if err != nil {
		return nil, fmt.Errorf("quote swap: %w", err)
	}
	quoted, err := bigAt(out, 0)
	if err != nil {
		return nil, err
	}
	return applySlippage(quoted, req.Slippage), nil
}

// applySlippage returns amount reduced by pct percent, in basis points.
func applySlippage(amount *big.Int, pct float64) *big.Int {
	if pct <= 0 {
		return new(big.Int).Set(amount)
	}
	if pct >= 100 {
		return new(big.Int)
	}
	bps := big.NewInt(10_000 - int64(pct*100))
	out := new(big.Int).Mul(amount, bps)
	return out.Quo(out, big.NewInt(10_000))
}

func (s *Swapper) swapOneInch(ctx context.Context, req model.SwapRequest, amount *big.Int) error {
	chainID := s.signer.ChainID()
	spender, err := s.oneInch.Spender(ctx, chainID)
	if err != nil {
		return err
	}
	if err := s.tokens.Approve(ctx, req.TokenIn, spender, amount); err != nil {
		return fmt.Errorf("approve 1inch: %w", err)
	}
	tx, err := s.oneInch.Swap(ctx, chainID, OneInchSwapParams{
		Src:      req.TokenIn,
		Dst:      req.TokenOut,
		Amount:   amount,
		From:     s.signer.Address(),
		Receiver: req.Recipient,
		Slippage: req.Slippage,
	})
	if err != nil {
		return err
	}
	receipt, err := s.signer.sendRaw(ctx, tx.To, tx.Data, tx.Value, tx.Gas)
	if err != nil {
		return err
	}
	s.log.Info("1inch swap mined",
		"tokenIn", req.TokenIn.Hex(),
		"tokenOut", req.TokenOut.Hex(),
		"amountIn", amount.String(),
		"tx", receipt.TxHash.Hex())
	return nil
}
