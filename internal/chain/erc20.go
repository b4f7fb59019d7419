package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// ERC20 reads and moves tokens held by the signer. Decimals are cached per token.
type ERC20 struct {
	signer *Signer

	mu       sync.Mutex
	decimals map[common.Address]uint8
}

func NewERC20(signer *Signer) *ERC20 {
	return &ERC20{signer: signer, decimals: make(map[common.Address]uint8)}
}

func (e *ERC20) contract(token common.Address) *bind.BoundContract {
	b := e.signer.backend
	return bind.NewBoundContract(token, erc20ABI, b, b, b)
}

func (e *ERC20) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	e.mu.Lock()
	d, ok := e.decimals[token]
	e.mu.Unlock()
	if ok {
		return d, nil
	}

	out, err := call(ctx, e.contract(token), "decimals")
	if err != nil {
		return 0, fmt.Errorf("token %s: %w", token.Hex(), err)
	}
	d, ok = out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("token %s decimals: unexpected type %T", token.Hex(), out[0])
	}

	e.mu.Lock()
	e.decimals[token] = d
	e.mu.Unlock()
	return d, nil
}

func (e *ERC20) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	out, err := call(ctx, e.contract(token), "balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("token %s: %w", token.Hex(), err)
	}
	return bigAt(out, 0)
}

func (e *ERC20) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	out, err := call(ctx, e.contract(token), "allowance", owner, spender)
	if err != nil {
		return nil, fmt.Errorf("token %s: %w", token.Hex(), err)
	}
	return bigAt(out, 0)
}

// Approve sets the spender allowance and waits for it to be mined.
func (e *ERC20) Approve(ctx context.Context, token, spender common.Address, amount *big.Int) error {
	_, err := e.signer.transact(ctx, e.contract(token), "approve", spender, amount)
	return err
}

// Transfer sends amount, in the token's own decimals, and waits for it to be mined.
func (e *ERC20) Transfer(ctx context.Context, token, to common.Address, amount *big.Int) error {
	_, err := e.signer.transact(ctx, e.contract(token), "transfer", to, amount)
	return err
}
