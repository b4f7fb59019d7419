// Package chain talks to the lending protocol, its tokens and swap venues over
// an Ethereum JSON-RPC endpoint.
package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrReverted is returned when a mined transaction has a failed status.
var ErrReverted = errors.New("chain: transaction reverted")

// ReceiptTimeout bounds how long a sent transaction may take to be mined.
const ReceiptTimeout = 3 * time.Minute

// Backend is the RPC surface used by this package. *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
}

// Signer owns the keeper key and sends its transactions.
type Signer struct {
	backend Backend
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
}

// NewSigner binds key to backend, reading the chain id once.
func NewSigner(ctx context.Context, backend Backend, key *ecdsa.PrivateKey) (*Signer, error) {
	if key == nil {
		return nil, errors.New("chain: signer key required")
	}
	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("read chain id: %w", err)
	}
	return &Signer{
		backend: backend,
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: chainID,
	}, nil
}

func (s *Signer) Address() common.Address { return s.address }

func (s *Signer) ChainID() int64 { return s.chainID.Int64() }

func (s *Signer) Backend() Backend { return s.backend }

// TransactionCount returns the pending nonce, which advances once the node
// has accepted a transaction from this signer.
func (s *Signer) TransactionCount(ctx context.Context) (uint64, error) {
	return s.backend.PendingNonceAt(ctx, s.address)
}

func (s *Signer) transactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(s.key, s.chainID)
	if err != nil {
		return nil, err
	}
	opts.Context = ctx
	return opts, nil
}

// transact sends method on contract and waits for a successful receipt.
func (s *Signer) transact(ctx context.Context, contract *bind.BoundContract, method string, args ...interface{}) (*types.Receipt, error) {
	opts, err := s.transactOpts(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := contract.Transact(opts, method, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return s.wait(ctx, tx, method)
}

// sendRaw signs and sends a prebuilt call, used for routes that hand back calldata.
func (s *Signer) sendRaw(ctx context.Context, to common.Address, data []byte, value *big.Int, gas uint64) (*types.Receipt, error) {
	nonce, err := s.backend.PendingNonceAt(ctx, s.address)
	if err != nil {
		return nil, fmt.Errorf("pending nonce: %w", err)
	}
	gasPrice, err := s.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas price: %w", err)
	}
	if value == nil {
		value = new(big.Int)
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(s.chainID), s.key)
	if err != nil {
		return nil, err
	}
	if err := s.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("send transaction: %w", err)
	}
	return s.wait(ctx, signed, "raw call")
}

func (s *Signer) wait(ctx context.Context, tx *types.Transaction, what string) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, ReceiptTimeout)
	defer cancel()
	receipt, err := bind.WaitMined(waitCtx, s.backend, tx)
	if err != nil {
		return nil, fmt.Errorf("%s %s: wait mined: %w", what, tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%s %s: %w", what, tx.Hash().Hex(), ErrReverted)
	}
	return receipt, nil
}

// call runs a read-only method and returns its unpacked outputs.
func call(ctx context.Context, contract *bind.BoundContract, method string, args ...interface{}) ([]interface{}, error) {
	var out []interface{}
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return out, nil
}

func bigAt(out []interface{}, i int) (*big.Int, error) {
	if i >= len(out) {
		return nil, fmt.Errorf("output %d missing", i)
	}
	v, ok := out[i].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("output %d: unexpected type %T", i, out[i])
	}
	return v, nil
}

func bigsAt(out []interface{}, n int) ([]*big.Int, error) {
	vals := make([]*big.Int, n)
	for i := range vals {
		v, err := bigAt(out, i)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}
