package price

import (
	"context"
	"fmt"

	"PoolKeeper/internal/config"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Resolver turns a price origin into a market price.
type Resolver struct {
	Quoter Quoter
	Pools  PoolPricesReader
}

// NewResolver creates a Resolver. Either collaborator may be nil if no pool uses it.
func NewResolver(quoter Quoter, pools PoolPricesReader) *Resolver {
	return &Resolver{Quoter: quoter, Pools: pools}
}

// Resolve returns the market price for pool. Inverting a zero price yields zero.
func (r *Resolver) Resolve(ctx context.Context, pool common.Address, origin Origin) (decimal.Decimal, error) {
	var (
		p   decimal.Decimal
		err error
	)
	switch origin.Source {
	case config.SourceFixed:
		p = origin.Value
	case config.SourceCoinGecko:
		if r.Quoter == nil {
			return decimal.Zero, fmt.Errorf("%w: no external quote source configured", ErrPriceUnavailable)
		}
		p, err = r.Quoter.Quote(ctx, origin.Query)
		if err != nil {
			return decimal.Zero, fmt.Errorf("%s quote %q: %w", r.Quoter.Name(), origin.Query, err)
		}
	case config.SourcePool:
		p, err = r.poolPrice(ctx, pool, origin.Reference)
		if err != nil {
			return decimal.Zero, err
		}
	default:
		return decimal.Zero, &UnknownSourceError{Source: origin.Source}
	}

	if origin.Invert {
		if p.IsZero() {
			return decimal.Zero, nil
		}
		return decimal.NewFromInt(1).Div(p), nil
	}
	return p, nil
}

func (r *Resolver) poolPrice(ctx context.Context, pool common.Address, reference string) (decimal.Decimal, error) {
	switch reference {
	case config.ReferenceHPB, config.ReferenceHTP, config.ReferenceLUP, config.ReferenceLLB:
	default:
		return decimal.Zero, &UnknownReferenceError{Reference: reference}
	}
	if r.Pools == nil {
		return decimal.Zero, fmt.Errorf("%w: no pool reader configured", ErrPriceUnavailable)
	}
	prices, err := r.Pools.PoolPrices(ctx, pool)
	if err != nil {
		return decimal.Zero, fmt.Errorf("read pool prices %s: %w", pool.Hex(), err)
	}
	switch reference {
	case config.ReferenceHPB:
		return prices.HPB, nil
	case config.ReferenceHTP:
		return prices.HTP, nil
	case config.ReferenceLUP:
		return prices.LUP, nil
	default:
		if !prices.LLB.Valid {
			return decimal.Zero, fmt.Errorf("%w for %s - %s", ErrPriceUnavailable, pool.Hex(), reference)
		}
		return prices.LLB.Decimal, nil
	}
}
