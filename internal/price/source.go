package price

import (
	"context"
	"errors"
	"fmt"

	"PoolKeeper/internal/config"
	"PoolKeeper/internal/model"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

var (
	ErrUnknownSource    = errors.New("price: unknown price source")
	ErrUnknownReference = errors.New("price: unknown pool price reference")
	ErrPriceUnavailable = errors.New("price: price unavailable")
)

// UnknownSourceError reports a price origin whose source is not recognised.
type UnknownSourceError struct {
	Source string
}

func (e *UnknownSourceError) Error() string {
	return fmt.Sprintf("unknown price provider: %q", e.Source)
}

func (e *UnknownSourceError) Unwrap() error { return ErrUnknownSource }

// UnknownReferenceError reports a pool price reference that is not recognised.
type UnknownReferenceError struct {
	Reference string
}

func (e *UnknownReferenceError) Error() string {
	return fmt.Sprintf("unknown pool price reference: %q", e.Reference)
}

func (e *UnknownReferenceError) Unwrap() error { return ErrUnknownReference }

// Origin describes where a pool's market price comes from.
type Origin struct {
	Source    string
	Value     decimal.Decimal
	Query     string
	Reference string
	Invert    bool
}

// OriginFromConfig converts a pool price config block.
func OriginFromConfig(c config.PriceConfig) Origin {
	return Origin{
		Source:    c.Source,
		Value:     decimal.NewFromFloat(c.Value),
		Query:     c.Query,
		Reference: c.Reference,
		Invert:    c.Invert,
	}
}

// Quoter looks up an external market quote.
type Quoter interface {
	Quote(ctx context.Context, query string) (decimal.Decimal, error)
	Name() string
}

// PoolPricesReader reads a pool's internal reference prices.
type PoolPricesReader interface {
	PoolPrices(ctx context.Context, pool common.Address) (model.PoolPrices, error)
}
