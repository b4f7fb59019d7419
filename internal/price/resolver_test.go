package price

import (
	"context"
	"errors"
	"testing"

	"PoolKeeper/internal/config"
	"PoolKeeper/internal/model"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeQuoter struct {
	quote func(ctx context.Context, query string) (decimal.Decimal, error)
}

func (f fakeQuoter) Quote(ctx context.Context, query string) (decimal.Decimal, error) {
	return f.quote(ctx, query)
}

func (fakeQuoter) Name() string { return "fake" }

type fakePools struct {
	prices model.PoolPrices
	err    error
	calls  int
}

func (f *fakePools) PoolPrices(context.Context, common.Address) (model.PoolPrices, error) {
	f.calls++
	return f.prices, f.err
}

var testPool = common.HexToAddress("0x0a5e5B4fAAE30c5eF2997d6a882DE52c4ec01B6D")

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestResolveFixed(t *testing.T) {
	t.Parallel()

	r := NewResolver(nil, nil)
	got, err := r.Resolve(context.Background(), testPool, Origin{Source: config.SourceFixed, Value: dec("2000")})
	require.NoError(t, err)
	require.True(t, dec("2000").Equal(got))
}

func TestResolveInvert(t *testing.T) {
	t.Parallel()

	r := NewResolver(nil, nil)
	got, err := r.Resolve(context.Background(), testPool, Origin{Source: config.SourceFixed, Value: dec("4"), Invert: true})
	require.NoError(t, err)
	require.True(t, dec("0.25").Equal(got))

	got, err = r.Resolve(context.Background(), testPool, Origin{Source: config.SourceFixed, Value: decimal.Zero, Invert: true})
	require.NoError(t, err)
	require.True(t, got.IsZero())
}

func TestResolveExternalQuote(t *testing.T) {
	t.Parallel()

	var gotQuery string
	q := fakeQuoter{quote: func(_ context.Context, query string) (decimal.Decimal, error) {
		gotQuery = query
		return dec("1850.5"), nil
	}}
	r := NewResolver(q, nil)
	got, err := r.Resolve(context.Background(), testPool, Origin{Source: config.SourceCoinGecko, Query: "ids=ethereum&vs_currencies=usd"})
	require.NoError(t, err)
	require.Equal(t, "ids=ethereum&vs_currencies=usd", gotQuery)
	require.True(t, dec("1850.5").Equal(got))
}

func TestResolveExternalQuoteError(t *testing.T) {
	t.Parallel()

	boom := errors.New("rate limited")
	q := fakeQuoter{quote: func(context.Context, string) (decimal.Decimal, error) { return decimal.Zero, boom }}
	_, err := NewResolver(q, nil).Resolve(context.Background(), testPool, Origin{Source: config.SourceCoinGecko})
	require.ErrorIs(t, err, boom)

	_, err = NewResolver(nil, nil).Resolve(context.Background(), testPool, Origin{Source: config.SourceCoinGecko})
	require.ErrorIs(t, err, ErrPriceUnavailable)
}

func TestResolvePoolReference(t *testing.T) {
	t.Parallel()

	pools := &fakePools{prices: model.PoolPrices{
		HPB: dec("110"),
		HTP: dec("80"),
		LUP: dec("100"),
		LLB: decimal.NewNullDecimal(dec("70")),
	}}
	r := NewResolver(nil, pools)

	for ref, want := range map[string]string{
		config.ReferenceHPB: "110",
		config.ReferenceHTP: "80",
		config.ReferenceLUP: "100",
		config.ReferenceLLB: "70",
	} {
		got, err := r.Resolve(context.Background(), testPool, Origin{Source: config.SourcePool, Reference: ref})
		require.NoError(t, err, ref)
		require.True(t, dec(want).Equal(got), "%s: got %s", ref, got)
	}
}

func TestResolveMissingLLB(t *testing.T) {
	t.Parallel()

	r := NewResolver(nil, &fakePools{prices: model.PoolPrices{HPB: dec("1")}})
	_, err := r.Resolve(context.Background(), testPool, Origin{Source: config.SourcePool, Reference: config.ReferenceLLB})
	require.ErrorIs(t, err, ErrPriceUnavailable)
}

func TestResolveUnknownSource(t *testing.T) {
	t.Parallel()

	_, err := NewResolver(nil, nil).Resolve(context.Background(), testPool, Origin{Source: "chainlink"})
	require.ErrorIs(t, err, ErrUnknownSource)

	var se *UnknownSourceError
	require.True(t, errors.As(err, &se))
	require.Equal(t, "chainlink", se.Source)
}

func TestResolveUnknownReference(t *testing.T) {
	t.Parallel()

	pools := &fakePools{}
	_, err := NewResolver(nil, pools).Resolve(context.Background(), testPool, Origin{Source: config.SourcePool, Reference: "twap"})
	require.ErrorIs(t, err, ErrUnknownReference)

	var re *UnknownReferenceError
	require.True(t, errors.As(err, &re))
	require.Equal(t, "twap", re.Reference)
	require.Zero(t, pools.calls)
}

func TestOriginFromConfig(t *testing.T) {
	t.Parallel()

	o := OriginFromConfig(config.PriceConfig{Source: "fixed", Value: 1.25, Invert: true})
	require.Equal(t, "fixed", o.Source)
	require.True(t, dec("1.25").Equal(o.Value))
	require.True(t, o.Invert)
}
