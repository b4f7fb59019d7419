package subgraph

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"PoolKeeper/internal/retry"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pool = common.HexToAddress("0x0a5e5B4fAAE30c5eF2997d6a882DE52c4ec01B6D")

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL)
	c.Retry = retry.Config{MaxAttempts: 3, BaseBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
	return c
}

func readQuery(t *testing.T, r *http.Request) string {
	var body struct {
		Query string `json:"query"`
	}
	assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	return body.Query
}

func TestGetLoans(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := readQuery(t, r)
		assert.Contains(t, q, `pool(id: "0x0a5e5b4faae30c5ef2997d6a882de52c4ec01b6d")`)
		assert.Contains(t, q, "inLiquidation: false")
		_, _ = w.Write([]byte(`{"data":{
			"pool":{"lup":"100.5","hpb":"120"},
			"loans":[
				{"borrower":"0x1111111111111111111111111111111111111111","thresholdPrice":"90"},
				{"borrower":"0x2222222222222222222222222222222222222222","thresholdPrice":130.25}
			]}}`))
	})

	snap, err := c.GetLoans(context.Background(), pool)
	require.NoError(t, err)
	require.Equal(t, "100.5", snap.LUP.String())
	require.Equal(t, "120", snap.HPB.String())
	require.Len(t, snap.Loans, 2)
	require.Equal(t, common.HexToAddress("0x2222222222222222222222222222222222222222"), snap.Loans[1].Borrower)
	require.Equal(t, "130.25", snap.Loans[1].ThresholdPrice.String())
}

func TestGetLiquidations(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, readQuery(t, r), `collateralRemaining_gt: "0.5"`)
		_, _ = w.Write([]byte(`{"data":{"pool":{
			"hpb":"1500","hpbIndex":3696,
			"liquidationAuctions":[{
				"borrower":"0x3333333333333333333333333333333333333333",
				"collateralRemaining":"2.5",
				"kickTime":"1700000000",
				"referencePrice":"1400"}]}}}`))
	})

	snap, err := c.GetLiquidations(context.Background(), pool, decimal.RequireFromString("0.5"))
	require.NoError(t, err)
	require.Equal(t, int64(3696), snap.HPBIndex)
	require.Len(t, snap.Auctions, 1)
	a := snap.Auctions[0]
	require.Equal(t, int64(1700000000), a.KickTime.Unix())
	require.Equal(t, "2.5", a.CollateralRemaining.String())
}

func TestGraphQLErrors(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"errors":[{"message":"Type Query has no field loans"}]}`))
	})
	_, err := c.GetLoans(context.Background(), pool)
	require.ErrorIs(t, err, ErrGraphQL)
	require.ErrorContains(t, err, "no field loans")
}

func TestPoolNotIndexed(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"pool":null,"loans":[]}}`))
	})
	_, err := c.GetLoans(context.Background(), pool)
	require.ErrorContains(t, err, "pool not indexed")
}

func TestRetriesGatewayErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"data":{"pool":{"lup":"1","hpb":"2"},"loans":[]}}`))
	})
	snap, err := c.GetLoans(context.Background(), pool)
	require.NoError(t, err)
	require.Empty(t, snap.Loans)
	require.Equal(t, int32(3), calls.Load())
}
