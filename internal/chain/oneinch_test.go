package chain

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"PoolKeeper/internal/retry"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOneInchSwap(t *testing.T) {
	t.Parallel()

	router := common.HexToAddress("0x111111125421cA6dc452d289314280a0f8842A65")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/43114/approve/spender":
			_, _ = w.Write([]byte(`{"address":"` + router.Hex() + `"}`))
		case "/43114/swap":
			assert.Equal(t, "1000", r.URL.Query().Get("amount"))
			assert.Equal(t, "0.5", r.URL.Query().Get("slippage"))
			_, _ = w.Write([]byte(`{"dstAmount":"990","tx":{"to":"` + router.Hex() + `","data":"0x12aa3caf","value":"0","gas":100000}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewOneInchClient(srv.URL, "secret")
	spender, err := c.Spender(context.Background(), 43114)
	require.NoError(t, err)
	require.Equal(t, router, spender)

	tx, err := c.Swap(context.Background(), 43114, OneInchSwapParams{
		Src:      common.HexToAddress("0x01"),
		Dst:      common.HexToAddress("0x02"),
		Amount:   big.NewInt(1000),
		From:     keeperAddr,
		Slippage: 0.5,
	})
	require.NoError(t, err)
	require.Equal(t, router, tx.To)
	require.Equal(t, []byte{0x12, 0xaa, 0x3c, 0xaf}, tx.Data)
	require.Equal(t, uint64(120_000), tx.Gas)
	require.Zero(t, tx.Value.Sign())
}

func TestOneInchRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"address":"0x111111125421cA6dc452d289314280a0f8842A65"}`))
	}))
	defer srv.Close()

	c := NewOneInchClient(srv.URL, "")
	c.Retry = retry.Config{MaxAttempts: 3, BaseBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
	_, err := c.Spender(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, int32(2), calls.Load())
}
