package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"PoolKeeper/internal/retry"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// OneInchClient requests swap calldata from the 1inch aggregation API.
type OneInchClient struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
	Retry   retry.Config
}

func NewOneInchClient(baseURL, apiKey string) *OneInchClient {
	return &OneInchClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: 30 * time.Second},
		Retry:   retry.DefaultConfig(),
	}
}

type OneInchSwapParams struct {
	Src      common.Address
	Dst      common.Address
	Amount   *big.Int
	From     common.Address
	Receiver common.Address
	// Slippage is a percentage, 1 meaning 1%.
	Slippage float64
}

// OneInchTx is a ready-to-sign call returned by the swap endpoint.
type OneInchTx struct {
	To    common.Address
	Data  []byte
	Value *big.Int
	Gas   uint64
}

type oneInchSwapResponse struct {
	Tx struct {
		To    common.Address `json:"to"`
		Data  hexutil.Bytes  `json:"data"`
		Value string         `json:"value"`
		Gas   uint64         `json:"gas"`
	} `json:"tx"`
}

// Spender returns the router address that must be approved.
func (c *OneInchClient) Spender(ctx context.Context, chainID int64) (common.Address, error) {
	var resp struct {
		Address common.Address `json:"address"`
	}
	err := retry.Do(ctx, c.Retry, func(ctx context.Context) error {
		return c.get(ctx, fmt.Sprintf("/%d/approve/spender", chainID), nil, &resp)
	})
	if err != nil {
		return common.Address{}, fmt.Errorf("1inch spender: %w", err)
	}
	return resp.Address, nil
}

func (c *OneInchClient) Swap(ctx context.Context, chainID int64, p OneInchSwapParams) (*OneInchTx, error) {
	slippage := p.Slippage
	if slippage <= 0 {
		slippage = 1
	}
	q := url.Values{}
	q.Set("src", p.Src.Hex())
	q.Set("dst", p.Dst.Hex())
	q.Set("amount", p.Amount.String())
	q.Set("from", p.From.Hex())
	q.Set("origin", p.From.Hex())
	if p.Receiver != (common.Address{}) {
		q.Set("receiver", p.Receiver.Hex())
	}
	q.Set("slippage", strconv.FormatFloat(slippage, 'f', -1, 64))
	q.Set("disableEstimate", "false")

	var resp oneInchSwapResponse
	err := retry.Do(ctx, c.Retry, func(ctx context.Context) error {
		return c.get(ctx, fmt.Sprintf("/%d/swap", chainID), q, &resp)
	})
	if err != nil {
		return nil, fmt.Errorf("1inch swap: %w", err)
	}
	if len(resp.Tx.Data) == 0 {
		return nil, fmt.Errorf("1inch swap: empty calldata")
	}
	value := new(big.Int)
	if resp.Tx.Value != "" {
		if _, ok := value.SetString(resp.Tx.Value, 10); !ok {
			return nil, fmt.Errorf("1inch swap: bad value %q", resp.Tx.Value)
		}
	}
	gas := resp.Tx.Gas
	if gas == 0 {
		gas = 500_000
	}
	// Estimates from the API run close; leave headroom.
	gas = gas * 12 / 10
	return &OneInchTx{To: resp.Tx.To, Data: resp.Tx.Data, Value: value, Gas: gas}, nil
}

func (c *OneInchClient) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &retry.StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
