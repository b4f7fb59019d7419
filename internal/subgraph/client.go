// Package subgraph reads loan and auction snapshots from the pool indexer.
package subgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"PoolKeeper/internal/model"
	"PoolKeeper/internal/retry"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ErrGraphQL is returned when the indexer answers with GraphQL errors.
var ErrGraphQL = errors.New("subgraph: graphql error")

// Client queries a GraphQL indexer over HTTP.
type Client struct {
	URL    string
	Client *http.Client
	Retry  retry.Config
}

// NewClient creates a client for the indexer at url.
func NewClient(url string) *Client {
	return &Client{
		URL:    url,
		Client: &http.Client{Timeout: 30 * time.Second},
		Retry:  retry.DefaultConfig(),
	}
}

type loansResponse struct {
	Pool *struct {
		LUP decimal.Decimal `json:"lup"`
		HPB decimal.Decimal `json:"hpb"`
	} `json:"pool"`
	Loans []struct {
		Borrower       string          `json:"borrower"`
		ThresholdPrice decimal.Decimal `json:"thresholdPrice"`
	} `json:"loans"`
}

// GetLoans returns the pool's lup/hpb and its loans not already in liquidation.
func (c *Client) GetLoans(ctx context.Context, pool common.Address) (*model.LoansSnapshot, error) {
	id := poolID(pool)
	query := fmt.Sprintf(`query {
  pool(id: "%s") { lup hpb }
  loans(where: {inLiquidation: false, poolAddress: "%s"}) { borrower thresholdPrice }
}`, id, id)

	var resp loansResponse
	if err := c.query(ctx, query, &resp); err != nil {
		return nil, fmt.Errorf("get loans %s: %w", id, err)
	}
	if resp.Pool == nil {
		return nil, fmt.Errorf("get loans %s: pool not indexed", id)
	}

	snap := &model.LoansSnapshot{LUP: resp.Pool.LUP, HPB: resp.Pool.HPB}
	for _, l := range resp.Loans {
		if !common.IsHexAddress(l.Borrower) {
			return nil, fmt.Errorf("get loans %s: bad borrower %q", id, l.Borrower)
		}
		snap.Loans = append(snap.Loans, model.LoanCandidate{
			Borrower:       common.HexToAddress(l.Borrower),
			ThresholdPrice: l.ThresholdPrice,
		})
	}
	return snap, nil
}

type liquidationsResponse struct {
	Pool *struct {
		HPB                 decimal.Decimal `json:"hpb"`
		HPBIndex            int64           `json:"hpbIndex"`
		LiquidationAuctions []struct {
			Borrower            string          `json:"borrower"`
			CollateralRemaining decimal.Decimal `json:"collateralRemaining"`
			KickTime            decimal.Decimal `json:"kickTime"`
			ReferencePrice      decimal.Decimal `json:"referencePrice"`
		} `json:"liquidationAuctions"`
	} `json:"pool"`
}

// GetLiquidations returns the pool's hpb and active auctions holding more
// than minCollateral.
func (c *Client) GetLiquidations(ctx context.Context, pool common.Address, minCollateral decimal.Decimal) (*model.LiquidationsSnapshot, error) {
	id := poolID(pool)
	query := fmt.Sprintf(`query {
  pool(id: "%s") {
    hpb
    hpbIndex
    liquidationAuctions(where: {collateralRemaining_gt: "%s"}) {
      borrower
      collateralRemaining
      kickTime
      referencePrice
    }
  }
}`, id, minCollateral.String())

	var resp liquidationsResponse
	if err := c.query(ctx, query, &resp); err != nil {
		return nil, fmt.Errorf("get liquidations %s: %w", id, err)
	}
	if resp.Pool == nil {
		return nil, fmt.Errorf("get liquidations %s: pool not indexed", id)
	}

	snap := &model.LiquidationsSnapshot{HPB: resp.Pool.HPB, HPBIndex: resp.Pool.HPBIndex}
	for _, a := range resp.Pool.LiquidationAuctions {
		if !common.IsHexAddress(a.Borrower) {
			return nil, fmt.Errorf("get liquidations %s: bad borrower %q", id, a.Borrower)
		}
		snap.Auctions = append(snap.Auctions, model.LiquidationAuction{
			Borrower:            common.HexToAddress(a.Borrower),
			CollateralRemaining: a.CollateralRemaining,
			KickTime:            time.Unix(a.KickTime.IntPart(), 0).UTC(),
			ReferencePrice:      a.ReferencePrice,
		})
	}
	return snap, nil
}

type graphQLError struct {
	Message string `json:"message"`
}

func (c *Client) query(ctx context.Context, query string, out any) error {
	body, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return fmt.Errorf("marshal query: %w", err)
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []graphQLError  `json:"errors"`
	}
	err = retry.Do(ctx, c.Retry, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := c.Client.Do(req)
		if err != nil {
			return fmt.Errorf("post query: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return &retry.StatusError{Code: resp.StatusCode, Body: string(msg)}
		}
		return json.NewDecoder(resp.Body).Decode(&envelope)
	})
	if err != nil {
		return err
	}
	if len(envelope.Errors) > 0 {
		msgs := make([]string, len(envelope.Errors))
		for i, e := range envelope.Errors {
			msgs[i] = e.Message
		}
		return fmt.Errorf("%w: %s", ErrGraphQL, strings.Join(msgs, "; "))
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

func poolID(pool common.Address) string {
	return strings.ToLower(pool.Hex())
}
