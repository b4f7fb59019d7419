package price

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"PoolKeeper/internal/retry"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// CoinGeckoSource quotes prices from the CoinGecko simple price API.
type CoinGeckoSource struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
	Limiter *rate.Limiter
	Retry   retry.Config
}

// NewCoinGeckoSource creates a source limited to requestsPerMinute calls.
func NewCoinGeckoSource(baseURL, apiKey string, requestsPerMinute int) *CoinGeckoSource {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 25
	}
	return &CoinGeckoSource{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: 30 * time.Second},
		Limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1),
		Retry:   retry.DefaultConfig(),
	}
}

func (s *CoinGeckoSource) Name() string { return "coingecko" }

// Quote resolves a query such as "ids=ethereum&vs_currencies=usd" to the
// price of the first id in the first currency.
func (s *CoinGeckoSource) Quote(ctx context.Context, query string) (decimal.Decimal, error) {
	values, err := url.ParseQuery(query)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse query: %w", err)
	}
	id := firstItem(values.Get("ids"))
	currency := firstItem(values.Get("vs_currencies"))
	if id == "" || currency == "" {
		return decimal.Zero, fmt.Errorf("query %q needs ids and vs_currencies", query)
	}

	var result map[string]map[string]decimal.Decimal
	err = retry.Do(ctx, s.Retry, func(ctx context.Context) error {
		if err := s.Limiter.Wait(ctx); err != nil {
			return err
		}
		return s.get(ctx, "/simple/price?"+values.Encode(), &result)
	})
	if err != nil {
		return decimal.Zero, err
	}

	p, ok := result[id][currency]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: no %s/%s in response", ErrPriceUnavailable, id, currency)
	}
	return p, nil
}

func (s *CoinGeckoSource) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if s.APIKey != "" {
		if strings.Contains(s.BaseURL, "pro-api") {
			req.Header.Set("x-cg-pro-api-key", s.APIKey)
		} else {
			req.Header.Set("x-cg-demo-api-key", s.APIKey)
		}
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch quote: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &retry.StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode quote: %w", err)
	}
	return nil
}

func firstItem(list string) string {
	item, _, _ := strings.Cut(list, ",")
	return strings.ToLower(strings.TrimSpace(item))
}
