package oracle

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// maxResponseBytes caps how much of a price response is read.
const maxResponseBytes = 1 << 16

// httpQuote is the JSON document served by a price endpoint, e.g.
// {"price":"1834.12","updatedAt":"2024-05-01T10:00:00Z"}.
type httpQuote struct {
	Price     decimal.Decimal `json:"price"`
	UpdatedAt time.Time       `json:"updatedAt"`
	Round     int64           `json:"round"`
}

// HTTPFeed reads a decimal USD price from a JSON endpoint. Requests are
// throttled by a token bucket so a tight poll loop cannot hammer the
// upstream.
type HTTPFeed struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPFeed creates a feed for url. A non-positive requestsPerSecond
// disables throttling.
func NewHTTPFeed(url string, client *http.Client, requestsPerSecond float64) *HTTPFeed {
	if client == nil {
		client = http.DefaultClient
	}

	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}

	return &HTTPFeed{
		url:     url,
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
	}
}

func (f *HTTPFeed) Source() string {
	return fmt.Sprintf("http:%s", f.url)
}

func (f *HTTPFeed) LatestRoundData(ctx context.Context) (RoundData, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return RoundData{}, errors.Wrap(err, "rate limiter")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return RoundData{}, errors.Wrap(err, "failed to build price request")
	}

	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return RoundData{}, errors.Wrap(err, "price request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return RoundData{}, fmt.Errorf("price endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return RoundData{}, errors.Wrap(err, "failed to read price response")
	}

	var quote httpQuote
	if err := json.Unmarshal(body, &quote); err != nil {
		return RoundData{}, fmt.Errorf("%w: failed to decode price response: %s", ErrInvalidQuote, err)
	}

	// without a timestamp the quote cannot be checked against MaxAge
	if quote.UpdatedAt.IsZero() {
		return RoundData{}, fmt.Errorf("%w: price response has no updatedAt", ErrInvalidQuote)
	}

	return RoundData{
		RoundID:   big.NewInt(quote.Round),
		Answer:    quote.Price.Shift(int32(USDDecimals)).Truncate(0).BigInt(),
		Decimals:  USDDecimals,
		UpdatedAt: quote.UpdatedAt,
	}, nil
}
