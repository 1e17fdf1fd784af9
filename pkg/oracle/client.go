package oracle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/big"
	"time"

	"github.com/smartcontractkit/automation-prize-payout/pkg/prommetrics"
	"github.com/smartcontractkit/automation-prize-payout/pkg/telemetry"
)

// USDDecimals is the fixed-point precision of USD amounts, matching the
// common 8 decimal convention of USD price feeds.
const USDDecimals uint8 = 8

const DefaultTimeout = 10 * time.Second

var (
	ErrInvalidQuote    = fmt.Errorf("invalid price quote")
	ErrStaleQuote      = fmt.Errorf("stale price quote")
	ErrFeedUnavailable = fmt.Errorf("price feed unavailable")
)

// RoundData is a raw reading from a price feed.
type RoundData struct {
	RoundID   *big.Int
	Answer    *big.Int
	Decimals  uint8
	UpdatedAt time.Time
}

// Feed is a single external source of price answers.
type Feed interface {
	LatestRoundData(context.Context) (RoundData, error)
	// Source names the feed in logs and quotes.
	Source() string
}

// PriceQuote is a validated price in USD fixed-point with Decimals
// decimals.
type PriceQuote struct {
	Price     *big.Int  `json:"price"`
	Decimals  uint8     `json:"decimals"`
	RoundID   *big.Int  `json:"roundId"`
	UpdatedAt time.Time `json:"updatedAt"`
	Source    string    `json:"source"`
}

type ClientConfig struct {
	// Timeout bounds a single feed read. Zero uses DefaultTimeout.
	Timeout time.Duration
	// MaxAge rejects answers older than this. Zero disables the check.
	MaxAge time.Duration
	// Now is the clock used for the staleness check.
	Now func() time.Time
}

// Client reads and validates the current price from a Feed. Each call is a
// single read with no retry.
type Client struct {
	feed    Feed
	timeout time.Duration
	maxAge  time.Duration
	now     func() time.Time
	log     *log.Logger
}

func NewClient(feed Feed, conf ClientConfig, logger *log.Logger) *Client {
	if conf.Timeout <= 0 {
		conf.Timeout = DefaultTimeout
	}

	if conf.Now == nil {
		conf.Now = time.Now
	}

	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	return &Client{
		feed:    feed,
		timeout: conf.Timeout,
		maxAge:  conf.MaxAge,
		now:     conf.Now,
		log:     telemetry.WrapLogger(logger, "oracle"),
	}
}

// CurrentPrice returns the latest feed answer scaled to USDDecimals.
// Non-positive answers fail with ErrInvalidQuote, answers older than the
// configured max age with ErrStaleQuote and read failures with
// ErrFeedUnavailable.
func (c *Client) CurrentPrice(ctx context.Context) (PriceQuote, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	round, err := c.feed.LatestRoundData(ctx)
	if err != nil {
		if errors.Is(err, ErrInvalidQuote) {
			return c.fail("invalid", err)
		}
		return c.fail("unavailable", fmt.Errorf("%w: %s: %s", ErrFeedUnavailable, c.feed.Source(), err))
	}

	if round.Answer == nil || round.Answer.Sign() <= 0 {
		return c.fail("invalid", fmt.Errorf("%w: non-positive answer %v from %s", ErrInvalidQuote, round.Answer, c.feed.Source()))
	}

	if c.maxAge > 0 {
		if age := c.now().Sub(round.UpdatedAt); age > c.maxAge {
			return c.fail("stale", fmt.Errorf("%w: answer from %s is %s old", ErrStaleQuote, c.feed.Source(), age.Round(time.Second)))
		}
	}

	price := Rescale(round.Answer, round.Decimals, USDDecimals)
	if price.Sign() <= 0 {
		return c.fail("invalid", fmt.Errorf("%w: answer %s rounds to zero at %d decimals", ErrInvalidQuote, round.Answer, USDDecimals))
	}

	prommetrics.SetOraclePrice(price, USDDecimals)

	return PriceQuote{
		Price:     price,
		Decimals:  USDDecimals,
		RoundID:   round.RoundID,
		UpdatedAt: round.UpdatedAt,
		Source:    c.feed.Source(),
	}, nil
}

func (c *Client) fail(reason string, err error) (PriceQuote, error) {
	prommetrics.OracleReadErrors.WithLabelValues(reason).Inc()
	c.log.Printf("price read failed: %s", err)

	return PriceQuote{}, err
}

// Rescale converts a fixed-point value between decimal precisions,
// truncating when precision is reduced.
func Rescale(v *big.Int, from, to uint8) *big.Int {
	out := new(big.Int).Set(v)

	switch {
	case from < to:
		factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(to-from)), nil)
		out.Mul(out, factor)
	case from > to:
		factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(from-to)), nil)
		out.Quo(out, factor)
	}

	return out
}
