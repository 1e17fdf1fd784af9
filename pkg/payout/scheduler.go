package payout

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/smartcontractkit/automation-prize-payout/pkg/oracle"
	"github.com/smartcontractkit/automation-prize-payout/pkg/prommetrics"
)

// UpkeepResult describes the outcome of a RunUpkeep call that did not fail.
// Performed is false when the trigger interval had not yet elapsed.
type UpkeepResult struct {
	Performed bool
	Elapsed   time.Duration
	Amount    *big.Int
	Quote     oracle.PriceQuote
	Event     WinnerPaid
}

// IsDue reports whether more than the check interval has elapsed since the
// last trigger. It fails with ErrNoFunds while the treasury is empty.
func (c *Contract) IsDue(now time.Time) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Balance.Sign() == 0 {
		return false, ErrNoFunds
	}

	return now.Sub(c.state.LastTriggerTime) > c.intervals.Check, nil
}

// RunUpkeep pays the winner when more than the trigger interval has
// elapsed since the last trigger. Before that it is a no-op and returns a
// result with Performed unset. The cooldown advance and the transfer
// succeed or fail together.
func (c *Contract) RunUpkeep(ctx context.Context, caller common.Address, now time.Time) (UpkeepResult, error) {
	result, err := c.runUpkeep(ctx, caller, now)

	if result.Performed {
		prommetrics.RecordPayout(result.Amount)

		// sent outside the lock so a slow subscriber cannot stall other callers
		c.winnerPaid.Send(result.Event)
	}

	if err != nil {
		prommetrics.RecordUpkeepFailure(failureReason(err))
		return result, err
	}

	if !result.Performed {
		prommetrics.UpkeepNoOps.Inc()
	}

	return result, nil
}

func (c *Contract) runUpkeep(ctx context.Context, caller common.Address, now time.Time) (UpkeepResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireAuthorizedTrigger(caller); err != nil {
		return UpkeepResult{}, err
	}

	if err := c.whenNotPaused(); err != nil {
		return UpkeepResult{}, err
	}

	elapsed := now.Sub(c.state.LastTriggerTime)
	if elapsed <= c.intervals.Trigger {
		return UpkeepResult{Elapsed: elapsed}, nil
	}

	quote, err := c.oracle.CurrentPrice(ctx)
	if err != nil {
		return UpkeepResult{Elapsed: elapsed}, err
	}

	amount, err := PayoutAmount(c.state.PrizeUSD, quote.Price)
	if err != nil {
		return UpkeepResult{Elapsed: elapsed, Quote: quote}, err
	}

	remaining, err := c.transfer(ctx, c.state.Winner, amount)
	if err != nil {
		c.log.Printf("payout of %s to %s failed: %s", FormatNative(amount), c.state.Winner, err)
		return UpkeepResult{Elapsed: elapsed, Quote: quote, Amount: amount}, err
	}

	next := c.state.clone()
	next.LastTriggerTime = now
	next.Balance = remaining

	result := UpkeepResult{
		Performed: true,
		Elapsed:   elapsed,
		Amount:    amount,
		Quote:     quote,
		Event: WinnerPaid{
			ID:        uuid.New(),
			Winner:    next.Winner,
			Amount:    copyInt(amount),
			Price:     copyInt(quote.Price),
			Timestamp: now,
		},
	}

	c.log.Printf("paid %s to %s at price %s USD", FormatNative(amount), next.Winner, FormatUSD(quote.Price))

	// the transfer already happened; a store failure is reported but the
	// payout still counts as performed
	if err := c.settle(next); err != nil {
		return result, err
	}

	return result, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrPaused):
		return "paused"
	case errors.Is(err, ErrTransferFailed):
		return "transfer"
	case errors.Is(err, ErrPersist):
		return "persist"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid"
	case errors.Is(err, oracle.ErrInvalidQuote), errors.Is(err, oracle.ErrStaleQuote), errors.Is(err, oracle.ErrFeedUnavailable):
		return "oracle"
	default:
		return "other"
	}
}
