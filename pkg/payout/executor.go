package payout

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// WinnerPaid is emitted once per successful payout.
type WinnerPaid struct {
	ID        uuid.UUID      `json:"id"`
	Winner    common.Address `json:"winner"`
	Amount    *big.Int       `json:"amount"`
	Price     *big.Int       `json:"price"`
	Timestamp time.Time      `json:"timestamp"`
}

// PayoutAmount converts a USD prize into native smallest units at the given
// price: prizeUSD * 10^18 / price. Both values use the same USD fixed-point
// scale. The result is truncated.
func PayoutAmount(prizeUSD, price *big.Int) (*big.Int, error) {
	if prizeUSD == nil || prizeUSD.Sign() <= 0 {
		return nil, fmt.Errorf("%w: prize must be positive", ErrInvalidArgument)
	}

	if price == nil || price.Sign() <= 0 {
		return nil, fmt.Errorf("%w: price must be positive", ErrInvalidArgument)
	}

	amount := new(big.Int).Mul(prizeUSD, weiPerUnit)

	return amount.Quo(amount, price), nil
}

// transfer sends amount to recipient through the payee and returns the
// treasury balance that remains afterwards. The live state is not modified;
// callers fold the returned balance into the next state. Must be called
// with the contract lock held.
func (c *Contract) transfer(ctx context.Context, recipient common.Address, amount *big.Int) (*big.Int, error) {
	if amount.Cmp(c.state.Balance) > 0 {
		return nil, fmt.Errorf("%w: amount %s exceeds balance %s", ErrTransferFailed, amount, c.state.Balance)
	}

	if err := c.payee.Transfer(ctx, recipient, amount); err != nil {
		return nil, fmt.Errorf("%w: send to %s: %s", ErrTransferFailed, recipient, err)
	}

	return new(big.Int).Sub(c.state.Balance, amount), nil
}
