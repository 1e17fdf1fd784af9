package payout

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Fund records an owner deposit into the treasury.
func (c *Contract) Fund(caller common.Address, amount *big.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireOwner(caller); err != nil {
		return err
	}

	if err := c.whenNotPaused(); err != nil {
		return err
	}

	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: funding amount must be positive", ErrInvalidArgument)
	}

	next := c.state.clone()
	next.Balance.Add(next.Balance, amount)

	if err := c.commit(next); err != nil {
		return err
	}

	c.log.Printf("treasury funded with %s; balance %s", FormatNative(amount), FormatNative(next.Balance))

	return nil
}

// Receive accepts value sent to the contract by anyone. Only the raw
// balance changes and the call is never gated by pause or identity.
// Non-positive amounts are ignored.
func (c *Contract) Receive(from common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.state.clone()
	next.Balance.Add(next.Balance, amount)

	if err := c.commit(next); err != nil {
		return err
	}

	c.log.Printf("received %s from %s", FormatNative(amount), from)

	return nil
}

// Withdraw sends amount from the treasury to payee. An amount above the
// balance or a rejected send fails with ErrTransferFailed and leaves the
// balance unchanged.
func (c *Contract) Withdraw(ctx context.Context, caller common.Address, amount *big.Int, payee common.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireOwner(caller); err != nil {
		return err
	}

	if err := c.whenNotPaused(); err != nil {
		return err
	}

	if payee == (common.Address{}) {
		return fmt.Errorf("%w: payee must not be the zero address", ErrInvalidArgument)
	}

	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: withdrawal amount must be positive", ErrInvalidArgument)
	}

	remaining, err := c.transfer(ctx, payee, amount)
	if err != nil {
		return err
	}

	next := c.state.clone()
	next.Balance = remaining

	c.log.Printf("withdrew %s to %s; balance %s", FormatNative(amount), payee, FormatNative(remaining))

	return c.settle(next)
}

// Balance is the current treasury balance in native smallest units.
func (c *Contract) Balance() *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return copyInt(c.state.Balance)
}
