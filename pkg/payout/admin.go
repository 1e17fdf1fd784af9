package payout

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

func (c *Contract) SetAuthorizedTrigger(caller, trigger common.Address) error {
	err := c.update(caller, func(next *PayoutState) error {
		if trigger == (common.Address{}) {
			return fmt.Errorf("%w: authorized trigger must not be the zero address", ErrInvalidArgument)
		}

		next.AuthorizedTrigger = trigger
		return nil
	})
	if err != nil {
		return err
	}

	c.log.Printf("authorized trigger set to %s", trigger)

	return nil
}

func (c *Contract) AuthorizedTrigger(caller common.Address) (common.Address, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireOwner(caller); err != nil {
		return common.Address{}, err
	}

	return c.state.AuthorizedTrigger, nil
}

// SetPrize sets the USD prize in fixed-point with oracle.USDDecimals
// decimals.
func (c *Contract) SetPrize(caller common.Address, prizeUSD *big.Int) error {
	err := c.update(caller, func(next *PayoutState) error {
		if prizeUSD == nil || prizeUSD.Sign() <= 0 {
			return fmt.Errorf("%w: prize must be positive", ErrInvalidArgument)
		}

		next.PrizeUSD = new(big.Int).Set(prizeUSD)
		return nil
	})
	if err != nil {
		return err
	}

	c.log.Printf("prize set to %s USD", FormatUSD(prizeUSD))

	return nil
}

func (c *Contract) Prize(caller common.Address) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireOwner(caller); err != nil {
		return nil, err
	}

	return copyInt(c.state.PrizeUSD), nil
}

func (c *Contract) SetWinner(caller, winner common.Address) error {
	err := c.update(caller, func(next *PayoutState) error {
		if winner == (common.Address{}) {
			return fmt.Errorf("%w: winner must not be the zero address", ErrInvalidArgument)
		}

		next.Winner = winner
		return nil
	})
	if err != nil {
		return err
	}

	c.log.Printf("winner set to %s", winner)

	return nil
}

func (c *Contract) Winner(caller common.Address) (common.Address, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireOwner(caller); err != nil {
		return common.Address{}, err
	}

	return c.state.Winner, nil
}

// update applies an owner-only configuration change to a copy of the state
// and commits it. apply validates its own argument.
func (c *Contract) update(caller common.Address, apply func(*PayoutState) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireOwner(caller); err != nil {
		return err
	}

	next := c.state.clone()
	if err := apply(&next); err != nil {
		return err
	}

	return c.commit(next)
}
