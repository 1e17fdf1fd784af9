package payout

import "github.com/ethereum/go-ethereum/common"

// Pause stops the trigger path and treasury movements until Resume is
// called. Pausing an already paused contract is not an error.
func (c *Contract) Pause(caller common.Address) error {
	return c.setPaused(caller, true)
}

// Resume clears the pause flag.
func (c *Contract) Resume(caller common.Address) error {
	return c.setPaused(caller, false)
}

func (c *Contract) setPaused(caller common.Address, paused bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireOwner(caller); err != nil {
		return err
	}

	next := c.state.clone()
	next.Paused = paused

	if err := c.commit(next); err != nil {
		return err
	}

	c.log.Printf("paused set to %t by %s", paused, caller)

	return nil
}

func (c *Contract) whenNotPaused() error {
	if c.state.Paused {
		return ErrPaused
	}
	return nil
}
