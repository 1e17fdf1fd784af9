package payout

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// requireOwner and requireAuthorizedTrigger must be called with the
// contract lock held and before anything in the state is touched.
func (c *Contract) requireOwner(caller common.Address) error {
	if caller != c.state.Owner {
		return fmt.Errorf("%w: %s is not the owner", ErrUnauthorized, caller)
	}
	return nil
}

func (c *Contract) requireAuthorizedTrigger(caller common.Address) error {
	if caller != c.state.AuthorizedTrigger {
		return fmt.Errorf("%w: %s is not the authorized trigger", ErrUnauthorized, caller)
	}
	return nil
}
