package payout

import "fmt"

var (
	// ErrUnauthorized is returned when the caller is not the identity an
	// operation is restricted to.
	ErrUnauthorized = fmt.Errorf("unauthorized caller")
	// ErrPaused is returned by gated operations while the contract is paused.
	ErrPaused = fmt.Errorf("contract paused")
	// ErrNoFunds is returned by the due check when the treasury is empty.
	ErrNoFunds = fmt.Errorf("no funds")
	// ErrInvalidArgument covers zero addresses and non-positive amounts.
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	// ErrTransferFailed is returned when a native-asset send is rejected or
	// cannot be covered by the treasury balance.
	ErrTransferFailed = fmt.Errorf("transfer failed")
	// ErrPersist is returned when a committed state cannot be written to the
	// configured store.
	ErrPersist = fmt.Errorf("state persistence failure")
)
