package payout

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/smartcontractkit/automation-prize-payout/pkg/oracle"
)

const (
	// NativeDecimals is the precision of the native asset's smallest unit.
	NativeDecimals = 18

	DefaultCheckInterval   = 30 * 24 * time.Hour
	DefaultTriggerInterval = 14 * 24 * time.Hour
)

var weiPerUnit = new(big.Int).Exp(big.NewInt(10), big.NewInt(NativeDecimals), nil)

// PayoutState is the single long-lived record guarded by a Contract.
type PayoutState struct {
	Owner             common.Address `json:"owner"`
	AuthorizedTrigger common.Address `json:"authorizedTrigger"`
	Winner            common.Address `json:"winner"`
	// PrizeUSD is fixed-point with oracle.USDDecimals decimals.
	PrizeUSD        *big.Int  `json:"prizeUsd"`
	LastTriggerTime time.Time `json:"lastTriggerTime"`
	Paused          bool      `json:"paused"`
	// Balance is denominated in the native asset's smallest unit.
	Balance *big.Int `json:"balance"`
}

func (s PayoutState) clone() PayoutState {
	out := s
	out.PrizeUSD = copyInt(s.PrizeUSD)
	out.Balance = copyInt(s.Balance)
	return out
}

func (s PayoutState) validate() error {
	if s.Owner == (common.Address{}) {
		return fmt.Errorf("%w: owner must be set", ErrInvalidArgument)
	}
	if s.AuthorizedTrigger == (common.Address{}) {
		return fmt.Errorf("%w: authorized trigger must be set", ErrInvalidArgument)
	}
	if s.Winner == (common.Address{}) {
		return fmt.Errorf("%w: winner must be set", ErrInvalidArgument)
	}
	if s.PrizeUSD == nil || s.PrizeUSD.Sign() <= 0 {
		return fmt.Errorf("%w: prize must be positive", ErrInvalidArgument)
	}
	if s.Balance == nil || s.Balance.Sign() < 0 {
		return fmt.Errorf("%w: balance must not be negative", ErrInvalidArgument)
	}
	return nil
}

// Intervals holds the two scheduling thresholds. Check is the looser
// signal reported by IsDue, Trigger is the gate RunUpkeep enforces before
// paying. They are intentionally independent.
type Intervals struct {
	Check   time.Duration
	Trigger time.Duration
}

func DefaultIntervals() Intervals {
	return Intervals{
		Check:   DefaultCheckInterval,
		Trigger: DefaultTriggerInterval,
	}
}

func (i Intervals) validate() error {
	if i.Check <= 0 || i.Trigger <= 0 {
		return fmt.Errorf("%w: intervals must be positive", ErrInvalidArgument)
	}
	return nil
}

// ParseUSD converts a decimal dollar string such as "100.50" into the
// fixed-point representation used for prizes and price quotes. Precision
// beyond oracle.USDDecimals is truncated.
func ParseUSD(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidArgument, err)
	}

	return d.Shift(int32(oracle.USDDecimals)).Truncate(0).BigInt(), nil
}

// FormatUSD renders a fixed-point USD amount as a decimal string.
func FormatUSD(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -int32(oracle.USDDecimals)).String()
}

// FormatNative renders a smallest-unit amount in whole native units.
func FormatNative(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -NativeDecimals).String()
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
