package payout

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"

	"github.com/smartcontractkit/automation-prize-payout/pkg/oracle"
	"github.com/smartcontractkit/automation-prize-payout/pkg/prommetrics"
	"github.com/smartcontractkit/automation-prize-payout/pkg/telemetry"
)

// PriceReader provides the current native-asset price in USD fixed-point.
type PriceReader interface {
	CurrentPrice(context.Context) (oracle.PriceQuote, error)
}

// Payee moves native-asset value out of the treasury. An error means the
// recipient did not receive the funds.
type Payee interface {
	Transfer(ctx context.Context, to common.Address, amount *big.Int) error
}

// Store persists committed contract state.
type Store interface {
	// Load returns false when no state has been saved yet.
	Load() (PayoutState, bool, error)
	Save(PayoutState) error
}

// Config carries the collaborators of a Contract.
type Config struct {
	Intervals Intervals
	Oracle    PriceReader
	Payee     Payee
	// Store is optional; without it state only lives in memory.
	Store  Store
	Logger *log.Logger
}

// Genesis holds the creation parameters of a new contract.
type Genesis struct {
	Owner             common.Address
	AuthorizedTrigger common.Address
	Winner            common.Address
	PrizeUSD          *big.Int
}

// Contract is the payout state machine. A single mutex guards the whole
// PayoutState and every operation runs to completion while holding it.
type Contract struct {
	mu    sync.Mutex
	state PayoutState

	intervals Intervals
	oracle    PriceReader
	payee     Payee
	store     Store
	log       *log.Logger

	winnerPaid event.Feed
}

// New creates a contract with an empty treasury. LastTriggerTime starts at
// now.
func New(genesis Genesis, now time.Time, conf Config) (*Contract, error) {
	state := PayoutState{
		Owner:             genesis.Owner,
		AuthorizedTrigger: genesis.AuthorizedTrigger,
		Winner:            genesis.Winner,
		PrizeUSD:          copyInt(genesis.PrizeUSD),
		LastTriggerTime:   now,
		Balance:           new(big.Int),
	}

	c, err := newContract(state, conf)
	if err != nil {
		return nil, err
	}

	if c.store != nil {
		if err := c.store.Save(c.state.clone()); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrPersist, err)
		}
	}

	c.log.Printf("created payout contract owned by %s paying %s USD to %s", state.Owner, FormatUSD(state.PrizeUSD), state.Winner)

	return c, nil
}

// Open restores the contract persisted in conf.Store, or creates a new one
// from genesis when the store is empty.
func Open(genesis Genesis, now time.Time, conf Config) (*Contract, error) {
	if conf.Store == nil {
		return New(genesis, now, conf)
	}

	state, ok, err := conf.Store.Load()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load state: %s", ErrPersist, err)
	}

	if !ok {
		return New(genesis, now, conf)
	}

	c, err := newContract(state, conf)
	if err != nil {
		return nil, err
	}

	c.log.Printf("restored payout contract; last trigger %s, balance %s", state.LastTriggerTime.Format(time.RFC3339), FormatNative(state.Balance))

	return c, nil
}

func newContract(state PayoutState, conf Config) (*Contract, error) {
	if conf.Oracle == nil {
		return nil, fmt.Errorf("%w: price oracle is required", ErrInvalidArgument)
	}

	if conf.Payee == nil {
		return nil, fmt.Errorf("%w: payee is required", ErrInvalidArgument)
	}

	if conf.Intervals == (Intervals{}) {
		conf.Intervals = DefaultIntervals()
	}

	if err := conf.Intervals.validate(); err != nil {
		return nil, err
	}

	if state.Balance == nil {
		state.Balance = new(big.Int)
	}

	if err := state.validate(); err != nil {
		return nil, err
	}

	logger := conf.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	c := &Contract{
		state:     state.clone(),
		intervals: conf.Intervals,
		oracle:    conf.Oracle,
		payee:     conf.Payee,
		store:     conf.Store,
		log:       telemetry.WrapLogger(logger, "contract"),
	}

	prommetrics.SetTreasuryBalance(c.state.Balance)

	return c, nil
}

// commit persists next and only then makes it the live state. Used by
// operations that have no external side effect yet, so a store failure
// leaves everything unchanged.
func (c *Contract) commit(next PayoutState) error {
	if c.store != nil {
		if err := c.store.Save(next.clone()); err != nil {
			return fmt.Errorf("%w: %s", ErrPersist, err)
		}
	}

	c.state = next
	prommetrics.SetTreasuryBalance(next.Balance)

	return nil
}

// settle makes next the live state before persisting it. Used after funds
// have left the treasury, where memory must reflect the transfer even if
// the store is unavailable.
func (c *Contract) settle(next PayoutState) error {
	c.state = next
	prommetrics.SetTreasuryBalance(next.Balance)

	if c.store != nil {
		if err := c.store.Save(next.clone()); err != nil {
			c.log.Printf("failed to persist settled state: %s", err)
			return fmt.Errorf("%w: %s", ErrPersist, err)
		}
	}

	return nil
}

// CurrentPrice reads the configured price feed. It does not touch contract
// state.
func (c *Contract) CurrentPrice(ctx context.Context) (oracle.PriceQuote, error) {
	return c.oracle.CurrentPrice(ctx)
}

// Status is the publicly visible part of the contract state.
type Status struct {
	Paused          bool          `json:"paused"`
	Balance         *big.Int      `json:"balance"`
	LastTriggerTime time.Time     `json:"lastTriggerTime"`
	CheckInterval   time.Duration `json:"checkInterval"`
	TriggerInterval time.Duration `json:"triggerInterval"`
	// NextTrigger is the first instant after which RunUpkeep will pay.
	NextTrigger time.Time `json:"nextTrigger"`
}

func (c *Contract) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Status{
		Paused:          c.state.Paused,
		Balance:         copyInt(c.state.Balance),
		LastTriggerTime: c.state.LastTriggerTime,
		CheckInterval:   c.intervals.Check,
		TriggerInterval: c.intervals.Trigger,
		NextTrigger:     c.state.LastTriggerTime.Add(c.intervals.Trigger),
	}
}

// State returns a copy of the full contract state to the owner.
func (c *Contract) State(caller common.Address) (PayoutState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireOwner(caller); err != nil {
		return PayoutState{}, err
	}

	return c.state.clone(), nil
}

// SubscribeWinnerPaid delivers a WinnerPaid value on ch for every
// successful payout. Payouts block until each subscriber has received the
// event, so subscribers must keep reading.
func (c *Contract) SubscribeWinnerPaid(ch chan<- WinnerPaid) event.Subscription {
	return c.winnerPaid.Subscribe(ch)
}
