package chain

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartcontractkit/automation-prize-payout/pkg/telemetry"
)

var (
	ErrRecipientRejected = fmt.Errorf("recipient rejected transfer")
	ErrInvalidAmount     = fmt.Errorf("invalid transfer amount")
)

// SimulatedAccounts is an in-memory set of external account balances that
// receives treasury transfers. Addresses marked with Reject refuse incoming
// value the way a contract without a payable fallback would.
type SimulatedAccounts struct {
	mu        sync.RWMutex
	balances  map[common.Address]*big.Int
	rejecting map[common.Address]struct{}
	log       *log.Logger
}

func NewSimulatedAccounts(logger *log.Logger) *SimulatedAccounts {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	return &SimulatedAccounts{
		balances:  make(map[common.Address]*big.Int),
		rejecting: make(map[common.Address]struct{}),
		log:       telemetry.WrapLogger(logger, "simulated-accounts"),
	}
}

// Reject makes addr refuse all future transfers.
func (a *SimulatedAccounts) Reject(addr common.Address) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.rejecting[addr] = struct{}{}
}

// Accept reverses Reject.
func (a *SimulatedAccounts) Accept(addr common.Address) {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.rejecting, addr)
}

func (a *SimulatedAccounts) Transfer(_ context.Context, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.rejecting[to]; ok {
		return fmt.Errorf("%w: %s", ErrRecipientRejected, to)
	}

	balance, ok := a.balances[to]
	if !ok {
		balance = new(big.Int)
		a.balances[to] = balance
	}

	balance.Add(balance, amount)

	a.log.Printf("credited %s wei to %s", amount, to)

	return nil
}

// BalanceOf returns the amount credited to addr.
func (a *SimulatedAccounts) BalanceOf(addr common.Address) *big.Int {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if balance, ok := a.balances[addr]; ok {
		return new(big.Int).Set(balance)
	}

	return new(big.Int)
}
