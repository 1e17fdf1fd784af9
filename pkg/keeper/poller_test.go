package keeper

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcontractkit/automation-prize-payout/pkg/chain"
	"github.com/smartcontractkit/automation-prize-payout/pkg/oracle"
	"github.com/smartcontractkit/automation-prize-payout/pkg/payout"
	"github.com/smartcontractkit/automation-prize-payout/pkg/telemetry"
	"github.com/smartcontractkit/automation-prize-payout/pkg/tickers"
)

var identity = common.HexToAddress("0x00000000000000000000000000000000000000b2")

type mockUpkeep struct {
	isDueFn     func(time.Time) (bool, error)
	runUpkeepFn func(context.Context, common.Address, time.Time) (payout.UpkeepResult, error)
	runs        int
}

func (m *mockUpkeep) IsDue(now time.Time) (bool, error) {
	return m.isDueFn(now)
}

func (m *mockUpkeep) RunUpkeep(ctx context.Context, caller common.Address, now time.Time) (payout.UpkeepResult, error) {
	m.runs++
	return m.runUpkeepFn(ctx, caller, now)
}

type auditRecord struct {
	Key    string `json:"key"`
	Status string `json:"status"`
	Detail string `json:"detail"`
}

func records(t *testing.T, buf *bytes.Buffer) []auditRecord {
	t.Helper()

	var out []auditRecord
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}

		var r auditRecord
		require.NoError(t, json.Unmarshal([]byte(line), &r))
		out = append(out, r)
	}

	return out
}

func newTestPoller(upkeep Upkeep) (*Poller, *bytes.Buffer) {
	var audit bytes.Buffer
	logger := telemetry.NewTelemetryLogger(log.New(&bytes.Buffer{}, "", 0), &audit)

	return NewPoller(upkeep, identity, logger), &audit
}

func TestPoller_Process(t *testing.T) {
	now := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	t.Run("not due does not trigger", func(t *testing.T) {
		upkeep := &mockUpkeep{
			isDueFn: func(time.Time) (bool, error) { return false, nil },
		}
		poller, audit := newTestPoller(upkeep)

		require.NoError(t, poller.Process(context.Background(), tickers.NewTick(now)))

		assert.Equal(t, 0, upkeep.runs)

		recs := records(t, audit)
		require.Len(t, recs, 1)
		assert.Equal(t, "not_due", recs[0].Status)
		assert.Equal(t, upkeepKey, recs[0].Key)
	})

	t.Run("empty treasury is not an error", func(t *testing.T) {
		upkeep := &mockUpkeep{
			isDueFn: func(time.Time) (bool, error) { return false, payout.ErrNoFunds },
		}
		poller, audit := newTestPoller(upkeep)

		require.NoError(t, poller.Process(context.Background(), tickers.NewTick(now)))

		assert.Equal(t, 0, upkeep.runs)
		assert.Equal(t, "no_funds", records(t, audit)[0].Status)
	})

	t.Run("due triggers as the configured identity", func(t *testing.T) {
		id := uuid.New()

		upkeep := &mockUpkeep{
			isDueFn: func(time.Time) (bool, error) { return true, nil },
			runUpkeepFn: func(_ context.Context, caller common.Address, at time.Time) (payout.UpkeepResult, error) {
				assert.Equal(t, identity, caller)
				assert.Equal(t, now, at)

				return payout.UpkeepResult{
					Performed: true,
					Amount:    big.NewInt(10),
					Event:     payout.WinnerPaid{ID: id, Amount: big.NewInt(10)},
				}, nil
			},
		}
		poller, audit := newTestPoller(upkeep)

		require.NoError(t, poller.Process(context.Background(), tickers.NewTick(now)))

		assert.Equal(t, 1, upkeep.runs)

		recs := records(t, audit)
		require.Len(t, recs, 2)
		assert.Equal(t, "checked", recs[0].Status)
		assert.Equal(t, "performed", recs[1].Status)
		assert.Equal(t, id.String(), recs[1].Detail)
	})

	t.Run("no-op result is recorded", func(t *testing.T) {
		upkeep := &mockUpkeep{
			isDueFn: func(time.Time) (bool, error) { return true, nil },
			runUpkeepFn: func(context.Context, common.Address, time.Time) (payout.UpkeepResult, error) {
				return payout.UpkeepResult{Elapsed: time.Hour}, nil
			},
		}
		poller, audit := newTestPoller(upkeep)

		require.NoError(t, poller.Process(context.Background(), tickers.NewTick(now)))

		recs := records(t, audit)
		assert.Equal(t, "noop", recs[len(recs)-1].Status)
	})

	t.Run("failures are returned and recorded", func(t *testing.T) {
		upkeep := &mockUpkeep{
			isDueFn: func(time.Time) (bool, error) { return true, nil },
			runUpkeepFn: func(context.Context, common.Address, time.Time) (payout.UpkeepResult, error) {
				return payout.UpkeepResult{}, fmt.Errorf("%w: recipient reverted", payout.ErrTransferFailed)
			},
		}
		poller, audit := newTestPoller(upkeep)

		err := poller.Process(context.Background(), tickers.NewTick(now))
		assert.ErrorIs(t, err, payout.ErrTransferFailed)

		recs := records(t, audit)
		assert.Equal(t, "failed", recs[len(recs)-1].Status)
		assert.Contains(t, recs[len(recs)-1].Detail, "recipient reverted")
	})

	t.Run("due check errors are returned", func(t *testing.T) {
		upkeep := &mockUpkeep{
			isDueFn: func(time.Time) (bool, error) { return false, fmt.Errorf("boom") },
		}
		poller, _ := newTestPoller(upkeep)

		assert.Error(t, poller.Process(context.Background(), tickers.NewTick(now)))
		assert.Equal(t, 0, upkeep.runs)
	})
}

// TestPoller_Contract drives a real contract through a sequence of ticks
// spanning several trigger intervals.
func TestPoller_Contract(t *testing.T) {
	owner := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	winner := common.HexToAddress("0x00000000000000000000000000000000000000c3")
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	accounts := chain.NewSimulatedAccounts(nil)

	contract, err := payout.New(payout.Genesis{
		Owner:             owner,
		AuthorizedTrigger: identity,
		Winner:            winner,
		PrizeUSD:          big.NewInt(10_000_000_000),
	}, start, payout.Config{
		Intervals: payout.Intervals{Check: 30 * 24 * time.Hour, Trigger: 14 * 24 * time.Hour},
		Oracle:    oracle.NewClient(oracle.NewStaticFeed(big.NewInt(5_000_000_000), oracle.USDDecimals), oracle.ClientConfig{}, nil),
		Payee:     accounts,
	})
	require.NoError(t, err)

	poller, audit := newTestPoller(contract)

	// empty treasury
	require.NoError(t, poller.Process(context.Background(), tickers.NewTick(start.Add(40*24*time.Hour))))
	assert.Equal(t, 0, accounts.BalanceOf(winner).Sign())

	require.NoError(t, contract.Fund(owner, big.NewInt(5_000_000_000_000_000_000)))

	// daily ticks for 100 days; paid on day 31 and day 62, after which
	// every due check fails because the prize exceeds the remaining balance
	for day := 1; day <= 100; day++ {
		err := poller.Process(context.Background(), tickers.NewTick(start.Add(time.Duration(day)*24*time.Hour)))
		if day >= 93 {
			assert.ErrorIs(t, err, payout.ErrTransferFailed, "day %d", day)
			continue
		}

		require.NoError(t, err, "day %d", day)
	}

	assert.Equal(t, "4000000000000000000", accounts.BalanceOf(winner).String())
	assert.Equal(t, "1000000000000000000", contract.Balance().String())

	performed := 0
	for _, r := range records(t, audit) {
		if r.Status == "performed" {
			performed++
		}
	}
	assert.Equal(t, 2, performed)
}
