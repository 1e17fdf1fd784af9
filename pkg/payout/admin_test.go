package payout

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContract_Setters(t *testing.T) {
	other := common.HexToAddress("0x00000000000000000000000000000000000000f6")

	t.Run("owner updates are visible through getters", func(t *testing.T) {
		tc := newTestContract(t, "50", nil)

		require.NoError(t, tc.SetAuthorizedTrigger(owner, other))
		require.NoError(t, tc.SetWinner(owner, other))
		require.NoError(t, tc.SetPrize(owner, usd(t, "250.75")))

		got, err := tc.AuthorizedTrigger(owner)
		require.NoError(t, err)
		assert.Equal(t, other, got)

		got, err = tc.Winner(owner)
		require.NoError(t, err)
		assert.Equal(t, other, got)

		prize, err := tc.Prize(owner)
		require.NoError(t, err)
		assert.Equal(t, "250.75", FormatUSD(prize))

		stored, _, err := tc.store.Load()
		require.NoError(t, err)
		assert.Equal(t, other, stored.Winner)
	})

	t.Run("setters and getters are owner only", func(t *testing.T) {
		tc := newTestContract(t, "50", nil)

		assert.ErrorIs(t, tc.SetAuthorizedTrigger(trigger, other), ErrUnauthorized)
		assert.ErrorIs(t, tc.SetWinner(winner, other), ErrUnauthorized)
		assert.ErrorIs(t, tc.SetPrize(stranger, usd(t, "1")), ErrUnauthorized)

		_, err := tc.AuthorizedTrigger(trigger)
		assert.ErrorIs(t, err, ErrUnauthorized)

		_, err = tc.Winner(winner)
		assert.ErrorIs(t, err, ErrUnauthorized)

		_, err = tc.Prize(stranger)
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("owner check precedes argument validation", func(t *testing.T) {
		tc := newTestContract(t, "50", nil)

		assert.ErrorIs(t, tc.SetWinner(stranger, common.Address{}), ErrUnauthorized)
		assert.ErrorIs(t, tc.SetPrize(stranger, big.NewInt(0)), ErrUnauthorized)
	})

	t.Run("invalid values are rejected", func(t *testing.T) {
		tc := newTestContract(t, "50", nil)

		assert.ErrorIs(t, tc.SetAuthorizedTrigger(owner, common.Address{}), ErrInvalidArgument)
		assert.ErrorIs(t, tc.SetWinner(owner, common.Address{}), ErrInvalidArgument)
		assert.ErrorIs(t, tc.SetPrize(owner, big.NewInt(0)), ErrInvalidArgument)
		assert.ErrorIs(t, tc.SetPrize(owner, nil), ErrInvalidArgument)

		winnerNow, err := tc.Winner(owner)
		require.NoError(t, err)
		assert.Equal(t, winner, winnerNow)
	})

	t.Run("setters work while paused", func(t *testing.T) {
		tc := newTestContract(t, "50", nil)
		require.NoError(t, tc.Pause(owner))

		assert.NoError(t, tc.SetWinner(owner, other))
	})

	t.Run("store failure leaves state unchanged", func(t *testing.T) {
		tc := newTestContract(t, "50", nil)
		tc.store.saveFn = func(PayoutState) error {
			return fmt.Errorf("disk full")
		}

		assert.ErrorIs(t, tc.SetWinner(owner, other), ErrPersist)

		got, err := tc.Winner(owner)
		require.NoError(t, err)
		assert.Equal(t, winner, got)
	})

	t.Run("new trigger identity takes effect immediately", func(t *testing.T) {
		tc := newTestContract(t, "50", wei("5000000000000000000"))
		require.NoError(t, tc.SetAuthorizedTrigger(owner, other))

		_, err := tc.RunUpkeep(context.Background(), trigger, genesisTime.Add(20*day))
		assert.ErrorIs(t, err, ErrUnauthorized)
	})
}

func TestContract_Pause(t *testing.T) {
	tc := newTestContract(t, "50", nil)

	assert.ErrorIs(t, tc.Pause(stranger), ErrUnauthorized)
	assert.False(t, tc.Status().Paused)

	require.NoError(t, tc.Pause(owner))
	require.NoError(t, tc.Pause(owner), "pausing twice is allowed")
	assert.True(t, tc.Status().Paused)

	assert.ErrorIs(t, tc.Resume(trigger), ErrUnauthorized)
	assert.True(t, tc.Status().Paused)

	require.NoError(t, tc.Resume(owner))
	assert.False(t, tc.Status().Paused)
}

func TestParseUSD(t *testing.T) {
	v, err := ParseUSD("100")
	require.NoError(t, err)
	assert.Equal(t, "10000000000", v.String())

	v, err = ParseUSD("0.123456789")
	require.NoError(t, err)
	assert.Equal(t, "12345678", v.String(), "precision beyond 8 decimals is truncated")

	_, err = ParseUSD("ten dollars")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	assert.Equal(t, "1.5", FormatNative(wei("1500000000000000000")))
	assert.Equal(t, "0", FormatUSD(nil))
}
