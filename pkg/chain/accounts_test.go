package chain

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func TestSimulatedAccounts(t *testing.T) {
	alice := common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob := common.HexToAddress("0x0000000000000000000000000000000000000b0b")

	t.Run("credits recipients", func(t *testing.T) {
		accounts := NewSimulatedAccounts(nil)

		assert.NoError(t, accounts.Transfer(context.Background(), alice, big.NewInt(10)))
		assert.NoError(t, accounts.Transfer(context.Background(), alice, big.NewInt(5)))

		assert.Equal(t, "15", accounts.BalanceOf(alice).String())
		assert.Equal(t, "0", accounts.BalanceOf(bob).String())
	})

	t.Run("rejecting recipients refuse value", func(t *testing.T) {
		accounts := NewSimulatedAccounts(nil)
		accounts.Reject(bob)

		err := accounts.Transfer(context.Background(), bob, big.NewInt(10))
		assert.ErrorIs(t, err, ErrRecipientRejected)
		assert.Equal(t, "0", accounts.BalanceOf(bob).String())

		accounts.Accept(bob)

		assert.NoError(t, accounts.Transfer(context.Background(), bob, big.NewInt(10)))
		assert.Equal(t, "10", accounts.BalanceOf(bob).String())
	})

	t.Run("negative amounts are invalid", func(t *testing.T) {
		accounts := NewSimulatedAccounts(nil)

		assert.ErrorIs(t, accounts.Transfer(context.Background(), alice, big.NewInt(-1)), ErrInvalidAmount)
		assert.ErrorIs(t, accounts.Transfer(context.Background(), alice, nil), ErrInvalidAmount)
	})

	t.Run("balances are copies", func(t *testing.T) {
		accounts := NewSimulatedAccounts(nil)
		assert.NoError(t, accounts.Transfer(context.Background(), alice, big.NewInt(3)))

		accounts.BalanceOf(alice).SetInt64(100)
		assert.Equal(t, "3", accounts.BalanceOf(alice).String())
	})
}
