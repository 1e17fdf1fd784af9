package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"io"
	"log"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"

	"github.com/smartcontractkit/automation-prize-payout/pkg/telemetry"
)

const (
	// valueTransferGas is the intrinsic gas of a plain value transfer.
	// Contract recipients with a payable fallback need more.
	valueTransferGas uint64 = 21_000

	DefaultReceiptPollInterval = 2 * time.Second
	DefaultReceiptTimeout      = 2 * time.Minute
)

var (
	ErrTransactionReverted = fmt.Errorf("transaction reverted")
	ErrReceiptTimeout      = fmt.Errorf("timed out waiting for receipt")
)

type EVMPayeeConfig struct {
	// ChainID is queried from the client when nil.
	ChainID *big.Int
	// GasLimit defaults to the plain transfer cost.
	GasLimit            uint64
	ReceiptPollInterval time.Duration
	ReceiptTimeout      time.Duration
}

// EVMPayee settles treasury transfers on an EVM chain from a hot wallet.
// Each transfer is a signed legacy value transaction; a reverted receipt is
// treated as the recipient rejecting the funds.
//
// A transfer whose receipt does not arrive in time stays pending. The next
// Transfer rebroadcasts the same signed transaction and waits on it before
// anything new is signed, so a retried payout cannot be sent twice.
type EVMPayee struct {
	client EVMClient
	key    *ecdsa.PrivateKey
	from   common.Address
	signer types.Signer
	conf   EVMPayeeConfig
	log    *log.Logger

	mu      sync.Mutex
	pending *pendingTransfer
}

type pendingTransfer struct {
	tx     *types.Transaction
	to     common.Address
	amount *big.Int
}


func NewEVMPayee(ctx context.Context, client EVMClient, key *ecdsa.PrivateKey, conf EVMPayeeConfig, logger *log.Logger) (*EVMPayee, error) {
	if key == nil {
		return nil, fmt.Errorf("signing key is required")
	}

	if conf.ChainID == nil {
		chainID, err := client.ChainID(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "failed to query chain id")
		}
		conf.ChainID = chainID
	}

	if conf.GasLimit == 0 {
		conf.GasLimit = valueTransferGas
	}

	if conf.ReceiptPollInterval <= 0 {
		conf.ReceiptPollInterval = DefaultReceiptPollInterval
	}

	if conf.ReceiptTimeout <= 0 {
		conf.ReceiptTimeout = DefaultReceiptTimeout
	}

	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	return &EVMPayee{
		client: client,
		key:    key,
		from:   crypto.PubkeyToAddress(key.PublicKey),
		signer: types.LatestSignerForChainID(conf.ChainID),
		conf:   conf,
		log:    telemetry.WrapLogger(logger, "evm-payee"),
	}, nil
}

// From is the hot wallet address funds are sent from.
func (p *EVMPayee) From() common.Address {
	return p.from
}

func (p *EVMPayee) Transfer(ctx context.Context, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// A retry to the same recipient is answered by the pending transfer.
	// Payout amounts follow the price, so they may differ between retries.
	if pending := p.pending; pending != nil {
		err := p.resume(ctx, pending)
		if pending.to == to || p.pending != nil {
			if err == nil && pending.amount.Cmp(amount) != 0 {
				p.log.Printf("transfer to %s settled by pending %s for %s wei instead of %s wei", to, pending.tx.Hash(), pending.amount, amount)
			}

			return err
		}

		result := "mined"
		if err != nil {
			result = err.Error()
		}

		p.log.Printf("transfer %s of %s wei to %s settled after its caller gave up: %s", pending.tx.Hash(), pending.amount, pending.to, result)
	}

	nonce, err := p.client.PendingNonceAt(ctx, p.from)
	if err != nil {
		return errors.Wrap(err, "failed to get nonce")
	}

	gasPrice, err := p.client.SuggestGasPrice(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to suggest gas price")
	}

	tx, err := types.SignTx(types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    amount,
		Gas:      p.conf.GasLimit,
		GasPrice: gasPrice,
	}), p.signer, p.key)
	if err != nil {
		return errors.Wrap(err, "failed to sign transfer")
	}

	if err := p.client.SendTransaction(ctx, tx); err != nil {
		return errors.Wrapf(err, "failed to send transfer %s", tx.Hash())
	}

	p.log.Printf("sent %s wei to %s in %s", amount, to, tx.Hash())

	return p.settle(ctx, &pendingTransfer{tx: tx, to: to, amount: new(big.Int).Set(amount)})
}

// resume rebroadcasts a pending transfer and waits for it again. The signed
// transaction is reused so its nonce can only be mined once.
func (p *EVMPayee) resume(ctx context.Context, pending *pendingTransfer) error {
	hash := pending.tx.Hash()

	if receipt, err := p.client.TransactionReceipt(ctx, hash); err == nil && receipt != nil {
		p.pending = nil
		return receiptErr(receipt, hash)
	}

	p.log.Printf("rebroadcasting pending transfer %s", hash)

	// known or underpriced errors are expected while the original is in the pool
	if err := p.client.SendTransaction(ctx, pending.tx); err != nil {
		p.log.Printf("rebroadcast of %s: %s", hash, err)
	}

	return p.settle(ctx, pending)
}

// settle waits for the receipt of a sent transfer. The transfer is kept
// pending when no receipt arrives in time.
func (p *EVMPayee) settle(ctx context.Context, transfer *pendingTransfer) error {
	hash := transfer.tx.Hash()

	receipt, err := p.waitMined(ctx, hash)
	if err != nil {
		p.pending = transfer
		return err
	}

	p.pending = nil

	return receiptErr(receipt, hash)
}

func receiptErr(receipt *types.Receipt, hash common.Hash) error {
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("%w: %s", ErrTransactionReverted, hash)
	}

	return nil
}

func (p *EVMPayee) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, p.conf.ReceiptTimeout)
	defer cancel()

	ticker := time.NewTicker(p.conf.ReceiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := p.client.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}

		if err != nil && !errors.Is(err, ethereum.NotFound) {
			p.log.Printf("receipt lookup for %s failed: %s", hash, err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", ErrReceiptTimeout, hash)
		case <-ticker.C:
		}
	}
}
