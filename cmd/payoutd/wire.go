package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/big"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"

	"github.com/smartcontractkit/automation-prize-payout/pkg/api"
	"github.com/smartcontractkit/automation-prize-payout/pkg/chain"
	"github.com/smartcontractkit/automation-prize-payout/pkg/config"
	"github.com/smartcontractkit/automation-prize-payout/pkg/keeper"
	"github.com/smartcontractkit/automation-prize-payout/pkg/oracle"
	"github.com/smartcontractkit/automation-prize-payout/pkg/payout"
	"github.com/smartcontractkit/automation-prize-payout/pkg/service"
	"github.com/smartcontractkit/automation-prize-payout/pkg/store"
	"github.com/smartcontractkit/automation-prize-payout/pkg/telemetry"
	"github.com/smartcontractkit/automation-prize-payout/pkg/tickers"
)

type daemon struct {
	logger   *log.Logger
	contract *payout.Contract
	nonces   api.NonceStore
	ticker   service.Recoverable
	closers  []func() error
}

// stateStore keeps the contract state and the admin request nonces in one
// backend.
type stateStore interface {
	payout.Store
	api.NonceStore
}

func (d *daemon) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			d.logger.Printf("close failed: %s", err)
		}
	}
}

func build(ctx context.Context, conf config.Service, verbose bool) (*daemon, error) {
	d := &daemon{
		logger: log.New(os.Stderr, "", telemetry.LogPkgStdFlags),
	}

	ok := false
	defer func() {
		if !ok {
			d.close()
		}
	}()

	st, err := openStore(conf.Store, d)
	if err != nil {
		return nil, err
	}

	d.nonces = st

	feed, err := openFeed(ctx, conf.Oracle, d)
	if err != nil {
		return nil, err
	}

	payee, err := openPayee(ctx, conf.Payee, d)
	if err != nil {
		return nil, err
	}

	genesis, err := conf.Contract.Genesis()
	if err != nil {
		return nil, err
	}

	_, existed, err := st.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read stored state")
	}

	contract, err := payout.Open(genesis, time.Now(), payout.Config{
		Intervals: conf.Contract.Intervals(),
		Oracle: oracle.NewClient(feed, oracle.ClientConfig{
			Timeout: conf.Oracle.Timeout.Value(),
			MaxAge:  conf.Oracle.MaxAge.Value(),
		}, d.logger),
		Payee:  payee,
		Store:  st,
		Logger: d.logger,
	})
	if err != nil {
		return nil, err
	}

	d.contract = contract

	if !existed {
		deposit, err := conf.Contract.Deposit()
		if err != nil {
			return nil, err
		}

		if err := contract.Receive(genesis.Owner, deposit); err != nil {
			return nil, errors.Wrap(err, "failed to credit initial deposit")
		}
	}

	watchPayouts(contract, d)

	audit, err := openAudit(conf.AuditLog, verbose, d)
	if err != nil {
		return nil, err
	}

	identity := genesis.AuthorizedTrigger
	if conf.Keeper.Identity != "" {
		identity = common.HexToAddress(conf.Keeper.Identity)
	}

	poller := keeper.NewPoller(contract, identity, telemetry.NewTelemetryLogger(d.logger, audit))

	if conf.Keeper.Schedule != "" {
		// one oracle read plus one transfer
		timeout := conf.Oracle.Timeout.Value() + conf.Payee.Receipt.Value()

		ticker, err := tickers.NewCronTicker(conf.Keeper.Schedule, timeout, poller, d.logger)
		if err != nil {
			return nil, err
		}

		d.ticker = ticker
	} else {
		d.ticker = tickers.NewTimeTicker(conf.Keeper.PollInterval.Value(), poller, d.logger)
	}

	ok = true

	return d, nil
}

// newServer builds the http server. Writes may wait on an oracle read and
// a transfer receipt, so the write timeout covers both.
func newServer(conf config.Service, handler http.Handler) *http.Server {
	read := conf.HTTP.ReadTimeout.Value()

	return &http.Server{
		Addr:              conf.HTTP.Listen,
		Handler:           handler,
		ReadHeaderTimeout: read,
		ReadTimeout:       read,
		WriteTimeout:      read + conf.Oracle.Timeout.Value() + conf.Payee.Receipt.Value(),
		IdleTimeout:       conf.HTTP.IdleTimeout.Value(),
	}
}

func (d *daemon) handler(conf config.Service) http.Handler {
	return api.NewHandler(d.contract, api.Config{
		MaxClockSkew: conf.HTTP.MaxClockSkew.Value(),
		Nonces:       d.nonces,
	}, d.logger)
}

func openStore(conf config.Store, d *daemon) (stateStore, error) {
	switch conf.Kind {
	case config.StoreLevelDB:
		db, err := store.OpenLevelDB(conf.Path)
		if err != nil {
			return nil, err
		}

		d.closers = append(d.closers, db.Close)

		return db, nil
	default:
		return store.NewMemory(), nil
	}
}

func openFeed(ctx context.Context, conf config.Oracle, d *daemon) (oracle.Feed, error) {
	switch conf.Kind {
	case config.OracleAggregator:
		client, err := chain.Dial(ctx, conf.RPCURL)
		if err != nil {
			return nil, err
		}

		d.closers = append(d.closers, func() error {
			client.Close()
			return nil
		})

		return oracle.NewAggregatorFeed(common.HexToAddress(conf.Address), client)
	case config.OracleHTTP:
		return oracle.NewHTTPFeed(conf.URL, &http.Client{Timeout: conf.Timeout.Value()}, conf.RequestsPerSecond), nil
	case config.OracleStatic:
		price, err := payout.ParseUSD(conf.StaticPrice)
		if err != nil {
			return nil, err
		}

		return oracle.NewStaticFeed(price, oracle.USDDecimals), nil
	default:
		return nil, fmt.Errorf("%w: unknown oracle kind %q", config.ErrInvalid, conf.Kind)
	}
}

func openPayee(ctx context.Context, conf config.Payee, d *daemon) (payout.Payee, error) {
	switch conf.Kind {
	case config.PayeeEVM:
		key, err := crypto.HexToECDSA(strings.TrimPrefix(conf.PrivateKey, "0x"))
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse payee private key")
		}

		client, err := chain.Dial(ctx, conf.RPCURL)
		if err != nil {
			return nil, err
		}

		d.closers = append(d.closers, func() error {
			client.Close()
			return nil
		})

		payeeConf := chain.EVMPayeeConfig{
			GasLimit:       conf.GasLimit,
			ReceiptTimeout: conf.Receipt.Value(),
		}

		if conf.ChainID > 0 {
			payeeConf.ChainID = new(big.Int).SetInt64(conf.ChainID)
		}

		payee, err := chain.NewEVMPayee(ctx, client, key, payeeConf, d.logger)
		if err != nil {
			return nil, err
		}

		d.logger.Printf("evm payee sending from %s", payee.From())

		return payee, nil
	default:
		accounts := chain.NewSimulatedAccounts(d.logger)
		for _, addr := range conf.Reject {
			accounts.Reject(common.HexToAddress(addr))
		}

		return accounts, nil
	}
}

func openAudit(path string, verbose bool, d *daemon) (io.Writer, error) {
	var writers []io.Writer

	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open audit log %s", path)
		}

		d.closers = append(d.closers, f.Close)
		writers = append(writers, f)
	}

	if verbose {
		writers = append(writers, os.Stderr)
	}

	if len(writers) == 0 {
		return io.Discard, nil
	}

	return io.MultiWriter(writers...), nil
}

// watchPayouts logs every WinnerPaid event until the daemon closes.
func watchPayouts(contract *payout.Contract, d *daemon) {
	events := make(chan payout.WinnerPaid, 16)
	sub := contract.SubscribeWinnerPaid(events)

	logger := telemetry.WrapLogger(d.logger, "events")

	go func() {
		for {
			select {
			case ev := <-events:
				logger.Printf("WinnerPaid %s: %s to %s at price %s USD", ev.ID, payout.FormatNative(ev.Amount), ev.Winner, payout.FormatUSD(ev.Price))
			case <-sub.Err():
				return
			}
		}
	}()

	d.closers = append(d.closers, func() error {
		sub.Unsubscribe()
		return nil
	})
}
