package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
)

// EVMClient is the subset of go-ethereum's ethclient.Client used to read
// price aggregators and settle payouts.
type EVMClient interface {
	ethereum.ContractCaller
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	Close()
}

// evmClient wraps ethclient so the raw rpc client can be shut down with it
type evmClient struct {
	*ethclient.Client
	rpcClient *rpc.Client
}

// NewClient is the constructor of evmClient
func NewClient(client *rpc.Client) EVMClient {
	return &evmClient{
		Client:    ethclient.NewClient(client),
		rpcClient: client,
	}
}

// Dial connects to an EVM json-rpc endpoint.
func Dial(ctx context.Context, url string) (EVMClient, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to dial %s", url)
	}

	return NewClient(client), nil
}

func (ec *evmClient) Close() {
	ec.rpcClient.Close()
}
