package oracle

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// AggregatorV3ABI is the subset of the Chainlink AggregatorV3Interface read
// by AggregatorFeed.
const AggregatorV3ABI = `[
	{"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"description","outputs":[{"internalType":"string","name":"","type":"string"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"latestRoundData","outputs":[
		{"internalType":"uint80","name":"roundId","type":"uint80"},
		{"internalType":"int256","name":"answer","type":"int256"},
		{"internalType":"uint256","name":"startedAt","type":"uint256"},
		{"internalType":"uint256","name":"updatedAt","type":"uint256"},
		{"internalType":"uint80","name":"answeredInRound","type":"uint80"}
	],"stateMutability":"view","type":"function"}
]`

var (
	ErrAggregatorCall = fmt.Errorf("aggregator call failure")
)

// AggregatorFeed reads an on-chain price aggregator through any
// ethereum.ContractCaller, typically an ethclient.Client.
type AggregatorFeed struct {
	address common.Address
	caller  ethereum.ContractCaller
	abi     abi.ABI

	mu       sync.Mutex
	decimals *uint8
}

func NewAggregatorFeed(address common.Address, caller ethereum.ContractCaller) (*AggregatorFeed, error) {
	parsed, err := abi.JSON(strings.NewReader(AggregatorV3ABI))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse aggregator abi")
	}

	return &AggregatorFeed{
		address: address,
		caller:  caller,
		abi:     parsed,
	}, nil
}

func (f *AggregatorFeed) Source() string {
	return fmt.Sprintf("aggregator:%s", f.address)
}

func (f *AggregatorFeed) LatestRoundData(ctx context.Context) (RoundData, error) {
	decimals, err := f.loadDecimals(ctx)
	if err != nil {
		return RoundData{}, err
	}

	/*
		latestRoundData()
		returns (
			uint80 roundId,
			int256 answer,
			uint256 startedAt,
			uint256 updatedAt,
			uint80 answeredInRound
		)
	*/
	out, err := f.call(ctx, "latestRoundData")
	if err != nil {
		return RoundData{}, err
	}

	if len(out) != 5 {
		return RoundData{}, fmt.Errorf("%w: latestRoundData returned %d values", ErrAggregatorCall, len(out))
	}

	roundID, ok1 := out[0].(*big.Int)
	answer, ok2 := out[1].(*big.Int)
	updatedAt, ok3 := out[3].(*big.Int)
	if !ok1 || !ok2 || !ok3 {
		return RoundData{}, fmt.Errorf("%w: unexpected latestRoundData types", ErrAggregatorCall)
	}

	return RoundData{
		RoundID:   roundID,
		Answer:    answer,
		Decimals:  decimals,
		UpdatedAt: time.Unix(updatedAt.Int64(), 0).UTC(),
	}, nil
}

// loadDecimals reads decimals() once and caches it; feed precision does not
// change for a deployed aggregator.
func (f *AggregatorFeed) loadDecimals(ctx context.Context) (uint8, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.decimals != nil {
		return *f.decimals, nil
	}

	out, err := f.call(ctx, "decimals")
	if err != nil {
		return 0, err
	}

	if len(out) != 1 {
		return 0, fmt.Errorf("%w: decimals returned %d values", ErrAggregatorCall, len(out))
	}

	decimals, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("%w: unexpected decimals type %T", ErrAggregatorCall, out[0])
	}

	f.decimals = &decimals

	return decimals, nil
}

func (f *AggregatorFeed) call(ctx context.Context, method string) ([]interface{}, error) {
	data, err := f.abi.Pack(method)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to pack %s", method)
	}

	raw, err := f.caller.CallContract(ctx, ethereum.CallMsg{To: &f.address, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %s", ErrAggregatorCall, method, err)
	}

	out, err := f.abi.Unpack(method, raw)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to unpack %s", method)
	}

	return out, nil
}
