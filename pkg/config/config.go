package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/smartcontractkit/automation-prize-payout/pkg/payout"
)

var (
	ErrEncoding = fmt.Errorf("encoding/decoding failure")
	ErrInvalid  = fmt.Errorf("invalid configuration")
)

// PrivateKeyEnv overrides Payee.PrivateKey so keys can stay out of files.
const PrivateKeyEnv = "PAYOUT_PAYEE_PRIVATE_KEY"

const (
	OracleAggregator = "aggregator"
	OracleHTTP       = "http"
	OracleStatic     = "static"

	PayeeSimulated = "simulated"
	PayeeEVM       = "evm"

	StoreMemory  = "memory"
	StoreLevelDB = "leveldb"
)

// Service is the full configuration of the payout daemon.
type Service struct {
	Contract Contract `json:"contract" yaml:"contract"`
	Oracle   Oracle   `json:"oracle" yaml:"oracle"`
	Keeper   Keeper   `json:"keeper" yaml:"keeper"`
	Payee    Payee    `json:"payee" yaml:"payee"`
	Store    Store    `json:"store" yaml:"store"`
	HTTP     HTTP     `json:"http" yaml:"http"`
	// AuditLog is a file receiving one JSON line per keeper poll. Empty
	// disables the audit trail.
	AuditLog string `json:"auditLog" yaml:"auditLog"`
}

// Contract holds the genesis parameters and scheduling intervals.
type Contract struct {
	Owner             string `json:"owner" yaml:"owner"`
	AuthorizedTrigger string `json:"authorizedTrigger" yaml:"authorizedTrigger"`
	Winner            string `json:"winner" yaml:"winner"`
	// PrizeUSD is a decimal dollar amount such as "100.00".
	PrizeUSD        string   `json:"prizeUsd" yaml:"prizeUsd"`
	CheckInterval   Duration `json:"checkInterval" yaml:"checkInterval"`
	TriggerInterval Duration `json:"triggerInterval" yaml:"triggerInterval"`
	// InitialDeposit is credited in wei when a new contract is created, for
	// funds already held by the payee wallet.
	InitialDeposit string `json:"initialDeposit" yaml:"initialDeposit"`
}

type Oracle struct {
	Kind string `json:"kind" yaml:"kind"`
	// RPCURL and Address locate an on-chain aggregator.
	RPCURL  string `json:"rpcUrl" yaml:"rpcUrl"`
	Address string `json:"address" yaml:"address"`
	// URL is the JSON price endpoint for the http kind.
	URL               string  `json:"url" yaml:"url"`
	RequestsPerSecond float64 `json:"requestsPerSecond" yaml:"requestsPerSecond"`
	// StaticPrice is a decimal dollar price for the static kind.
	StaticPrice string   `json:"staticPrice" yaml:"staticPrice"`
	Timeout     Duration `json:"timeout" yaml:"timeout"`
	MaxAge      Duration `json:"maxAge" yaml:"maxAge"`
}

type Keeper struct {
	// Identity is the address the poller triggers upkeeps as. Defaults to
	// the contract's authorized trigger.
	Identity     string   `json:"identity" yaml:"identity"`
	PollInterval Duration `json:"pollInterval" yaml:"pollInterval"`
	// Schedule is a cron expression used instead of PollInterval when set.
	Schedule    string   `json:"schedule" yaml:"schedule"`
	RestartWait Duration `json:"restartWait" yaml:"restartWait"`
}

type Payee struct {
	Kind       string   `json:"kind" yaml:"kind"`
	RPCURL     string   `json:"rpcUrl" yaml:"rpcUrl"`
	ChainID    int64    `json:"chainId" yaml:"chainId"`
	PrivateKey string   `json:"privateKey" yaml:"privateKey"`
	GasLimit   uint64   `json:"gasLimit" yaml:"gasLimit"`
	Receipt    Duration `json:"receiptTimeout" yaml:"receiptTimeout"`
	// Reject lists simulated recipients that refuse transfers.
	Reject []string `json:"reject" yaml:"reject"`
}

type Store struct {
	Kind string `json:"kind" yaml:"kind"`
	Path string `json:"path" yaml:"path"`
}

type HTTP struct {
	Listen       string   `json:"listen" yaml:"listen"`
	MaxClockSkew Duration `json:"maxClockSkew" yaml:"maxClockSkew"`
	// ReadTimeout bounds reading a full request. The write timeout is
	// derived from it plus the oracle and receipt timeouts.
	ReadTimeout Duration `json:"readTimeout" yaml:"readTimeout"`
	IdleTimeout Duration `json:"idleTimeout" yaml:"idleTimeout"`
}

// Default returns a configuration with every optional value filled in.
func Default() Service {
	return Service{
		Contract: Contract{
			CheckInterval:   Duration(payout.DefaultCheckInterval),
			TriggerInterval: Duration(payout.DefaultTriggerInterval),
		},
		Oracle: Oracle{
			Kind:    OracleAggregator,
			Timeout: Duration(10 * time.Second),
			MaxAge:  Duration(24 * time.Hour),
		},
		Keeper: Keeper{
			PollInterval: Duration(time.Hour),
			RestartWait:  Duration(10 * time.Second),
		},
		Payee: Payee{
			Kind:    PayeeSimulated,
			Receipt: Duration(2 * time.Minute),
		},
		Store: Store{
			Kind: StoreMemory,
		},
		HTTP: HTTP{
			Listen:       ":8080",
			MaxClockSkew: Duration(5 * time.Minute),
			ReadTimeout:  Duration(30 * time.Second),
			IdleTimeout:  Duration(2 * time.Minute),
		},
	}
}

// Load reads a JSON or YAML (by .yaml/.yml extension) file over the
// defaults and applies environment overrides.
func Load(path string) (Service, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Service{}, fmt.Errorf("read config: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))

	return Decode(data, ext == ".yaml" || ext == ".yml")
}

// Decode parses an encoded configuration over the defaults.
func Decode(data []byte, isYAML bool) (Service, error) {
	conf := Default()

	if isYAML {
		if err := yaml.Unmarshal(data, &conf); err != nil {
			return conf, fmt.Errorf("%w: failed to decode yaml config: %s", ErrEncoding, err.Error())
		}
	} else {
		if err := json.Unmarshal(data, &conf); err != nil {
			return conf, fmt.Errorf("%w: failed to decode json config: %s", ErrEncoding, err.Error())
		}
	}

	if v := os.Getenv(PrivateKeyEnv); v != "" {
		conf.Payee.PrivateKey = v
	}

	return conf, conf.Validate()
}

func (s Service) Validate() error {
	if _, err := s.Contract.Genesis(); err != nil {
		return err
	}

	if s.Contract.CheckInterval <= 0 || s.Contract.TriggerInterval <= 0 {
		return fmt.Errorf("%w: check and trigger intervals must be positive", ErrInvalid)
	}

	if s.Contract.InitialDeposit != "" {
		if _, err := s.Contract.Deposit(); err != nil {
			return err
		}
	}

	switch s.Oracle.Kind {
	case OracleAggregator:
		if s.Oracle.RPCURL == "" || !common.IsHexAddress(s.Oracle.Address) {
			return fmt.Errorf("%w: aggregator oracle requires rpcUrl and address", ErrInvalid)
		}
	case OracleHTTP:
		if s.Oracle.URL == "" {
			return fmt.Errorf("%w: http oracle requires url", ErrInvalid)
		}
	case OracleStatic:
		if _, err := payout.ParseUSD(s.Oracle.StaticPrice); err != nil {
			return fmt.Errorf("%w: static oracle price: %s", ErrInvalid, err)
		}
	default:
		return fmt.Errorf("%w: unknown oracle kind %q", ErrInvalid, s.Oracle.Kind)
	}

	if s.Keeper.Identity != "" && !common.IsHexAddress(s.Keeper.Identity) {
		return fmt.Errorf("%w: keeper identity is not an address", ErrInvalid)
	}

	if s.Keeper.Schedule == "" && s.Keeper.PollInterval <= 0 {
		return fmt.Errorf("%w: keeper needs a poll interval or schedule", ErrInvalid)
	}

	switch s.Payee.Kind {
	case PayeeSimulated:
		for _, addr := range s.Payee.Reject {
			if !common.IsHexAddress(addr) {
				return fmt.Errorf("%w: reject entry %q is not an address", ErrInvalid, addr)
			}
		}
	case PayeeEVM:
		if s.Payee.RPCURL == "" || s.Payee.PrivateKey == "" {
			return fmt.Errorf("%w: evm payee requires rpcUrl and privateKey", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown payee kind %q", ErrInvalid, s.Payee.Kind)
	}

	if s.HTTP.ReadTimeout <= 0 || s.HTTP.IdleTimeout <= 0 {
		return fmt.Errorf("%w: http read and idle timeouts must be positive", ErrInvalid)
	}

	switch s.Store.Kind {
	case StoreMemory:
	case StoreLevelDB:
		if s.Store.Path == "" {
			return fmt.Errorf("%w: leveldb store requires path", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown store kind %q", ErrInvalid, s.Store.Kind)
	}

	return nil
}

// Genesis parses the contract creation parameters.
func (c Contract) Genesis() (payout.Genesis, error) {
	var genesis payout.Genesis

	for _, field := range []struct {
		name string
		raw  string
		dst  *common.Address
	}{
		{"owner", c.Owner, &genesis.Owner},
		{"authorizedTrigger", c.AuthorizedTrigger, &genesis.AuthorizedTrigger},
		{"winner", c.Winner, &genesis.Winner},
	} {
		if !common.IsHexAddress(field.raw) {
			return genesis, fmt.Errorf("%w: contract %s %q is not an address", ErrInvalid, field.name, field.raw)
		}

		*field.dst = common.HexToAddress(field.raw)
		if *field.dst == (common.Address{}) {
			return genesis, fmt.Errorf("%w: contract %s must not be the zero address", ErrInvalid, field.name)
		}
	}

	prize, err := payout.ParseUSD(c.PrizeUSD)
	if err != nil {
		return genesis, fmt.Errorf("%w: prizeUsd: %s", ErrInvalid, err)
	}

	if prize.Sign() <= 0 {
		return genesis, fmt.Errorf("%w: prizeUsd must be positive", ErrInvalid)
	}

	genesis.PrizeUSD = prize

	return genesis, nil
}

func (c Contract) Intervals() payout.Intervals {
	return payout.Intervals{
		Check:   c.CheckInterval.Value(),
		Trigger: c.TriggerInterval.Value(),
	}
}

// Deposit parses InitialDeposit as wei. Empty means zero.
func (c Contract) Deposit() (*big.Int, error) {
	if c.InitialDeposit == "" {
		return new(big.Int), nil
	}

	v, ok := new(big.Int).SetString(c.InitialDeposit, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%w: initialDeposit %q is not a non-negative integer", ErrInvalid, c.InitialDeposit)
	}

	return v, nil
}

type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	return d.parse(raw)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}

	return d.parse(raw)
}

func (d *Duration) parse(raw string) error {
	p, err := time.ParseDuration(raw)
	if err != nil {
		return err
	}

	*d = Duration(p)
	return nil
}

func (d Duration) Value() time.Duration {
	return time.Duration(d)
}
