package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"

	"github.com/smartcontractkit/automation-prize-payout/pkg/payout"
)

// stateKey is where the single payout state record is kept.
var stateKey = []byte("payout/state")

var (
	ErrEncoding = fmt.Errorf("encoding/decoding failure")
)

// Memory keeps the encoded state in process memory. Values round-trip
// through the same encoding as LevelDB so both stores behave alike.
type Memory struct {
	mu     sync.RWMutex
	data   []byte
	nonces map[string]time.Time
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Load() (payout.PayoutState, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.data == nil {
		return payout.PayoutState{}, false, nil
	}

	state, err := decode(m.data)
	if err != nil {
		return payout.PayoutState{}, false, err
	}

	return state, true, nil
}

func (m *Memory) Save(state payout.PayoutState) error {
	bts, err := encode(state)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.data = bts

	return nil
}

// LevelDB persists the payout state and used admin request nonces in a
// LevelDB database on disk.
type LevelDB struct {
	db      *leveldb.DB
	nonceMu sync.Mutex
}

// OpenLevelDB creates or opens a LevelDB database at path.
func OpenLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open leveldb at %s", path)
	}

	return &LevelDB{db: db}, nil
}

func (l *LevelDB) Load() (payout.PayoutState, bool, error) {
	bts, err := l.db.Get(stateKey, nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return payout.PayoutState{}, false, nil
		}
		return payout.PayoutState{}, false, errors.Wrap(err, "failed to read state")
	}

	state, err := decode(bts)
	if err != nil {
		return payout.PayoutState{}, false, err
	}

	return state, true, nil
}

func (l *LevelDB) Save(state payout.PayoutState) error {
	bts, err := encode(state)
	if err != nil {
		return err
	}

	if err := l.db.Put(stateKey, bts, nil); err != nil {
		return errors.Wrap(err, "failed to write state")
	}

	return nil
}

func (l *LevelDB) Close() error {
	return l.db.Close()
}

func encode(state payout.PayoutState) ([]byte, error) {
	bts, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode payout state: %s", ErrEncoding, err.Error())
	}

	return bts, nil
}

func decode(bts []byte) (payout.PayoutState, error) {
	var state payout.PayoutState

	if err := json.Unmarshal(bts, &state); err != nil {
		return state, fmt.Errorf("%w: failed to decode payout state: %s", ErrEncoding, err.Error())
	}

	return state, nil
}
