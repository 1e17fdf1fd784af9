package store

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

var (
	noncePrefix    = []byte("nonce/")
	observedPrefix = []byte("observed/")
)

func nonceID(signer common.Address, nonce string) string {
	return strings.ToLower(signer.Hex()) + "/" + nonce
}

// UseNonce records nonce for signer and reports whether it was already
// recorded.
func (m *Memory) UseNonce(signer common.Address, nonce string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.nonces == nil {
		m.nonces = make(map[string]time.Time)
	}

	id := nonceID(signer, nonce)
	if _, seen := m.nonces[id]; seen {
		return true, nil
	}

	m.nonces[id] = at

	return false, nil
}

// PruneNonces forgets nonces recorded before cutoff.
func (m *Memory) PruneNonces(cutoff time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, at := range m.nonces {
		if at.Before(cutoff) {
			delete(m.nonces, id)
		}
	}

	return nil
}

// UseNonce records nonce for signer and reports whether it was already
// recorded. Each nonce is indexed by observation time so PruneNonces can
// walk them in order.
func (l *LevelDB) UseNonce(signer common.Address, nonce string, at time.Time) (bool, error) {
	l.nonceMu.Lock()
	defer l.nonceMu.Unlock()

	id := nonceID(signer, nonce)
	key := append(append([]byte{}, noncePrefix...), id...)

	if _, err := l.db.Get(key, nil); err == nil {
		return true, nil
	} else if !errors.Is(err, leveldb.ErrNotFound) {
		return false, errors.Wrap(err, "failed to read nonce")
	}

	var value [8]byte
	binary.BigEndian.PutUint64(value[:], uint64(at.UnixNano()))

	batch := new(leveldb.Batch)
	batch.Put(key, value[:])
	batch.Put(observedKey(at, id), nil)

	if err := l.db.Write(batch, nil); err != nil {
		return false, errors.Wrap(err, "failed to write nonce")
	}

	return false, nil
}

// PruneNonces deletes nonces observed before cutoff.
func (l *LevelDB) PruneNonces(cutoff time.Time) error {
	l.nonceMu.Lock()
	defer l.nonceMu.Unlock()

	limit := observedKey(cutoff, "")
	batch := new(leveldb.Batch)

	iter := l.db.NewIterator(util.BytesPrefix(observedPrefix), nil)
	for iter.Next() {
		key := iter.Key()
		if string(key) >= string(limit) {
			break
		}

		parts := strings.SplitN(string(key[len(observedPrefix):]), "/", 2)
		if len(parts) == 2 {
			batch.Delete(append(append([]byte{}, noncePrefix...), parts[1]...))
		}

		batch.Delete(append([]byte{}, key...))
	}
	iter.Release()

	if err := iter.Error(); err != nil {
		return errors.Wrap(err, "failed to scan nonces")
	}

	if batch.Len() == 0 {
		return nil
	}

	return errors.Wrap(l.db.Write(batch, nil), "failed to prune nonces")
}

func observedKey(at time.Time, id string) []byte {
	nanos := at.UnixNano()
	if nanos < 0 {
		nanos = 0
	}

	return []byte(fmt.Sprintf("%s%020d/%s", observedPrefix, nanos, id))
}
