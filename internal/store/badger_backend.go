package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	apperrors "sbvc/internal/errors"

	"github.com/dgraph-io/badger/v4"
)

const (
	versionPrefix   = "version:"
	keyFormat       = "meta:format"
	keyTrackedFile  = "meta:tracked_file"
	keyCurrent      = "meta:current"
	keyNextID       = "meta:next_id"
	badgerFormatTag = "1"
)

// BadgerBackend keeps the state in a badger database directory. Each Save is
// a single transaction that writes only the version keys that changed since
// the last Load or Save, so its size does not grow with the history.
type BadgerBackend struct {
	db *badger.DB

	// saved maps version keys to the encoding last known to be in the
	// database. nil until the first Load or Save.
	saved map[string][]byte
}

// getDBOptions returns badger options for a store directory. An in-memory
// database ignores dir.
func getDBOptions(dir string, inMemory bool) badger.Options {
	if inMemory {
		return badger.DefaultOptions("").
			WithInMemory(true).
			WithNumVersionsToKeep(1).
			WithLogger(nil)
	}
	return badger.DefaultOptions(dir).
		WithNumVersionsToKeep(1).
		WithLoggingLevel(badger.WARNING).
		WithLogger(nil)
}

func OpenBadgerBackend(dir string, inMemory bool) (*BadgerBackend, error) {
	if !inMemory {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, apperrors.IO("creating store directory", err)
		}
	}

	db, err := badger.Open(getDBOptions(dir, inMemory))
	if err != nil {
		return nil, apperrors.IO("opening store database", err)
	}
	return &BadgerBackend{db: db}, nil
}

func makeVersionKey(id uint32) []byte {
	return []byte(fmt.Sprintf("%s%010d", versionPrefix, id))
}

func (b *BadgerBackend) Load() (*State, error) {
	var state State
	saved := make(map[string][]byte)

	err := b.db.View(func(txn *badger.Txn) error {
		format, err := getString(txn, keyFormat)
		if err == badger.ErrKeyNotFound {
			return apperrors.NotFound("store database is empty", err)
		}
		if err != nil {
			return err
		}
		if format != badgerFormatTag {
			return apperrors.MalformedStore("unsupported store format %q", format)
		}

		if state.TrackedFile, err = getString(txn, keyTrackedFile); err != nil {
			return apperrors.MalformedStore("reading tracked file: %v", err)
		}
		if state.Current, err = getUint32(txn, keyCurrent); err != nil {
			return apperrors.MalformedStore("reading current version: %v", err)
		}
		if state.NextID, err = getUint32(txn, keyNextID); err != nil {
			return apperrors.MalformedStore("reading next id: %v", err)
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(versionPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				var v Version
				if err := json.Unmarshal(val, &v); err != nil {
					return apperrors.MalformedStore("decoding %s: %v", item.Key(), err)
				}
				if string(item.Key()) != string(makeVersionKey(v.ID)) {
					return apperrors.MalformedStore("key %s holds version %d", item.Key(), v.ID)
				}
				state.Versions = append(state.Versions, v)
				saved[string(item.Key())] = bytes.Clone(val)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if apperrors.TypeOf(err) != "" {
			return nil, err
		}
		return nil, apperrors.IO("loading store", err)
	}

	b.saved = saved
	return &state, nil
}

func (b *BadgerBackend) Save(state *State) error {
	values := make(map[string][]byte, len(state.Versions))
	for _, v := range state.Versions {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshaling version %d: %w", v.ID, err)
		}
		values[string(makeVersionKey(v.ID))] = data
	}

	err := b.db.Update(func(txn *badger.Txn) error {
		var stale [][]byte
		if b.saved == nil {
			// Nothing is known about the database yet: look for leftovers.
			opts := badger.DefaultIteratorOptions
			opts.Prefix = []byte(versionPrefix)
			opts.PrefetchValues = false
			it := txn.NewIterator(opts)
			for it.Rewind(); it.Valid(); it.Next() {
				if key := it.Item().KeyCopy(nil); values[string(key)] == nil {
					stale = append(stale, key)
				}
			}
			it.Close()
		} else {
			for key := range b.saved {
				if values[key] == nil {
					stale = append(stale, []byte(key))
				}
			}
		}

		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		for key, data := range values {
			if prev, ok := b.saved[key]; ok && bytes.Equal(prev, data) {
				continue
			}
			if err := txn.Set([]byte(key), data); err != nil {
				return err
			}
		}

		meta := map[string]string{
			keyFormat:      badgerFormatTag,
			keyTrackedFile: state.TrackedFile,
			keyCurrent:     strconv.FormatUint(uint64(state.Current), 10),
			keyNextID:      strconv.FormatUint(uint64(state.NextID), 10),
		}
		for key, val := range meta {
			if err := txn.Set([]byte(key), []byte(val)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return apperrors.IO("saving store", err)
	}

	b.saved = values
	return nil
}

// Empty reports whether the database holds no store yet.
func (b *BadgerBackend) Empty() (bool, error) {
	err := b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(keyFormat))
		return err
	})
	if err == badger.ErrKeyNotFound {
		return true, nil
	}
	if err != nil {
		return false, apperrors.IO("checking store database", err)
	}
	return false, nil
}

func (b *BadgerBackend) Close() error {
	return b.db.Close()
}

func getString(txn *badger.Txn, key string) (string, error) {
	item, err := txn.Get([]byte(key))
	if err != nil {
		return "", err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return "", err
	}
	return string(val), nil
}

func getUint32(txn *badger.Txn, key string) (uint32, error) {
	s, err := getString(txn, key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(n), nil
}
