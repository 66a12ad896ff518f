package bbolt

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Genosoo/expoasia-web-app/lib/store"
	"go.etcd.io/bbolt"
)

// Sentinel error values used for testing and in admin-visible error messages.
var (
	ErrBucketDoesNotExist = errors.New("bbolt: bucket does not exist")
	ErrCorruptRecord      = errors.New("bbolt: record is shorter than its expiry header")
)

var bucketName = []byte("expoasia")

// headerLen is the size of the expiry header in front of every value.
const headerLen = 8

// Store implements store.Interface backed by bbolt[1].
//
// All values live in a single bucket. Each record is the expiry time as a
// big-endian unix nanosecond timestamp followed by the raw value bytes, so
// the cleanup pass only has to read the first eight bytes of each record.
//
// bbolt takes an exclusive file lock, so it is not suitable when several
// portal instances share state. Use the valkey backend for that.
//
// [1]: https://github.com/etcd-io/bbolt
type Store struct {
	bdb *bbolt.DB
	now func() time.Time
}

func encodeRecord(expires time.Time, value []byte) []byte {
	buf := make([]byte, headerLen+len(value))
	binary.BigEndian.PutUint64(buf, uint64(expires.UnixNano()))
	copy(buf[headerLen:], value)
	return buf
}

func decodeExpiry(record []byte) (time.Time, error) {
	if len(record) < headerLen {
		return time.Time{}, ErrCorruptRecord
	}

	return time.Unix(0, int64(binary.BigEndian.Uint64(record[:headerLen]))), nil
}

// Delete a key from the datastore. If the key does not exist or has
// already expired, return store.ErrNotFound.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.bdb.Update(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(bucketName)
		if bkt == nil {
			return ErrBucketDoesNotExist
		}

		record := bkt.Get([]byte(key))
		if record == nil {
			return fmt.Errorf("%w: %q", store.ErrNotFound, key)
		}

		expiry, err := decodeExpiry(record)
		if err := bkt.Delete([]byte(key)); err != nil {
			return err
		}

		if err != nil || s.now().After(expiry) {
			return fmt.Errorf("%w: %q", store.ErrNotFound, key)
		}

		return nil
	})
}

// Get a value from the datastore. Expired values are reported as missing
// and left for the cleanup pass.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var result []byte

	if err := s.bdb.View(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(bucketName)
		if bkt == nil {
			return ErrBucketDoesNotExist
		}

		record := bkt.Get([]byte(key))
		if record == nil {
			return fmt.Errorf("%w: %q", store.ErrNotFound, key)
		}

		expiry, err := decodeExpiry(record)
		if err != nil {
			return fmt.Errorf("[unexpected] %w: %q: %w", store.ErrCantDecode, key, err)
		}

		if s.now().After(expiry) {
			return fmt.Errorf("%w: %q", store.ErrNotFound, key)
		}

		// bbolt memory is only valid for the life of the transaction.
		result = make([]byte, len(record)-headerLen)
		copy(result, record[headerLen:])

		return nil
	}); err != nil {
		return nil, err
	}

	return result, nil
}

// Set a value into the store with a given expiry.
func (s *Store) Set(ctx context.Context, key string, value []byte, expiry time.Duration) error {
	record := encodeRecord(s.now().Add(expiry), value)

	return s.bdb.Update(func(tx *bbolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return fmt.Errorf("%w: %w (create bucket)", store.ErrCantEncode, err)
		}

		if err := bkt.Put([]byte(key), record); err != nil {
			return fmt.Errorf("%w: %q: %w", store.ErrCantEncode, key, err)
		}

		return nil
	})
}

func (s *Store) cleanup() (int, error) {
	now := s.now()
	var deleted int

	err := s.bdb.Update(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(bucketName)
		if bkt == nil {
			return nil
		}

		var stale [][]byte
		if err := bkt.ForEach(func(key, record []byte) error {
			expiry, err := decodeExpiry(record)
			if err != nil {
				slog.Warn("dropping corrupt record during cleanup", "key", string(key), "err", err)
			}

			if err != nil || now.After(expiry) {
				stale = append(stale, append([]byte(nil), key...))
			}

			return nil
		}); err != nil {
			return err
		}

		for _, key := range stale {
			if err := bkt.Delete(key); err != nil {
				return err
			}
		}

		deleted = len(stale)
		return nil
	})

	return deleted, err
}

func (s *Store) cleanupThread(ctx context.Context) {
	t := time.NewTicker(5 * time.Minute)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := s.bdb.Close(); err != nil {
				slog.Error("can't close bbolt database", "err", err)
			}
			return
		case <-t.C:
			n, err := s.cleanup()
			if err != nil {
				slog.Error("error during bbolt cleanup", "err", err)
				continue
			}
			slog.Debug("bbolt cleanup finished", "deleted", n)
		}
	}
}
