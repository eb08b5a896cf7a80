package activity

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/clovenbradshaw-ctrl/eosync/pkg/errors"
	"github.com/clovenbradshaw-ctrl/eosync/pkg/record"
)

var (
	// BoltDB bucket names
	bucketRecords = []byte("records") // key: big-endian UnixNano + record id
	bucketIDs     = []byte("ids")     // key: record id, for dedup
)

// BoltLog is a bbolt-backed activity log. Records are stored under keys
// ordered by creation time so range scans come back in replay order. The
// store exposes no update or delete API: history is append-only.
type BoltLog struct {
	db *bbolt.DB
}

// OpenBolt opens (creating if needed) a bbolt-backed log at path.
func OpenBolt(path string) (*BoltLog, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.NewIOError("open", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketRecords); err != nil {
			return fmt.Errorf("create records bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists(bucketIDs); err != nil {
			return fmt.Errorf("create ids bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, errors.NewIOError("open", path, err)
	}

	return &BoltLog{db: db}, nil
}

// Close closes the underlying database.
func (b *BoltLog) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

// Append stores a record, ignoring ids already present.
func (b *BoltLog) Append(_ context.Context, rec record.ChangeRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.NewIOError("append", b.db.Path(), err)
	}

	err = b.db.Update(func(tx *bbolt.Tx) error {
		ids := tx.Bucket(bucketIDs)
		if ids.Get([]byte(rec.ID)) != nil {
			return nil // duplicate delivery
		}
		if err := ids.Put([]byte(rec.ID), []byte{1}); err != nil {
			return err
		}
		return tx.Bucket(bucketRecords).Put(recordKey(rec), data)
	})
	if err != nil {
		return errors.NewIOError("append", b.db.Path(), err)
	}
	return nil
}

// Records returns matching records oldest first.
func (b *BoltLog) Records(_ context.Context, q Query) ([]record.ChangeRecord, error) {
	var out []record.ChangeRecord

	err := b.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketRecords).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var rec record.ChangeRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode record %s: %w", k, err)
			}
			if matches(rec, q) {
				out = append(out, rec)
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.NewIOError("query", b.db.Path(), err)
	}

	// Cursor order is already (CreatedAt, ID); no re-sort needed.
	return paginate(out, q), nil
}

// Snapshot returns the last record for the entity at or before the given
// instant.
func (b *BoltLog) Snapshot(_ context.Context, entityID string, at time.Time) (record.ChangeRecord, error) {
	var found *record.ChangeRecord

	err := b.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketRecords).Cursor()
		// Seek just past the cutoff, then walk backward.
		cutoff := append(timeKey(at), 0xff)
		k, v := c.Seek(cutoff)
		if k == nil {
			k, v = c.Last()
		}
		for ; k != nil; k, v = c.Prev() {
			var rec record.ChangeRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode record %s: %w", k, err)
			}
			if rec.EntityID == entityID && !rec.CreatedAt.After(at) {
				found = &rec
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return record.ChangeRecord{}, errors.NewIOError("snapshot", b.db.Path(), err)
	}
	if found == nil {
		return record.ChangeRecord{}, errors.ErrNoSnapshot
	}
	return *found, nil
}

// recordKey orders records by creation time; the id suffix keeps keys
// unique when timestamps collide. The timestamp is fixed-width so lexical
// key order is chronological.
func recordKey(rec record.ChangeRecord) []byte {
	return append(timeKey(rec.CreatedAt), rec.ID...)
}

// timeKey encodes an instant as 8 big-endian bytes. Flipping the sign bit
// keeps pre-epoch instants sorting before post-epoch ones.
func timeKey(t time.Time) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(t.UnixNano())^(1<<63))
	return k
}
