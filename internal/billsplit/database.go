package billsplit

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const splitsBucket = "splits"

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("split not found")

// DB stores split records.
type DB interface {
	// SaveSplit inserts or replaces a record
	SaveSplit(record *Record) error

	// GetSplit returns ErrNotFound for unknown ids
	GetSplit(id string) (*Record, error)

	ListSplits() ([]*Record, error)

	DeleteSplit(id string) error

	Close() error
}

// BoltDB implements DB on a bbolt file. Records are stored as JSON keyed by id.
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB opens or creates the database at path.
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(splitsBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// SaveSplit inserts or replaces a record.
func (b *BoltDB) SaveSplit(record *Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshaling split %s: %w", record.ID, err)
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(splitsBucket)).Put([]byte(record.ID), data)
	})
}

// GetSplit returns the record with id.
func (b *BoltDB) GetSplit(id string) (*Record, error) {
	var record Record
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(splitsBucket)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &record)
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// ListSplits returns every record in key order.
func (b *BoltDB) ListSplits() ([]*Record, error) {
	records := make([]*Record, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(splitsBucket)).ForEach(func(k, v []byte) error {
			var record Record
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("unmarshaling split %s: %w", k, err)
			}
			records = append(records, &record)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// DeleteSplit removes a record. Deleting an unknown id is not an error.
func (b *BoltDB) DeleteSplit(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(splitsBucket)).Delete([]byte(id))
	})
}

// Close closes the database file.
func (b *BoltDB) Close() error {
	return b.db.Close()
}
