// Package storage persists feature tables as BoltDB snapshots. A snapshot is
// produced once by the import command and then opened read-only by the
// service, which avoids re-parsing a large CSV file on every start.
package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"credit-scorer/internal/common"

	"go.etcd.io/bbolt"
)

const (
	clientsBucket = "clients" // Bucket name for client rows, keyed by load position
	metaBucket    = "meta"    // Bucket name for table metadata
)

// Store provides access to a feature table snapshot in BoltDB.
type Store struct {
	db *bbolt.DB
}

// New opens or creates a snapshot file for writing and ensures the buckets
// exist.
func New(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(clientsBucket)); err != nil {
			return fmt.Errorf("create clients bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(metaBucket)); err != nil {
			return fmt.Errorf("create meta bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Open opens an existing snapshot read-only. A missing file is a
// configuration error.
func Open(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: feature snapshot: %w", common.ErrConfiguration, err)
		}
		return nil, fmt.Errorf("stat feature snapshot: %w", err)
	}

	db, err := bbolt.Open(path, 0o400, &bbolt.Options{Timeout: 1 * time.Second, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("%w: open feature snapshot %s: %w", common.ErrConfiguration, path, err)
	}
	return &Store{db: db}, nil
}

// Close closes the database. Closing twice is safe.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the snapshot file path.
func (s *Store) Path() string {
	return s.db.Path()
}
