// Package bolt adapts an embedded bbolt database to the engine port.
// It is the deployment alternative to the log-structured engine and
// offers the same three-operation capability set.
package bolt

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/anthanhphan/go-kvs/internal/kv/config"
	"github.com/anthanhphan/go-kvs/internal/kv/domain"
	"github.com/anthanhphan/go-kvs/internal/kv/port"
	bbolt "go.etcd.io/bbolt"
)

const dbFileName = "kv.db"

var bucketName = []byte("kv")

// Store implements port.Engine on top of bbolt. Durability comes from
// bbolt's committed transactions, so every successful Set/Remove is
// already on stable storage.
type Store struct {
	dir string
	db  *bbolt.DB
}

var _ port.Engine = (*Store)(nil)

// Open opens (or creates) the database file inside cfg.DataDir.
func Open(cfg config.StoreConfig) (*Store, error) {
	path := filepath.Join(filepath.Clean(cfg.DataDir), dbFileName)
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}
	return &Store{dir: filepath.Clean(cfg.DataDir), db: db}, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), []byte(value))
	})
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var (
		value string
		found bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketName).Get([]byte(key)); v != nil {
			value = string(v)
			found = true
		}
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return value, found, nil
}

func (s *Store) Remove(ctx context.Context, key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b.Get([]byte(key)) == nil {
			return port.ErrKeyNotFound
		}
		return b.Delete([]byte(key))
	})
}

// Stats reports a snapshot for the health endpoint. Segment and
// uncompacted counters do not apply to a B-tree store.
func (s *Store) Stats() domain.Stats {
	stats := domain.Stats{Engine: config.EngineBolt, DataDir: s.dir}
	_ = s.db.View(func(tx *bbolt.Tx) error {
		stats.LiveKeys = tx.Bucket(bucketName).Stats().KeyN
		return nil
	})
	return stats
}

func (s *Store) Close() error {
	return s.db.Close()
}
