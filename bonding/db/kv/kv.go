// Package kv implements the bonding engine database interface using BoltDB
// as the underlying persistent kv-store.
package kv

import (
	"os"
	"path"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

var log = logrus.WithField("prefix", "db")

var databaseFileName = "bonding.db"

// Store defines an implementation of the bonding Database interface using
// BoltDB as the underlying persistent kv-store.
type Store struct {
	db            *bolt.DB
	databasePath  string
	evidenceCache *ristretto.Cache
}

// Config options for the bonding db.
type Config struct {
	// EvidenceCacheItems bounds the number of sealed evidence blobs tracked
	// by the read cache; EvidenceCacheMaxSize bounds its total cost in bytes.
	// Evidence is write-once, so cached blobs can never go stale.
	EvidenceCacheItems   int64
	EvidenceCacheMaxSize int64
}

// NewKVStore initializes a new boltDB key-value store at the directory path
// specified, creates the kv-buckets based on the schema, and stores an open
// connection db object as a property of the Store struct.
func NewKVStore(dirPath string, cfg *Config) (*Store, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if err := os.MkdirAll(dirPath, 0700); err != nil {
		return nil, err
	}
	datafile := path.Join(dirPath, databaseFileName)
	boltDB, err := bolt.Open(datafile, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		if err == bolt.ErrTimeout {
			return nil, errors.New("cannot obtain database lock, database may be in use by another process")
		}
		return nil, err
	}
	if cfg.EvidenceCacheItems == 0 {
		cfg.EvidenceCacheItems = 20000
	}
	if cfg.EvidenceCacheMaxSize == 0 {
		cfg.EvidenceCacheMaxSize = 1 << 28 // 256MB
	}
	kv := &Store{db: boltDB, databasePath: datafile}
	evidenceCache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.EvidenceCacheItems,
		MaxCost:     cfg.EvidenceCacheMaxSize,
		BufferItems: 64,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to start evidence cache")
	}
	kv.evidenceCache = evidenceCache

	if err := kv.db.Update(func(tx *bolt.Tx) error {
		return createBuckets(
			tx,
			bondsBucket,
			bondContextIndexBucket,
			reputationsBucket,
			attestationsBucket,
			attestationBondIndexBucket,
			evidenceBucket,
			slashJobsBucket,
			safetyPoolBucket,
		)
	}); err != nil {
		return nil, err
	}
	if size, err := kv.Size(); err == nil {
		log.WithField("size", humanize.Bytes(uint64(size))).Info("Opened bonding database")
	}
	return kv, nil
}

// Close closes the underlying boltdb database.
func (db *Store) Close() error {
	db.evidenceCache.Clear()
	return db.db.Close()
}

func (db *Store) update(fn func(*bolt.Tx) error) error {
	return db.db.Update(fn)
}

func (db *Store) view(fn func(*bolt.Tx) error) error {
	return db.db.View(fn)
}

// ClearDB removes any previously stored data at the configured data directory.
func (db *Store) ClearDB() error {
	db.evidenceCache.Clear()
	if _, err := os.Stat(db.databasePath); os.IsNotExist(err) {
		return nil
	}
	return os.Remove(db.databasePath)
}

// DatabasePath at which this database writes files.
func (db *Store) DatabasePath() string {
	return db.databasePath
}

// Size returns the db size in bytes.
func (db *Store) Size() (int64, error) {
	var size int64
	err := db.db.View(func(tx *bolt.Tx) error {
		size = tx.Size()
		return nil
	})
	return size, err
}

func createBuckets(tx *bolt.Tx, buckets ...[]byte) error {
	for _, bucket := range buckets {
		if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
			return err
		}
	}
	return nil
}
