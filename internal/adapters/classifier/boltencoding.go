package classifier

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	bolt "go.etcd.io/bbolt"

	"github.com/N-MohammedShakeel/DDoS-Detection-System/internal/domain"
	"github.com/N-MohammedShakeel/DDoS-Detection-System/pkg/bloomfilter"
	"github.com/N-MohammedShakeel/DDoS-Detection-System/pkg/lru"
)

var EncodingBucket = []byte("encoding")

type BoltEncodingConfig struct {
	Path              string
	FalsePositiveRate float64
	HotCacheSize      int
}

// BoltEncoding serves large source vocabularies from a read-only bbolt file.
// Most monitored sources are unseen, so a Bloom filter answers those without
// touching the database; recent hits are kept in an LRU cache.
type BoltEncoding struct {
	db       *bolt.DB
	bloom    *bloomfilter.BloomFilter
	hotCache *lru.Cache[string, int]
	count    int
}

func OpenBoltEncoding(config BoltEncodingConfig) (*BoltEncoding, error) {
	if _, err := os.Stat(config.Path); errors.Is(err, fs.ErrNotExist) {
		return nil, &domain.MissingArtifactError{Component: "encoding", Path: config.Path, Err: err}
	}
	if config.FalsePositiveRate <= 0 {
		config.FalsePositiveRate = 0.01
	}
	if config.HotCacheSize <= 0 {
		config.HotCacheSize = 1000
	}

	db, err := bolt.Open(config.Path, 0400, &bolt.Options{
		ReadOnly: true,
		Timeout:  time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("open encoding db: %w", err)
	}

	var count int
	err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(EncodingBucket)
		if b == nil {
			return fmt.Errorf("bucket %q not found", EncodingBucket)
		}
		count = b.Stats().KeyN
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open encoding db: %w", err)
	}

	e := &BoltEncoding{
		db:       db,
		bloom:    bloomfilter.New(uint(max(count, 1)), config.FalsePositiveRate),
		hotCache: lru.New[string, int](config.HotCacheSize),
		count:    count,
	}
	if err := e.rebuildBloom(); err != nil {
		db.Close()
		return nil, err
	}

	log.Info().
		Str("path", config.Path).
		Int("sources", count).
		Float64("bloom_fill", e.bloom.FillRatio()).
		Msg("Source encoding opened")

	return e, nil
}

func (e *BoltEncoding) rebuildBloom() error {
	return e.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(EncodingBucket).ForEach(func(k, _ []byte) error {
			e.bloom.Add(k)
			return nil
		})
	})
}

func (e *BoltEncoding) Encode(sourceID string) int {
	key := []byte(sourceID)
	if !e.bloom.Contains(key) {
		return domain.UnseenSource
	}
	if idx, ok := e.hotCache.Get(sourceID); ok {
		return idx
	}

	idx := domain.UnseenSource
	e.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(EncodingBucket).Get(key)
		if len(v) == 8 {
			idx = int(binary.BigEndian.Uint64(v))
		}
		return nil
	})
	if idx != domain.UnseenSource {
		e.hotCache.Put(sourceID, idx)
	}
	return idx
}

func (e *BoltEncoding) Size() int {
	return e.count
}

func (e *BoltEncoding) Close() error {
	if e.db == nil {
		return nil
	}
	return e.db.Close()
}

// BuildBoltEncoding writes classes to a new bbolt file at path. The index of
// each class is its position in classes.
func BuildBoltEncoding(path string, classes []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return fmt.Errorf("create encoding db: %w", err)
	}
	defer db.Close()

	return db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(EncodingBucket) != nil {
			if err := tx.DeleteBucket(EncodingBucket); err != nil {
				return err
			}
		}
		b, err := tx.CreateBucket(EncodingBucket)
		if err != nil {
			return err
		}
		for i, c := range classes {
			if b.Get([]byte(c)) != nil {
				return fmt.Errorf("duplicate source %q in encoding", c)
			}
			// bbolt keeps value slices until commit; one buffer per entry.
			v := make([]byte, 8)
			binary.BigEndian.PutUint64(v, uint64(i))
			if err := b.Put([]byte(c), v); err != nil {
				return err
			}
		}
		return nil
	})
}

// ConvertEncoding reads a JSON encoding and writes it as a bbolt file.
func ConvertEncoding(jsonPath, boltPath string) (int, error) {
	classes, err := readEncodingClasses(jsonPath)
	if err != nil {
		return 0, err
	}
	if err := BuildBoltEncoding(boltPath, classes); err != nil {
		return 0, err
	}
	return len(classes), nil
}
