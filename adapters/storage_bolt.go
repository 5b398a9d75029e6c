package adapters

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	bolt "go.etcd.io/bbolt"

	"popfork/domain"
	"popfork/errors"
	"popfork/ports"
)

var (
	bucketBlocks = []byte("blocks")
	bucketMeta   = []byte("meta")
	keyTip       = []byte("tip")
)

// BoltBlockStore persists blocks as JSON values keyed by block hash.
type BoltBlockStore struct {
	db *bolt.DB
}

var _ ports.BlockStore = (*BoltBlockStore)(nil)

// OpenBoltBlockStore opens (creating if needed) blocks.db under dir.
func OpenBoltBlockStore(dir string) (*BoltBlockStore, error) {
	if dir == "" {
		return nil, errors.BadRequest.With("data dir required")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.InternalError.WithFormat("open block store: create %q: %w", dir, err)
	}
	db, err := bolt.Open(filepath.Join(dir, "blocks.db"), 0600, nil)
	if err != nil {
		return nil, errors.InternalError.WithFormat("open block store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketBlocks, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.InternalError.WithFormat("open block store: %w", err)
	}
	return &BoltBlockStore{db: db}, nil
}

func (s *BoltBlockStore) PutBlock(b *domain.Block) error {
	data, err := json.Marshal(b)
	if err != nil {
		return errors.InternalError.WithFormat("encode block: %w", err)
	}
	hash := b.Hash()
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBlocks).Put(hash[:], data)
	})
}

func (s *BoltBlockStore) GetBlock(hash chainhash.Hash) (*domain.Block, error) {
	var b *domain.Block
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketBlocks).Get(hash[:])
		if v == nil {
			return errors.NotFound.WithFormat("block %v not stored", hash)
		}
		var err error
		b, err = decodeBlock(v)
		return err
	})
	return b, err
}

func (s *BoltBlockStore) Blocks() ([]*domain.Block, error) {
	var out []*domain.Block
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBlocks).ForEach(func(_, v []byte) error {
			b, err := decodeBlock(v)
			if err != nil {
				return err
			}
			out = append(out, b)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortByHeight(out)
	return out, nil
}

func (s *BoltBlockStore) SetTip(hash chainhash.Hash) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(keyTip, hash[:])
	})
}

func (s *BoltBlockStore) Tip() (chainhash.Hash, bool, error) {
	var tip chainhash.Hash
	var ok bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketMeta).Get(keyTip)
		if v == nil {
			return nil
		}
		if len(v) != chainhash.HashSize {
			return errors.InternalError.WithFormat("stored tip has %d bytes", len(v))
		}
		copy(tip[:], v)
		ok = true
		return nil
	})
	return tip, ok, err
}

func (s *BoltBlockStore) Close() error { return s.db.Close() }

func decodeBlock(v []byte) (*domain.Block, error) {
	b := new(domain.Block)
	if err := json.Unmarshal(v, b); err != nil {
		return nil, errors.InternalError.WithFormat("decode block: %w", err)
	}
	return b, nil
}
