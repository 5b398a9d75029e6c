package adapters

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/dgraph-io/badger/v4"

	"popfork/domain"
	"popfork/errors"
	"popfork/ports"
)

// BadgerPayloadStore keeps confirmed PoP payloads keyed by kind and id.
type BadgerPayloadStore struct {
	db *badger.DB
}

var _ ports.PayloadStore = (*BadgerPayloadStore)(nil)

// OpenBadgerPayloadStore opens a store under dir. An empty dir keeps
// everything in memory.
func OpenBadgerPayloadStore(dir string, logger ports.Logger) (*BadgerPayloadStore, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts = opts.WithLogger(badgerLogger{ensureLogger(logger).With("module", "badger")})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.InternalError.WithFormat("open payload store: %w", err)
	}
	return &BadgerPayloadStore{db: db}, nil
}

func payloadKey(kind domain.PayloadKind, id chainhash.Hash) []byte {
	k := make([]byte, 0, 1+chainhash.HashSize)
	k = append(k, byte(kind))
	return append(k, id[:]...)
}

func (s *BadgerPayloadStore) PutPayloads(pd *domain.PopData) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for i := range pd.VbkBlocks {
			if err := putJSON(txn, payloadKey(domain.KindVbkBlock, pd.VbkBlocks[i].ID()), &pd.VbkBlocks[i]); err != nil {
				return err
			}
		}
		for i := range pd.VTBs {
			if err := putJSON(txn, payloadKey(domain.KindVTB, pd.VTBs[i].ID()), &pd.VTBs[i]); err != nil {
				return err
			}
		}
		for i := range pd.ATVs {
			if err := putJSON(txn, payloadKey(domain.KindATV, pd.ATVs[i].ID()), &pd.ATVs[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BadgerPayloadStore) GetATV(id chainhash.Hash) (*domain.ATV, error) {
	return getPayload[domain.ATV](s, domain.KindATV, id)
}

func (s *BadgerPayloadStore) GetVTB(id chainhash.Hash) (*domain.VTB, error) {
	return getPayload[domain.VTB](s, domain.KindVTB, id)
}

func (s *BadgerPayloadStore) GetVbkBlock(id chainhash.Hash) (*domain.VbkBlock, error) {
	return getPayload[domain.VbkBlock](s, domain.KindVbkBlock, id)
}

func getPayload[T any](s *BadgerPayloadStore, kind domain.PayloadKind, id chainhash.Hash) (*T, error) {
	v := new(T)
	if err := s.get(kind, id, v); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *BadgerPayloadStore) Close() error { return s.db.Close() }

func (s *BadgerPayloadStore) get(kind domain.PayloadKind, id chainhash.Hash, v any) error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(payloadKey(kind, id))
		switch {
		case err == nil:
		case errors.Is(err, badger.ErrKeyNotFound):
			return errors.NotFound.WithFormat("%v %v not stored", kind, id)
		default:
			return errors.InternalError.WithFormat("load %v %v: %w", kind, id, err)
		}
		data, err := item.ValueCopy(nil)
		if err != nil {
			return errors.InternalError.WithFormat("load %v %v: %w", kind, id, err)
		}
		if err := json.Unmarshal(data, v); err != nil {
			return errors.InternalError.WithFormat("decode %v %v: %w", kind, id, err)
		}
		return nil
	})
}

func putJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.InternalError.WithFormat("encode payload: %w", err)
	}
	return txn.Set(key, data)
}

type badgerLogger struct{ l ports.Logger }

func (b badgerLogger) format(format string, args ...interface{}) string {
	return strings.TrimRight(fmt.Sprintf(format, args...), "\n")
}

func (b badgerLogger) Errorf(format string, args ...interface{}) {
	b.l.Error(b.format(format, args...))
}

func (b badgerLogger) Warningf(format string, args ...interface{}) {
	b.l.Warn(b.format(format, args...))
}

func (b badgerLogger) Infof(format string, args ...interface{}) {
	b.l.Debug(b.format(format, args...))
}

func (b badgerLogger) Debugf(format string, args ...interface{}) {
	b.l.Debug(b.format(format, args...))
}
