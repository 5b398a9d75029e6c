package domain

import (
	"bytes"
	"encoding/binary"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"popfork/errors"
)

// Integers are little-endian and variable-length fields carry a CompactSize
// length prefix, as on the Bitcoin wire.

func appendU32(b []byte, v uint32) []byte { return binary.LittleEndian.AppendUint32(b, v) }
func appendU64(b []byte, v uint64) []byte { return binary.LittleEndian.AppendUint64(b, v) }
func appendHash(b []byte, h chainhash.Hash) []byte { return append(b, h[:]...) }

func appendVarBytes(b []byte, v []byte) []byte {
	buf := bytes.NewBuffer(b)
	// A bytes.Buffer never fails a write
	_ = wire.WriteVarBytes(buf, wire.ProtocolVersion, v)
	return buf.Bytes()
}

type reader struct {
	buf []byte
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.buf) < n {
		r.err = errors.BadRequest.WithFormat("unexpected end of data: want %d bytes, have %d", n, len(r.buf))
		return nil
	}
	v := r.buf[:n]
	r.buf = r.buf[n:]
	return v
}

func (r *reader) u32() uint32 {
	if b := r.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (r *reader) hash() chainhash.Hash {
	var h chainhash.Hash
	if b := r.take(chainhash.HashSize); b != nil {
		copy(h[:], b)
	}
	return h
}

func (r *reader) done() error {
	if r.err != nil {
		return r.err
	}
	if len(r.buf) != 0 {
		return errors.BadRequest.WithFormat("%d trailing bytes", len(r.buf))
	}
	return nil
}
