package consensus

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"popfork/domain"
	"popfork/errors"
)

// ContextInfo binds a block to its height, its keystone history and its
// transaction root. The block header carries TopLevelCommitment in place of a
// plain merkle root, so a block moved onto a different keystone history no
// longer validates.
//
// The transaction root is the only mutable field. It may be set once, and not
// at all after the commitment has been computed.
type ContextInfo struct {
	Height    uint32
	Keystones Keystones

	txRoot    chainhash.Hash
	txRootSet bool
	sealed    bool
}

// NewContextInfo returns a context with a zero transaction root.
func NewContextInfo(height uint32, ks Keystones) *ContextInfo {
	return &ContextInfo{Height: height, Keystones: ks}
}

// ContextInfoFromHeight resolves the keystones of height through lookup.
func ContextInfoFromHeight(height uint32, lookup HashLookup) (*ContextInfo, error) {
	ks, err := KeystonesFor(height, lookup)
	if err != nil {
		return nil, err
	}
	return NewContextInfo(height, ks), nil
}

// ContextInfoFromParent builds the context of the child of a block at
// parentHeight.
func ContextInfoFromParent(parentHeight uint32, lookup HashLookup) (*ContextInfo, error) {
	if parentHeight == ^uint32(0) {
		return nil, errors.BadRequest.With("parent height overflows")
	}
	return ContextInfoFromHeight(parentHeight+1, lookup)
}

func (c *ContextInfo) TxRoot() chainhash.Hash { return c.txRoot }

// SetTxRoot sets the transaction root from its natural byte order.
func (c *ContextInfo) SetTxRoot(root chainhash.Hash) error {
	if c.sealed {
		return errors.BadRequest.With("transaction root cannot change after the commitment was computed")
	}
	if c.txRootSet {
		return errors.BadRequest.With("transaction root already set")
	}
	c.txRoot = root
	c.txRootSet = true
	return nil
}

// SetTxRootInt sets the transaction root from its 256-bit integer value.
func (c *ContextInfo) SetTxRootInt(v *big.Int) error {
	h, err := IntToHash(v)
	if err != nil {
		return err
	}
	return c.SetTxRoot(h)
}

// SetTxRootHex sets the transaction root from exactly 64 hex characters in
// display order.
func (c *ContextInfo) SetTxRootHex(s string) error {
	h, err := domain.HashFromHex(s)
	if err != nil {
		return err
	}
	return c.SetTxRoot(h)
}

// UnauthenticatedBytes is the big-endian height followed by both keystone
// hashes in natural byte order.
func (c *ContextInfo) UnauthenticatedBytes() []byte {
	b := make([]byte, 0, 4+2*chainhash.HashSize)
	b = binary.BigEndian.AppendUint32(b, c.Height)
	b = append(b, c.Keystones.First[:]...)
	return append(b, c.Keystones.Second[:]...)
}

func (c *ContextInfo) UnauthenticatedHash() chainhash.Hash {
	return domain.DoubleHash(c.UnauthenticatedBytes())
}

// TopLevelCommitment is DoubleHash(txRoot || UnauthenticatedHash). Calling it
// seals the transaction root.
func (c *ContextInfo) TopLevelCommitment() chainhash.Hash {
	c.sealed = true
	u := c.UnauthenticatedHash()
	b := make([]byte, 0, 2*chainhash.HashSize)
	b = append(b, c.txRoot[:]...)
	b = append(b, u[:]...)
	return domain.DoubleHash(b)
}

// TopLevelCommitmentInt is TopLevelCommitment read as a little-endian 256-bit
// integer.
func (c *ContextInfo) TopLevelCommitmentInt() *big.Int {
	return HashToInt(c.TopLevelCommitment())
}

func (c *ContextInfo) String() string {
	return fmt.Sprintf("ContextInfo(height=%d, ks1=%v, ks2=%v, mroot=%v)",
		c.Height, c.Keystones.First, c.Keystones.Second, c.txRoot)
}

// HashToInt reads a hash as a little-endian unsigned integer.
func HashToInt(h chainhash.Hash) *big.Int {
	var be [chainhash.HashSize]byte
	for i := range h {
		be[chainhash.HashSize-1-i] = h[i]
	}
	return new(big.Int).SetBytes(be[:])
}

// IntToHash is the inverse of HashToInt.
func IntToHash(v *big.Int) (chainhash.Hash, error) {
	if v == nil || v.Sign() < 0 {
		return domain.ZeroHash, errors.BadRequest.With("transaction root must be a non-negative integer")
	}
	if v.BitLen() > 8*chainhash.HashSize {
		return domain.ZeroHash, errors.BadRequest.WithFormat("transaction root exceeds %d bits", 8*chainhash.HashSize)
	}
	var be [chainhash.HashSize]byte
	v.FillBytes(be[:])
	var h chainhash.Hash
	for i := range be {
		h[chainhash.HashSize-1-i] = be[i]
	}
	return h, nil
}
