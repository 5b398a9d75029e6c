package adapters

import (
	"encoding/binary"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"popfork/domain"
	"popfork/errors"
	"popfork/ports"
)

// BootstrapVbkBlock is the secondary-chain block every node and minter starts
// from.
func BootstrapVbkBlock() domain.VbkBlock {
	return domain.VbkBlock{
		Height:     0,
		Version:    1,
		MerkleRoot: domain.DoubleHash([]byte("vbk bootstrap")),
		Timestamp:  1_600_000_000,
	}
}

// MockMinterOptions configure a MockMinter.
type MockMinterOptions struct {
	// VTBsPerEndorsement is how many VTBs accompany each ATV. Zero means one.
	VTBsPerEndorsement int
	SourceAddress      string
}

// MockMinter stands in for a secondary-chain miner. It keeps its own VBK
// chain and mines a new block for every publication it is asked to make.
// Nothing it produces is checked against a real VeriBlock or Bitcoin chain.
type MockMinter struct {
	mu      sync.Mutex
	opts    MockMinterOptions
	chain   []domain.VbkBlock
	index   map[chainhash.Hash]int
	btcSeq  uint64
	entropy uint64
}

var _ ports.EndorsementMinter = (*MockMinter)(nil)

func NewMockMinter(bootstrap domain.VbkBlock, opts MockMinterOptions) *MockMinter {
	if opts.VTBsPerEndorsement <= 0 {
		opts.VTBsPerEndorsement = 1
	}
	if opts.SourceAddress == "" {
		opts.SourceAddress = "V5Ujv72h4jEBcKnALGc4fKqs6CDAPX"
	}
	m := &MockMinter{
		opts:  opts,
		index: make(map[chainhash.Hash]int),
	}
	m.append(bootstrap)
	return m
}

// Tip returns the minter's best VBK block.
func (m *MockMinter) Tip() domain.VbkBlock {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chain[len(m.chain)-1]
}

func (m *MockMinter) append(b domain.VbkBlock) {
	m.index[b.ID()] = len(m.chain)
	m.chain = append(m.chain, b)
}

func (m *MockMinter) mine(root chainhash.Hash) domain.VbkBlock {
	tip := m.chain[len(m.chain)-1]
	m.entropy++
	b := domain.VbkBlock{
		Height:     tip.Height + 1,
		Version:    tip.Version,
		PrevHash:   tip.ID(),
		MerkleRoot: root,
		Timestamp:  tip.Timestamp + 30,
		Nonce:      m.entropy,
	}
	m.append(b)
	return b
}

func (m *MockMinter) btcBlock() chainhash.Hash {
	m.btcSeq++
	return domain.DoubleHash(binary.LittleEndian.AppendUint64([]byte("btc"), m.btcSeq))
}

// EndorseAltBlock publishes pub and returns the ATV proving it, the VTBs
// mined alongside it and every VBK block after lastKnownVbk.
func (m *MockMinter) EndorseAltBlock(pub domain.PublicationData, lastKnownVbk chainhash.Hash) (*domain.PopPayloads, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	known, ok := m.index[lastKnownVbk]
	if !ok {
		return nil, errors.NotFound.WithFormat("vbk block %v is not on the minter's chain", lastKnownVbk)
	}

	out := new(domain.PopPayloads)
	for i := 0; i < m.opts.VTBsPerEndorsement; i++ {
		published := m.chain[len(m.chain)-1]
		containing := m.mine(published.ID())
		out.VTBs = append(out.VTBs, domain.VTB{
			Version:         1,
			PublishedBlock:  published,
			BtcBlockOfProof: m.btcBlock(),
			ContainingBlock: containing,
		})
	}

	tx := domain.VbkPopTx{Publication: pub, SourceAddress: m.opts.SourceAddress}
	proof := m.mine(domain.DoubleHash(pub.Bytes()))
	out.ATV = domain.ATV{Version: 1, Transaction: tx, BlockOfProof: proof}

	out.VbkBlocks = append(out.VbkBlocks, m.chain[known+1:]...)
	return out, nil
}
