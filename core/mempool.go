package core

import (
	"sort"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"popfork/consensus"
	"popfork/domain"
	"popfork/errors"
	"popfork/ports"
)

// ActiveChain is what the mempool needs to know about the chain.
type ActiveChain interface {
	State() *ChainState
	IncludedOnActive(id chainhash.Hash) bool
}

type atvEntry struct {
	atv      domain.ATV
	endorsed domain.BlockHeader
	seq      uint64
}

type vtbEntry struct {
	vtb domain.VTB
	seq uint64
}

type vbkEntry struct {
	block domain.VbkBlock
	seq   uint64
}

// PopMempool holds PoP payloads waiting for inclusion, keyed by id. Adding a
// payload that is already present is a no-op, so relayed copies can arrive in
// any order and any number of times.
//
// Payloads of connected and disconnected blocks are reconciled in the
// background; SyncWithValidationQueue waits for that to finish.
type PopMempool struct {
	mu     sync.RWMutex
	name   string
	params consensus.PopParams
	chain  ActiveChain
	logger ports.Logger
	queue  *taskQueue
	seq    uint64

	atvs map[chainhash.Hash]*atvEntry
	vtbs map[chainhash.Hash]*vtbEntry
	vbks map[chainhash.Hash]*vbkEntry
}

var _ ChainListener = (*PopMempool)(nil)

func NewPopMempool(name string, params consensus.PopParams, chain ActiveChain, logger ports.Logger) *PopMempool {
	return &PopMempool{
		name:   name,
		params: params,
		chain:  chain,
		logger: ensureLogger(logger).With("module", "mempool"),
		queue:  newTaskQueue(),
		atvs:   make(map[chainhash.Hash]*atvEntry),
		vtbs:   make(map[chainhash.Hash]*vtbEntry),
		vbks:   make(map[chainhash.Hash]*vbkEntry),
	}
}

// Submit validates every payload and then adds them all, or none if any is
// malformed. Payloads already confirmed on the active chain are skipped.
// The result lists the ids that were newly added.
func (m *PopMempool) Submit(vbks []domain.VbkBlock, vtbs []domain.VTB, atvs []domain.ATV) (domain.PopIDs, error) {
	headers := make([]domain.BlockHeader, len(atvs))
	for i := range vbks {
		if err := consensus.ValidateVbkBlock(&vbks[i]); err != nil {
			return domain.PopIDs{}, err
		}
	}
	for i := range vtbs {
		if err := consensus.ValidateVTB(&vtbs[i]); err != nil {
			return domain.PopIDs{}, err
		}
	}
	for i := range atvs {
		hdr, err := consensus.ValidateATV(&atvs[i], m.params)
		if err != nil {
			return domain.PopIDs{}, err
		}
		headers[i] = hdr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var added domain.PopIDs
	for i := range vbks {
		if id := vbks[i].ID(); m.addVbk(id, vbks[i]) {
			added.VbkBlocks = append(added.VbkBlocks, id)
		}
	}
	for i := range vtbs {
		if id := vtbs[i].ID(); m.addVTB(id, vtbs[i]) {
			added.VTBs = append(added.VTBs, id)
		}
	}
	for i := range atvs {
		if id := atvs[i].ID(); m.addATV(id, atvs[i], headers[i]) {
			added.ATVs = append(added.ATVs, id)
		}
	}
	m.updateMetrics()

	if added.Len() > 0 {
		m.logger.Debug("Accepted payloads", "vbkblocks", len(added.VbkBlocks), "vtbs", len(added.VTBs), "atvs", len(added.ATVs))
	}
	return added, nil
}

func (m *PopMempool) nextSeq() uint64 {
	m.seq++
	return m.seq
}

func (m *PopMempool) addVbk(id chainhash.Hash, b domain.VbkBlock) bool {
	if _, ok := m.vbks[id]; ok || m.chain.IncludedOnActive(id) {
		return false
	}
	m.vbks[id] = &vbkEntry{block: b, seq: m.nextSeq()}
	return true
}

func (m *PopMempool) addVTB(id chainhash.Hash, v domain.VTB) bool {
	if _, ok := m.vtbs[id]; ok || m.chain.IncludedOnActive(id) {
		return false
	}
	m.vtbs[id] = &vtbEntry{vtb: v, seq: m.nextSeq()}
	return true
}

func (m *PopMempool) addATV(id chainhash.Hash, a domain.ATV, endorsed domain.BlockHeader) bool {
	if _, ok := m.atvs[id]; ok || m.chain.IncludedOnActive(id) {
		return false
	}
	m.atvs[id] = &atvEntry{atv: a, endorsed: endorsed, seq: m.nextSeq()}
	return true
}

// Contents lists the ids in the mempool, sorted.
func (m *PopMempool) Contents() domain.PopIDs {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := domain.PopIDs{
		VbkBlocks: make([]chainhash.Hash, 0, len(m.vbks)),
		VTBs:      make([]chainhash.Hash, 0, len(m.vtbs)),
		ATVs:      make([]chainhash.Hash, 0, len(m.atvs)),
	}
	for id := range m.vbks {
		ids.VbkBlocks = append(ids.VbkBlocks, id)
	}
	for id := range m.vtbs {
		ids.VTBs = append(ids.VTBs, id)
	}
	for id := range m.atvs {
		ids.ATVs = append(ids.ATVs, id)
	}
	return ids.Sorted()
}

func (m *PopMempool) GetATV(id chainhash.Hash) (*domain.ATV, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.atvs[id]
	if !ok {
		return nil, false
	}
	v := e.atv
	return &v, true
}

func (m *PopMempool) GetVTB(id chainhash.Hash) (*domain.VTB, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.vtbs[id]
	if !ok {
		return nil, false
	}
	v := e.vtb
	return &v, true
}

func (m *PopMempool) GetVbkBlock(id chainhash.Hash) (*domain.VbkBlock, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.vbks[id]
	if !ok {
		return nil, false
	}
	v := e.block
	return &v, true
}

// VbkBlocks returns every VBK block in the mempool.
func (m *PopMempool) VbkBlocks() []domain.VbkBlock {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.VbkBlock, 0, len(m.vbks))
	for _, e := range m.vbks {
		out = append(out, e.block)
	}
	return out
}

// Template selects the payloads for a block on the active tip: everything
// not yet confirmed, limited to ATVs whose endorsed block is on the active
// chain within the settlement interval. Payloads keep arrival order.
func (m *PopMempool) Template() domain.PopData {
	state := m.chain.State()
	next := state.Height() + 1

	m.mu.RLock()
	defer m.mu.RUnlock()

	var pd domain.PopData

	vbks := make([]*vbkEntry, 0, len(m.vbks))
	for id, e := range m.vbks {
		if !m.chain.IncludedOnActive(id) {
			vbks = append(vbks, e)
		}
	}
	sort.Slice(vbks, func(i, j int) bool {
		if vbks[i].block.Height != vbks[j].block.Height {
			return vbks[i].block.Height < vbks[j].block.Height
		}
		return vbks[i].seq < vbks[j].seq
	})
	for _, e := range vbks {
		if len(pd.VbkBlocks) >= m.params.MaxVbkBlocks {
			break
		}
		pd.VbkBlocks = append(pd.VbkBlocks, e.block)
	}

	vtbs := make([]*vtbEntry, 0, len(m.vtbs))
	for id, e := range m.vtbs {
		if !m.chain.IncludedOnActive(id) {
			vtbs = append(vtbs, e)
		}
	}
	sort.Slice(vtbs, func(i, j int) bool { return vtbs[i].seq < vtbs[j].seq })
	for _, e := range vtbs {
		if len(pd.VTBs) >= m.params.MaxVTBs {
			break
		}
		pd.VTBs = append(pd.VTBs, e.vtb)
	}

	atvs := make([]*atvEntry, 0, len(m.atvs))
	for id, e := range m.atvs {
		if m.chain.IncludedOnActive(id) {
			continue
		}
		hash, ok := state.HashAt(e.endorsed.Height)
		if !ok || hash != e.endorsed.BlockHash() {
			continue
		}
		if consensus.CheckEndorsementGap(e.endorsed.Height, next, m.params) != nil {
			continue
		}
		atvs = append(atvs, e)
	}
	sort.Slice(atvs, func(i, j int) bool { return atvs[i].seq < atvs[j].seq })
	for _, e := range atvs {
		if len(pd.ATVs) >= m.params.MaxATVs {
			break
		}
		pd.ATVs = append(pd.ATVs, e.atv)
	}
	return pd
}

// BlockConnected queues removal of the block's payloads.
func (m *PopMempool) BlockConnected(b *domain.Block) {
	pd := b.Pop
	m.queue.Go(func() error { m.reconcile(&pd); return nil })
}

// BlockDisconnected queues the return of the block's payloads.
func (m *PopMempool) BlockDisconnected(b *domain.Block) {
	pd := b.Pop
	m.queue.Go(func() error { m.reconcile(&pd); return nil })
}

// reconcile makes each payload of pd present exactly when it is not
// confirmed on the active chain, then evicts expired ATVs. The chain is read
// under the mempool lock, so whichever task runs last sees the latest tip.
func (m *PopMempool) reconcile(pd *domain.PopData) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed, restored int
	for _, b := range pd.VbkBlocks {
		id := b.ID()
		if m.chain.IncludedOnActive(id) {
			if _, ok := m.vbks[id]; ok {
				delete(m.vbks, id)
				removed++
			}
		} else if m.addVbk(id, b) {
			restored++
		}
	}
	for _, v := range pd.VTBs {
		id := v.ID()
		if m.chain.IncludedOnActive(id) {
			if _, ok := m.vtbs[id]; ok {
				delete(m.vtbs, id)
				removed++
			}
		} else if m.addVTB(id, v) {
			restored++
		}
	}
	for _, a := range pd.ATVs {
		id := a.ID()
		if m.chain.IncludedOnActive(id) {
			if _, ok := m.atvs[id]; ok {
				delete(m.atvs, id)
				removed++
			}
			continue
		}
		hdr, err := a.EndorsedHeader()
		if err != nil {
			continue
		}
		if m.addATV(id, a, hdr) {
			restored++
		}
	}
	expired := m.evictExpired()
	m.updateMetrics()

	if removed+restored+expired > 0 {
		m.logger.Debug("Reconciled payloads", "removed", removed, "restored", restored, "expired", expired)
	}
}

// evictExpired drops ATVs that no block on top of the active tip may
// contain any more. Must be called with the lock held.
func (m *PopMempool) evictExpired() int {
	next := m.chain.State().Height() + 1
	var n int
	for id, e := range m.atvs {
		if consensus.EndorsementExpired(e.endorsed.Height, next, m.params) {
			delete(m.atvs, id)
			n++
		}
	}
	return n
}

// SyncWithValidationQueue waits for queued reconciliation to finish.
func (m *PopMempool) SyncWithValidationQueue() error {
	if err := m.queue.Flush(); err != nil {
		return errors.InternalError.WithFormat("flush mempool queue: %w", err)
	}
	return nil
}

func (m *PopMempool) updateMetrics() {
	mMempoolSize.WithLabelValues(m.name, domain.KindVbkBlock.String()).Set(float64(len(m.vbks)))
	mMempoolSize.WithLabelValues(m.name, domain.KindVTB.String()).Set(float64(len(m.vtbs)))
	mMempoolSize.WithLabelValues(m.name, domain.KindATV.String()).Set(float64(len(m.atvs)))
}
