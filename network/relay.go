package network

import (
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	lru "github.com/hashicorp/golang-lru/v2"

	"popfork/core"
	"popfork/domain"
	"popfork/ports"
)

// Misbehaviour penalties.
const (
	PenaltyPopSpam      = 20
	PenaltyInvalidPop   = 20
	PenaltyInvalidBlock = 100
)

type RelayParams struct {
	// MaxHeaders caps a headers reply. A full reply makes the receiver ask
	// for more.
	MaxHeaders int
	// MaxPopDataSendingAmount caps the ids in one offer or request.
	MaxPopDataSendingAmount int
	// MaxPopMessageSendingCount caps how often one peer may mention the
	// same payload.
	MaxPopMessageSendingCount uint32
	// KnownCacheSize bounds the per-peer, per-kind mention counters.
	KnownCacheSize int
	// BanScore disconnects a peer once its misbehaviour reaches it.
	BanScore int
}

func DefaultRelayParams() RelayParams {
	return RelayParams{
		MaxHeaders:                core.MaxHeadersPerMessage,
		MaxPopDataSendingAmount:   100,
		MaxPopMessageSendingCount: 100,
		KnownCacheSize:            10_000,
		BanScore:                  100,
	}
}

type peerState struct {
	known        map[domain.PayloadKind]*lru.Cache[chainhash.Hash, uint32]
	misbehaviour int
}

// mention counts another mention of id by the peer and returns the count
// before it.
func (p *peerState) mention(kind domain.PayloadKind, id chainhash.Hash) uint32 {
	c := p.known[kind]
	n, _ := c.Get(id)
	c.Add(id, n+1)
	return n
}

// Relay speaks the block and PoP relay protocol for one node.
type Relay struct {
	name    string
	hub     *Hub
	chain   *core.Blockchain
	mempool *core.PopMempool
	params  RelayParams
	logger  ports.Logger

	mu            sync.Mutex
	peers         map[string]*peerState
	lastAnnounced chainhash.Hash
}

var _ Handler = (*Relay)(nil)

func NewRelay(name string, hub *Hub, chain *core.Blockchain, mempool *core.PopMempool, params RelayParams, logger ports.Logger) *Relay {
	d := DefaultRelayParams()
	if params.MaxHeaders <= 0 {
		params.MaxHeaders = d.MaxHeaders
	}
	if params.MaxPopDataSendingAmount <= 0 {
		params.MaxPopDataSendingAmount = d.MaxPopDataSendingAmount
	}
	if params.MaxPopMessageSendingCount == 0 {
		params.MaxPopMessageSendingCount = d.MaxPopMessageSendingCount
	}
	if params.KnownCacheSize <= 0 {
		params.KnownCacheSize = d.KnownCacheSize
	}
	if params.BanScore <= 0 {
		params.BanScore = d.BanScore
	}
	return &Relay{
		name:          name,
		hub:           hub,
		chain:         chain,
		mempool:       mempool,
		params:        params,
		logger:        ensureLogger(logger).With("module", "relay"),
		peers:         make(map[string]*peerState),
		lastAnnounced: chain.State().Tip(),
	}
}

func (r *Relay) Name() string { return r.name }

func (r *Relay) send(peer string, msg *Message) {
	if !r.hub.Send(r.name, peer, msg) {
		r.logger.Debug("Dropped message to unlinked peer", "peer", peer, "type", msg.Type)
	}
}

func (r *Relay) peer(name string) *peerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.peers[name]
}

func (r *Relay) PeerConnected(peer string) {
	ps := &peerState{known: make(map[domain.PayloadKind]*lru.Cache[chainhash.Hash, uint32], len(domain.PayloadKinds))}
	for _, k := range domain.PayloadKinds {
		c, err := lru.New[chainhash.Hash, uint32](r.params.KnownCacheSize)
		if err != nil {
			r.logger.Error("Failed to create known payload cache", "peer", peer, "error", err)
			return
		}
		ps.known[k] = c
	}

	r.mu.Lock()
	r.peers[peer] = ps
	r.mu.Unlock()
	r.logger.Info("Peer connected", "peer", peer)

	r.send(peer, &Message{Type: MsgGetHeaders, Locator: r.chain.Locator()})
	r.offerPayloads(peer, r.mempool.Contents())
}

func (r *Relay) PeerDisconnected(peer string) {
	r.mu.Lock()
	delete(r.peers, peer)
	r.mu.Unlock()
	r.logger.Info("Peer disconnected", "peer", peer)
}

// Misbehaving adds to a peer's misbehaviour score and disconnects it once
// the score reaches the ban threshold.
func (r *Relay) Misbehaving(peer string, howMuch int, reason string) {
	r.mu.Lock()
	ps, ok := r.peers[peer]
	if !ok {
		r.mu.Unlock()
		return
	}
	ps.misbehaviour += howMuch
	score := ps.misbehaviour
	r.mu.Unlock()

	mMisbehaviour.WithLabelValues(r.name).Add(float64(howMuch))
	r.logger.Warn("Peer misbehaving", "peer", peer, "score", score, "reason", reason)
	if score >= r.params.BanScore {
		mBans.WithLabelValues(r.name).Inc()
		r.logger.Warn("Disconnecting misbehaving peer", "peer", peer, "score", score)
		r.hub.Disconnect(r.name, peer)
	}
}

// MisbehaviourScore returns a connected peer's score.
func (r *Relay) MisbehaviourScore(peer string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ps, ok := r.peers[peer]
	if !ok {
		return 0, false
	}
	return ps.misbehaviour, true
}

func (r *Relay) HandleMessage(from string, msg *Message) {
	ps := r.peer(from)
	if ps == nil {
		r.logger.Debug("Message from unknown peer", "peer", from, "type", msg.Type)
		return
	}

	switch msg.Type {
	case MsgGetHeaders:
		r.handleGetHeaders(from, msg)
	case MsgHeaders:
		r.handleHeaders(from, msg)
	case MsgGetData:
		r.handleGetData(from, msg)
	case MsgBlock:
		r.handleBlock(from, msg)
	case MsgOfferPop:
		r.handleOfferPop(from, ps, msg)
	case MsgGetPop:
		r.handleGetPop(from, ps, msg)
	case MsgPopData:
		r.handlePopData(from, ps, msg)
	default:
		r.logger.Warn("Unknown message type", "peer", from, "type", msg.Type)
		return
	}
	r.AnnounceTip()
}
