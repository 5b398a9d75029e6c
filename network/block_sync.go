package network

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"popfork/domain"
	"popfork/errors"
)

// AnnounceTip sends the active tip header to every peer when the tip changed
// since the last announcement.
func (r *Relay) AnnounceTip() {
	state := r.chain.State()
	r.mu.Lock()
	if state.Tip() == r.lastAnnounced {
		r.mu.Unlock()
		return
	}
	r.lastAnnounced = state.Tip()
	r.mu.Unlock()

	hdr, _ := state.HeaderAt(state.Height())
	for _, peer := range r.hub.Peers(r.name) {
		r.send(peer, &Message{Type: MsgHeaders, Headers: []domain.BlockHeader{hdr}})
	}
}

func (r *Relay) handleGetHeaders(from string, msg *Message) {
	headers := r.chain.HeadersAfter(msg.Locator, r.params.MaxHeaders)
	if len(headers) == 0 {
		return
	}
	r.send(from, &Message{Type: MsgHeaders, Headers: headers})
}

func (r *Relay) handleHeaders(from string, msg *Message) {
	if len(msg.Headers) == 0 {
		return
	}
	if len(msg.Headers) > r.params.MaxHeaders {
		r.Misbehaving(from, PenaltyInvalidBlock, "headers message too large")
		return
	}

	var want []chainhash.Hash
	for _, hdr := range msg.Headers {
		err := r.chain.AcceptHeader(hdr)
		switch {
		case err == nil:
		case errors.Is(err, errors.NotFound):
			// Does not connect; fetch the missing ancestry first
			r.requestBlocks(from, want)
			r.send(from, &Message{Type: MsgGetHeaders, Locator: r.chain.Locator()})
			return
		default:
			r.requestBlocks(from, want)
			r.Misbehaving(from, PenaltyInvalidBlock, err.Error())
			return
		}
		if h := hdr.BlockHash(); !r.chain.HasBlock(h) {
			want = append(want, h)
		}
	}
	r.requestBlocks(from, want)

	if len(msg.Headers) == r.params.MaxHeaders {
		last := msg.Headers[len(msg.Headers)-1].BlockHash()
		locator := append([]chainhash.Hash{last}, r.chain.Locator()...)
		r.send(from, &Message{Type: MsgGetHeaders, Locator: locator})
	}
}

func (r *Relay) requestBlocks(from string, hashes []chainhash.Hash) {
	if len(hashes) == 0 {
		return
	}
	r.send(from, &Message{Type: MsgGetData, Hashes: hashes})
}

func (r *Relay) handleGetData(from string, msg *Message) {
	if len(msg.Hashes) > r.params.MaxHeaders {
		r.Misbehaving(from, PenaltyPopSpam, "getdata message too large")
		return
	}
	for _, h := range msg.Hashes {
		b, err := r.chain.Block(h)
		if err != nil {
			continue
		}
		r.send(from, &Message{Type: MsgBlock, Block: b})
	}
}

func (r *Relay) handleBlock(from string, msg *Message) {
	if msg.Block == nil {
		r.Misbehaving(from, PenaltyInvalidBlock, "empty block message")
		return
	}
	err := r.chain.AcceptBlock(msg.Block)
	switch {
	case err == nil:
	case errors.Is(err, errors.NotFound):
		r.send(from, &Message{Type: MsgGetHeaders, Locator: r.chain.Locator()})
	default:
		r.logger.Info("Rejected block from peer", "peer", from, "hash", msg.Block.Hash(), "error", err)
		r.Misbehaving(from, PenaltyInvalidBlock, err.Error())
	}
}
