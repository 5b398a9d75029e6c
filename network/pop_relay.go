package network

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"popfork/domain"
)

// OfferPayloads offers payload ids to every peer.
func (r *Relay) OfferPayloads(ids domain.PopIDs) {
	for _, peer := range r.hub.Peers(r.name) {
		r.offerPayloads(peer, ids)
	}
}

func (r *Relay) offerPayloads(peer string, ids domain.PopIDs) {
	for _, kind := range domain.PayloadKinds {
		all := ids.Of(kind)
		for len(all) > 0 {
			n := min(len(all), r.params.MaxPopDataSendingAmount)
			r.send(peer, &Message{Type: MsgOfferPop, Kind: kind, Hashes: all[:n:n]})
			all = all[n:]
		}
	}
}

func (r *Relay) handleOfferPop(from string, ps *peerState, msg *Message) {
	if len(msg.Hashes) > r.params.MaxPopDataSendingAmount {
		r.Misbehaving(from, PenaltyPopSpam, fmt.Sprintf("offer of %d %vs", len(msg.Hashes), msg.Kind))
		return
	}

	var want []chainhash.Hash
	for _, id := range msg.Hashes {
		n := ps.mention(msg.Kind, id)
		if !r.havePayload(msg.Kind, id) {
			want = append(want, id)
		} else if n > r.params.MaxPopMessageSendingCount {
			r.Misbehaving(from, PenaltyPopSpam, fmt.Sprintf("peer is spamming %v %v", msg.Kind, id))
			return
		}
	}
	if len(want) > 0 {
		r.send(from, &Message{Type: MsgGetPop, Kind: msg.Kind, Hashes: want})
	}
}

func (r *Relay) handleGetPop(from string, ps *peerState, msg *Message) {
	if len(msg.Hashes) > r.params.MaxPopDataSendingAmount {
		r.Misbehaving(from, PenaltyPopSpam, fmt.Sprintf("request of %d %vs", len(msg.Hashes), msg.Kind))
		return
	}

	for _, id := range msg.Hashes {
		if ps.mention(msg.Kind, id) > r.params.MaxPopMessageSendingCount {
			r.Misbehaving(from, PenaltyPopSpam, fmt.Sprintf("peer is spamming %v %v", msg.Kind, id))
			return
		}
		if reply := r.payloadMessage(msg.Kind, id); reply != nil {
			r.send(from, reply)
		}
	}
}

func (r *Relay) handlePopData(from string, ps *peerState, msg *Message) {
	id, ok := msg.PayloadID()
	if !ok {
		r.Misbehaving(from, PenaltyInvalidPop, "empty pop data message")
		return
	}
	if ps.mention(msg.Kind, id) > r.params.MaxPopMessageSendingCount {
		r.Misbehaving(from, PenaltyPopSpam, fmt.Sprintf("peer is spamming %v %v", msg.Kind, id))
		return
	}

	var (
		vbks []domain.VbkBlock
		vtbs []domain.VTB
		atvs []domain.ATV
	)
	switch {
	case msg.VbkBlock != nil:
		vbks = []domain.VbkBlock{*msg.VbkBlock}
	case msg.VTB != nil:
		vtbs = []domain.VTB{*msg.VTB}
	case msg.ATV != nil:
		atvs = []domain.ATV{*msg.ATV}
	}
	added, err := r.mempool.Submit(vbks, vtbs, atvs)
	if err != nil {
		r.logger.Info("Peer sent invalid pop data", "peer", from, "kind", msg.Kind, "id", id, "error", err)
		r.Misbehaving(from, PenaltyInvalidPop, err.Error())
		return
	}
	if added.Len() == 0 {
		return
	}

	for _, peer := range r.hub.Peers(r.name) {
		if peer != from {
			r.offerPayloads(peer, added)
		}
	}
}

func (r *Relay) havePayload(kind domain.PayloadKind, id chainhash.Hash) bool {
	switch kind {
	case domain.KindATV:
		_, ok := r.mempool.GetATV(id)
		return ok
	case domain.KindVTB:
		_, ok := r.mempool.GetVTB(id)
		return ok
	case domain.KindVbkBlock:
		_, ok := r.mempool.GetVbkBlock(id)
		return ok
	}
	return false
}

func (r *Relay) payloadMessage(kind domain.PayloadKind, id chainhash.Hash) *Message {
	msg := popDataMessage(kind)
	switch kind {
	case domain.KindATV:
		v, ok := r.mempool.GetATV(id)
		if !ok {
			return nil
		}
		msg.ATV = v
	case domain.KindVTB:
		v, ok := r.mempool.GetVTB(id)
		if !ok {
			return nil
		}
		msg.VTB = v
	case domain.KindVbkBlock:
		v, ok := r.mempool.GetVbkBlock(id)
		if !ok {
			return nil
		}
		msg.VbkBlock = v
	default:
		return nil
	}
	return msg
}
