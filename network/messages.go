package network

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"popfork/domain"
)

// MessageType names a relay message.
type MessageType int

const (
	// MsgGetHeaders asks for active chain headers after a locator.
	MsgGetHeaders MessageType = iota
	// MsgHeaders carries headers, either as a reply or as a tip announcement.
	MsgHeaders
	// MsgGetData asks for full blocks by hash.
	MsgGetData
	// MsgBlock carries one full block.
	MsgBlock
	// MsgOfferPop lists payload ids of one kind the sender holds.
	MsgOfferPop
	// MsgGetPop asks for payloads of one kind by id.
	MsgGetPop
	// MsgPopData carries one payload.
	MsgPopData
)

func (t MessageType) String() string {
	switch t {
	case MsgGetHeaders:
		return "getheaders"
	case MsgHeaders:
		return "headers"
	case MsgGetData:
		return "getdata"
	case MsgBlock:
		return "block"
	case MsgOfferPop:
		return "offerpop"
	case MsgGetPop:
		return "getpop"
	case MsgPopData:
		return "popdata"
	}
	return "unknown"
}

// Message is the single envelope exchanged between nodes. Only the fields of
// its type are set. Receivers must not modify a message.
type Message struct {
	Type MessageType

	Locator []chainhash.Hash
	Headers []domain.BlockHeader
	Block   *domain.Block

	// Kind and Hashes describe PoP offers and requests; Hashes also carries
	// getdata block hashes.
	Kind   domain.PayloadKind
	Hashes []chainhash.Hash

	ATV      *domain.ATV
	VTB      *domain.VTB
	VbkBlock *domain.VbkBlock
}

// PayloadID returns the id of the payload carried by a MsgPopData message.
func (m *Message) PayloadID() (chainhash.Hash, bool) {
	switch {
	case m.ATV != nil:
		return m.ATV.ID(), true
	case m.VTB != nil:
		return m.VTB.ID(), true
	case m.VbkBlock != nil:
		return m.VbkBlock.ID(), true
	}
	return chainhash.Hash{}, false
}

func popDataMessage(kind domain.PayloadKind) *Message {
	return &Message{Type: MsgPopData, Kind: kind}
}
