package network

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"popfork/adapters"
	"popfork/ports"
)

var (
	mMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "popfork",
		Subsystem: "p2p",
		Name:      "messages_total",
		Help:      "Messages handled by type",
	}, []string{"node", "type"})
	mMisbehaviour = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "popfork",
		Subsystem: "p2p",
		Name:      "misbehaviour_total",
		Help:      "Misbehaviour points assigned to peers",
	}, []string{"node"})
	mBans = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "popfork",
		Subsystem: "p2p",
		Name:      "peer_bans_total",
		Help:      "Peers disconnected for misbehaviour",
	}, []string{"node"})
)

func ensureLogger(l ports.Logger) ports.Logger {
	if l == nil {
		return adapters.NopLogger{}
	}
	return l
}
