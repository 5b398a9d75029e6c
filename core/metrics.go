package core

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Chain and mempool metrics, labelled by node name.
var (
	mReorgs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "popfork",
		Subsystem: "chain",
		Name:      "reorgs_total",
		Help:      "Active chain switches by severity",
	}, []string{"node", "severity"})
	mActiveHeight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "popfork",
		Subsystem: "chain",
		Name:      "active_height",
		Help:      "Height of the active tip",
	}, []string{"node"})
	mActiveScore = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "popfork",
		Subsystem: "chain",
		Name:      "active_pop_score",
		Help:      "Cumulative PoP score of the active tip",
	}, []string{"node"})
	mInvalidBlocks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "popfork",
		Subsystem: "chain",
		Name:      "invalid_blocks_total",
		Help:      "Blocks that failed validation, by error status",
	}, []string{"node", "status"})
	mMempoolSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "popfork",
		Subsystem: "mempool",
		Name:      "payloads",
		Help:      "PoP payloads in the mempool by kind",
	}, []string{"node", "kind"})
)
