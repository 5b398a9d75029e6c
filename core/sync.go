package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"golang.org/x/sync/errgroup"

	"popfork/domain"
	"popfork/errors"
	"popfork/ports"
)

// SyncOptions bound a convergence wait.
type SyncOptions struct {
	// Interval between polls.
	Interval time.Duration
	// Timeout for the whole wait.
	Timeout time.Duration
	// Flush drains every node's validation queue once converged.
	Flush bool
}

func DefaultSyncOptions() SyncOptions {
	return SyncOptions{Interval: 50 * time.Millisecond, Timeout: 60 * time.Second, Flush: true}
}

func (o SyncOptions) withDefaults() SyncOptions {
	d := DefaultSyncOptions()
	if o.Interval <= 0 {
		o.Interval = d.Interval
	}
	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}
	return o
}

// NodeView is what one node reported during a convergence wait.
type NodeView struct {
	Node      string
	Mempool   domain.PopIDs
	BestBlock chainhash.Hash
}

// DivergenceError lists what each node reported on the last poll before a
// convergence wait expired.
type DivergenceError struct {
	What   string
	Waited time.Duration
	Nodes  []NodeView
}

func (e *DivergenceError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s did not converge after %v", e.What, e.Waited)
	for _, n := range e.Nodes {
		fmt.Fprintf(&b, "\n  %s: best=%v atvs=%v vtbs=%v vbkblocks=%v",
			n.Node, n.BestBlock, n.Mempool.ATVs, n.Mempool.VTBs, n.Mempool.VbkBlocks)
	}
	return b.String()
}

// SyncPopMempools waits until every node reports the same ATV, VTB and VBK
// block sets.
func SyncPopMempools(ctx context.Context, nodes []ports.SyncNode, opts SyncOptions) error {
	return waitConverged(ctx, "pop mempools", nodes, opts, func(views []NodeView) bool {
		for _, v := range views[1:] {
			if !v.Mempool.SameSet(views[0].Mempool) {
				return false
			}
		}
		return true
	})
}

// SyncBlocks waits until every node reports the same best block.
func SyncBlocks(ctx context.Context, nodes []ports.SyncNode, opts SyncOptions) error {
	return waitConverged(ctx, "best blocks", nodes, opts, func(views []NodeView) bool {
		for _, v := range views[1:] {
			if v.BestBlock != views[0].BestBlock {
				return false
			}
		}
		return true
	})
}

func waitConverged(ctx context.Context, what string, nodes []ports.SyncNode, opts SyncOptions, converged func([]NodeView) bool) error {
	if len(nodes) == 0 {
		return nil
	}
	opts = opts.withDefaults()
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	for {
		views := make([]NodeView, len(nodes))
		for i, n := range nodes {
			views[i] = NodeView{Node: n.Name(), Mempool: n.GetRawPopMempool(), BestBlock: n.GetBestBlockHash()}
		}
		if converged(views) {
			if opts.Flush {
				return FlushAll(ctx, nodes)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			div := &DivergenceError{What: what, Waited: time.Since(start), Nodes: views}
			if errors.Is(ctx.Err(), context.Canceled) {
				return errors.UnknownError.WithCauseAndFormat(div, "wait for %s: %v", what, ctx.Err())
			}
			return errors.Timeout.WithCauseAndFormat(div, "%v", div)
		case <-ticker.C:
		}
	}
}

// FlushAll drains every node's validation queue in parallel.
func FlushAll(ctx context.Context, nodes []ports.SyncNode) error {
	errg, ctx := errgroup.WithContext(ctx)
	for _, n := range nodes {
		n := n
		errg.Go(func() error { return n.SyncWithValidationQueue(ctx) })
	}
	return errg.Wait()
}
