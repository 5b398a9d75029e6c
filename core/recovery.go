package core

import "popfork/errors"

// RestoreFromStorage replays every stored block into the tree and re-runs
// fork choice. Blocks that fail validation stay known as invalid.
func (bc *Blockchain) RestoreFromStorage() error {
	if bc.store == nil {
		return errors.InternalError.With("block store required")
	}
	blocks, err := bc.store.Blocks()
	if err != nil {
		return err
	}

	bc.mu.Lock()
	bc.restoring = true
	bc.mu.Unlock()
	defer func() {
		bc.mu.Lock()
		bc.restoring = false
		bc.mu.Unlock()
	}()

	var restored int
	for _, b := range blocks {
		if b.Height() == 0 {
			if b.Hash() != bc.genesis.hash {
				return errors.ConsensusMismatch.WithFormat("stored genesis %v does not match configured genesis %v", b.Hash(), bc.genesis.hash)
			}
			continue
		}
		if err := bc.AcceptBlock(b); err != nil {
			bc.logger.Warn("Stored block rejected", "hash", b.Hash(), "height", b.Height(), "error", err)
			continue
		}
		restored++
	}

	tip, ok, err := bc.store.Tip()
	if err != nil {
		return err
	}
	state := bc.State()
	if ok && tip != state.Tip() {
		bc.logger.Warn("Stored tip differs from fork choice", "stored", tip, "active", state.Tip())
	}
	if err := bc.store.SetTip(state.Tip()); err != nil {
		return err
	}
	bc.logger.Info("Restored chain", "blocks", restored, "height", state.Height(), "tip", state.Tip())
	return nil
}
