package main

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/spf13/cobra"

	"popfork/consensus"
	"popfork/domain"
)

var cmdContext = &cobra.Command{
	Use:   "context <height> <keystone1> <keystone2> <txroot>",
	Short: "Compute the context commitment of a block",
	Long: "Compute the context commitment of a block. Hashes are 64 hex characters in display order;\n" +
		"pass an empty string for a keystone the block does not have.",
	Args: cobra.ExactArgs(4),
	Run:  computeContext,
}

func init() {
	cmdMain.AddCommand(cmdContext)
}

func computeContext(_ *cobra.Command, args []string) {
	var ks consensus.Keystones
	for i, dst := range []*chainhash.Hash{&ks.First, &ks.Second} {
		if args[i+1] == "" {
			continue
		}
		h, err := domain.HashFromHex(args[i+1])
		checkf(err, "keystone %d", i+1)
		*dst = h
	}

	ctx := consensus.NewContextInfo(parseHeight(args[0]), ks)
	checkf(ctx.SetTxRootHex(args[3]), "txroot")

	fmt.Println(ctx)
	fmt.Printf("%s %s\n", label("unauthenticated:"), hex.EncodeToString(ctx.UnauthenticatedBytes()))
	fmt.Printf("%s %v\n", label("unauthenticated hash:"), ctx.UnauthenticatedHash())
	fmt.Printf("%s %v\n", label("top level:"), ctx.TopLevelCommitment())
}
