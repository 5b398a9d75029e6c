package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"popfork/consensus"
)

var cmdKeystones = &cobra.Command{
	Use:   "keystones <height>",
	Short: "Show which keystone heights a block at height commits to",
	Args:  cobra.ExactArgs(1),
	Run:   showKeystones,
}

func init() {
	cmdMain.AddCommand(cmdKeystones)
}

func showKeystones(_ *cobra.Command, args []string) {
	height := parseHeight(args[0])
	fmt.Printf("%s %d\n", label("height:"), height)
	fmt.Printf("%s %v\n", label("keystone:"), consensus.IsKeystone(height))
	if height == 0 {
		fmt.Println(label("context:"), "genesis, no keystones")
		return
	}

	first := consensus.PreviousKeystoneHeight(height)
	fmt.Printf("%s %d\n", label("first keystone:"), first)
	if first == 0 {
		fmt.Printf("%s none\n", label("second keystone:"))
		return
	}
	fmt.Printf("%s %d\n", label("second keystone:"), consensus.PreviousKeystoneHeight(first))
}
