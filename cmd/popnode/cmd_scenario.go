package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"popfork/app"
)

var cmdScenario = &cobra.Command{
	Use:   "scenario",
	Short: "Run the four node fork resolution scenario in process",
	Args:  cobra.NoArgs,
	Run:   runScenario,
}

var flagScenario = struct {
	Common int
	ForkA  int
	ForkB  int
	After  int
}{}

func init() {
	cmdMain.AddCommand(cmdScenario)

	d := app.DefaultScenarioParams()
	cmdScenario.Flags().IntVar(&flagScenario.Common, "common", d.CommonBlocks, "Blocks mined before the partition")
	cmdScenario.Flags().IntVar(&flagScenario.ForkA, "fork-a", d.ForkABlocks, "Blocks mined on the endorsed fork before the endorsement")
	cmdScenario.Flags().IntVar(&flagScenario.ForkB, "fork-b", d.ForkBBlocks, "Blocks mined on the isolated fork")
	cmdScenario.Flags().IntVar(&flagScenario.After, "after", d.BlocksAfterEndorsement, "Blocks mined after the endorsement")
}

func runScenario(_ *cobra.Command, _ []string) {
	cfg := loadConfig()
	logger := newLogger(cfg)

	params := app.DefaultScenarioParams()
	params.CommonBlocks = flagScenario.Common
	params.ForkABlocks = flagScenario.ForkA
	params.ForkBBlocks = flagScenario.ForkB
	params.BlocksAfterEndorsement = flagScenario.After
	opts, err := cfg.SyncOptions()
	check(err)
	params.Sync = opts

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	res, err := app.RunForkResolution(ctx, cfg, params, logger)
	if res != nil {
		fmt.Printf("%s %d (endorsed at %d, atv %v in block %d)\n", label("fork A height:"),
			res.ForkAHeight, res.EndorsedHeight, res.ATV, res.ContainingHeight)
		fmt.Printf("%s %d\n", label("fork B height:"), res.ForkBHeight)
		for _, n := range res.Nodes {
			fmt.Printf("  %-6s height=%d headers=%d score=%d tips=%d best=%v\n",
				n.Name, n.Info.Blocks, n.Info.Headers, n.PopScore, n.Tips, n.Info.BestBlockHash)
		}
	}
	check(err)
	fmt.Println(good("All nodes selected the endorsed fork"))
}
