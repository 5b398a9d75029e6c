package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"popfork/app"
)

var cmdConfig = &cobra.Command{
	Use:   "config",
	Short: "Manage node configuration",
	Run:   printUsageAndExit1,
}

var cmdConfigInit = &cobra.Command{
	Use:   "init <file>",
	Short: "Write the default configuration",
	Args:  cobra.ExactArgs(1),
	Run:   initConfig,
}

var cmdConfigShow = &cobra.Command{
	Use:   "show",
	Short: "Validate and print the effective configuration",
	Args:  cobra.NoArgs,
	Run:   showConfig,
}

func init() {
	cmdMain.AddCommand(cmdConfig)
	cmdConfig.AddCommand(cmdConfigInit, cmdConfigShow)
}

func initConfig(_ *cobra.Command, args []string) {
	checkf(app.StoreConfig(app.DefaultConfig(), args[0]), "write %s", args[0])
	fmt.Println(good("Wrote"), args[0])
}

func showConfig(_ *cobra.Command, _ []string) {
	c := loadConfig()
	check(c.Validate())
	fmt.Printf("%s %s (identifier %#x)\n", label("chain:"), c.Chain.Name, c.Pop.Identifier)
	fmt.Printf("%s settlement=%d window=%d\n", label("pop:"), c.Pop.SettlementInterval, c.Pop.EndorsementWindow)
	fmt.Printf("%s %s %s\n", label("storage:"), c.Storage.Type, c.Storage.Path)
	fmt.Printf("%s interval=%s timeout=%s flush=%v\n", label("sync:"), c.Sync.Interval, c.Sync.Timeout, c.Sync.Flush)
}
