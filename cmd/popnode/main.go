package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"popfork/adapters"
	"popfork/app"
	"popfork/ports"
)

var cmdMain = &cobra.Command{
	Use:   "popnode",
	Short: "Proof-of-Proof fork resolution toolkit",
	Run:   printUsageAndExit1,
}

var flagMain struct {
	Config string
}

var (
	label = color.New(color.FgCyan).SprintFunc()
	good  = color.New(color.FgGreen, color.Bold).SprintFunc()
	bad   = color.New(color.FgRed, color.Bold).SprintFunc()
)

func init() {
	cmdMain.PersistentFlags().StringVarP(&flagMain.Config, "config", "c", "", "TOML config file; defaults apply when empty")

	if os.Getenv("FORCE_COLOR") != "" {
		color.NoColor = false
	}
}

func main() {
	_ = cmdMain.Execute()
}

func printUsageAndExit1(cmd *cobra.Command, args []string) {
	_ = cmd.Usage()
	os.Exit(1)
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, bad("Error: ")+format+"\n", args...)
	os.Exit(1)
}

func check(err error) {
	if err != nil {
		fatalf("%v", err)
	}
}

func checkf(err error, format string, otherArgs ...interface{}) {
	if err != nil {
		fatalf(format+": %v", append(otherArgs, err)...)
	}
}

func loadConfig() *app.Config {
	if flagMain.Config == "" {
		return app.DefaultConfig()
	}
	c, err := app.LoadConfig(flagMain.Config)
	check(err)
	return c
}

func newLogger(c *app.Config) ports.Logger {
	l, err := adapters.NewSlogLogger(os.Stderr, c.Logging.Format, c.Logging.Level)
	checkf(err, "logger")
	return l
}

func parseHeight(s string) uint32 {
	v, err := strconv.ParseUint(s, 10, 32)
	checkf(err, "invalid height %q", s)
	return uint32(v)
}
