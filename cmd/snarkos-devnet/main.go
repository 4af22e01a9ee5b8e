package main

import (
	"fmt"
	"os"

	"github.com/eqlabs/snarkos-devnet/cmd/snarkos-devnet/create"
	"github.com/eqlabs/snarkos-devnet/cmd/snarkos-devnet/localnet"
	"github.com/eqlabs/snarkos-devnet/cmd/snarkos-devnet/replay"
	"github.com/eqlabs/snarkos-devnet/cmd/snarkos-devnet/start"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:        "snarkos-devnet",
	Short:      "snarkOS devnet bootstrap and replay commands",
	SuggestFor: []string{"devnet"},
}

func init() {
	cobra.EnablePrefixMatching = true
}

func init() {
	rootCmd.AddCommand(
		create.NewCommand(),
		start.NewCommand(),
		localnet.NewCommand(),
		replay.NewCommand(),
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "snarkos-devnet failed %v\n", err)
		os.Exit(1)
	}
	os.Exit(0)
}
