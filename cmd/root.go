package cmd

import (
	"fmt"
	"os"

	"github.com/ozonedb/ozone/cmd/kv"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.1"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "ozone",
		Short: "zone-sharded embedded key-value database",
		Long: fmt.Sprintf(`ozone (v%s)

An embedded key-value database written in Go. Keys are sharded over
zones, each zone is served by a pool of worker bots with exclusive
on-disk slices, and values are checksummed and optionally signed and
encrypted before they hit disk.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of ozone",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ozone v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(kv.KeyValueCommands)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
