package kv

import (
	"github.com/ozonedb/ozone/cmd/util"
	"github.com/ozonedb/ozone/lib/ozone"
	"github.com/spf13/cobra"
)

var (
	database *ozone.DB

	// KeyValueCommands represents the KV command group
	KeyValueCommands = &cobra.Command{
		Use:                "kv",
		Short:              "Perform key-value operations on a local database",
		PersistentPreRunE:  setupDB,
		PersistentPostRunE: teardownDB,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add the database flags to the KV command group
	util.SetupDBFlags(KeyValueCommands)

	// Add subcommands
	KeyValueCommands.AddCommand(putCmd)
	KeyValueCommands.AddCommand(getCmd)
	KeyValueCommands.AddCommand(delCmd)
	KeyValueCommands.AddCommand(hasCmd)
	KeyValueCommands.AddCommand(infoCmd)
	KeyValueCommands.AddCommand(compactCmd)
	KeyValueCommands.AddCommand(perfTestCmd)
}

// setupDB opens the database for the duration of one command
func setupDB(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	cfg, err := util.GetDBConfig()
	if err != nil {
		return err
	}

	database, err = ozone.Open(cfg)
	return err
}

// teardownDB drains and closes the database
func teardownDB(_ *cobra.Command, _ []string) error {
	if database == nil {
		return nil
	}
	return database.Close()
}
