package kv

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ozonedb/ozone/lib/dberr"
	"github.com/spf13/cobra"
)

var (
	putCmd = &cobra.Command{
		Use:   "put [key] [value]",
		Short: "Stores the value for a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			value := args[1]
			if err := database.Put([]byte(key), []byte(value)); err != nil {
				return err
			} else {
				fmt.Println("put successfully")
			}
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			value, err := database.Get([]byte(key))
			if dberr.HasCode(err, dberr.CodeNotFound) {
				fmt.Printf("key=%s, found=false\n", key)
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, found=true, value=%s\n", key, value)
			return nil
		},
	}
	delCmd = &cobra.Command{
		Use:     "del [key]",
		Aliases: []string{"delete"},
		Short:   "Deletes a key value pair",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if err := database.Delete([]byte(key)); err != nil {
				return err
			} else {
				fmt.Println("delete successfully")
			}
			return nil
		},
	}
	hasCmd = &cobra.Command{
		Use:   "has [key]",
		Short: "Checks if a key exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if found, err := database.Has([]byte(key)); err != nil {
				return err
			} else {
				fmt.Printf("key=%s, found=%t\n", key, found)
			}
			return nil
		},
	}
	infoCmd = &cobra.Command{
		Use:   "info",
		Short: "Prints a snapshot of the database state as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := database.Info()
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		},
	}
	compactCmd = &cobra.Command{
		Use:   "compact",
		Short: "Rewrites all zone slices, dropping overwritten values and tombstones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			before, err := database.Info()
			if err != nil {
				return err
			}
			if err := database.Compact(); err != nil {
				return err
			}
			after, err := database.Info()
			if err != nil {
				return err
			}
			fmt.Printf("compacted: %d garbage records dropped, %d bytes reclaimed\n",
				before.GarbageRecords-after.GarbageRecords, before.DataBytes-after.DataBytes)
			return nil
		},
	}
)
