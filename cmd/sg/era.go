package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/steveyegge/saga/internal/types"
)

var (
	eraTable   string
	eraName    string
	eraFrom    string
	eraUntil   string
	eraTo      string
	eraSubtype string
	eraFixture string
)

var eraCmd = &cobra.Command{
	Use:   "era",
	Short: "Manage era registrations",
}

var eraAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register an era on a relation",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		planFixture = eraFixture
		store := openStore(ctx)
		defer store.Close()

		era := types.Era{
			Table:            eraTable,
			Name:             eraName,
			ValidFromColumn:  eraFrom,
			ValidUntilColumn: eraUntil,
			ValidToColumn:    eraTo,
			Subtype:          types.RangeSubtype(eraSubtype),
		}
		if err := store.AddEra(ctx, era); err != nil {
			fatalError("adding era: %v", err)
		}
		if jsonOutput {
			printJSON(era)
			return
		}
		fmt.Printf("Registered era %s on %s\n", era.Name, era.Table)
	},
}

var eraListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered eras",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		planFixture = eraFixture
		store := openStore(ctx)
		defer store.Close()

		eras, err := store.ListEras(ctx)
		if err != nil {
			fatalError("listing eras: %v", err)
		}
		if jsonOutput {
			printJSON(eras)
			return
		}
		for _, era := range eras {
			mirror := ""
			if era.ValidToColumn != "" {
				mirror = " mirror=" + era.ValidToColumn
			}
			fmt.Printf("%s.%s: [%s, %s) subtype=%s%s\n",
				era.Table, era.Name, era.ValidFromColumn, era.ValidUntilColumn, era.Subtype, mirror)
		}
	},
}

func init() {
	eraAddCmd.Flags().StringVar(&eraTable, "table", "", "relation name")
	eraAddCmd.Flags().StringVar(&eraName, "name", "validity", "era name")
	eraAddCmd.Flags().StringVar(&eraFrom, "valid-from", "valid_from", "valid_from column")
	eraAddCmd.Flags().StringVar(&eraUntil, "valid-until", "valid_until", "valid_until column")
	eraAddCmd.Flags().StringVar(&eraTo, "valid-to", "", "inclusive-end mirror column")
	eraAddCmd.Flags().StringVar(&eraSubtype, "subtype", string(types.SubtypeDate), "range subtype (date, int, timestamp)")
	eraAddCmd.Flags().StringVar(&eraFixture, "fixture", "", "yaml fixture file instead of a database")
	eraListCmd.Flags().StringVar(&eraFixture, "fixture", "", "yaml fixture file instead of a database")

	eraCmd.AddCommand(eraAddCmd)
	eraCmd.AddCommand(eraListCmd)
	rootCmd.AddCommand(eraCmd)
}
