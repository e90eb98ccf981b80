package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/otaforge/otapatch/internal/modules"
)

var modulesCmd = &cobra.Command{
	Use:   "modules",
	Short: "List the modules this build can inject",
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range modules.NewRegistry().Names() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
	},
}

func init() {
	rootCmd.AddCommand(modulesCmd)
}
