package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tenderwatch/scoutd/internal/csvconfig"
)

var listPortalsCmd = &cobra.Command{
	Use:   "list-portals",
	Short: "List every portal defined in base_urls.csv",
	RunE: func(cmd *cobra.Command, args []string) error {
		portals, err := csvconfig.Load(cfg.PortalsFile)
		if err != nil {
			return fmt.Errorf("load portals: %w", err)
		}
		for _, p := range portals {
			fmt.Fprintf(cmd.OutOrStdout(), "%-20s %-10s %s\n", p.Name, p.Category, p.BaseURL)
		}
		return nil
	},
}
