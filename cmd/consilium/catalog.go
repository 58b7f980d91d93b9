package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lorenzotomasdiez/consilium/internal/catalog"
	"github.com/lorenzotomasdiez/consilium/internal/output"
)

func newCatalogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "Print the specialist catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("Catalog version %s, %d specialties\n\n", catalog.Version, len(catalog.All()))
			output.PrintCatalog(catalog.All())
			return nil
		},
	}
}
