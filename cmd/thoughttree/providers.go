package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/davidchris/thoughttree/internal/provider"
	"github.com/davidchris/thoughttree/internal/render"
)

func providersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "Inspect and validate agent providers",
	}
	cmd.AddCommand(providersListCmd(), providersCheckCmd(), providersValidateCmd())
	return cmd
}

func providersListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List known providers and availability",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog := provider.NewCatalog(cfg, nil)

			var rows []render.ProviderRow
			for _, id := range catalog.IDs() {
				command, cmdArgs, err := catalog.Command(id)
				if err != nil {
					continue
				}
				full := command
				for _, a := range cmdArgs {
					full += " " + a
				}
				rows = append(rows, render.ProviderRow{
					ID:        id,
					Command:   full,
					Available: catalog.Available(id),
				})
			}
			fmt.Print(render.New(pretty).Providers(rows))
			return nil
		},
	}
}

func providersCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [provider]",
		Short: "Check whether a provider's adapter executable is on PATH",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := "claude"
			if len(args) > 0 {
				id = args[0]
			} else if cfg != nil && cfg.DefaultProvider != "" {
				id = cfg.DefaultProvider
			}

			catalog := provider.NewCatalog(cfg, nil)
			if !catalog.Available(id) {
				return fmt.Errorf("provider %q is not available", id)
			}
			fmt.Printf("provider %q is available\n", id)
			return nil
		},
	}
}

func providersValidateCmd() *cobra.Command {
	var save bool

	cmd := &cobra.Command{
		Use:   "validate <provider> <path>",
		Short: "Probe an adapter executable and optionally save it as override",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, path := args[0], args[1]

			catalog := provider.NewCatalog(cfg, nil)
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()

			version, err := catalog.Validate(ctx, id, path)
			if err != nil {
				return err
			}
			fmt.Printf("%s: %s\n", id, version)

			if save {
				cfg.ProviderPaths[id] = path
				if err := cfg.Save(); err != nil {
					return fmt.Errorf("save config: %w", err)
				}
				fmt.Printf("saved override for %q\n", id)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&save, "save", false, "Save the path as the provider override")
	return cmd
}
