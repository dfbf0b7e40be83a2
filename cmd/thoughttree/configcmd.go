package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/davidchris/thoughttree/internal/config"
	"github.com/davidchris/thoughttree/internal/render"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change configuration",
	}
	cmd.AddCommand(configGetCmd(), configSetCmd())
	return cmd
}

func configGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Show the active configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := render.Stdout()
			w.Println("config dir: %s", config.Dir())
			w.Println("notes dir: %s", orUnset(cfg.NotesDir))
			w.Println("default provider: %s", cfg.DefaultProvider)
			if len(cfg.ProviderPaths) > 0 {
				w.Section("provider overrides")
				for id, path := range cfg.ProviderPaths {
					w.Item("%s: %s", id, path)
				}
			}
			return nil
		},
	}
}

func configSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long: `Supported keys:
  notes-dir         root directory for notes and the permission boundary
  default-provider  provider used when none is given`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]
			switch key {
			case "notes-dir":
				abs, err := filepath.Abs(value)
				if err != nil {
					return err
				}
				cfg.NotesDir = abs
			case "default-provider":
				cfg.DefaultProvider = value
			default:
				return fmt.Errorf("unknown config key %q", key)
			}
			if err := cfg.Save(); err != nil {
				return err
			}
			fmt.Printf("set %s\n", key)
			return nil
		},
	}
	return cmd
}

func orUnset(s string) string {
	if s == "" {
		return "(unset)"
	}
	return s
}
