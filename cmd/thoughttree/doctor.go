package main

import (
	"context"
	"os"
	"os/exec"
	"time"

	"github.com/spf13/cobra"

	"github.com/davidchris/thoughttree/internal/config"
	"github.com/davidchris/thoughttree/internal/provider"
	"github.com/davidchris/thoughttree/internal/render"
	"github.com/davidchris/thoughttree/internal/storage"
)

func doctorCmd() *cobra.Command {
	var probe bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the local setup",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := render.Stdout()
			catalog := provider.NewCatalog(cfg, nil)
			failures := 0
			check := func(ok bool, format string, args ...any) {
				if !ok {
					failures++
				}
				w.Item("%s "+format, append([]any{render.BoolIcon(ok)}, args...)...)
			}

			w.Section("config")
			check(dirWritable(config.Dir()), "config dir writable (%s)", config.Dir())
			check(cfg.NotesDir != "", "notes dir configured (%s)", orUnset(cfg.NotesDir))
			if cfg.NotesDir != "" {
				info, err := os.Stat(cfg.NotesDir)
				check(err == nil && info.IsDir(), "notes dir exists")
			}

			w.Section("providers")
			_, npxErr := exec.LookPath("npx")
			check(npxErr == nil, "npx on PATH (needed for the default adapter)")
			for _, id := range catalog.IDs() {
				available := catalog.Available(id)
				check(available, "%s adapter resolvable", id)

				if probe && available {
					ctx, cancel := context.WithTimeout(cmd.Context(), 20*time.Second)
					version, err := catalog.Validate(ctx, id, cfg.ProviderPath(id))
					cancel()
					if err != nil {
						check(false, "%s adapter probe: %v", id, err)
					} else {
						check(true, "%s adapter probe: %s", id, version)
					}
				}
			}
			check(config.Env().AnthropicKey != "", "ANTHROPIC_API_KEY set")

			w.Section("storage")
			store, err := storage.New(config.Dir())
			check(err == nil, "sqlite store opens")
			if err == nil {
				w.Nested("%s", store.Path())
				store.Close()
			}

			w.Line()
			if failures > 0 {
				w.Println("%d problem(s) found", failures)
			} else {
				w.Println("All checks passed")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&probe, "probe", false, "Actually launch each adapter with a version flag")
	return cmd
}

func dirWritable(dir string) bool {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return false
	}
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return false
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return true
}
