package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/davidchris/thoughttree/internal/bridge"
	"github.com/davidchris/thoughttree/internal/config"
	"github.com/davidchris/thoughttree/internal/graph"
	"github.com/davidchris/thoughttree/internal/project"
	"github.com/davidchris/thoughttree/internal/provider"
	"github.com/davidchris/thoughttree/internal/runtime"
	"github.com/davidchris/thoughttree/internal/storage"
	"github.com/davidchris/thoughttree/internal/tui"
)

// runChat opens the interactive TUI in workdir, resuming the saved
// conversation when asked, and persists the graph on exit.
func runChat(cmd *cobra.Command, workdir string) error {
	providerID := providerFromFlags(cmd)
	resume, _ := cmd.Flags().GetBool("resume")

	catalog := provider.NewCatalog(cfg, nil)
	if !catalog.Available(providerID) {
		return fmt.Errorf("provider %q is not available; run 'thoughttree providers check'", providerID)
	}

	g := graph.New()
	file := &project.File{
		ID:       project.NewID(),
		Name:     filepath.Base(workdir),
		Provider: providerID,
	}
	leafID := ""
	if resume && project.Exists(workdir) {
		loadedFile, loadedGraph, err := project.Load(workdir)
		if err != nil {
			return fmt.Errorf("resume: %w", err)
		}
		file, g = loadedFile, loadedGraph
		if leaves := project.Leaves(g); len(leaves) > 0 {
			leafID = leaves[len(leaves)-1]
		}
	}

	relay := tui.NewRelay()
	br := bridge.New(g, catalog, workdir, relay.Events())

	store, storeErr := storage.New(config.Dir())

	mgr := runtime.NewShutdownManager(runtime.DefaultShutdownTimeout)
	mgr.ListenForSignals()
	mgr.RegisterSimple("bridge", br.Close)
	if storeErr == nil {
		mgr.Register("store", func(context.Context) error { return store.Close() })
	}

	runErr := tui.Run(g, br, relay, providerID, workdir, leafID)

	// Persist before teardown so a killed adapter can't lose the graph.
	if g.Len() > 0 {
		if err := project.Save(workdir, file, g); err != nil && runErr == nil {
			runErr = fmt.Errorf("save conversation: %w", err)
		}
		if storeErr == nil {
			persistGraph(store, file, workdir, g)
		}
	}

	mgr.Shutdown()
	return runErr
}

func persistGraph(store *storage.Store, file *project.File, workdir string, g *graph.Graph) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	now := time.Now()
	p := &storage.Project{
		ID:        file.ID,
		Name:      file.Name,
		NotesDir:  workdir,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := store.GetProject(ctx, file.ID); err != nil {
		if err := store.CreateProject(ctx, p); err != nil {
			return
		}
	}
	_ = store.SaveGraph(ctx, file.ID, g)
}
