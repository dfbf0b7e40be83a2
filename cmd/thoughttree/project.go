package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/davidchris/thoughttree/internal/config"
	"github.com/davidchris/thoughttree/internal/project"
	"github.com/davidchris/thoughttree/internal/render"
	"github.com/davidchris/thoughttree/internal/storage"
)

func exportCmd() *cobra.Command {
	var out string
	var nodeID string
	var tree bool

	cmd := &cobra.Command{
		Use:   "export [path]",
		Short: "Export a saved conversation lineage to Markdown",
		Long: `Exports the chosen-parent chain of a saved conversation as Markdown.
Defaults to the deepest leaf; pass --node to export another branch, or
--tree to print the whole DAG as an outline instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := resolveWorkdir(args)
			if err != nil {
				return err
			}
			if !project.Exists(dir) {
				return fmt.Errorf("no saved conversation in %s", dir)
			}
			file, g, err := project.Load(dir)
			if err != nil {
				return err
			}

			if tree {
				fmt.Print(render.New(pretty).Tree(g))
				return nil
			}

			target := nodeID
			if target == "" {
				leaves := project.Leaves(g)
				if len(leaves) == 0 {
					return fmt.Errorf("conversation is empty")
				}
				target = leaves[len(leaves)-1]
			}

			md, err := project.ExportMarkdown(file, g, target)
			if err != nil {
				return err
			}
			if out == "" {
				fmt.Print(md)
				return nil
			}
			return os.WriteFile(out, []byte(md), 0644)
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "Write to file instead of stdout")
	cmd.Flags().StringVar(&nodeID, "node", "", "Leaf node id to export from")
	cmd.Flags().BoolVar(&tree, "tree", false, "Print the conversation DAG as an outline")
	return cmd
}

func searchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Fuzzy-search note files under the notes directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			notesDir := cfg.NotesDir
			if notesDir == "" {
				var err error
				notesDir, err = os.Getwd()
				if err != nil {
					return err
				}
			}

			matches, err := project.SearchNotes(notesDir, args[0])
			if err != nil {
				return err
			}
			if len(matches) == 0 {
				fmt.Println("No matches")
				return nil
			}
			for _, m := range matches {
				fmt.Println(project.AbsNote(notesDir, m.Path))
			}
			return nil
		},
	}
}

func projectsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "projects",
		Short: "List saved projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := storage.New(config.Dir())
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()

			list, err := store.ListProjects(ctx)
			if err != nil {
				return err
			}
			projects := make([]storage.Project, len(list))
			for i, p := range list {
				projects[i] = *p
			}
			fmt.Print(render.New(pretty).Projects(projects))
			return nil
		},
	}
}
