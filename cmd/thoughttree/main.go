// Package main provides the thoughttree CLI entrypoint.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/davidchris/thoughttree/internal/config"
	"github.com/davidchris/thoughttree/internal/logging"
)

var (
	version = "0.1.0"
	pretty  = true
	cfg     *config.Config
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "thoughttree [path]",
		Short: "Branching conversations with coding agents",
		Long: `ThoughtTree: a branching-conversation client for ACP coding agents.

Usage modes:
  thoughttree          Open the chat TUI in the current directory
  thoughttree <path>   Open the chat TUI in the given directory
  thoughttree ask ...  One-shot prompt without the TUI

Conversations form a DAG: retry an answer and both branches stay.`,
		Args: cobra.MaximumNArgs(1),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logging.SetDebug(config.Env().Debug)
			var err error
			cfg, err = config.Load()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if !term.IsTerminal(int(os.Stdin.Fd())) {
				return fmt.Errorf("stdin is not a terminal; use 'thoughttree ask' for non-interactive prompts")
			}
			workdir, err := resolveWorkdir(args)
			if err != nil {
				return err
			}
			return runChat(cmd, workdir)
		},
	}

	rootCmd.PersistentFlags().BoolVar(&pretty, "pretty", true, "Pretty print output")
	rootCmd.Flags().String("provider", "", "Provider id (default from config)")
	rootCmd.Flags().Bool("resume", false, "Resume the saved conversation in the directory")

	rootCmd.AddCommand(
		askCmd(),
		providersCmd(),
		configCmd(),
		exportCmd(),
		searchCmd(),
		projectsCmd(),
		doctorCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show thoughttree version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("thoughttree version %s\n", version)
		},
	}
}

// resolveWorkdir picks the working directory from args, falling back to
// the configured notes directory and then the current directory.
func resolveWorkdir(args []string) (string, error) {
	if len(args) > 0 {
		abs, err := filepath.Abs(args[0])
		if err != nil {
			return "", err
		}
		info, err := os.Stat(abs)
		if err != nil {
			return "", fmt.Errorf("workdir: %w", err)
		}
		if !info.IsDir() {
			return "", fmt.Errorf("workdir %s is not a directory", abs)
		}
		return abs, nil
	}
	if cfg != nil && cfg.NotesDir != "" {
		return cfg.NotesDir, nil
	}
	return os.Getwd()
}

// providerFromFlags resolves the provider id from the flag or config.
func providerFromFlags(cmd *cobra.Command) string {
	if id, _ := cmd.Flags().GetString("provider"); id != "" {
		return id
	}
	if cfg != nil && cfg.DefaultProvider != "" {
		return cfg.DefaultProvider
	}
	return "claude"
}
