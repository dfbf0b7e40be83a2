package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/davidchris/thoughttree/internal/acp"
	"github.com/davidchris/thoughttree/internal/bridge"
	"github.com/davidchris/thoughttree/internal/graph"
	"github.com/davidchris/thoughttree/internal/permission"
	"github.com/davidchris/thoughttree/internal/provider"
)

func askCmd() *cobra.Command {
	var workdirFlag string

	cmd := &cobra.Command{
		Use:   "ask <prompt>",
		Short: "Send a one-shot prompt and stream the answer to stdout",
		Long: `Sends a single prompt to the agent and streams the reply.

Tool permission requests that would need interactive approval are
rejected; read-only tools inside the working directory still run.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.Join(args, " ")
			workdir := workdirFlag
			if workdir == "" {
				var err error
				workdir, err = os.Getwd()
				if err != nil {
					return err
				}
			}
			return runAsk(cmd, workdir, prompt)
		},
	}

	cmd.Flags().StringVarP(&workdirFlag, "dir", "d", "", "Working directory for the agent")
	cmd.Flags().String("provider", "", "Provider id (default from config)")
	return cmd
}

func runAsk(cmd *cobra.Command, workdir, prompt string) error {
	providerID := providerFromFlags(cmd)

	g := graph.New()
	userID := graph.NewID()
	if err := g.AddNode(&graph.Node{ID: userID, Role: graph.RoleUser, Content: prompt}); err != nil {
		return err
	}
	assistantID := graph.NewID()
	if err := g.AddNode(&graph.Node{ID: assistantID, Role: graph.RoleAssistant}); err != nil {
		return err
	}
	if err := g.AddEdge(userID, assistantID); err != nil {
		return err
	}

	var br *bridge.Bridge
	events := bridge.Events{
		OnChunk: func(ev bridge.ChunkEvent) {
			fmt.Print(ev.Chunk)
		},
		// Non-interactive: nobody can answer, so reject immediately.
		OnPermission: func(ev permission.Event) {
			_ = br.RespondToPermission(ev.ID, "")
		},
	}
	br = bridge.New(g, provider.NewCatalog(cfg, nil), workdir, events)
	defer br.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stopReason, err := br.SendPrompt(ctx, assistantID, nil, providerID, "")
	fmt.Println()
	if err != nil {
		return err
	}
	switch stopReason {
	case acp.StopCancelled:
		return fmt.Errorf("cancelled")
	case acp.StopError:
		return fmt.Errorf("agent reported an error")
	case acp.StopLimitReached:
		fmt.Fprintln(os.Stderr, "Warning: turn limit reached")
	}
	return nil
}
