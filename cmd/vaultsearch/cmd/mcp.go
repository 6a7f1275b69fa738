package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"github.com/wesm/vaultsearch/internal/events"
	mcpserver "github.com/wesm/vaultsearch/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run MCP server for Claude Desktop integration",
	Long: `Start an MCP (Model Context Protocol) server over stdio.

This lets Claude Desktop (or any MCP client) drive a live search view with
tools like search, set_filters, select_results, get_view and answer_prompt.
When [events] origin is configured, remote entity changes keep the view's
results current between tool calls.

Add to Claude Desktop config:
  {
    "mcpServers": {
      "vaultsearch": {
        "command": "vaultsearch",
        "args": ["mcp"]
      }
    }
  }`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		s, engine, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		prompts, err := newPromptConfirmer()
		if err != nil {
			return err
		}

		prog, err := startView(viewOptions(ctx, engine, prompts, nil))
		if err != nil {
			return err
		}
		defer func() {
			prog.Quit()
			_ = prog.Wait()
		}()

		if cfg.EventsEnabled() {
			client := events.NewSSEClient(sseConfig(), prog.PublishUpdates, logger, nil)
			go func() {
				if err := client.Run(ctx); err != nil && !errors.Is(err, events.ErrUnauthorized) {
					logger.Error("event stream stopped", "error", err)
				}
			}()
		}

		return mcpserver.Serve(ctx, mcpserver.Deps{
			View:    prog,
			Prompts: prompts,
			Engine:  engine,
		})
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
