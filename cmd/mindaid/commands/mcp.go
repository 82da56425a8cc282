// ABOUTME: MCP command starts the Model Context Protocol server
// ABOUTME: Exposes registration, diagnosis, and counseling tools to LLM agents over stdio
package commands

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/harper/mindaid/internal/bootstrap"
	"github.com/harper/mindaid/internal/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

// NewMCPCmd creates the MCP command
func NewMCPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for LLM agents",
		Long: `Start MCP server for LLM agents

Runs MindAid as an MCP (Model Context Protocol) server over stdio so an
LLM agent can register users, run assessments, and hold counseling
conversations through MindAid's tools.

Requires OPENAI_API_KEY (or OPENAI_BASE_URL for a compatible endpoint).
The counseling corpus is embedded at startup; cached vectors are reused.`,
		RunE: runMCP,
		Example: `  # Start MCP server (typically called by an MCP client)
  mindaid mcp

  # Configure in claude_desktop_config.json:
  # {
  #   "mcpServers": {
  #     "mindaid": {
  #       "command": "mindaid",
  #       "args": ["mcp"]
  #     }
  #   }
  # }`,
	}

	return cmd
}

func runMCP(cmd *cobra.Command, args []string) error {
	// Cancelled on SIGINT/SIGTERM, which also aborts a slow corpus build
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	container, err := openServices(ctx)
	if err != nil {
		return err
	}

	return Serve(ctx, container)
}

// Serve runs the stdio MCP server until ctx is cancelled or stdin closes,
// then closes the container
func Serve(ctx context.Context, container *bootstrap.Container) error {
	server := mcp.NewServer(versionInfo.Version, mcp.Services{
		Users:     container.Users,
		Diagnosis: container.Diagnosis,
		Counselor: container.Counselor,
	}, container.Logger)

	if !quiet {
		log.Println("MindAid MCP server starting on stdio...")
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- mcpserver.ServeStdio(server)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		if !quiet {
			log.Println("Shutdown signal received, gracefully shutting down...")
		}
	case err := <-serverErr:
		if err != nil {
			runErr = fmt.Errorf("server error: %w", err)
		}
	}

	// Close storage (flushes WAL, closes DB) and the redis client
	if err := container.Close(); err != nil {
		log.Printf("Warning: Error closing services: %v", err)
	}
	if !quiet && runErr == nil {
		log.Println("Shutdown complete")
	}
	return runErr
}
