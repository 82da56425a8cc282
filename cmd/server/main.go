// ABOUTME: Main entry point for the MindAid MCP server with stdio transport
// ABOUTME: Builds all services from the environment and serves the MCP tools
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/harper/mindaid/internal/bootstrap"
	"github.com/harper/mindaid/internal/config"
	"github.com/harper/mindaid/internal/logging"
	"github.com/harper/mindaid/internal/mcp"
	"github.com/joho/godotenv"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// Set by goreleaser
var version = "dev"

func main() {
	// Load .env file if it exists (for API keys)
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found (this is okay for production): %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	logger := logging.New(logging.Options{FilePath: cfg.LogFile, Production: cfg.LogProduction})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	container, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}
	defer func() { _ = container.Close() }()

	server := mcp.NewServer(version, mcp.Services{
		Users:     container.Users,
		Diagnosis: container.Diagnosis,
		Counselor: container.Counselor,
	}, logger)

	log.Println("MindAid MCP server starting on stdio...")
	if err := mcpserver.ServeStdio(server); err != nil {
		log.Printf("Server error: %v", err)
	}
}
