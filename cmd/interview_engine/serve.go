package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jonathan/interview-engine/internal/config"
	"github.com/jonathan/interview-engine/internal/evaluator"
	"github.com/jonathan/interview-engine/internal/gateway"
	"github.com/jonathan/interview-engine/internal/ledger"
	"github.com/jonathan/interview-engine/internal/llm"
	"github.com/jonathan/interview-engine/internal/selector"
	"github.com/jonathan/interview-engine/internal/server"
	"github.com/jonathan/interview-engine/internal/session"
	"github.com/jonathan/interview-engine/internal/store"
)

var (
	servePort  int
	configPath string
	devMode    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Start an HTTP server that exposes REST endpoints for running adaptive interview sessions.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().StringVar(&configPath, "config", "", "Path to JSON config file")
	serveCmd.Flags().BoolVar(&devMode, "dev", false, "Run with the in-memory store instead of Postgres")
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	if devMode {
		// Routed through the env overlay so the file config can also
		// enable it.
		if err := os.Setenv("DEV_MODE", strconv.FormatBool(devMode)); err != nil {
			return err
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Port = servePort
	}
	if cfg.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}

	ctx := context.Background()

	var st store.Store
	if cfg.Dev {
		log.Println("Dev mode: using in-memory store")
		st = store.NewMemory()
	} else {
		pg, err := store.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		st = pg
	}

	client, err := llm.NewGeminiClient(ctx, cfg.APIKey)
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			log.Printf("Failed to close LLM client: %v", err)
		}
	}()

	gw := gateway.New(client, cfg)
	led := ledger.New(st)
	orch := session.New(st, selector.New(gw), evaluator.New(gw), led, gw, cfg)

	return server.New(cfg, orch, st).Start()
}
