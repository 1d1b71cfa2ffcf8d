package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/inkwell-app/inkwell/internal/config"
	"github.com/inkwell-app/inkwell/internal/gateway"
	"github.com/inkwell-app/inkwell/internal/llm"
	"github.com/inkwell-app/inkwell/internal/store"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "inkwell",
	Short: "inkwell - local-first journaling daemon",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the journaling gateway (editor autosave + chat orchestration)",
	RunE:  runServe,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize config and data directory",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show inkwell status",
	RunE:  runStatus,
}

var entriesCmd = &cobra.Command{
	Use:   "entries",
	Short: "List journal entries",
	RunE:  runEntries,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the inkwell version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

var (
	entriesLimit    int
	entriesArchived bool
)

func init() {
	entriesCmd.Flags().IntVarP(&entriesLimit, "limit", "n", 20, "Maximum entries to list")
	entriesCmd.Flags().BoolVar(&entriesArchived, "archived", false, "List archived entries instead")
	rootCmd.AddCommand(serveCmd, onboardCmd, statusCmd, entriesCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gw, err := gateway.New(cfg)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}
	return gw.Run(context.Background())
}

func runOnboard(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfgPath := config.ConfigPath()

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		if err := config.Save(config.Default()); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Fprintf(out, "Created config: %s\n", cfgPath)
	} else {
		fmt.Fprintf(out, "Config already exists: %s\n", cfgPath)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	st, err := store.Open(cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer st.Close()

	fmt.Fprintf(out, "Database ready: %s\n", cfg.Storage.DBPath)
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintf(out, "  1. Make sure Ollama is running at %s\n", cfg.Provider.BaseURL)
	fmt.Fprintf(out, "  2. Pull the models: ollama pull %s && ollama pull %s\n", cfg.Provider.ChatModel, cfg.Provider.EmbeddingModel)
	fmt.Fprintln(out, "  3. Run 'inkwell serve' to start the gateway")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	return runStatusWithOutput(cmd.OutOrStdout())
}

func runStatusWithOutput(out io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(out, "Config: error (%v)\n", err)
		return nil
	}

	fmt.Fprintf(out, "Config: %s\n", config.ConfigPath())
	fmt.Fprintf(out, "Database: %s\n", cfg.Storage.DBPath)
	fmt.Fprintf(out, "Chat model: %s\n", cfg.Provider.ChatModel)
	fmt.Fprintf(out, "Embedding model: %s\n", cfg.Provider.EmbeddingModel)
	fmt.Fprintf(out, "Safety filter: enabled=%v\n", cfg.Safety.Enabled)
	fmt.Fprintf(out, "Gateway: %s:%d\n", cfg.Gateway.Host, cfg.Gateway.Port)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	status := llm.NewClient(cfg.Provider, nil).CheckStatus(ctx)
	switch {
	case !status.Running:
		fmt.Fprintf(out, "Ollama: not running (%s)\n", status.Error)
	case !status.ModelAvailable:
		fmt.Fprintf(out, "Ollama: running, model %s missing (%s)\n", status.ModelName, status.Error)
	default:
		fmt.Fprintf(out, "Ollama: running, model %s available\n", status.ModelName)
	}
	return nil
}

func runEntries(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	st, err := store.Open(cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	archived := entriesArchived
	entries, err := st.ListEntries(entriesLimit, 0, &archived)
	if err != nil {
		return fmt.Errorf("list entries: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, "No entries.")
		return nil
	}
	for _, e := range entries {
		title := e.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Fprintf(out, "%s  %s  %s\n", e.UpdatedAt.Format("2006-01-02 15:04"), e.ID, title)
	}
	return nil
}
