package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hgovi/Basketball-RAG/pkg/config"
	"github.com/hgovi/Basketball-RAG/pkg/database"
	"github.com/hgovi/Basketball-RAG/pkg/llm"
	"github.com/hgovi/Basketball-RAG/pkg/logging"
	"github.com/hgovi/Basketball-RAG/pkg/mcp"
	"github.com/hgovi/Basketball-RAG/pkg/mcp/tools"
	"github.com/hgovi/Basketball-RAG/pkg/retry"
	"github.com/hgovi/Basketball-RAG/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

const serverName = "basketball-rag"

// app carries what every command needs once configuration is loaded.
type app struct {
	configPath string
	cfg        *config.Config
	logger     *zap.Logger
}

func main() {
	a := &app{}
	root := &cobra.Command{
		Use:           serverName,
		Short:         "Answer questions about UCLA women's basketball statistics",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", config.DefaultConfigPath, "Path to config.yaml")

	root.AddCommand(a.askCmd())
	root.AddCommand(a.migrateCmd())
	root.AddCommand(a.inspectCmd())
	root.AddCommand(a.mcpCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

func (a *app) load() error {
	cfg, err := config.LoadFrom(a.configPath, Version)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	a.cfg = cfg
	a.logger = logger
	logger.Debug("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("db_path", cfg.Database.Path),
		zap.String("table", cfg.Database.Table),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("llm_model", cfg.LLM.Model))
	return nil
}

// generator builds the text generator. A provider that cannot be set up
// yields an Unavailable generator so every request reports the reason.
func (a *app) generator() llm.TextGenerator {
	gen, err := llm.NewTextGenerator(llm.Config{
		Provider:    a.cfg.LLM.Provider,
		Endpoint:    a.cfg.LLM.BaseURL,
		Model:       a.cfg.LLM.Model,
		APIKey:      a.cfg.LLM.APIKey(),
		Temperature: a.cfg.LLM.Temperature,
		MaxTokens:   a.cfg.LLM.MaxTokens,
	}, a.logger)
	if err != nil {
		return gen
	}

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxRetries = a.cfg.LLM.MaxRetries
	return llm.NewResilientGenerator(gen, a.logger,
		llm.WithTimeout(a.cfg.LLM.Timeout()),
		llm.WithRetry(retryCfg))
}

func (a *app) engine(gen llm.TextGenerator) (*services.Engine, error) {
	return services.NewEngine(services.EngineConfig{
		DBPath:            a.cfg.Database.Path,
		Table:             a.cfg.Database.Table,
		ReadOnly:          a.cfg.Database.ReadOnly,
		GenerationRetries: a.cfg.Pipeline.GenerationRetries,
		FuzzyThreshold:    a.cfg.Pipeline.FuzzyThreshold,
		DistinctLimit:     a.cfg.Pipeline.DistinctValueLimit,
		SynthesisRowLimit: a.cfg.Pipeline.SynthesisRowLimit,
		Concurrency:       a.cfg.Pipeline.Concurrency,
	}, gen, a.logger)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) askCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "ask QUESTION [QUESTION...]",
		Short: "Answer one or more questions",
		Long: "Answer questions about player statistics. Several questions are " +
			"answered concurrently; pass \"-\" to read one question per line from stdin.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			questions, err := readQuestions(args, cmd.InOrStdin())
			if err != nil {
				return err
			}

			engine, err := a.engine(a.generator())
			if err != nil {
				return err
			}
			results, err := engine.AskAll(cmd.Context(), questions)
			if err != nil {
				return fmt.Errorf("interrupted: %w", err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				if len(results) == 1 {
					return writeJSON(out, results[0])
				}
				return writeJSON(out, results)
			}
			for i, r := range results {
				if len(results) > 1 {
					fmt.Fprintf(out, "Q: %s\n", r.UserQuery)
				}
				fmt.Fprintln(out, r.Response)
				if i < len(results)-1 {
					fmt.Fprintln(out)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full result records as JSON")
	return cmd
}

// readQuestions expands a lone "-" into the non-empty lines of in.
func readQuestions(args []string, in io.Reader) ([]string, error) {
	if len(args) != 1 || args[0] != "-" {
		return args, nil
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return nil, fmt.Errorf("failed to read questions: %w", err)
	}
	var questions []string
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			questions = append(questions, line)
		}
	}
	if len(questions) == 0 {
		return nil, errors.New("no questions on stdin")
	}
	return questions, nil
}

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the statistics database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := database.Open(a.cfg.Database.Path)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := database.RunMigrations(db, a.logger); err != nil {
				return err
			}
			a.logger.Info("Database ready", zap.String("path", a.cfg.Database.Path))
			return nil
		},
	}
}

func (a *app) inspectCmd() *cobra.Command {
	var testSQL string
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Describe the statistics table, or diagnose a query with --test",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := a.engine(a.generator())
			if err != nil {
				return err
			}
			if testSQL != "" {
				report, err := engine.TestQuery(cmd.Context(), testSQL)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), report)
			}
			info, err := engine.Inspect(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), info)
		},
	}
	cmd.Flags().StringVar(&testSQL, "test", "", "SQL query to validate and time")
	return cmd
}

func (a *app) mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the statistics tools over MCP stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			gen := a.generator()
			engine, err := a.engine(gen)
			if err != nil {
				return err
			}
			deps := &tools.StatsToolDeps{
				Engine: engine,
				Model:  a.cfg.LLM.Model,
				Logger: a.logger.Named("tools"),
			}
			if rg, ok := gen.(*llm.ResilientGenerator); ok {
				deps.Provider = rg.Breaker()
			}
			server := mcp.NewStatsServer(serverName, Version, deps, a.logger)
			return server.Serve(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}
