package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/defibabylon/collectorsage/internal/api"
	"github.com/defibabylon/collectorsage/internal/cache"
	"github.com/defibabylon/collectorsage/internal/catalogue"
	"github.com/defibabylon/collectorsage/internal/config"
	"github.com/defibabylon/collectorsage/internal/embedding"
	"github.com/defibabylon/collectorsage/internal/fx"
	"github.com/defibabylon/collectorsage/internal/logging"
	"github.com/defibabylon/collectorsage/internal/marketplace"
	"github.com/defibabylon/collectorsage/internal/pipeline"
	"github.com/defibabylon/collectorsage/internal/pricing"
	"github.com/defibabylon/collectorsage/internal/report"
	"github.com/defibabylon/collectorsage/internal/vision"
)

var (
	// Global flags
	configPath string
	verbose    bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "collectorsage",
	Short: "CollectorSage - comic book valuation pipeline",
	Long: `CollectorSage estimates the market value of a comic book from a
cover photograph: a vision model extracts the identity, a semantic
catalogue of historical sales and a live marketplace search run in
parallel, and the reconciled prices feed a dealer-style report.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zc := zap.NewProductionConfig()
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.Close()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP valuation service",
	RunE:  runServe,
}

var indexCmd = &cobra.Command{
	Use:   "index [dump-file]",
	Short: "Build the semantic catalogue index from a sale-record dump",
	Args:  cobra.ExactArgs(1),
	RunE:  runIndex,
}

var appraiseCmd = &cobra.Command{
	Use:   "appraise [image-file]",
	Short: "Value a single comic from a cover photograph",
	Args:  cobra.ExactArgs(1),
	RunE:  runAppraise,
}

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Semantic search over the catalogue index",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

var (
	wikiPath   string
	searchTopK int
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "collectorsage.yaml", "path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	indexCmd.Flags().StringVar(&wikiPath, "wiki", "", "optional wiki corpus file (tab-separated)")
	searchCmd.Flags().IntVar(&searchTopK, "top-k", 5, "number of results")

	rootCmd.AddCommand(serveCmd, indexCmd, appraiseCmd, searchCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := logging.Initialize(cfg.Logging.Dir, logging.Options{
		DebugMode:  cfg.Logging.DebugMode || verbose,
		Level:      cfg.Logging.Level,
		JSONFormat: cfg.Logging.JSONFormat,
		Categories: cfg.Logging.Categories,
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	return cfg, nil
}

// openIndex opens the catalogue store and its embedding engine.
func openIndex(cfg *config.Config) (*catalogue.Store, embedding.Engine, error) {
	engine, err := embedding.NewEngine(embedding.Config{
		Provider:       cfg.Embedding.Provider,
		OllamaEndpoint: cfg.Embedding.OllamaEndpoint,
		OllamaModel:    cfg.Embedding.OllamaModel,
		GenAIAPIKey:    cfg.Embedding.GenAIAPIKey,
		GenAIModel:     cfg.Embedding.GenAIModel,
		TaskType:       cfg.Embedding.TaskType,
		Dimensions:     cfg.Embedding.Dimensions,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create embedding engine: %w", err)
	}
	store, err := catalogue.NewStore(cfg.Catalogue.DatabasePath, engine.Dimensions())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open catalogue index: %w", err)
	}
	return store, engine, nil
}

// buildOrchestrators wires the full and fast pipelines. The fast
// variant skips the narrative.
func buildOrchestrators(cfg *config.Config, store *catalogue.Store, engine embedding.Engine, c cache.Cache) (full, fast *pipeline.Orchestrator, resolver *catalogue.Resolver, err error) {
	resolver = catalogue.NewResolver(store, engine,
		catalogue.WithPoolSize(cfg.Catalogue.CandidatePool),
		catalogue.WithKeep(cfg.Catalogue.Keep),
	)

	market, err := marketplace.NewClient(marketplace.Config{
		ClientID:     cfg.Marketplace.ClientID,
		ClientSecret: cfg.Marketplace.ClientSecret,
		BaseURL:      cfg.Marketplace.BaseURL,
		AuthURL:      cfg.Marketplace.AuthURL,
		CategoryID:   cfg.Marketplace.CategoryID,
		Country:      cfg.Marketplace.Country,
		Timeout:      config.Duration(cfg.Marketplace.Timeout, 30*time.Second),
		TokenTTL:     config.Duration(cfg.Cache.TTL, time.Hour),
	}, c)
	if err != nil {
		return nil, nil, nil, err
	}

	rates := fx.NewClient(cfg.FX.BaseURL, config.Duration(cfg.FX.Timeout, 15*time.Second))
	reconciler := pricing.NewReconciler(fx.NewConverter(rates, cfg.Currency))

	anthropicClient, err := vision.NewAnthropicClient(cfg.Vision.APIKey, cfg.Vision.BaseURL,
		config.Duration(cfg.Vision.Timeout, 60*time.Second))
	if err != nil {
		return nil, nil, nil, err
	}
	strategy := vision.NewStrategy(
		vision.NewModelExtractor(anthropicClient, cfg.Vision.FastModel, "fast"),
		vision.NewModelExtractor(anthropicClient, cfg.Vision.ThoroughModel, "thorough"),
		vision.WithAttempts(cfg.Vision.MaxAttempts),
		vision.WithBackoff(vision.ConstantBackoff(config.Duration(cfg.Vision.Backoff, time.Second))),
	)

	narrator := report.NewWriter(anthropicClient, cfg.Report.Model, cfg.Report.MaxTokens)

	full = pipeline.New(strategy, resolver, market, reconciler, narrator)
	fast = pipeline.New(strategy, resolver, market, reconciler, nil)
	return full, fast, resolver, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, engine, err := openIndex(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	c := cache.New(cfg.Cache.RedisURL)
	defer c.Close()

	full, fast, resolver, err := buildOrchestrators(cfg, store, engine, c)
	if err != nil {
		return err
	}

	srv := api.NewServer(full, fast, resolver, func(ctx context.Context) map[string]any {
		n, _ := store.Count(ctx)
		return map[string]any{
			"index_records":    n,
			"embedding_engine": engine.Name(),
			"currency":         cfg.Currency,
		}
	})

	httpSrv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Router(),
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	done := make(chan error, 1)
	go func() {
		logger.Info("serving", zap.String("addr", cfg.Server.Addr))
		done <- httpSrv.ListenAndServe()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-done:
		return err
	case s := <-sig:
		logger.Info("shutting down", zap.String("signal", s.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(ctx)
	}
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, engine, err := openIndex(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	indexer := catalogue.NewIndexer(store, engine)
	n, err := indexer.IndexFile(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("indexing failed after %d records: %w", n, err)
	}
	logger.Info("indexed", zap.Int("records", n), zap.String("dump", args[0]))

	if wikiPath != "" {
		wn, err := indexer.IndexWiki(cmd.Context(), wikiPath)
		if err != nil {
			return fmt.Errorf("wiki load failed: %w", err)
		}
		logger.Info("loaded wiki corpus", zap.Int("entries", wn))
	}
	return nil
}

func runAppraise(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, engine, err := openIndex(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	c := cache.New(cfg.Cache.RedisURL)
	defer c.Close()

	full, _, _, err := buildOrchestrators(cfg, store, engine, c)
	if err != nil {
		return err
	}

	image, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}

	v, err := full.Appraise(cmd.Context(), image)
	if err != nil {
		return err
	}
	return printJSON(v)
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, engine, err := openIndex(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	resolver := catalogue.NewResolver(store, engine)
	records, err := resolver.Search(cmd.Context(), strings.Join(args, " "), searchTopK)
	if err != nil {
		return err
	}
	return printJSON(records)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
