package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"demandradar/internal/competitive"
	"demandradar/internal/config"
	"demandradar/internal/model"
	"demandradar/internal/pipeline"
	"demandradar/internal/store"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "radar",
	Short:   "Market demand radar",
	Long:    "radar pulls posts from product communities and app stores, extracts product opportunities with an LLM, and scores demand against existing supply.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(topCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(cacheCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("radar", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/radar/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure sources, API keys, and the LLM model.")
		return nil
	},
}

// --- run command ---

var (
	runLimit      int
	noExtract     bool
	noCompetitive bool
	noContent     bool
	goldOnly      bool
	saveRun       bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline: fetch -> normalize -> extract -> enrich -> score",
	RunE: func(cmd *cobra.Command, args []string) error {
		pipe, err := pipeline.New(cfg)
		if err != nil {
			return err
		}

		result, err := pipe.Run(context.Background(), pipeline.Options{
			Limit:           runLimit,
			SkipExtraction:  noExtract,
			SkipCompetitive: noCompetitive,
			SkipContentFill: noContent,
		})

		for i, step := range result.Steps {
			fmt.Printf("\nStage %d: %s\n", i+1, step.Name)
			if step.Err != nil {
				fmt.Printf("  Error: %v\n", step.Err)
			} else if step.Attempted > 0 {
				fmt.Printf("  %s (%d/%d units succeeded)\n", step.Summary, step.Succeeded, step.Attempted)
			} else {
				fmt.Printf("  %s\n", step.Summary)
			}
		}
		if errors.Is(err, model.ErrNoPosts) {
			return fmt.Errorf("no posts survived normalization; check source configuration")
		}
		if err != nil {
			return err
		}

		posts := result.Posts
		if goldOnly {
			posts = goldPosts(posts)
		}

		fmt.Printf("\n%d posts scored, %d in the gold zone\n\n", len(result.Posts), result.GoldZone)
		renderScoredPosts(posts)

		if saveRun {
			db, err := store.Open(filepath.Join(cfg.GetDataDir(), "radar.db"))
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.SaveRun(result.RunID, result.StartedAt, result.Posts); err != nil {
				return fmt.Errorf("saving run: %w", err)
			}
			fmt.Printf("\nRun %s saved.\n", result.RunID)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().IntVarP(&runLimit, "limit", "l", 0, "Per-source post limit (default from config)")
	runCmd.Flags().BoolVar(&noExtract, "no-extract", false, "Skip LLM opportunity extraction")
	runCmd.Flags().BoolVar(&noCompetitive, "no-competitive", false, "Skip competitive enrichment")
	runCmd.Flags().BoolVar(&noContent, "no-content", false, "Skip link content fetching")
	runCmd.Flags().BoolVar(&goldOnly, "gold-only", false, "Show only gold-zone opportunities")
	runCmd.Flags().BoolVar(&saveRun, "save", false, "Persist scored posts to the local database")
}

func goldPosts(posts []model.ScoredPost) []model.ScoredPost {
	var gold []model.ScoredPost
	for _, p := range posts {
		if p.GoldZone {
			gold = append(gold, p)
		}
	}
	return gold
}

func renderScoredPosts(posts []model.ScoredPost) {
	const maxRows = 25

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Title", "Source", "Demand", "Supply", "Opportunity", "Gold"})

	for i, p := range posts {
		if i >= maxRows {
			break
		}
		gold := ""
		if p.GoldZone {
			gold = "*"
		}
		title := p.Title
		if len(title) > 60 {
			title = title[:57] + "..."
		}
		t.AppendRow(table.Row{i + 1, title, p.Source, p.DemandScore, p.SupplyScore, p.OpportunityScore, gold})
	}
	t.Render()
}

// --- top command ---

var (
	topLimit    int
	topGoldOnly bool
)

var topCmd = &cobra.Command{
	Use:   "top",
	Short: "Show the top opportunities from the last saved run",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := store.Open(filepath.Join(cfg.GetDataDir(), "radar.db"))
		if err != nil {
			return err
		}
		defer db.Close()

		run, err := db.LatestRun()
		if err != nil {
			return err
		}
		if run == nil {
			fmt.Println("No saved runs. Use 'radar run --save' first.")
			return nil
		}

		posts, err := db.TopPosts(run.ID, topLimit, topGoldOnly)
		if err != nil {
			return err
		}

		fmt.Printf("Run %s (%s): %d posts, %d gold\n\n",
			run.ID, run.StartedAt.Format("2006-01-02 15:04"), run.PostCount, run.GoldCount)

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"#", "Opportunity", "Source", "Demand", "Supply", "Score", "Gold"})
		for i, p := range posts {
			title := p.OpportunityTitle
			if title == "" {
				title = p.Title
			}
			if len(title) > 60 {
				title = title[:57] + "..."
			}
			gold := ""
			if p.GoldZone {
				gold = "*"
			}
			t.AppendRow(table.Row{i + 1, title, p.Source, p.DemandScore, p.SupplyScore, p.OpportunityScore, gold})
		}
		t.Render()
		return nil
	},
}

func init() {
	topCmd.Flags().IntVarP(&topLimit, "limit", "l", 10, "Number of posts to show")
	topCmd.Flags().BoolVar(&topGoldOnly, "gold-only", false, "Show only gold-zone opportunities")
}

// --- status command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show saved-run statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := store.Open(filepath.Join(cfg.GetDataDir(), "radar.db"))
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Println("Saved runs:")
		fmt.Printf("  Runs: %d\n", stats.Runs)
		fmt.Printf("  Scored posts: %d\n", stats.Posts)
		fmt.Printf("  Gold-zone posts: %d\n", stats.GoldPosts)
		fmt.Printf("\nCache directory: %s\n", cfg.GetCacheDir())
		return nil
	},
}

// --- cache command ---

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the competitive-data cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all cached competitive data",
	RunE: func(cmd *cobra.Command, args []string) error {
		cache, err := competitive.NewCache(cfg.GetCacheDir(), 0)
		if err != nil {
			return err
		}
		removed, err := cache.Clear()
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d cache entries.\n", removed)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
}
