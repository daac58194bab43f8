package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	configDir   string
	keywordsDir string
	reportsDir  string
	apiKey      string
	debugMode   bool
	skipSinks   bool
	listAll     bool
	historySize int
	reportsFrom string
	reportsTo   string
)

var rootCmd = &cobra.Command{
	Use:           "trend-researcher",
	Short:         "Daily AI trend research driven by a self-updating keyword list",
	Long:          `Selects the top keywords, researches them across YouTube, GitHub, Hacker News, arXiv and the web, synthesizes a report with Claude and publishes it to local files, Notion and Postgres.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		SetupLogger(logOptionsFromEnv())
		SetDebugMode(debugMode)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		creds := LoadCredentials()
		if apiKey != "" {
			creds.AnthropicAPIKey = apiKey
		}
		if err := creds.Validate(); err != nil {
			return err
		}

		cfg, err := loadConfig(creds)
		if err != nil {
			return err
		}
		logConfigStatus(cfg)

		pipeline, err := NewPipeline(cfg, PipelineOptions{SkipSinks: skipSinks})
		if err != nil {
			return err
		}

		_, err = pipeline.Run(cmd.Context())
		if err != nil && !IsFatal(err) {
			// recorded in history; the next scheduled run is the retry
			return nil
		}
		return err
	},
}

var keywordsCmd = &cobra.Command{
	Use:   "keywords",
	Short: "Inspect and seed the master keyword store",
}

var keywordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List keywords by score",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(LoadCredentials())
		if err != nil {
			return err
		}
		store, err := NewKeywordStore(cfg.Settings.KeywordsDirectory).Load()
		if err != nil {
			return err
		}

		minScore := cfg.Settings.Selection.MinScore
		records := SelectActive(store, len(store), 0)
		active := map[string]bool{}
		for _, rec := range SelectActive(store, cfg.Settings.Selection.MaxActive, minScore) {
			active[rec.Keyword] = true
		}

		bold := color.New(color.Bold)
		bold.Printf("%-40s %6s %6s %-11s %-10s\n", "KEYWORD", "SCORE", "USES", "LAST USED", "SOURCE")
		shown := 0
		for _, rec := range records {
			if !listAll && rec.Score < minScore {
				continue
			}
			c := color.New(color.Reset)
			switch {
			case active[rec.Keyword]:
				c = color.New(color.FgGreen)
			case rec.Score < minScore:
				c = color.New(color.Faint)
			}
			lastUsed := rec.LastUsed
			if lastUsed == "" {
				lastUsed = "never"
			}
			c.Printf("%-40s %6.2f %6d %-11s %-10s\n", truncateText(rec.Keyword, 37), rec.Score, rec.UsageCount, lastUsed, rec.Source)
			shown++
		}
		fmt.Printf("\n%d of %d keywords shown, %d active\n", shown, len(store), len(active))
		return nil
	},
}

var keywordsAddCmd = &cobra.Command{
	Use:   "add <keyword>...",
	Short: "Add manual keywords to the master store",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(LoadCredentials())
		if err != nil {
			return err
		}
		keywords := NewKeywordStore(cfg.Settings.KeywordsDirectory)
		store, err := keywords.Load()
		if err != nil {
			return err
		}

		today := time.Now().Format(dateLayout)
		for _, kw := range args {
			if NormalizeKeyword(kw) == "" {
				continue
			}
			if _, exists := store[NormalizeKeyword(kw)]; exists {
				color.Yellow("= %s already tracked", NormalizeKeyword(kw))
				continue
			}
			store.Upsert(KeywordRecord{
				Keyword:   kw,
				Score:     cfg.Settings.Discovery.InitialScore,
				FirstSeen: today,
				Source:    SourceManual,
			}, cfg.Settings.BlendRule())
			color.Green("+ %s", NormalizeKeyword(kw))
		}
		return keywords.Save(store)
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(LoadCredentials())
		if err != nil {
			return err
		}
		entries, err := NewExecutionHistory(NewKeywordStore(cfg.Settings.KeywordsDirectory)).Entries()
		if err != nil {
			return err
		}
		if len(entries) > historySize && historySize > 0 {
			entries = entries[len(entries)-historySize:]
		}
		for i := len(entries) - 1; i >= 0; i-- {
			printHistoryEntry(entries[i])
		}
		if len(entries) == 0 {
			fmt.Println("No runs recorded yet")
		}
		return nil
	},
}

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "List reports stored in Postgres between two dates",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		creds := LoadCredentials()
		if creds.DatabaseURL == "" {
			return &ConfigurationError{Setting: "SUPABASE_DB_URL", Reason: "required to query reports"}
		}
		to := reportsTo
		if to == "" {
			to = time.Now().Format(dateLayout)
		}
		from := reportsFrom
		if from == "" {
			from = time.Now().AddDate(0, 0, -7).Format(dateLayout)
		}

		store, err := NewReportStore(cmd.Context(), creds.DatabaseURL)
		if err != nil {
			return err
		}
		defer store.Close()

		reports, err := store.ReportsBetween(cmd.Context(), from, to)
		if err != nil {
			return err
		}
		for _, r := range reports {
			summary := decodeSummary(r.Summary)
			color.New(color.Bold).Printf("%s", r.Date.Format(dateLayout))
			fmt.Printf("  %s\n", summary.Headline)
			fmt.Printf("    keywords: %s | results: %d | updated %s\n",
				strings.Join(summary.KeywordsUsed, ", "), summary.TotalResults, r.UpdatedAt.Format(time.RFC3339))
		}
		fmt.Printf("%d reports between %s and %s\n", len(reports), from, to)
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations for the report table",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		creds := LoadCredentials()
		if creds.DatabaseURL == "" {
			return &ConfigurationError{Setting: "SUPABASE_DB_URL", Reason: "required to run migrations"}
		}
		if err := RunMigrations(creds.DatabaseURL); err != nil {
			return err
		}
		color.Green("✓ Migrations applied")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", defaultConfigDir, "Directory holding settings.yaml")
	rootCmd.PersistentFlags().StringVar(&keywordsDir, "keywords-dir", "", "Override the keywords directory")
	rootCmd.PersistentFlags().StringVar(&reportsDir, "reports-dir", "", "Override the reports directory")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	rootCmd.Flags().StringVar(&apiKey, "api-key", "", "Anthropic API key")
	rootCmd.Flags().BoolVar(&skipSinks, "skip-sinks", false, "Publish to local files only")

	keywordsListCmd.Flags().BoolVar(&listAll, "all", false, "Include keywords below the selection threshold")
	historyCmd.Flags().IntVar(&historySize, "limit", 10, "Number of runs to show")
	reportsCmd.Flags().StringVar(&reportsFrom, "from", "", "First date (YYYY-MM-DD), default a week ago")
	reportsCmd.Flags().StringVar(&reportsTo, "to", "", "Last date (YYYY-MM-DD), default today")

	keywordsCmd.AddCommand(keywordsListCmd, keywordsAddCmd)
	rootCmd.AddCommand(keywordsCmd, historyCmd, reportsCmd, migrateCmd)
}

func loadConfig(creds Credentials) (*Config, error) {
	overrides := &ConfigOverrides{ConfigDir: &configDir}
	if keywordsDir != "" {
		overrides.KeywordsDir = &keywordsDir
	}
	if reportsDir != "" {
		overrides.ReportsDir = &reportsDir
	}
	return NewConfig(overrides, creds)
}

// logConfigStatus reports which credentials are present without printing them
func logConfigStatus(cfg *Config) {
	log := componentLogger("config")
	c := cfg.Credentials
	log.Info().
		Bool("anthropic", c.AnthropicAPIKey != "").
		Bool("youtube", c.YouTubeAPIKey != "").
		Bool("github", c.GitHubToken != "").
		Bool("notion", c.NotionEnabled()).
		Bool("postgres", c.DatabaseURL != "").
		Bool("transcripts", c.TranscriptAPIKey != "" && c.TranscriptAPIURL != "").
		Bool("pushgateway", c.PushgatewayURL != "").
		Strs("platforms", cfg.Settings.Research.Platforms).
		Str("keywords_dir", cfg.Settings.KeywordsDirectory).
		Str("reports_dir", cfg.Settings.ReportsDirectory).
		Msg("Configuration loaded")
}

// decodeSummary reads the summary column, marking rows it cannot decode
func decodeSummary(raw json.RawMessage) ReportSummary {
	var summary ReportSummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		log := componentLogger("reports")
		log.Debug().Err(err).Msg("Undecodable report summary")
		return ReportSummary{Headline: "(unreadable summary)"}
	}
	return summary
}

func printHistoryEntry(e HistoryEntry) {
	c := color.New(color.FgGreen)
	switch e.Status {
	case StatusFailed:
		c = color.New(color.FgRed)
	case StatusPartial:
		c = color.New(color.FgYellow)
	case StatusIdle:
		c = color.New(color.Faint)
	}
	c.Printf("%-9s", e.Status)
	fmt.Printf(" %s  active=%d new=%d", e.StartedAt.Local().Format("2006-01-02 15:04"), e.ActiveCount, e.NewKeywordsCount)
	if e.FailedStage != "" {
		fmt.Printf("  failed at %s: %s", e.FailedStage, e.Error)
	}
	for name, s := range e.Sinks {
		if !s.OK {
			fmt.Printf("  %s: %s", name, s.Error)
		}
	}
	fmt.Println()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("✗ %v", err))
		stop()
		os.Exit(1)
	}
}
