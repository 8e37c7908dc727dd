package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mla-quiz/medref/internal/config"
	"github.com/mla-quiz/medref/internal/middleware"
	"github.com/mla-quiz/medref/internal/reference"
	"github.com/mla-quiz/medref/internal/services"
	"github.com/spf13/cobra"
)

var (
	cfgFile    string
	gatewayURL string
	token      string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "medref",
		Short: "MLA quiz offline gateway",
		Long:  `An offline-first gateway for the MLA quiz app: caches assets and quizzes, queues submissions while offline and replays them on reconnect.`,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.toml)")

	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(submissionsCmd())
	rootCmd.AddCommand(lookupCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func configPath() string {
	if cfgFile == "" {
		return "config.toml"
	}
	return cfgFile
}

// loadConfig falls back to defaults when no config file exists
func loadConfig() (*config.Config, error) {
	return config.LoadOrDefault(configPath())
}

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			upstream, _ := cmd.Flags().GetString("upstream")
			force, _ := cmd.Flags().GetBool("force")

			path := configPath()
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			cfg := config.DefaultConfig()
			if upstream != "" {
				cfg.Upstream.URL = upstream
			}
			if err := cfg.EnsureDirs(); err != nil {
				return err
			}
			if err := cfg.Save(path); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			fmt.Printf("Config saved to: %s\n", path)
			fmt.Printf("Upstream: %s\n", cfg.Upstream.URL)
			fmt.Printf("Gateway:  %s\n", cfg.BaseURL())
			return nil
		},
	}

	cmd.Flags().String("upstream", "", "Quiz server URL")
	cmd.Flags().Bool("force", false, "Overwrite an existing config file")
	return cmd
}

// controlClient builds a client for the running gateway. A token is minted from the
// configured secret unless one is passed explicitly.
func controlClient() (*services.ControlClient, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	baseURL := gatewayURL
	if baseURL == "" {
		baseURL = cfg.BaseURL()
	}

	bearer := token
	if bearer == "" && cfg.Control.Secret != "" {
		bearer, err = middleware.GenerateToken("cli", middleware.TokenConfig{
			Secret:     cfg.Control.Secret,
			Expiration: 5 * time.Minute,
		})
		if err != nil {
			return nil, err
		}
	}
	return services.NewControlClient(baseURL, bearer), nil
}

func addClientFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&gatewayURL, "gateway", "", "Gateway URL (default from config)")
	cmd.Flags().StringVar(&token, "token", "", "Control token (default minted from control.secret)")
}

func syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Replay queued submissions now",
		RunE: func(cmd *cobra.Command, args []string) error {
			tag, _ := cmd.Flags().GetString("tag")
			client, err := controlClient()
			if err != nil {
				return err
			}

			resp, err := client.Sync(cmd.Context(), tag)
			if err != nil {
				return fmt.Errorf("sync failed: %w", err)
			}

			if len(resp.Results) == 0 {
				fmt.Println("Nothing to sync.")
				return nil
			}
			fmt.Printf("%-40s %-8s %-24s %s\n", "SUBMISSION", "OK", "QUIZ", "ERROR")
			for _, r := range resp.Results {
				fmt.Printf("%-40s %-8t %-24s %s\n", r.ID, r.Success, r.QuizName, r.Error)
			}
			return nil
		},
	}

	cmd.Flags().String("tag", "quiz-submission", "Sync tag")
	addClientFlags(cmd)
	return cmd
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show queue and cache status of a running gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := controlClient()
			if err != nil {
				return err
			}

			status, err := client.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get status: %w", err)
			}

			fmt.Printf("Online:              %t\n", status.IsOnline)
			fmt.Printf("Pending submissions: %d\n", status.OfflineSubmissions)
			fmt.Printf("Dead letters:        %d\n", status.DeadSubmissions)
			fmt.Printf("Cached quizzes:      %d\n", status.CachedQuizzes)
			return nil
		},
	}

	addClientFlags(cmd)
	return cmd
}

func submissionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submissions",
		Short: "Inspect queued submissions",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List queued submissions including dead letters",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := controlClient()
			if err != nil {
				return err
			}

			resp, err := client.Submissions(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list submissions: %w", err)
			}

			fmt.Printf("Queued Submissions (%d total):\n", len(resp.Submissions))
			fmt.Printf("%-40s %-24s %-8s %-6s %-20s %s\n", "ID", "QUIZ", "ATTEMPTS", "DEAD", "NEXT ATTEMPT", "LAST ERROR")
			for _, sub := range resp.Submissions {
				next := "-"
				if !sub.NextAttemptAt.IsZero() {
					next = sub.NextAttemptAt.Local().Format(time.DateTime)
				}
				fmt.Printf("%-40s %-24s %-8d %-6t %-20s %s\n",
					sub.ID, sub.QuizName(), sub.Attempts, sub.DeadLetter, next, sub.LastError)
			}
			return nil
		},
	}

	addClientFlags(listCmd)
	cmd.AddCommand(listCmd)
	return cmd
}

func lookupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lookup <table> [query]",
		Short: "Search the bundled reference tables",
		Long: `Search a reference table offline. With no query and no --category the table's categories are listed.
Tables: differentials, drugs, genetics, labs, mnemonics, protocols, triads, vaccinations.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			category, _ := cmd.Flags().GetString("category")
			asJSON, _ := cmd.Flags().GetBool("json")

			catalog, err := reference.Load()
			if err != nil {
				return err
			}
			table, ok := catalog.Table(args[0])
			if !ok {
				return fmt.Errorf("unknown table %q (have %s)", args[0], strings.Join(catalog.Names(), ", "))
			}

			var results []any
			switch {
			case len(args) == 2:
				results = table.Search(args[1])
				if category != "" {
					results = reference.InCategory(results, category)
				}
			case category != "":
				results = table.ByCategory(category)
			default:
				for _, c := range table.AllCategories() {
					fmt.Println(c)
				}
				return nil
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}

			fmt.Printf("%d result(s) in %s\n", len(results), table.Name())
			for _, r := range results {
				rec := r.(reference.Record)
				fmt.Printf("  %-32s %-28s %s\n", rec.Title(), rec.Key(), rec.Category())
			}
			return nil
		},
	}

	cmd.Flags().String("category", "", "Restrict results to a category")
	cmd.Flags().Bool("json", false, "Print full records as JSON")
	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a control token from control.secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _ := cmd.Flags().GetString("client")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			signed, err := middleware.GenerateToken(client, middleware.TokenConfig{
				Secret:     cfg.Control.Secret,
				Expiration: ttl,
			})
			if err != nil {
				return err
			}
			fmt.Println(signed)
			return nil
		},
	}

	cmd.Flags().String("client", "page", "Client name carried in the token")
	cmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime (0 for no expiry)")
	return cmd
}
