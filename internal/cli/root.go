package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mcoot/biogames-go/internal/factory"
)

var (
	cfg *Config
	app *factory.App
	out *Output
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cfg = DefaultConfig()
	out = nil

	rootCmd := &cobra.Command{
		Use:   "biogames",
		Short: "Terminal client for the BioGames HER2 scoring study",
		Long: `biogames plays the BioGames HER2 scoring study from a terminal.

Register with an institutional email, sit the pre-test, train on scored
tissue cores and sit the post-test. Each command shares one session, kept
under --session-file, so the user stays signed in between commands.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			out = NewOutput(cfg.Output, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if cfg.Output != "text" && cfg.Output != "json" {
				return fmt.Errorf("unknown output format %q: must be text or json", cfg.Output)
			}

			if err := cfg.LoadSessionKey(); err != nil {
				return fmt.Errorf("loading session: %w", err)
			}

			fc, err := cfg.FactoryConfig(cfg.Logger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			app, err = factory.New(fc)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return closeApp()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "Scoring API URL (env: BIOGAMES_SERVER)")
	flags.StringVar(&cfg.SessionFile, "session-file", cfg.SessionFile, "Session key file (env: BIOGAMES_SESSION_FILE)")
	flags.StringVar(&cfg.Storage, "storage", cfg.Storage, "Storage backend: memory, file, redis (env: BIOGAMES_STORAGE)")
	flags.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "Data directory for file storage (env: BIOGAMES_DATA_DIR)")
	flags.StringVar(&cfg.RedisURL, "redis-url", cfg.RedisURL, "Redis URL for redis storage (env: BIOGAMES_REDIS_URL)")
	flags.DurationVar(&cfg.Dwell, "dwell", cfg.Dwell, "Time each image is shown before scoring opens (env: BIOGAMES_DWELL)")
	flags.StringVarP(&cfg.Output, "output", "o", cfg.Output, "Output format: text, json")
	flags.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Verbose logging")

	// Add subcommands
	rootCmd.AddCommand(newRegisterCmd())
	rootCmd.AddCommand(newPretestCmd())
	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newLogoutCmd())
	rootCmd.AddCommand(newPreviewCmd())
	rootCmd.AddCommand(newPlayCmd())
	rootCmd.AddCommand(newQuitCmd())
	rootCmd.AddCommand(newResultsCmd())
	rootCmd.AddCommand(newLeaderboardCmd())

	return rootCmd
}

func closeApp() error {
	if app == nil {
		return nil
	}
	err := app.Close()
	app = nil
	return err
}

// Run executes the root command with args and reports errors through the configured output
func Run(cmd *cobra.Command, args []string) error {
	cmd.SetArgs(args)
	err := cmd.Execute()
	if err != nil {
		// PersistentPostRun is skipped when a command fails
		_ = closeApp()
		if out == nil {
			out = NewOutput("text", cmd.OutOrStdout(), cmd.ErrOrStderr())
		}
		out.PrintError(err)
	}
	return err
}

// Execute runs the root command
func Execute() {
	if err := Run(NewRootCmd(), os.Args[1:]); err != nil {
		os.Exit(1)
	}
}
