package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/mcoot/biogames-go/internal/proxy"
	"github.com/mcoot/biogames-go/internal/server"
)

// Config is the command line configuration of the server
type Config struct {
	bind           string
	port           int
	backend        string
	buildDir       string
	envFile        string
	rateLimit      float64
	rateBurst      int
	trustForwarded bool
	tlsCert        string
	tlsKey         string
	shutdown       time.Duration
	verbose        bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	return c.proxyConfig().Validate()
}

func (c *Config) serverConfig() server.Config {
	sc := server.DefaultConfig()
	sc.Host = c.bind
	sc.Port = c.port
	sc.TLSCert = c.tlsCert
	sc.TLSKey = c.tlsKey
	if c.shutdown > 0 {
		sc.ShutdownTimeout = c.shutdown
	}
	return sc
}

func (c *Config) proxyConfig() proxy.Config {
	pc := proxy.DefaultConfig()
	pc.BackendURL = c.backend
	pc.BuildDir = c.buildDir
	pc.RateLimit = c.rateLimit
	pc.RateBurst = c.rateBurst
	pc.TrustForwarded = c.trustForwarded
	pc.TLS = c.tlsCert != "" && c.tlsKey != ""
	return pc
}

func (c *Config) logger() *slog.Logger {
	level := slog.LevelInfo
	if c.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

// loadEnvFile reads KEY=value pairs into the environment without overriding what is already set.
// A missing default file is not an error.
func loadEnvFile(path string, explicit bool) error {
	err := godotenv.Load(path)
	if err != nil && !explicit && errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("BIOGAMES")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	defaults := proxy.DefaultConfig()

	cmd := &cobra.Command{
		Use:           "biogames-server",
		Short:         "Serves the BioGames web app and proxies its API calls to the scoring server.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			fs := cmd.Flags()
			if err := loadEnvFile(cfg.envFile, fs.Changed("env-file")); err != nil {
				return fmt.Errorf("loading %s: %w", cfg.envFile, err)
			}
			// flags win over the environment, which may have just been extended
			fs.VisitAll(func(f *pflag.Flag) {
				_ = v.BindPFlag(f.Name, f)
				_ = v.BindEnv(f.Name)
				if !f.Changed && v.IsSet(f.Name) {
					_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
				}
			})
			return cfg.validate()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: BIOGAMES_BIND)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: BIOGAMES_PORT)")
	fs.StringVar(&cfg.backend, "backend", defaults.BackendURL, "scoring server that /proxy-api requests are sent to (env: BIOGAMES_BACKEND)")
	fs.StringVar(&cfg.buildDir, "build-dir", defaults.BuildDir, "directory holding the built web app (env: BIOGAMES_BUILD_DIR)")
	fs.StringVar(&cfg.envFile, "env-file", ".env", "file of KEY=value settings loaded at startup (env: BIOGAMES_ENV_FILE)")
	fs.Float64Var(&cfg.rateLimit, "rate-limit", 0, "API requests per second per client, 0 to disable (env: BIOGAMES_RATE_LIMIT)")
	fs.IntVar(&cfg.rateBurst, "rate-burst", defaults.RateBurst, "API request burst per client (env: BIOGAMES_RATE_BURST)")
	fs.BoolVar(&cfg.trustForwarded, "trust-forwarded", false, "key clients by X-Real-IP from a front proxy (env: BIOGAMES_TRUST_FORWARDED)")
	fs.DurationVar(&cfg.shutdown, "shutdown-timeout", 30*time.Second, "time allowed for in-flight requests on shutdown (env: BIOGAMES_SHUTDOWN_TIMEOUT)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: BIOGAMES_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: BIOGAMES_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "log every request (env: BIOGAMES_VERBOSE)")

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("biogames-server v{{.Version}}\n")

	cmd.SilenceUsage = true

	return cmd
}
