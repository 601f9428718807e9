package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mcoot/biogames-go/internal/factory"
	"github.com/mcoot/biogames-go/internal/model"
	"github.com/mcoot/biogames-go/internal/services/identity"
	"github.com/mcoot/biogames-go/internal/services/session"
	redisstorage "github.com/mcoot/biogames-go/internal/storage/redis"
)

// Config holds CLI configuration
type Config struct {
	ServerURL   string
	SessionFile string
	Storage     string
	DataDir     string
	RedisURL    string
	Dwell       time.Duration
	Output      string
	Verbose     bool

	sessionKey model.SessionKey
}

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	return &Config{
		ServerURL:   getEnvOrDefault("BIOGAMES_SERVER", "http://localhost:8080/proxy-api"),
		SessionFile: getEnvOrDefault("BIOGAMES_SESSION_FILE", defaultPath("session")),
		Storage:     getEnvOrDefault("BIOGAMES_STORAGE", factory.StorageTypeFile),
		DataDir:     getEnvOrDefault("BIOGAMES_DATA_DIR", defaultPath("data")),
		RedisURL:    os.Getenv("BIOGAMES_REDIS_URL"),
		Dwell:       getDurationOrDefault("BIOGAMES_DWELL", session.DefaultDwell),
		Output:      "text",
		Verbose:     false,
	}
}

// LoadSessionKey reads the session key from file, creating one on first use
func (c *Config) LoadSessionKey() error {
	data, err := os.ReadFile(c.SessionFile)
	if err == nil {
		if key := strings.TrimSpace(string(data)); key != "" {
			c.sessionKey = model.SessionKey(key)
			return nil
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	key := identity.NewSessionKey()
	if err := os.MkdirAll(filepath.Dir(c.SessionFile), 0o700); err != nil {
		return err
	}
	if err := os.WriteFile(c.SessionFile, []byte(key), 0o600); err != nil {
		return err
	}
	c.sessionKey = key
	return nil
}

// Logger returns the CLI logger: JSON on w, warnings only unless verbose
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if c.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// FactoryConfig builds the application configuration
func (c *Config) FactoryConfig(logger *slog.Logger) (factory.Config, error) {
	if c.Dwell <= 0 {
		return factory.Config{}, fmt.Errorf("dwell must be positive: %v", c.Dwell)
	}
	sessionCfg := session.DefaultConfig()
	sessionCfg.Dwell = c.Dwell

	fc := factory.Config{
		ServerURL:   c.ServerURL,
		SessionKey:  c.sessionKey,
		Logger:      logger,
		StorageType: c.Storage,
		StorageDir:  c.DataDir,
		Session:     sessionCfg,
	}
	if c.Storage == factory.StorageTypeRedis {
		if c.RedisURL == "" {
			return factory.Config{}, errors.New("--redis-url is required when storage is redis (env: BIOGAMES_REDIS_URL)")
		}
		redisCfg := redisstorage.DefaultConfig()
		redisCfg.URL = c.RedisURL
		fc.RedisConfig = &redisCfg
	}
	return fc, nil
}

func defaultPath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".biogames", name)
	}
	return filepath.Join(home, ".biogames", name)
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return defaultVal
}
