package factory

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/mcoot/biogames-go/internal/client"
	"github.com/mcoot/biogames-go/internal/dependencies/clock"
	"github.com/mcoot/biogames-go/internal/model"
	"github.com/mcoot/biogames-go/internal/services/enrollment"
	"github.com/mcoot/biogames-go/internal/services/identity"
	"github.com/mcoot/biogames-go/internal/services/phase"
	"github.com/mcoot/biogames-go/internal/services/prefetch"
	"github.com/mcoot/biogames-go/internal/services/results"
	"github.com/mcoot/biogames-go/internal/services/session"
	"github.com/mcoot/biogames-go/internal/storage"
	filestorage "github.com/mcoot/biogames-go/internal/storage/file"
	"github.com/mcoot/biogames-go/internal/storage/memory"
	redisstorage "github.com/mcoot/biogames-go/internal/storage/redis"
)

// Storage type constants
const (
	StorageTypeMemory = "memory"
	StorageTypeFile   = "file"
	StorageTypeRedis  = "redis"
)

// App contains all wired client components for one session key
type App struct {
	Storage storage.Storage
	Clock   clock.Clock
	Logger  *slog.Logger

	Client     *client.Client
	Identity   *identity.Service
	Prefetcher *prefetch.Service
	Enrollment *enrollment.Service
	Results    *results.Service
	Policy     phase.Policy

	sessionConfig session.Config
	closer        io.Closer
}

// Config holds configuration for the application factory
type Config struct {
	// ServerURL is the base URL of the scoring API
	ServerURL string
	// HTTPClient is used for API requests (optional)
	HTTPClient *http.Client
	// SessionKey scopes the stored identity; a new key is generated if empty
	SessionKey model.SessionKey
	// Logger is the application logger (optional)
	// If nil, a no-op logger is used
	Logger *slog.Logger
	// StorageType selects the storage backend ("memory", "file" or "redis")
	// If empty, defaults to "memory"
	StorageType string
	// StorageDir is the data directory of the file backend
	StorageDir string
	// RedisConfig holds Redis connection settings (required if StorageType is "redis")
	RedisConfig *redisstorage.Config
	// Session overrides the session defaults when Dwell is set
	Session session.Config
	// Enrollment overrides the enrollment defaults when domains are set
	Enrollment enrollment.Config
	// Roles resolves identity roles (optional)
	Roles identity.RoleResolver
}

// New creates a new application with all dependencies wired
func New(cfg Config) (*App, error) {
	if cfg.ServerURL == "" {
		return nil, errors.New("ServerURL is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	store, closer, err := newStorage(cfg)
	if err != nil {
		return nil, err
	}

	app := newWithDependencies(store, clock.New(), client.New(cfg.ServerURL, cfg.HTTPClient), cfg, logger)
	app.closer = closer
	return app, nil
}

func newStorage(cfg Config) (storage.Storage, io.Closer, error) {
	storageType := cfg.StorageType
	if storageType == "" {
		storageType = StorageTypeMemory
	}

	switch storageType {
	case StorageTypeMemory:
		return memory.New(), nil, nil
	case StorageTypeFile:
		if cfg.StorageDir == "" {
			return nil, nil, errors.New("StorageDir required when StorageType is file")
		}
		store, err := filestorage.New(cfg.StorageDir)
		if err != nil {
			return nil, nil, fmt.Errorf("opening file storage: %w", err)
		}
		return store, nil, nil
	case StorageTypeRedis:
		if cfg.RedisConfig == nil {
			return nil, nil, errors.New("RedisConfig required when StorageType is redis")
		}
		store, err := redisstorage.New(*cfg.RedisConfig)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("invalid StorageType %q: must be 'memory', 'file' or 'redis'", storageType)
	}
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(store storage.Storage, clk clock.Clock, api *client.Client, cfg Config, logger *slog.Logger) *App {
	key := cfg.SessionKey
	if key == "" {
		key = identity.NewSessionKey()
	}

	sessionCfg := cfg.Session
	if sessionCfg.Dwell == 0 {
		sessionCfg = session.DefaultConfig()
	}
	enrollCfg := cfg.Enrollment
	if len(enrollCfg.AllowedEmailDomains) == 0 {
		policy := enrollCfg.Policy
		enrollCfg = enrollment.DefaultConfig()
		if policy.MinTrainingGames > 0 {
			enrollCfg.Policy = policy
		}
	}

	identityService := identity.New(store, clk, key, cfg.Roles)

	return &App{
		Storage:       store,
		Clock:         clk,
		Logger:        logger,
		Client:        api,
		Identity:      identityService,
		Prefetcher:    prefetch.New(store, api, logger),
		Enrollment:    enrollment.New(api, identityService, enrollCfg, logger),
		Results:       results.New(api),
		Policy:        enrollCfg.Policy,
		sessionConfig: sessionCfg,
	}
}

// NewSession creates a session controller for one game
func (a *App) NewSession(nav session.Navigator, opts session.Options) *session.Controller {
	return session.New(session.Dependencies{
		API:        a.Client,
		Identity:   a.Identity,
		Clock:      a.Clock,
		Prefetcher: a.Prefetcher,
		Navigator:  nav,
		Logger:     a.Logger,
		Config:     a.sessionConfig,
	}, opts)
}

// SessionConfig returns the configuration new sessions are created with
func (a *App) SessionConfig() session.Config {
	return a.sessionConfig
}

// Close waits for background downloads and releases the storage backend
func (a *App) Close() error {
	a.Prefetcher.Wait()
	if a.closer != nil {
		return a.closer.Close()
	}
	return nil
}
