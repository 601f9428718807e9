package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/biogames-go/internal/model"
	"github.com/mcoot/biogames-go/internal/storage"
)

// Storage is a Redis-backed implementation of the storage interface
type Storage struct {
	client *redis.Client
	cfg    Config
}

// New creates a new Redis storage instance
func New(cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &Storage{
		client: client,
		cfg:    cfg,
	}, nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Storage {
	return &Storage{
		client: client,
		cfg:    cfg,
	}
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Identity operations

func (s *Storage) SaveIdentity(ctx context.Context, key model.SessionKey, identity *model.Identity) error {
	data, err := json.Marshal(identity)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, identityKey(key), data, s.cfg.IdentityTTL).Err()
}

func (s *Storage) GetIdentity(ctx context.Context, key model.SessionKey) (*model.Identity, error) {
	data, err := s.client.Get(ctx, identityKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrIdentityNotFound
		}
		return nil, err
	}

	var identity model.Identity
	if err := json.Unmarshal(data, &identity); err != nil {
		return nil, err
	}
	return &identity, nil
}

func (s *Storage) DeleteIdentity(ctx context.Context, key model.SessionKey) error {
	return s.client.Del(ctx, identityKey(key)).Err()
}

// Image operations

func (s *Storage) SaveImage(ctx context.Context, url string, data []byte) error {
	// Use pipeline for atomic save + index update
	pipe := s.client.Pipeline()
	pipe.Set(ctx, imageKey(url), data, s.cfg.ImageTTL)
	pipe.SAdd(ctx, imageIndexKey(), url)
	pipe.Expire(ctx, imageIndexKey(), s.cfg.ImageTTL) // Keep index TTL in sync
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Storage) GetImage(ctx context.Context, url string) ([]byte, error) {
	data, err := s.client.Get(ctx, imageKey(url)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrImageNotCached
		}
		return nil, err
	}
	return data, nil
}

func (s *Storage) HasImage(ctx context.Context, url string) (bool, error) {
	exists, err := s.client.Exists(ctx, imageKey(url)).Result()
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}

// CachedImages returns the URLs of every image saved within the image TTL
func (s *Storage) CachedImages(ctx context.Context) ([]string, error) {
	return s.client.SMembers(ctx, imageIndexKey()).Result()
}
