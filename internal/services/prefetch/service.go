// Package prefetch warms the local image cache ahead of the user.
package prefetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mcoot/biogames-go/internal/model"
	"github.com/mcoot/biogames-go/internal/storage"
)

// Downloader fetches a raw image
type Downloader interface {
	Image(ctx context.Context, url string) ([]byte, error)
}

// Service caches images by URL
type Service struct {
	storage    storage.Storage
	downloader Downloader
	logger     *slog.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
	wg       sync.WaitGroup
}

// New creates a prefetch service
func New(storage storage.Storage, downloader Downloader, logger *slog.Logger) *Service {
	return &Service{
		storage:    storage,
		downloader: downloader,
		logger:     logger,
		inflight:   make(map[string]struct{}),
	}
}

// Warm downloads url into the cache unless it is already cached or being fetched
func (s *Service) Warm(ctx context.Context, url string) error {
	if url == "" {
		return nil
	}
	cached, err := s.storage.HasImage(ctx, url)
	if err != nil {
		return fmt.Errorf("checking image cache: %w", err)
	}
	if cached {
		return nil
	}

	s.mu.Lock()
	if _, busy := s.inflight[url]; busy {
		s.mu.Unlock()
		return nil
	}
	s.inflight[url] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.inflight, url)
		s.mu.Unlock()
	}()

	_, err = s.download(ctx, url)
	return err
}

// WarmAsync warms url in the background. Failures are logged and dropped.
func (s *Service) WarmAsync(ctx context.Context, url string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.Warm(ctx, url); err != nil && ctx.Err() == nil {
			s.logger.Warn("prefetch failed", slog.String("url", url), slog.String("error", err.Error()))
		}
	}()
}

// Wait blocks until every background warm has finished
func (s *Service) Wait() {
	s.wg.Wait()
}

// Image serves url from the cache, downloading it on a miss
func (s *Service) Image(ctx context.Context, url string) ([]byte, error) {
	data, err := s.storage.GetImage(ctx, url)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, model.ErrImageNotCached) {
		s.logger.Warn("image cache read failed", slog.String("url", url), slog.String("error", err.Error()))
	}
	return s.download(ctx, url)
}

func (s *Service) download(ctx context.Context, url string) ([]byte, error) {
	data, err := s.downloader.Image(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := s.storage.SaveImage(ctx, url, data); err != nil {
		s.logger.Warn("image cache write failed", slog.String("url", url), slog.String("error", err.Error()))
	}
	return data, nil
}
