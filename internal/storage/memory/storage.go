package memory

import (
	"context"
	"sync"

	"github.com/mcoot/biogames-go/internal/model"
	"github.com/mcoot/biogames-go/internal/storage"
)

// DefaultMaxImages bounds the in-memory image cache
const DefaultMaxImages = 64

// Storage is an in-memory implementation of the storage interface
type Storage struct {
	mu sync.RWMutex

	identities map[model.SessionKey]model.Identity
	images     map[string][]byte
	imageOrder []string // insertion order for eviction
	maxImages  int
}

// New creates a new in-memory storage instance
func New() *Storage {
	return NewWithLimit(DefaultMaxImages)
}

// NewWithLimit creates an in-memory storage that keeps at most maxImages images
func NewWithLimit(maxImages int) *Storage {
	if maxImages <= 0 {
		maxImages = DefaultMaxImages
	}
	return &Storage{
		identities: make(map[model.SessionKey]model.Identity),
		images:     make(map[string][]byte),
		maxImages:  maxImages,
	}
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Identity operations

func (s *Storage) SaveIdentity(ctx context.Context, key model.SessionKey, identity *model.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identities[key] = *identity
	return nil
}

func (s *Storage) GetIdentity(ctx context.Context, key model.SessionKey) (*model.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	identity, ok := s.identities[key]
	if !ok {
		return nil, model.ErrIdentityNotFound
	}
	return &identity, nil
}

func (s *Storage) DeleteIdentity(ctx context.Context, key model.SessionKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.identities, key)
	return nil
}

// Image operations

func (s *Storage) SaveImage(ctx context.Context, url string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.images[url]; !exists {
		s.imageOrder = append(s.imageOrder, url)
	}
	s.images[url] = append([]byte(nil), data...)

	for len(s.imageOrder) > s.maxImages {
		oldest := s.imageOrder[0]
		s.imageOrder = s.imageOrder[1:]
		delete(s.images, oldest)
	}
	return nil
}

func (s *Storage) GetImage(ctx context.Context, url string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.images[url]
	if !ok {
		return nil, model.ErrImageNotCached
	}
	return data, nil
}

func (s *Storage) HasImage(ctx context.Context, url string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.images[url]
	return ok, nil
}
