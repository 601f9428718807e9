package storage

import (
	"context"

	"github.com/mcoot/biogames-go/internal/model"
)

// Storage defines the interface for client-side persistence
type Storage interface {
	// Identity operations
	SaveIdentity(ctx context.Context, key model.SessionKey, identity *model.Identity) error
	GetIdentity(ctx context.Context, key model.SessionKey) (*model.Identity, error)
	DeleteIdentity(ctx context.Context, key model.SessionKey) error

	// Image cache operations, keyed by image URL
	SaveImage(ctx context.Context, url string, data []byte) error
	GetImage(ctx context.Context, url string) ([]byte, error)
	HasImage(ctx context.Context, url string) (bool, error)
}
