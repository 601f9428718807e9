// Package file stores client session data on the local filesystem.
// Identity records contain the user's email and are sealed at rest.
package file

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/mcoot/biogames-go/internal/model"
	"github.com/mcoot/biogames-go/internal/storage"
)

const (
	keyFileName    = "session.key"
	identityDir    = "identities"
	imageDir       = "images"
	dirPermissions = 0o700
	filePermission = 0o600
)

// Storage is a filesystem-backed implementation of the storage interface
type Storage struct {
	mu   sync.Mutex
	root string
	key  *[32]byte
}

// New opens (creating if needed) a storage directory rooted at dir
func New(dir string) (*Storage, error) {
	for _, sub := range []string{identityDir, imageDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), dirPermissions); err != nil {
			return nil, fmt.Errorf("creating storage dir: %w", err)
		}
	}

	master, err := loadOrCreateMasterKey(filepath.Join(dir, keyFileName))
	if err != nil {
		return nil, err
	}
	key, err := deriveKey(master)
	if err != nil {
		return nil, fmt.Errorf("deriving identity key: %w", err)
	}

	return &Storage{root: dir, key: key}, nil
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

func loadOrCreateMasterKey(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		if len(data) != masterKeySize {
			return nil, fmt.Errorf("key file %s is corrupt", path)
		}
		return data, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading key file: %w", err)
	}

	master := make([]byte, masterKeySize)
	if _, err := io.ReadFull(rand.Reader, master); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, master, filePermission); err != nil {
		return nil, fmt.Errorf("writing key file: %w", err)
	}
	return master, nil
}

func (s *Storage) identityPath(key model.SessionKey) string {
	return filepath.Join(s.root, identityDir, hashName(string(key))+".sealed")
}

func (s *Storage) imagePath(url string) string {
	return filepath.Join(s.root, imageDir, hashName(url))
}

func hashName(v string) string {
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:])
}

// writeAtomic replaces path via a temp file rename
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(filePermission); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Identity operations

func (s *Storage) SaveIdentity(ctx context.Context, key model.SessionKey, identity *model.Identity) error {
	data, err := json.Marshal(identity)
	if err != nil {
		return err
	}
	sealed, err := seal(s.key, data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return writeAtomic(s.identityPath(key), sealed)
}

func (s *Storage) GetIdentity(ctx context.Context, key model.SessionKey) (*model.Identity, error) {
	s.mu.Lock()
	sealed, err := os.ReadFile(s.identityPath(key))
	s.mu.Unlock()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, model.ErrIdentityNotFound
		}
		return nil, err
	}

	data, err := unseal(s.key, sealed)
	if err != nil {
		return nil, err
	}

	var identity model.Identity
	if err := json.Unmarshal(data, &identity); err != nil {
		return nil, err
	}
	return &identity, nil
}

func (s *Storage) DeleteIdentity(ctx context.Context, key model.SessionKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(s.identityPath(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Image operations

func (s *Storage) SaveImage(ctx context.Context, url string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeAtomic(s.imagePath(url), data)
}

func (s *Storage) GetImage(ctx context.Context, url string) ([]byte, error) {
	data, err := os.ReadFile(s.imagePath(url))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, model.ErrImageNotCached
		}
		return nil, err
	}
	return data, nil
}

func (s *Storage) HasImage(ctx context.Context, url string) (bool, error) {
	_, err := os.Stat(s.imagePath(url))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}
