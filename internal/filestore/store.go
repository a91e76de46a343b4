package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/goccy/go-json"

	"github.com/xxxsen/apisync/internal/config"
)

var (
	ErrInvalidKey      = errors.New("invalid file key")
	ErrOpenUnsupported = errors.New("file store cannot be read back")
)

// Store persists downloaded image files under flat keys.
type Store interface {
	Type() string
	Save(ctx context.Context, key string, r io.ReadSeeker, size int64) error
	Open(ctx context.Context, key string) (io.ReadSeekCloser, error)
}

// Linker is implemented by stores whose files are reachable at a public URL.
// An empty result means the key has no public address.
type Linker interface {
	URL(key string) string
}

type Factory func(args interface{}) (Store, error)

var stores = struct {
	sync.RWMutex
	byType map[string]Factory
}{byType: map[string]Factory{}}

func normalizeType(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Register makes a store type available to New. Later registrations replace
// earlier ones.
func Register(name string, factory Factory) {
	typ := normalizeType(name)
	if typ == "" || factory == nil {
		return
	}
	stores.Lock()
	defer stores.Unlock()
	stores.byType[typ] = factory
}

func New(cfg config.FileStoreConfig) (Store, error) {
	typ := normalizeType(cfg.Type)
	stores.RLock()
	factory, ok := stores.byType[typ]
	stores.RUnlock()
	if !ok {
		return nil, fmt.Errorf("file store %q is not registered", cfg.Type)
	}
	store, err := factory(cfg.Data)
	if err != nil {
		return nil, fmt.Errorf("init %s file store: %w", typ, err)
	}
	return store, nil
}

func checkKey(key string) error {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) {
		return fmt.Errorf("%q: %w", key, ErrInvalidKey)
	}
	return nil
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("missing store data")
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}
