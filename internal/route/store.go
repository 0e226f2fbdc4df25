package route

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// Store persists route records.
type Store interface {
	// Save replaces every stored route with routes.
	Save(ctx context.Context, routes []Route) error
	// Append adds one route.
	Append(ctx context.Context, r Route) error
	// List returns every stored route.
	List(ctx context.Context) ([]Route, error)
	Close(ctx context.Context) error
}

// FileStore keeps routes as a JSON array in a single file. Writes go to a temporary file
// that is renamed over the original.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore returns a store backed by path. The file is created on first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file.
func (s *FileStore) Path() string {
	return s.path
}

// Save implements Store.
func (s *FileStore) Save(ctx context.Context, routes []Route) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(ctx, routes)
}

// Append implements Store.
func (s *FileStore) Append(ctx context.Context, r Route) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	routes, err := s.read()
	if err != nil {
		return err
	}
	return s.write(ctx, append(routes, r))
}

// List implements Store.
func (s *FileStore) List(ctx context.Context) ([]Route, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// Close implements Store.
func (s *FileStore) Close(context.Context) error {
	return nil
}

func (s *FileStore) read() ([]Route, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return []Route{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read routes")
	}
	var routes []Route
	if err := json.Unmarshal(raw, &routes); err != nil {
		return nil, errors.Wrapf(err, "parse routes %s", s.path)
	}
	return routes, nil
}

func (s *FileStore) write(ctx context.Context, routes []Route) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if routes == nil {
		routes = []Route{}
	}
	raw, err := json.MarshalIndent(routes, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode routes")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "create routes directory")
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp routes file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write routes")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close routes")
	}
	return errors.Wrap(os.Rename(tmp.Name(), s.path), "replace routes")
}
