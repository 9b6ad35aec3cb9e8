package snapshot

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

const (
	defaultPath = "./state/ccgains_state.json"
	pathEnv     = "CCGAINS_SNAPSHOT_PATH"
)

// Store keeps the engine snapshot in a single file so a halted run can be resumed.
type Store struct {
	path string
}

// NewStore creates a store writing to path. An empty path falls back to
// $CCGAINS_SNAPSHOT_PATH and then to ./state/ccgains_state.json.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = os.Getenv(pathEnv)
	}
	if path == "" {
		path = defaultPath
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "create snapshot dir")
	}

	return &Store{path: path}, nil
}

// Path returns the snapshot file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the snapshot. It returns nil data and no error when there is
// no snapshot yet.
func (s *Store) Load() ([]byte, error) {
	if s == nil || s.path == "" {
		return nil, nil
	}

	payload, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, errors.Wrap(err, "read snapshot")
	}

	if len(payload) == 0 {
		return nil, nil
	}

	return payload, nil
}

// Save writes the snapshot atomically via a temp file.
func (s *Store) Save(payload []byte) error {
	if s == nil || s.path == "" {
		return errors.New("snapshot store is not initialized")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return errors.Wrap(err, "write snapshot temp file")
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "persist snapshot")
	}

	return nil
}
