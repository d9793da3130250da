package service

import (
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"

	"signal_relay/internal/helper"
	"signal_relay/internal/models"
)

// ErrStateCorrupt is returned together with fresh defaults when the state
// file cannot be decoded. Callers treat it as a first run.
var ErrStateCorrupt = errors.New("state file corrupt")

// Store keeps ProcessingState in a JSON file replaced atomically on save.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	if path == "" {
		path = "state.json"
	}
	return &Store{path: path}
}

func (s *Store) Path() string { return s.path }

// Load reads the state file. A missing file yields defaults and no error;
// an unreadable one yields defaults and ErrStateCorrupt.
func (s *Store) Load() (*models.ProcessingState, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return models.NewProcessingState(), nil
		}
		return models.NewProcessingState(), errors.Wrapf(ErrStateCorrupt, "read %s: %v", s.path, err)
	}

	st := models.NewProcessingState()
	if err := sonic.Unmarshal(b, st); err != nil {
		return models.NewProcessingState(), errors.Wrapf(ErrStateCorrupt, "decode %s: %v", s.path, err)
	}
	if _, ok := helper.ParseID(st.LastProcessedMessageID); !ok {
		return models.NewProcessingState(), errors.Wrapf(ErrStateCorrupt, "cursor %q is not numeric", st.LastProcessedMessageID)
	}
	if st.SeenSignalHashes == nil {
		st.SeenSignalHashes = []string{}
	}
	return st, nil
}

// Save writes st to a temp file next to the target and renames it over.
func (s *Store) Save(st *models.ProcessingState) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.Wrap(err, "state dir")
	}
	b, err := sonic.ConfigStd.MarshalIndent(st, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode state")
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return errors.Wrap(err, "open temp state")
	}
	if _, err = f.Write(b); err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, "write temp state")
	}
	return errors.Wrap(os.Rename(tmp, s.path), "replace state") // атомарно
}
