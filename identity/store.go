package identity

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/user/railpass-blue/errs"
	"github.com/user/railpass-blue/logger"
)

// Record is the provisioned identity and the balance it was registered with
type Record struct {
	Identity       string    `json:"identity"`
	InitialBalance float64   `json:"initial_balance"`
	RegisteredAt   time.Time `json:"registered_at"`
}

// Store persists the one identity of this device
type Store interface {
	Load() (Record, bool, error)
	Save(rec Record) error
}

// FileStore keeps the record in <dataDir>/identity.json
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a store rooted at dataDir
func NewFileStore(dataDir string) *FileStore {
	return &FileStore{path: filepath.Join(dataDir, "identity.json")}
}

// Path returns the record file location
func (s *FileStore) Path() string {
	return s.path
}

// Load returns the stored record; found is false when nothing was provisioned yet
func (s *FileStore) Load() (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *FileStore) load() (Record, bool, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("failed to read identity file: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, false, fmt.Errorf("failed to unmarshal identity file: %w", err)
	}
	if rec.Identity == "" {
		return Record{}, false, nil
	}
	return rec, true, nil
}

// Save writes rec. A different identity never replaces a stored one.
func (s *FileStore) Save(rec Record) error {
	if rec.Identity == "" {
		return errs.NoIdentity("identity")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, found, err := s.load()
	if err != nil {
		return err
	}
	if found && existing.Identity != rec.Identity {
		return errs.IdentityConflict(existing.Identity, rec.Identity)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal identity: %w", err)
	}

	// Write to temp file first (atomic write pattern)
	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tempPath, s.path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	logger.Debug(logger.Prefix(rec.Identity, "identity"), "identity saved to %s", s.path)
	return nil
}
