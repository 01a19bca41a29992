package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// AssetRecord is the persisted form of one manual asset slot.
type AssetRecord struct {
	URL      string  `json:"url,omitempty"`
	Duration float64 `json:"duration"`
	Known    bool    `json:"known"`
}

// ManualRecord is the persisted manual asset registry.
type ManualRecord struct {
	Clips     []AssetRecord `json:"clips"`
	Voiceover AssetRecord   `json:"voiceover"`
	Cta       AssetRecord   `json:"cta"`
	UpdatedAt string        `json:"updated_at"`
}

// mirrorRecord wraps a Mirror with the time it was observed.
type mirrorRecord struct {
	Mirror     Mirror `json:"mirror"`
	ObservedAt string `json:"observed_at"`
}

// Store keeps local client state on disk so one-shot commands share it.
type Store struct {
	baseDir string // defaults to ~/.reactor
}

// NewStore creates a Store rooted at baseDir.
func NewStore(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// DefaultStore returns a Store at ~/.reactor, creating the directory if needed.
func DefaultStore() (*Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("get home dir: %w", err)
	}
	dir := filepath.Join(home, ".reactor")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &Store{baseDir: dir}, nil
}

// BaseDir returns the store's root directory.
func (s *Store) BaseDir() string {
	return s.baseDir
}

func (s *Store) mirrorPath() string {
	return filepath.Join(s.baseDir, "mirror.json")
}

func (s *Store) manualPath() string {
	return filepath.Join(s.baseDir, "manual.json")
}

// SaveMirror records the latest mirror.
func (s *Store) SaveMirror(m Mirror) error {
	rec := mirrorRecord{Mirror: m, ObservedAt: time.Now().UTC().Format(time.RFC3339)}
	if err := saveJSON(s.mirrorPath(), rec); err != nil {
		return fmt.Errorf("write mirror.json: %w", err)
	}
	return nil
}

// LoadMirror returns the last saved mirror and when it was observed.
// A store with no saved mirror returns the zero Mirror and an empty time.
func (s *Store) LoadMirror() (Mirror, string, error) {
	var rec mirrorRecord
	ok, err := loadJSON(s.mirrorPath(), &rec)
	if err != nil || !ok {
		return Mirror{}, "", err
	}
	if rec.Mirror.Completed == nil {
		rec.Mirror.Completed = map[int]bool{}
	}
	return rec.Mirror, rec.ObservedAt, nil
}

// SaveManual persists the manual asset registry.
func (s *Store) SaveManual(rec ManualRecord) error {
	rec.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	if err := saveJSON(s.manualPath(), rec); err != nil {
		return fmt.Errorf("write manual.json: %w", err)
	}
	return nil
}

// LoadManual reads the persisted registry. ok is false when none was saved.
func (s *Store) LoadManual() (rec ManualRecord, ok bool, err error) {
	ok, err = loadJSON(s.manualPath(), &rec)
	if err != nil || !ok {
		return ManualRecord{}, false, err
	}
	return rec, true, nil
}

// ClearManual removes the persisted registry.
func (s *Store) ClearManual() error {
	if err := os.Remove(s.manualPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove manual.json: %w", err)
	}
	return nil
}
