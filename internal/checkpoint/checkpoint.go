// Package checkpoint persists chain records as one human-readable YAML
// file per chain. Whole-record read/write only; the last writer wins.
package checkpoint

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/danshapiro/memclimb/internal/chain"
)

const (
	fileSuffix = ".checkpoint"
	filePat    = "*" + fileSuffix

	fileMode = 0o644
	dirMode  = 0o755
)

// ErrNotFound reports a missing checkpoint for a chain id.
var ErrNotFound = errors.New("checkpoint not found")

// Store keeps one checkpoint file per chain under Dir.
type Store struct {
	Dir string
	Now func() time.Time
}

// NewStore builds a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{Dir: dir, Now: time.Now}
}

// Path returns the checkpoint file path for a chain id.
func (s *Store) Path(chainID string) string {
	return filepath.Join(s.Dir, chainID+fileSuffix)
}

// Load reads and parses the whole checkpoint for a chain.
func (s *Store) Load(chainID string) (*chain.Record, error) {
	return LoadFile(s.Path(chainID))
}

// LoadFile reads a checkpoint from an explicit path. The file is safe to
// hand-edit; a parse failure is reported, not papered over.
func LoadFile(path string) (*chain.Record, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("read checkpoint %s: %w", path, err)
	}
	var rec chain.Record
	if err := yaml.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("parse checkpoint %s: %w", path, err)
	}
	return &rec, nil
}

// Save writes the whole record back, bumping the updated timestamp. Field
// order in the file is stable (struct order) so diffs stay readable.
func (s *Store) Save(rec *chain.Record) error {
	if rec == nil || rec.ChainID == "" {
		return fmt.Errorf("checkpoint record needs a chain id")
	}
	if err := os.MkdirAll(s.Dir, dirMode); err != nil {
		return fmt.Errorf("create checkpoint dir %s: %w", s.Dir, err)
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	rec.Updated = now().Format(time.RFC3339)

	b, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode checkpoint %s: %w", rec.ChainID, err)
	}
	path := s.Path(rec.ChainID)
	if err := os.WriteFile(path, b, fileMode); err != nil {
		return fmt.Errorf("write checkpoint %s: %w", path, err)
	}
	return nil
}

// List enumerates the chain ids with a checkpoint under Dir, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read checkpoint dir %s: %w", s.Dir, err)
	}

	var ids []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ok, err := doublestar.Match(filePat, entry.Name())
		if err != nil || !ok {
			continue
		}
		ids = append(ids, strings.TrimSuffix(entry.Name(), fileSuffix))
	}
	sort.Strings(ids)
	return ids, nil
}
