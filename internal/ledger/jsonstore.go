package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type persisted struct {
	Records []Record `json:"records"`
	Chain   []Block  `json:"chain"`
}

// JSONStore keeps the whole ledger in one JSON file, rewritten atomically
// on every append.
type JSONStore struct {
	path string

	mu    sync.Mutex
	state persisted

	// BackupPath is set when Load moved an unreadable file aside.
	BackupPath string
}

// NewJSONStore returns a store backed by path. The file is created on the
// first append.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

// Load reads the file. A missing file is an empty ledger. A file that does
// not parse is renamed to <path>.corrupt-<timestamp> and an error returned.
func (s *JSONStore) Load(ctx context.Context) ([]Record, []Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.state = persisted{}
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	var p persisted
	if err := json.Unmarshal(b, &p); err != nil {
		bad := s.path + ".corrupt-" + time.Now().Format("20060102-150405")
		if err2 := os.Rename(s.path, bad); err2 != nil {
			return nil, nil, fmt.Errorf("%s invalid (%v) and could not be moved: %w", s.path, err, err2)
		}
		s.BackupPath = bad
		return nil, nil, fmt.Errorf("%s invalid, moved to %s: %w", s.path, bad, err)
	}
	s.state = p
	recs := append([]Record(nil), p.Records...)
	chain := append([]Block(nil), p.Chain...)
	return recs, chain, nil
}

// Append adds one record and block and rewrites the file.
func (s *JSONStore) Append(ctx context.Context, rec Record, blk Block) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := persisted{
		Records: append(append([]Record(nil), s.state.Records...), rec),
		Chain:   append(append([]Block(nil), s.state.Chain...), blk),
	}
	if err := s.write(next); err != nil {
		return err
	}
	s.state = next
	return nil
}

func (s *JSONStore) write(p persisted) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *JSONStore) Close() error { return nil }

// MemoryStore keeps nothing beyond the process lifetime.
type MemoryStore struct{}

func (MemoryStore) Load(context.Context) ([]Record, []Block, error) { return nil, nil, nil }
func (MemoryStore) Append(ctx context.Context, _ Record, _ Block) error {
	return ctx.Err()
}
func (MemoryStore) Close() error { return nil }

// Drivers accepted by OpenStore.
const (
	DriverJSON   = "json"
	DriverSQLite = "sqlite"
	DriverNone   = "none"
)

// OpenStore builds a store for driver at path.
func OpenStore(driver, path string) (Store, error) {
	switch driver {
	case "", DriverJSON:
		if path == "" {
			return nil, errors.New("ledger path is required")
		}
		return NewJSONStore(path), nil
	case DriverSQLite:
		return OpenSQLite(path)
	case DriverNone:
		return MemoryStore{}, nil
	default:
		return nil, fmt.Errorf("unknown ledger driver %q (want json, sqlite or none)", driver)
	}
}
