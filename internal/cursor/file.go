package cursor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultStateFile is the conventional state file name, committed next to
// the post list.
const DefaultStateFile = "state.json"

// fileState is the on-disk layout. last_row_index keeps the file readable
// by older tooling that only knows the last posted index.
type fileState struct {
	NextIndex    *int   `json:"next_index,omitempty"`
	LastRowIndex *int   `json:"last_row_index,omitempty"`
	LastPostTime string `json:"last_post_time,omitempty"`
}

// FileStore keeps the cursor in a small JSON file.
type FileStore struct {
	path string
	now  func() time.Time
}

// NewFileStore creates a store backed by the JSON file at path.
func NewFileStore(path string) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("state path is required")
	}
	return &FileStore{path: path, now: time.Now}, nil
}

// Path returns the state file location.
func (f *FileStore) Path() string {
	return f.path
}

func (f *FileStore) Load(ctx context.Context) (Cursor, error) {
	info, err := f.Inspect(ctx)
	if err != nil {
		return Cursor{}, err
	}
	return info.Cursor, nil
}

func (f *FileStore) Inspect(_ context.Context) (Info, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return Info{}, nil
	}
	if err != nil {
		return Info{}, fmt.Errorf("read state: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return Info{}, nil
	}

	var st fileState
	if err := json.Unmarshal(data, &st); err != nil {
		return Info{}, fmt.Errorf("parse state %s: %w", f.path, err)
	}

	var info Info
	switch {
	case st.NextIndex != nil:
		info.Cursor.Index = *st.NextIndex
	case st.LastRowIndex != nil:
		info.Cursor.Index = *st.LastRowIndex + 1
	}
	if info.Cursor.Index < 0 {
		info.Cursor.Index = 0
	}

	if st.LastPostTime != "" {
		ts, err := time.Parse(time.RFC3339Nano, st.LastPostTime)
		if err != nil {
			return Info{}, fmt.Errorf("parse last_post_time %q: %w", st.LastPostTime, err)
		}
		info.UpdatedAt = ts
	}

	return info, nil
}

func (f *FileStore) Save(_ context.Context, c Cursor) error {
	if c.Index < 0 {
		return fmt.Errorf("invalid cursor index %d", c.Index)
	}

	next := c.Index
	last := c.Index - 1
	st := fileState{
		NextIndex:    &next,
		LastRowIndex: &last,
		LastPostTime: f.now().UTC().Format(time.RFC3339Nano),
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	data = append(data, '\n')

	return writeAtomic(f.path, data)
}

// writeAtomic replaces path with data through a temp file in the same
// directory so a crash never leaves a half-written state file.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("chmod temp state: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}
