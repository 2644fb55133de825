package cursor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
)

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	st, err := NewFileStore(filepath.Join(t.TempDir(), DefaultStateFile))
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	return st
}

func TestNewFileStoreRequiresPath(t *testing.T) {
	if _, err := NewFileStore(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestFileStoreLoadMissing(t *testing.T) {
	st := newTestFileStore(t)

	c, err := st.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Index != 0 {
		t.Fatalf("index = %d, want 0", c.Index)
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	st := newTestFileStore(t)
	ctx := context.Background()

	for _, idx := range []int{0, 1, 7, 42} {
		if err := st.Save(ctx, Cursor{Index: idx}); err != nil {
			t.Fatalf("save %d: %v", idx, err)
		}
		got, err := st.Load(ctx)
		if err != nil {
			t.Fatalf("load %d: %v", idx, err)
		}
		if got != (Cursor{Index: idx}) {
			t.Fatalf("round trip: got %+v, want index %d", got, idx)
		}
	}
}

func TestFileStoreSaveIsIdempotent(t *testing.T) {
	st := newTestFileStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := st.Save(ctx, Cursor{Index: 2}); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	got, err := st.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Index != 2 {
		t.Fatalf("index = %d, want 2", got.Index)
	}

	entries, err := os.ReadDir(filepath.Dir(st.Path()))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the state file, found %d entries", len(entries))
	}
}

func TestFileStoreRejectsNegative(t *testing.T) {
	st := newTestFileStore(t)
	if err := st.Save(context.Background(), Cursor{Index: -1}); err == nil {
		t.Fatal("expected error for negative index")
	}
}

func TestFileStoreInspect(t *testing.T) {
	st := newTestFileStore(t)
	fixed := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	st.now = func() time.Time { return fixed }

	if err := st.Save(context.Background(), Cursor{Index: 3}); err != nil {
		t.Fatalf("save: %v", err)
	}

	info, err := st.Inspect(context.Background())
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if info.Cursor.Index != 3 {
		t.Errorf("index = %d, want 3", info.Cursor.Index)
	}
	if !info.UpdatedAt.Equal(fixed) {
		t.Errorf("updated_at = %v, want %v", info.UpdatedAt, fixed)
	}

	data, err := os.ReadFile(st.Path())
	if err != nil {
		t.Fatalf("read state: %v", err)
	}
	if !strings.Contains(string(data), `"last_row_index": 2`) {
		t.Errorf("state file missing last_row_index: %s", data)
	}
}

func TestFileStoreLegacyState(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int
	}{
		{name: "last row only", content: `{"last_row_index": 4, "last_post_time": "2025-01-02T03:04:05.123456Z"}`, want: 5},
		{name: "start marker", content: `{"last_row_index": -1}`, want: 0},
		{name: "next index wins", content: `{"next_index": 1, "last_row_index": 9}`, want: 1},
		{name: "empty file", content: "", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newTestFileStore(t)
			if err := os.WriteFile(st.Path(), []byte(tt.content), 0o644); err != nil {
				t.Fatalf("write state: %v", err)
			}
			got, err := st.Load(context.Background())
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if got.Index != tt.want {
				t.Fatalf("index = %d, want %d", got.Index, tt.want)
			}
		})
	}
}

func TestFileStoreCorruptState(t *testing.T) {
	st := newTestFileStore(t)
	if err := os.WriteFile(st.Path(), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write state: %v", err)
	}
	if _, err := st.Load(context.Background()); err == nil {
		t.Fatal("expected error for corrupt state")
	}
}

func TestGitStoreCommitsState(t *testing.T) {
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("init repo: %v", err)
	}

	file, err := NewFileStore(filepath.Join(dir, "data", DefaultStateFile))
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	gs, err := NewGitStore(file, GitOptions{AuthorName: "poster-bot"})
	if err != nil {
		t.Fatalf("new git store: %v", err)
	}

	ctx := context.Background()
	if err := gs.Save(ctx, Cursor{Index: 1}); err != nil {
		t.Fatalf("save 1: %v", err)
	}
	if err := gs.Save(ctx, Cursor{Index: 2}); err != nil {
		t.Fatalf("save 2: %v", err)
	}

	got, err := gs.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Index != 2 {
		t.Fatalf("index = %d, want 2", got.Index)
	}

	head, err := repo.Head()
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		t.Fatalf("commit object: %v", err)
	}
	if commit.Message != "Update state.json (next index 2)" {
		t.Errorf("commit message = %q", commit.Message)
	}
	if commit.Author.Name != "poster-bot" {
		t.Errorf("author = %q, want poster-bot", commit.Author.Name)
	}
	if commit.Author.Email != "poster-bot@users.noreply.github.com" {
		t.Errorf("email = %q", commit.Author.Email)
	}

	f, err := commit.File("data/state.json")
	if err != nil {
		t.Fatalf("state file not in commit: %v", err)
	}
	contents, err := f.Contents()
	if err != nil {
		t.Fatalf("read committed state: %v", err)
	}
	if !strings.Contains(contents, `"next_index": 2`) {
		t.Errorf("committed state = %s", contents)
	}

	parent, err := commit.Parent(0)
	if err != nil {
		t.Fatalf("expected a parent commit: %v", err)
	}
	if parent.Message != "Update state.json (next index 1)" {
		t.Errorf("parent message = %q", parent.Message)
	}
}

func TestGitStorePushes(t *testing.T) {
	remoteDir := filepath.Join(t.TempDir(), "remote.git")
	remote, err := git.PlainInit(remoteDir, true)
	if err != nil {
		t.Fatalf("init bare remote: %v", err)
	}

	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("init repo: %v", err)
	}
	if _, err := repo.CreateRemote(&gitconfig.RemoteConfig{Name: "origin", URLs: []string{remoteDir}}); err != nil {
		t.Fatalf("create remote: %v", err)
	}

	file, err := NewFileStore(filepath.Join(dir, DefaultStateFile))
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	gs, err := NewGitStore(file, GitOptions{Push: true})
	if err != nil {
		t.Fatalf("new git store: %v", err)
	}

	ctx := context.Background()
	for _, idx := range []int{1, 2} {
		if err := gs.Save(ctx, Cursor{Index: idx}); err != nil {
			t.Fatalf("save %d: %v", idx, err)
		}
	}

	head, err := remote.Head()
	if err != nil {
		t.Fatalf("remote head: %v", err)
	}
	commit, err := remote.CommitObject(head.Hash())
	if err != nil {
		t.Fatalf("remote commit: %v", err)
	}
	if commit.Message != "Update state.json (next index 2)" {
		t.Errorf("remote head message = %q", commit.Message)
	}
	if commit.Author.Name != defaultGitAuthorName {
		t.Errorf("author = %q", commit.Author.Name)
	}

	local, err := repo.Head()
	if err != nil {
		t.Fatalf("local head: %v", err)
	}
	if local.Hash() != head.Hash() {
		t.Errorf("remote at %s, local at %s", head.Hash(), local.Hash())
	}
}

func TestGitStorePushFailureKeepsLocalState(t *testing.T) {
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("init repo: %v", err)
	}
	missing := filepath.Join(t.TempDir(), "does-not-exist.git")
	if _, err := repo.CreateRemote(&gitconfig.RemoteConfig{Name: "origin", URLs: []string{missing}}); err != nil {
		t.Fatalf("create remote: %v", err)
	}

	file, err := NewFileStore(filepath.Join(dir, DefaultStateFile))
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	gs, err := NewGitStore(file, GitOptions{Push: true})
	if err != nil {
		t.Fatalf("new git store: %v", err)
	}

	ctx := context.Background()
	if err := gs.Save(ctx, Cursor{Index: 3}); err == nil || !strings.Contains(err.Error(), "push state") {
		t.Fatalf("expected push error, got %v", err)
	}
	got, err := gs.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Index != 3 {
		t.Errorf("index = %d, want 3 written locally", got.Index)
	}
}

func TestGitStoreRequiresRepo(t *testing.T) {
	file, err := NewFileStore(filepath.Join(t.TempDir(), DefaultStateFile))
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	if _, err := NewGitStore(file, GitOptions{}); err == nil {
		t.Fatal("expected error outside a git repository")
	}
}
