package cursor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
)

const (
	defaultGitRemote      = "origin"
	defaultGitAuthorName  = "autoposter"
	defaultGitAuthorEmail = "autoposter@users.noreply.github.com"
	defaultGitUsername    = "x-access-token"
)

// GitOptions controls how a saved state file is committed.
type GitOptions struct {
	Push        bool
	Remote      string
	AuthorName  string
	AuthorEmail string
	Username    string // push auth user; token auth ignores it on most hosts
	Token       string // empty disables auth (local or ssh-agent remotes)
}

// GitStore is a FileStore whose state file lives in a git checkout. Every
// Save commits the file, and pushes it when configured, so the next run on
// a fresh checkout sees the new cursor.
type GitStore struct {
	file *FileStore
	opts GitOptions
	repo *git.Repository
	rel  string
}

// NewGitStore opens the repository containing file's state path.
func NewGitStore(file *FileStore, opts GitOptions) (*GitStore, error) {
	if file == nil {
		return nil, errors.New("file store is required")
	}

	abs, err := filepath.Abs(file.Path())
	if err != nil {
		return nil, fmt.Errorf("resolve state path: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	repo, err := git.PlainOpenWithOptions(filepath.Dir(abs), &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("open git repo for %s: %w", file.Path(), err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("get worktree: %w", err)
	}

	root, err := filepath.EvalSymlinks(wt.Filesystem.Root())
	if err != nil {
		return nil, fmt.Errorf("resolve worktree root: %w", err)
	}
	dir, err := filepath.EvalSymlinks(filepath.Dir(abs))
	if err != nil {
		return nil, fmt.Errorf("resolve state dir: %w", err)
	}
	rel, err := filepath.Rel(root, filepath.Join(dir, filepath.Base(abs)))
	if err != nil {
		return nil, fmt.Errorf("state path outside worktree: %w", err)
	}

	if opts.Remote == "" {
		opts.Remote = defaultGitRemote
	}
	if opts.AuthorName == "" {
		opts.AuthorName = defaultGitAuthorName
	}
	if opts.AuthorEmail == "" {
		opts.AuthorEmail = opts.AuthorName + "@users.noreply.github.com"
		if opts.AuthorName == defaultGitAuthorName {
			opts.AuthorEmail = defaultGitAuthorEmail
		}
	}
	if opts.Username == "" {
		opts.Username = defaultGitUsername
	}

	return &GitStore{file: file, opts: opts, repo: repo, rel: filepath.ToSlash(rel)}, nil
}

func (g *GitStore) Load(ctx context.Context) (Cursor, error) {
	return g.file.Load(ctx)
}

func (g *GitStore) Inspect(ctx context.Context) (Info, error) {
	return g.file.Inspect(ctx)
}

// Save writes the state file, commits it and optionally pushes. The state
// file is already updated on disk when a commit or push error is returned.
func (g *GitStore) Save(ctx context.Context, c Cursor) error {
	if err := g.file.Save(ctx, c); err != nil {
		return err
	}

	wt, err := g.repo.Worktree()
	if err != nil {
		return fmt.Errorf("get worktree: %w", err)
	}
	if _, err := wt.Add(g.rel); err != nil {
		return fmt.Errorf("stage %s: %w", g.rel, err)
	}

	msg := fmt.Sprintf("Update %s (next index %d)", filepath.Base(g.rel), c.Index)
	if _, err := wt.Commit(msg, &git.CommitOptions{
		Author: &object.Signature{
			Name:  g.opts.AuthorName,
			Email: g.opts.AuthorEmail,
			When:  time.Now(),
		},
	}); err != nil {
		return fmt.Errorf("commit state: %w", err)
	}

	if !g.opts.Push {
		return nil
	}

	push := &git.PushOptions{RemoteName: g.opts.Remote}
	if g.opts.Token != "" {
		push.Auth = &githttp.BasicAuth{Username: g.opts.Username, Password: g.opts.Token}
	}
	if err := g.repo.PushContext(ctx, push); err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("push state: %w", err)
	}
	return nil
}
