package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ReactorcoreGames/BlueskyAutoPoster/internal/bsky"
	"github.com/ReactorcoreGames/BlueskyAutoPoster/internal/compose"
	"github.com/ReactorcoreGames/BlueskyAutoPoster/internal/config"
	"github.com/ReactorcoreGames/BlueskyAutoPoster/internal/cursor"
	"github.com/ReactorcoreGames/BlueskyAutoPoster/internal/source"
	"github.com/ReactorcoreGames/BlueskyAutoPoster/internal/store"
)

// state is the configured cursor backend. db is set only for the sqlite
// backend, which also keeps the publication history.
type state struct {
	cursor cursor.Store
	db     *store.Store
	desc   string
}

func openState(cfg *config.Config) (*state, error) {
	path := cfg.StatePath()

	if cfg.State.Backend == config.BackendSQLite {
		db, err := store.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		return &state{cursor: db, db: db, desc: "sqlite " + path}, nil
	}

	fs, err := cursor.NewFileStore(path)
	if err != nil {
		return nil, err
	}
	if !cfg.State.Git.Enabled {
		return &state{cursor: fs, desc: "file " + path}, nil
	}

	g := cfg.State.Git
	gs, err := cursor.NewGitStore(fs, cursor.GitOptions{
		Push:        g.Push,
		Remote:      g.Remote,
		AuthorName:  g.AuthorName,
		AuthorEmail: g.AuthorEmail,
		Username:    g.Username,
		Token:       g.Token,
	})
	if err != nil {
		return nil, err
	}
	desc := "git " + path
	if g.Push {
		desc += " (push to " + g.Remote + ")"
	}
	return &state{cursor: gs, desc: desc}, nil
}

func (s *state) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// inspect returns the cursor and, where the backend tracks it, when it was
// last written.
func (s *state) inspect(ctx context.Context) (cursor.Info, error) {
	if in, ok := s.cursor.(cursor.Inspector); ok {
		return in.Inspect(ctx)
	}
	c, err := s.cursor.Load(ctx)
	return cursor.Info{Cursor: c}, err
}

// prune drops history older than the retention window. Failures only warn.
func (s *state) prune(ctx context.Context, cfg *config.Config, log *slog.Logger) {
	if s.db == nil || cfg.State.RetainDays <= 0 {
		return
	}
	n, err := s.db.PruneOld(ctx, cfg.State.RetainDays)
	if err != nil {
		log.Warn("prune history", "err", err)
		return
	}
	if n > 0 {
		log.Debug("pruned history", "rows", n, "retain_days", cfg.State.RetainDays)
	}
}

func openSource(cfg *config.Config) (source.Loader, error) {
	return source.New(cfg.SourcePath(), cfg.Source.Sheet)
}

func newFormatter(cfg *config.Config) *compose.Formatter {
	return compose.New(compose.Options{
		MaxLength: cfg.Format.MaxLength,
		Separator: cfg.Format.Separator,
		Marker:    cfg.Format.TruncationMarker,
	})
}

func newClient(cfg *config.Config) (*bsky.Client, error) {
	return bsky.NewClient(bsky.Options{
		Host:        cfg.Bluesky.Host,
		Timeout:     cfg.Bluesky.Timeout.Duration,
		MinInterval: cfg.Bluesky.MinInterval.Duration,
		Langs:       cfg.Bluesky.Langs,
	})
}
