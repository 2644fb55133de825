// Package poster runs one scheduled posting cycle:
//
//	Idle → Loaded → Selected → Formatted → Authenticated → Published → CursorAdvanced
//
// The cursor is written only after the post is published, so a failure at
// any earlier stage leaves it in place and the next run retries the same
// record. The one exception is a record that can never be formatted: the
// cursor moves past it so it does not block every later run.
package poster

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/ReactorcoreGames/BlueskyAutoPoster/internal/bsky"
	"github.com/ReactorcoreGames/BlueskyAutoPoster/internal/compose"
	"github.com/ReactorcoreGames/BlueskyAutoPoster/internal/cursor"
	"github.com/ReactorcoreGames/BlueskyAutoPoster/internal/selector"
	"github.com/ReactorcoreGames/BlueskyAutoPoster/internal/source"
	"github.com/ReactorcoreGames/BlueskyAutoPoster/internal/store"
)

// Stage is the furthest state a run reached.
type Stage int

const (
	StageIdle Stage = iota
	StageLoaded
	StageSelected
	StageFormatted
	StageAuthenticated
	StagePublished
	StageCursorAdvanced
)

var stageNames = [...]string{
	"idle", "loaded", "selected", "formatted", "authenticated", "published", "cursor_advanced",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// Formatter lays out a record as post text.
type Formatter interface {
	Format(rec source.Record) (compose.Post, error)
}

// Publisher authenticates and creates posts.
type Publisher interface {
	CreateSession(ctx context.Context, handle, appPassword string) (*bsky.Session, error)
	CreatePost(ctx context.Context, s *bsky.Session, p compose.Post) (bsky.PostRef, error)
}

// Recorder keeps a history of what each run did. Optional.
type Recorder interface {
	RecordPublication(ctx context.Context, in store.PublicationInput) (store.Publication, error)
}

// Runner holds the collaborators for one run.
type Runner struct {
	Source    source.Loader
	Cursor    cursor.Store
	Formatter Formatter
	Publisher Publisher
	Recorder  Recorder

	Handle      string
	AppPassword string

	// DryRun stops after formatting: no network calls, no state writes.
	DryRun bool

	Logger *slog.Logger
	Now    func() time.Time
}

// Result describes what a run did.
type Result struct {
	RunID   string
	Stage   Stage
	Empty   bool // the post list had no records
	Skipped bool // the record could not be formatted and was passed over
	Count   int  // number of records loaded
	Index   int  // position of the selected record
	Next    cursor.Cursor
	Record  source.Record
	Post    compose.Post
	Ref     bsky.PostRef
	SkipErr error // the FormatError behind a skip
}

// Run executes one cycle. The returned Result is filled as far as the run
// got, also on error.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	res := Result{RunID: newRunID(r.now()), Stage: StageIdle}
	log := r.logger().With("run_id", res.RunID)

	if err := r.check(); err != nil {
		return res, err
	}

	records, err := r.Source.Load()
	if err != nil {
		return res, fmt.Errorf("load posts: %w", err)
	}
	res.Stage = StageLoaded
	res.Count = len(records)
	log.Debug("posts loaded", "source", r.Source.Name(), "count", len(records))

	if len(records) == 0 {
		res.Empty = true
		log.Info("no posts in source, nothing to do")
		return res, nil
	}

	cur, err := r.Cursor.Load(ctx)
	if err != nil {
		return res, fmt.Errorf("load cursor: %w", err)
	}

	rec, next, _ := selector.Select(records, cur)
	idx, _ := selector.Position(len(records), cur)
	res.Stage = StageSelected
	res.Index = idx
	res.Record = rec
	res.Next = next
	log = log.With("index", idx, "row", rec.Row)
	log.Debug("post selected", "cursor", cur.Index, "next", next.Index, "title", rec.Title)

	post, err := r.Formatter.Format(rec)
	if err != nil {
		var fe *compose.FormatError
		if !errors.As(err, &fe) {
			return res, fmt.Errorf("format row %d: %w", rec.Row, err)
		}
		return r.skip(ctx, log, res, fe)
	}
	res.Stage = StageFormatted
	res.Post = post
	if post.Truncated || post.DroppedHashtags {
		log.Warn("post shortened to fit", "truncated_title", post.Truncated, "dropped_hashtags", post.DroppedHashtags)
	}

	if r.DryRun {
		log.Info("dry run, not publishing", "text", post.Text)
		return res, nil
	}

	session, err := r.Publisher.CreateSession(ctx, r.Handle, r.AppPassword)
	if err != nil {
		return res, fmt.Errorf("authenticate: %w", err)
	}
	res.Stage = StageAuthenticated
	log.Debug("session created", "did", session.DID, "expires_at", session.ExpiresAt)

	ref, err := r.Publisher.CreatePost(ctx, session, post)
	if err != nil {
		var pe *bsky.PublishError
		if errors.As(err, &pe) && pe.RateLimited {
			log.Warn("rate limited, the same post will be retried next run", "reset_at", pe.ResetAt)
		}
		return res, fmt.Errorf("publish row %d: %w", rec.Row, err)
	}
	res.Stage = StagePublished
	res.Ref = ref
	log.Info("post published", "uri", ref.URI, "url", ref.WebURL(session.Handle))

	if err := r.Cursor.Save(ctx, next); err != nil {
		// The post is live; the next run will post it again unless the
		// cursor is fixed by hand.
		log.Error("post published but cursor not saved", "uri", ref.URI, "next", next.Index, "err", err)
		return res, fmt.Errorf("save cursor after publishing %s: %w", ref.URI, err)
	}
	res.Stage = StageCursorAdvanced
	log.Debug("cursor advanced", "next", next.Index)

	r.record(ctx, log, store.PublicationInput{
		RunID:     res.RunID,
		Index:     idx,
		SourceRow: rec.Row,
		Title:     rec.Title,
		URL:       rec.URL,
		Status:    store.StatusPublished,
		PostURI:   ref.URI,
		PostCID:   ref.CID,
		CreatedAt: r.now(),
	})

	return res, nil
}

// skip moves the cursor past a record that will never fit.
func (r *Runner) skip(ctx context.Context, log *slog.Logger, res Result, fe *compose.FormatError) (Result, error) {
	res.Skipped = true
	res.SkipErr = fe
	log.Warn("skipping post that cannot be formatted", "err", fe)

	if r.DryRun {
		return res, nil
	}

	if err := r.Cursor.Save(ctx, res.Next); err != nil {
		return res, fmt.Errorf("save cursor past row %d: %w", res.Record.Row, err)
	}
	res.Stage = StageCursorAdvanced

	r.record(ctx, log, store.PublicationInput{
		RunID:     res.RunID,
		Index:     res.Index,
		SourceRow: res.Record.Row,
		Title:     res.Record.Title,
		URL:       res.Record.URL,
		Status:    store.StatusSkipped,
		Message:   fe.Error(),
		CreatedAt: r.now(),
	})
	return res, nil
}

func (r *Runner) record(ctx context.Context, log *slog.Logger, in store.PublicationInput) {
	if r.Recorder == nil {
		return
	}
	if _, err := r.Recorder.RecordPublication(ctx, in); err != nil {
		log.Warn("record history", "err", err)
	}
}

func (r *Runner) check() error {
	switch {
	case r.Source == nil:
		return errors.New("runner: source is required")
	case r.Cursor == nil:
		return errors.New("runner: cursor store is required")
	case r.Formatter == nil:
		return errors.New("runner: formatter is required")
	case r.Publisher == nil && !r.DryRun:
		return errors.New("runner: publisher is required")
	}
	return nil
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func newRunID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}
