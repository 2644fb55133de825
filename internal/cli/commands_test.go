package cli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ReactorcoreGames/BlueskyAutoPoster/internal/config"
	"github.com/ReactorcoreGames/BlueskyAutoPoster/internal/source"
	"github.com/ReactorcoreGames/BlueskyAutoPoster/internal/store"
)

func TestResetAction(t *testing.T) {
	dir := t.TempDir()
	cmd := setupTest(t, dir)
	writeTestPosts(t, dir, "A,https://example.com/a,", "B,https://example.com/b,", "C,https://example.com/c,")

	out, err := captureStdout(t, func() error { return resetAction(cmd, []string{"2"}) })
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	requireContains(t, out, "Cursor set to 2.")
	if got := loadTestCursor(t, dir); got != 2 {
		t.Fatalf("cursor = %d, want 2", got)
	}

	out, err = captureStdout(t, func() error { return statusAction(cmd, nil) })
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Cursor:  2")
	requireContains(t, out, "Next:    row 4 (3/3) C")

	if _, err := captureStdout(t, func() error { return resetAction(cmd, nil) }); err != nil {
		t.Fatalf("reset to zero: %v", err)
	}
	if got := loadTestCursor(t, dir); got != 0 {
		t.Errorf("cursor = %d, want 0", got)
	}
}

func TestResetActionInvalid(t *testing.T) {
	cmd := setupTest(t, t.TempDir())
	for _, arg := range []string{"-1", "abc", "1.5"} {
		if err := resetAction(cmd, []string{arg}); err == nil {
			t.Errorf("reset %q: expected error", arg)
		}
	}
}

func TestStatusNeverSaved(t *testing.T) {
	dir := t.TempDir()
	cmd := setupTest(t, dir)
	writeTestPosts(t, dir)

	out, err := captureStdout(t, func() error { return statusAction(cmd, nil) })
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "(csv, 0 posts)")
	requireContains(t, out, "Updated: never")
	requireContains(t, out, "Next:    nothing to post")
}

func TestNextAction(t *testing.T) {
	dir := t.TempDir()
	cmd := setupTest(t, dir)
	writeTestPosts(t, dir,
		"First,https://example.com/1,#a",
		"Too long,https://example.com/"+strings.Repeat("x", 300)+",",
	)
	nextCount = 3

	out, err := captureStdout(t, func() error { return nextAction(cmd, nil) })
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	requireContains(t, out, "--- row 2 (1/2) ---\nFirst\n\nhttps://example.com/1\n\n#a\n")
	requireContains(t, out, "--- row 3 (2/2) ---\n[will be skipped]")
	if n := strings.Count(out, "--- row"); n != 2 {
		t.Errorf("previewed %d posts, want 2 (count capped at list size)", n)
	}
	if _, err := os.Stat(filepath.Join(dir, config.DefaultStatePath)); !os.IsNotExist(err) {
		t.Error("next wrote state")
	}
}

func TestNextActionInvalidCount(t *testing.T) {
	cmd := setupTest(t, t.TempDir())
	nextCount = 0
	if err := nextAction(cmd, nil); err == nil {
		t.Error("expected error for --count 0")
	}
}

func TestInitAction(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "poster")
	setupTest(t, dir)

	out, err := captureStdout(t, func() error { return initAction(nil, nil) })
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	requireContains(t, out, "Initialized "+dir+" with 3 files.")

	out, err = captureStdout(t, func() error { return initAction(nil, nil) })
	if err != nil {
		t.Fatalf("second init: %v", err)
	}
	requireContains(t, out, "already initialized")

	cfg, err := config.Load(dir)
	if err != nil {
		t.Fatalf("example config does not load: %v", err)
	}
	recs, err := source.NewCSV(cfg.SourcePath()).Load()
	if err != nil {
		t.Fatalf("example posts do not load: %v", err)
	}
	if len(recs) != 1 || len(recs[0].Hashtags) != 2 {
		t.Errorf("example posts = %+v", recs)
	}
}

func TestDoctorAction(t *testing.T) {
	dir := t.TempDir()
	cmd := setupTest(t, dir)
	pds := newFakePDS(t)
	writeTestConfig(t, dir, pds.srv.URL, config.BackendFile)
	writeTestPosts(t, dir, "First,https://example.com/1,")
	doctorOnline = true

	out, err := captureStdout(t, func() error { return doctorAction(cmd, nil) })
	if err != nil {
		t.Fatalf("doctor: %v\n%s", err, out)
	}
	requireContains(t, out, "[ OK ] config.yaml")
	requireContains(t, out, "(1 posts)")
	requireContains(t, out, "[ OK ] credentials for alice.test")
	requireContains(t, out, "[ OK ] login to "+pds.srv.URL)
	requireContains(t, out, "All checks passed.")
}

func TestDoctorActionFailures(t *testing.T) {
	dir := t.TempDir()
	cmd := setupTest(t, dir)
	t.Setenv("BLUESKY_APP_PASSWORD", "")
	if err := os.WriteFile(filepath.Join(dir, "posts.csv"), []byte("name,link\nx,y\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := captureStdout(t, func() error { return doctorAction(cmd, nil) })
	if err == nil {
		t.Fatal("expected doctor to fail")
	}
	requireContains(t, out, "[INFO] no config.yaml, using defaults")
	requireContains(t, out, "[FAIL] post list")
	requireContains(t, out, "[FAIL] credentials")
}

func TestDoctorReportsWrappedCursor(t *testing.T) {
	dir := t.TempDir()
	cmd := setupTest(t, dir)
	writeTestPosts(t, dir, "A,https://example.com/a,", "B,https://example.com/b,")
	if _, err := captureStdout(t, func() error { return resetAction(cmd, []string{"5"}) }); err != nil {
		t.Fatal(err)
	}

	out, _ := captureStdout(t, func() error { return doctorAction(cmd, nil) })
	requireContains(t, out, "cursor 5 is past the end of the list and wraps to 1")
}

func TestPruneHonoursRetainDays(t *testing.T) {
	tests := []struct {
		name   string
		retain string
		want   int
	}{
		{"zero keeps forever", "  retain_days: 0\n", 2},
		{"default prunes old rows", "", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			setupTest(t, dir)
			cfgYAML := "state:\n  backend: sqlite\n" + tt.retain
			if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(cfgYAML), 0o644); err != nil {
				t.Fatal(err)
			}

			cfg, err := config.Load(dir)
			if err != nil {
				t.Fatalf("load config: %v", err)
			}
			st, err := openState(cfg)
			if err != nil {
				t.Fatalf("open state: %v", err)
			}
			defer func() { _ = st.Close() }()

			ctx := context.Background()
			for i, age := range []time.Duration{2 * 365 * 24 * time.Hour, time.Hour} {
				_, err := st.db.RecordPublication(ctx, store.PublicationInput{
					RunID:     "run" + string(rune('a'+i)),
					URL:       "https://example.com/x",
					Status:    store.StatusSkipped,
					CreatedAt: time.Now().Add(-age),
				})
				if err != nil {
					t.Fatalf("record: %v", err)
				}
			}

			st.prune(ctx, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))

			pubs, err := st.db.ListPublications(ctx, 0)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(pubs) != tt.want {
				t.Errorf("rows after prune = %d, want %d", len(pubs), tt.want)
			}
		})
	}
}
