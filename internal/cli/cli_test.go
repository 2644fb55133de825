package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
)

const (
	testHandle   = "alice.test"
	testPassword = "abcd-efgh-ijkl-mnop"
)

// setupTest points the package flags at dir and restores them afterwards.
func setupTest(t *testing.T, dir string) *cobra.Command {
	t.Helper()

	oldConfigDir := configDir
	oldLogLevel, oldLogFormat := logLevel, logFormat
	oldDryRun := runDryRun
	oldNextCount := nextCount
	oldHistoryLimit, oldHistoryFormat := historyLimit, historyFormat
	oldOnline := doctorOnline
	oldLogOutput := logOutput
	t.Cleanup(func() {
		configDir = oldConfigDir
		logLevel, logFormat = oldLogLevel, oldLogFormat
		runDryRun = oldDryRun
		nextCount = oldNextCount
		historyLimit, historyFormat = oldHistoryLimit, oldHistoryFormat
		doctorOnline = oldOnline
		logOutput = oldLogOutput
	})

	configDir = dir
	logLevel, logFormat = "", ""
	runDryRun = false
	nextCount = 1
	historyLimit, historyFormat = 20, "terminal"
	doctorOnline = false
	logOutput = io.Discard

	t.Setenv("BLUESKY_HANDLE", testHandle)
	t.Setenv("BLUESKY_APP_PASSWORD", testPassword)
	t.Setenv("GITHUB_ACTOR", "")
	t.Setenv("GITHUB_TOKEN", "")

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	return cmd
}

func writeTestConfig(t *testing.T, dir, host, backend string) {
	t.Helper()

	cfg := fmt.Sprintf(`source:
  path: posts.csv
state:
  backend: %s
bluesky:
  host: %s
  min_interval: 1ms
  timeout: 5s
log:
  level: error
`, backend, host)
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(cfg), 0o644); err != nil {
		t.Fatalf("write test config: %v", err)
	}
}

func writeTestPosts(t *testing.T, dir string, rows ...string) {
	t.Helper()

	data := "title,url,hashtags\n" + strings.Join(rows, "\n") + "\n"
	if err := os.WriteFile(filepath.Join(dir, "posts.csv"), []byte(data), 0o644); err != nil {
		t.Fatalf("write test posts: %v", err)
	}
}

func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	oldStdout := os.Stdout
	reader, writer, err := os.Pipe()
	if err != nil {
		t.Fatalf("open stdout pipe: %v", err)
	}

	os.Stdout = writer
	runErr := fn()
	_ = writer.Close()
	os.Stdout = oldStdout

	out, readErr := io.ReadAll(reader)
	_ = reader.Close()
	if readErr != nil {
		t.Fatalf("read stdout pipe: %v", readErr)
	}
	return string(out), runErr
}

func requireContains(t *testing.T, got, want string) {
	t.Helper()

	if !strings.Contains(got, want) {
		t.Fatalf("expected output to contain %q, got:\n%s", want, got)
	}
}

// fakePDS serves the two XRPC procedures a run uses.
type fakePDS struct {
	srv *httptest.Server

	mu       sync.Mutex
	sessions int
	texts    []string
}

func newFakePDS(t *testing.T) *fakePDS {
	t.Helper()

	p := &fakePDS{}
	mux := http.NewServeMux()
	mux.HandleFunc("/xrpc/com.atproto.server.createSession", func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Identifier string `json:"identifier"`
			Password   string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&in)

		p.mu.Lock()
		p.sessions++
		p.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if in.Password != testPassword {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"AuthenticationRequired","message":"Invalid identifier or password"}`))
			return
		}
		_, _ = fmt.Fprintf(w, `{"accessJwt":"access","refreshJwt":"refresh","handle":%q,"did":"did:plc:abc"}`, in.Identifier)
	})
	mux.HandleFunc("/xrpc/com.atproto.repo.createRecord", func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Record struct {
				Text string `json:"text"`
			} `json:"record"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		p.mu.Lock()
		p.texts = append(p.texts, in.Record.Text)
		n := len(p.texts)
		p.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"uri":"at://did:plc:abc/app.bsky.feed.post/rk%d","cid":"bafy%d"}`, n, n)
	})

	p.srv = httptest.NewServer(mux)
	t.Cleanup(p.srv.Close)
	return p
}

func (p *fakePDS) posted() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.texts...)
}

func (p *fakePDS) sessionCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessions
}
