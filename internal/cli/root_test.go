package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ReactorcoreGames/BlueskyAutoPoster/internal/privacy"
)

func TestVersionNotEmpty(t *testing.T) {
	if Version == "" {
		t.Error("Version should not be empty")
	}
}

func TestExecuteVersion(t *testing.T) {
	setupTest(t, t.TempDir())
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	out, err := captureStdout(t, rootCmd.Execute)
	if err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	requireContains(t, out, "autoposter dev")
}

func TestNewLoggerRedacts(t *testing.T) {
	r, err := privacy.NewRedactor(nil, "super-secret-password")
	if err != nil {
		t.Fatalf("redactor: %v", err)
	}

	var buf bytes.Buffer
	log, err := newLogger(&buf, "info", "json", r)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	log.Info("login failed", "err", errors.New("bad password super-secret-password"))
	log.Debug("hidden")

	out := buf.String()
	if strings.Contains(out, "super-secret-password") {
		t.Errorf("secret leaked: %s", out)
	}
	requireContains(t, out, `"msg":"login failed"`)
	if strings.Contains(out, "hidden") {
		t.Error("debug line written at info level")
	}
}

func TestNewLoggerInvalid(t *testing.T) {
	if _, err := newLogger(&bytes.Buffer{}, "loud", "text", nil); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := newLogger(&bytes.Buffer{}, "info", "xml", nil); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestLoadConfigFlagOverrides(t *testing.T) {
	dir := t.TempDir()
	setupTest(t, dir)
	logLevel = "debug"
	logFormat = "json"

	cfg, log, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("log = %+v", cfg.Log)
	}
	if log == nil {
		t.Fatal("nil logger")
	}
	if got := redactor.String("pw " + testPassword); strings.Contains(got, testPassword) {
		t.Errorf("app password not redacted: %q", got)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	setupTest(t, dir)

	const key = "AUTOPOSTER_TEST_DOTENV"
	t.Cleanup(func() { _ = os.Unsetenv(key) })
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(key+"=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := loadDotEnv(nil, nil); err != nil {
		t.Fatalf("loadDotEnv: %v", err)
	}
	if got := os.Getenv(key); got != "from-file" {
		t.Errorf("%s = %q, want from-file", key, got)
	}
}

func TestLoadDotEnvMissing(t *testing.T) {
	setupTest(t, t.TempDir())
	if err := loadDotEnv(nil, nil); err != nil {
		t.Fatalf("missing .env should be ignored: %v", err)
	}
}
