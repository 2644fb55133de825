package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ReactorcoreGames/BlueskyAutoPoster/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example config and post list",
	RunE:  initAction,
}

func initAction(_ *cobra.Command, _ []string) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	files := []struct {
		name string
		data string
	}{
		{config.DefaultConfigFile, exampleConfig},
		{config.DefaultSourcePath, examplePosts},
		{".env.example", exampleEnv},
	}

	created := 0
	for _, f := range files {
		wrote, err := writeIfNotExists(filepath.Join(configDir, f.name), []byte(f.data))
		if err != nil {
			return err
		}
		if wrote {
			created++
		}
	}

	if created == 0 {
		fmt.Printf("Config directory %s already initialized.\n", configDir)
	} else {
		fmt.Printf("Initialized %s with %d files.\n", configDir, created)
	}
	return nil
}

// writeIfNotExists writes data to path if the file does not exist.
// Returns true if the file was created.
func writeIfNotExists(path string, data []byte) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("  exists: %s\n", path)
		return false, nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Printf("  created: %s\n", path)
	return true, nil
}

const exampleConfig = `# autoposter configuration
# Every key is optional; the values below are the defaults.

source:
  path: posts.csv      # .csv or .xlsx with columns title,url,hashtags
  # sheet: Posts       # xlsx only, first sheet when empty

state:
  backend: file        # file or sqlite
  path: state.json     # .autoposter/autoposter.db for sqlite
  retain_days: 365     # sqlite history retention
  git:
    enabled: false     # commit state.json after each post
    push: false
    remote: origin
    username_env: GITHUB_ACTOR
    token_env: GITHUB_TOKEN

bluesky:
  host: https://bsky.social
  handle_env: BLUESKY_HANDLE
  app_password_env: BLUESKY_APP_PASSWORD
  timeout: 30s
  min_interval: 1s
  langs: []
  # - en

format:
  max_length: 300
  truncation_marker: "…"

privacy:
  redact:
    patterns: []

log:
  level: info          # debug, info, warn, error
  format: text         # text or json
`

const examplePosts = `title,url,hashtags
Hello from autoposter,https://github.com/ReactorcoreGames/BlueskyAutoPoster,#bluesky #automation
`

const exampleEnv = `# Copy to .env, or set these as CI secrets.
BLUESKY_HANDLE=you.bsky.social
BLUESKY_APP_PASSWORD=xxxx-xxxx-xxxx-xxxx
`
