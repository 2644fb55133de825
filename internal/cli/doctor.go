package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ReactorcoreGames/BlueskyAutoPoster/internal/compose"
	"github.com/ReactorcoreGames/BlueskyAutoPoster/internal/config"
	"github.com/ReactorcoreGames/BlueskyAutoPoster/internal/selector"
	"github.com/ReactorcoreGames/BlueskyAutoPoster/internal/source"
)

// staleDays is how long without a published post before doctor mentions it.
const staleDays = 7

var doctorOnline bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check config, post list, state and credentials",
	RunE:  doctorAction,
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorOnline, "online", false, "also log in to Bluesky to verify the credentials")
}

func doctorAction(cmd *cobra.Command, _ []string) error {
	ok := true
	ctx := cmd.Context()

	// Config dir
	if info, err := os.Stat(configDir); err != nil || !info.IsDir() {
		printCheck(false, "config directory %s", configDir)
		return fmt.Errorf("some checks failed")
	}
	printCheck(true, "config directory %s", configDir)

	// Config file
	cfg, _, err := loadConfig()
	if err != nil {
		printCheck(false, "config.yaml: %v", err)
		return fmt.Errorf("some checks failed")
	}
	if config.Exists(configDir) {
		printCheck(true, "config.yaml")
	} else {
		printInfo("no config.yaml, using defaults")
	}

	// Post list
	var records []source.Record
	src, err := openSource(cfg)
	if err == nil {
		records, err = src.Load()
	}
	if err != nil {
		printCheck(false, "post list: %s", redactor.Error(err))
		ok = false
	} else {
		printCheck(true, "post list %s (%d posts)", cfg.SourcePath(), len(records))
		checkRecords(records, newFormatter(cfg))
	}

	// State
	st, err := openState(cfg)
	if err != nil {
		printCheck(false, "state: %v", err)
		ok = false
	} else {
		defer func() { _ = st.Close() }()
		info, err := st.inspect(ctx)
		if err != nil {
			printCheck(false, "state %s: %v", st.desc, err)
			ok = false
		} else {
			printCheck(true, "state %s (cursor %d)", st.desc, info.Cursor.Index)
			if n := len(records); n > 0 && info.Cursor.Index >= n {
				idx, _ := selector.Position(n, info.Cursor)
				printInfo("cursor %d is past the end of the list and wraps to %d", info.Cursor.Index, idx)
			}
		}
		if st.db != nil {
			sum, err := st.db.Summary(ctx)
			if err == nil && !sum.LastPublishedAt.IsZero() {
				days := int(time.Since(sum.LastPublishedAt).Hours() / 24)
				if days >= staleDays {
					printInfo("stale: last post %d days ago, is the scheduler running?", days)
				}
			}
		}
	}

	if cfg.State.Git.Enabled && cfg.State.Git.Push && cfg.State.Git.Token == "" {
		printInfo("state.git.push is on but %s is empty; pushing relies on the remote's own auth", cfg.State.Git.TokenEnv)
	}

	// Credentials
	if err := cfg.CheckCredentials(); err != nil {
		printCheck(false, "credentials: %v", err)
		ok = false
	} else {
		printCheck(true, "credentials for %s", cfg.Bluesky.Handle)
		if doctorOnline {
			if err := checkLogin(cmd, cfg); err != nil {
				printCheck(false, "login to %s: %s", cfg.Bluesky.Host, redactor.Error(err))
				ok = false
			} else {
				printCheck(true, "login to %s", cfg.Bluesky.Host)
			}
		}
	}

	if !ok {
		return fmt.Errorf("some checks failed")
	}
	fmt.Println("\nAll checks passed.")
	return nil
}

// checkRecords reports rows that will be skipped or shortened.
func checkRecords(records []source.Record, f *compose.Formatter) {
	for _, rec := range records {
		post, err := f.Format(rec)
		var fe *compose.FormatError
		switch {
		case errors.As(err, &fe):
			printInfo("row %d will be skipped: %v", rec.Row, fe)
		case err != nil:
			printInfo("row %d: %v", rec.Row, err)
		case post.DroppedHashtags:
			printInfo("row %d: hashtags do not fit and will be dropped", rec.Row)
		}
	}
}

func checkLogin(cmd *cobra.Command, cfg *config.Config) error {
	client, err := newClient(cfg)
	if err != nil {
		return err
	}
	_, err = client.CreateSession(cmd.Context(), cfg.Bluesky.Handle, cfg.Bluesky.AppPassword)
	return err
}

func printCheck(pass bool, format string, args ...any) {
	mark := "FAIL"
	if pass {
		mark = " OK "
	}
	fmt.Printf("[%s] %s\n", mark, fmt.Sprintf(format, args...))
}

func printInfo(format string, args ...any) {
	fmt.Printf("[INFO] %s\n", fmt.Sprintf(format, args...))
}
