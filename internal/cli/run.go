package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ReactorcoreGames/BlueskyAutoPoster/internal/poster"
)

var runDryRun bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Publish the next post and advance the cursor",
	RunE:  runAction,
}

func init() {
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "format the next post without publishing or saving state")
}

func runAction(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if !runDryRun {
		if err := cfg.CheckCredentials(); err != nil {
			return err
		}
	}

	src, err := openSource(cfg)
	if err != nil {
		return err
	}

	st, err := openState(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	runner := &poster.Runner{
		Source:      src,
		Cursor:      st.cursor,
		Formatter:   newFormatter(cfg),
		Handle:      cfg.Bluesky.Handle,
		AppPassword: cfg.Bluesky.AppPassword,
		DryRun:      runDryRun,
		Logger:      log,
	}
	if st.db != nil {
		runner.Recorder = st.db
	}
	if !runDryRun {
		client, err := newClient(cfg)
		if err != nil {
			return err
		}
		runner.Publisher = client
	}

	ctx := cmd.Context()
	res, err := runner.Run(ctx)
	if err != nil {
		return err
	}
	if !runDryRun {
		st.prune(ctx, cfg, log)
	}

	printResult(os.Stdout, res, cfg.Bluesky.Handle, runDryRun)
	return nil
}

func printResult(w io.Writer, res poster.Result, handle string, dryRun bool) {
	switch {
	case res.Empty:
		fmt.Fprintln(w, "No posts in the source file. Nothing to do.")
	case res.Skipped:
		fmt.Fprintf(w, "Skipped row %d (%d/%d): %v\n", res.Record.Row, res.Index+1, res.Count, res.SkipErr)
		if !dryRun {
			fmt.Fprintf(w, "Next index: %d\n", res.Next.Index)
		}
	case dryRun:
		fmt.Fprintf(w, "Next post, row %d (%d/%d):\n\n%s\n\n", res.Record.Row, res.Index+1, res.Count, res.Post.Text)
		fmt.Fprintf(w, "Dry run: nothing published, cursor stays at %d.\n", res.Index)
	default:
		link := res.Ref.WebURL(handle)
		if link == "" {
			link = res.Ref.URI
		}
		fmt.Fprintf(w, "Published row %d (%d/%d): %s\n", res.Record.Row, res.Index+1, res.Count, link)
		fmt.Fprintf(w, "Next index: %d\n", res.Next.Index)
	}
}
