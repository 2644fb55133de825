package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ReactorcoreGames/BlueskyAutoPoster/internal/selector"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the cursor, the post list size and the next post",
	RunE:  statusAction,
}

func statusAction(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	src, err := openSource(cfg)
	if err != nil {
		return err
	}
	records, err := src.Load()
	if err != nil {
		return err
	}

	st, err := openState(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	ctx := cmd.Context()
	info, err := st.inspect(ctx)
	if err != nil {
		return fmt.Errorf("load cursor: %w", err)
	}

	fmt.Printf("Source:  %s (%s, %d posts)\n", cfg.SourcePath(), src.Name(), len(records))
	fmt.Printf("State:   %s\n", st.desc)
	fmt.Printf("Cursor:  %d\n", info.Cursor.Index)
	if info.UpdatedAt.IsZero() {
		fmt.Println("Updated: never")
	} else {
		fmt.Printf("Updated: %s\n", info.UpdatedAt.UTC().Format(time.RFC3339))
	}

	if rec, ok := selector.Peek(records, info.Cursor); ok {
		idx, _ := selector.Position(len(records), info.Cursor)
		fmt.Printf("Next:    row %d (%d/%d) %s\n", rec.Row, idx+1, len(records), rec.Title)
	} else {
		fmt.Println("Next:    nothing to post")
	}

	if st.db != nil {
		sum, err := st.db.Summary(ctx)
		if err != nil {
			return fmt.Errorf("load history summary: %w", err)
		}
		fmt.Printf("History: %d published, %d skipped", sum.Published, sum.Skipped)
		if !sum.LastPublishedAt.IsZero() {
			fmt.Printf(", last post %s", sum.LastPublishedAt.UTC().Format(time.RFC3339))
		}
		fmt.Println()
	}
	return nil
}
