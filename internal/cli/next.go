package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ReactorcoreGames/BlueskyAutoPoster/internal/compose"
	"github.com/ReactorcoreGames/BlueskyAutoPoster/internal/selector"
)

var nextCount int

var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Preview the upcoming posts without publishing",
	RunE:  nextAction,
}

func init() {
	nextCmd.Flags().IntVarP(&nextCount, "count", "n", 1, "number of upcoming posts to show")
}

func nextAction(cmd *cobra.Command, _ []string) error {
	if nextCount < 1 {
		return fmt.Errorf("--count must be at least 1, got %d", nextCount)
	}

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
	if len(records) == 0 {
		fmt.Println("No posts in the source file.")
		return nil
	}

	st, err := openState(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	cur, err := st.cursor.Load(cmd.Context())
	if err != nil {
		return fmt.Errorf("load cursor: %w", err)
	}

	f := newFormatter(cfg)
	n := min(nextCount, len(records))
	for i := 0; i < n; i++ {
		rec, next, _ := selector.Select(records, cur)
		idx, _ := selector.Position(len(records), cur)
		cur = next

		if i > 0 {
			fmt.Println()
		}
		fmt.Printf("--- row %d (%d/%d) ---\n", rec.Row, idx+1, len(records))

		post, err := f.Format(rec)
		var fe *compose.FormatError
		switch {
		case errors.As(err, &fe):
			fmt.Printf("[will be skipped] %v\n", fe)
			continue
		case err != nil:
			return err
		}
		fmt.Println(post.Text)
		fmt.Printf("(%d/%d characters", compose.Length(post.Text), f.MaxLength())
		if post.Truncated {
			fmt.Print(", title shortened")
		}
		if post.DroppedHashtags {
			fmt.Print(", hashtags dropped")
		}
		fmt.Println(")")
	}
	return nil
}
