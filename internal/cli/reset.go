package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ReactorcoreGames/BlueskyAutoPoster/internal/cursor"
)

var resetCmd = &cobra.Command{
	Use:   "reset [index]",
	Short: "Point the cursor at a row index (default 0)",
	Long: "reset sets the index of the next post. Index 0 is the first data row " +
		"of the source file. An index past the end wraps around on the next run.",
	Args: cobra.MaximumNArgs(1),
	RunE: resetAction,
}

func resetAction(cmd *cobra.Command, args []string) error {
	index := 0
	if len(args) == 1 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 0 {
			return fmt.Errorf("invalid index %q: want a non-negative integer", args[0])
		}
		index = n
	}

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := openState(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	if err := st.cursor.Save(cmd.Context(), cursor.Cursor{Index: index}); err != nil {
		return fmt.Errorf("save cursor: %w", err)
	}
	log.Info("cursor reset", "index", index, "state", st.desc)
	fmt.Printf("Cursor set to %d.\n", index)
	return nil
}
