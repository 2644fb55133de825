package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ReactorcoreGames/BlueskyAutoPoster/internal/config"
	"github.com/ReactorcoreGames/BlueskyAutoPoster/internal/store"
)

var (
	historyLimit  int
	historyFormat string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List published and skipped posts (sqlite backend)",
	RunE:  historyAction,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of rows to show, 0 for all")
	historyCmd.Flags().StringVar(&historyFormat, "format", "terminal", "output format: terminal, json")
}

func historyAction(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.State.Backend != config.BackendSQLite {
		return errors.New("history is kept only by the sqlite backend (set state.backend: sqlite)")
	}
	if historyFormat != "terminal" && historyFormat != "json" {
		return fmt.Errorf("unknown format %q (want terminal or json)", historyFormat)
	}

	st, err := openState(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	pubs, err := st.db.ListPublications(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}

	if historyFormat == "json" {
		return printHistoryJSON(os.Stdout, pubs)
	}
	if len(pubs) == 0 {
		fmt.Println("No posts yet.")
		return nil
	}
	printHistory(os.Stdout, pubs)
	return nil
}

func printHistory(w io.Writer, pubs []store.Publication) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tSTATUS\tROW\tTITLE\tPOST")
	for _, p := range pubs {
		detail := p.PostURI
		if p.Status == store.StatusSkipped {
			detail = p.Message
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			p.CreatedAt.UTC().Format(time.RFC3339), p.Status, p.SourceRow, shorten(p.Title, 40), detail)
	}
	_ = tw.Flush()
}

type historyJSON struct {
	RunID     string    `json:"run_id"`
	Status    string    `json:"status"`
	Index     int       `json:"index"`
	Row       int       `json:"row"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	PostURI   string    `json:"post_uri,omitempty"`
	PostCID   string    `json:"post_cid,omitempty"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func printHistoryJSON(w io.Writer, pubs []store.Publication) error {
	out := make([]historyJSON, 0, len(pubs))
	for _, p := range pubs {
		out = append(out, historyJSON{
			RunID:     p.RunID,
			Status:    p.Status,
			Index:     p.Index,
			Row:       p.SourceRow,
			Title:     p.Title,
			URL:       p.URL,
			PostURI:   p.PostURI,
			PostCID:   p.PostCID,
			Message:   p.Message,
			CreatedAt: p.CreatedAt.UTC(),
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
