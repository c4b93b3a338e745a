package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	gojson "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/sshcp/sshcp/internal/config"
	"github.com/sshcp/sshcp/internal/sync"
)

// conflictIDPrefixLen is how much of the conflict ID the table shows.
const conflictIDPrefixLen = 8

const defaultConflictLimit = 50

func newConflictsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "List conflicts resolved by watch sessions",
		Long: `Display the conflict journal: every file that changed on both sides
during a watch session, with both versions' metadata and what was done.

Use --prune to drop entries older than a duration (e.g. --prune 720h).`,
		Args: cobra.NoArgs,
		RunE: runConflicts,
	}

	cmd.Flags().IntP("limit", "n", defaultConflictLimit, "maximum number of entries to show")
	cmd.Flags().Duration("prune", 0, "delete entries older than this before listing")

	return cmd
}

// conflictJSON is the JSON form of one journal entry.
type conflictJSON struct {
	ID           string  `json:"id"`
	Path         string  `json:"path"`
	LocalRoot    string  `json:"local_root"`
	RemoteRoot   string  `json:"remote_root"`
	Policy       string  `json:"policy"`
	Action       string  `json:"action"`
	DetectedAt   string  `json:"detected_at"`
	LocalExists  bool    `json:"local_exists"`
	LocalMtime   float64 `json:"local_mtime,omitempty"`
	LocalSize    int64   `json:"local_size,omitempty"`
	RemoteExists bool    `json:"remote_exists"`
	RemoteMtime  float64 `json:"remote_mtime,omitempty"`
	RemoteSize   int64   `json:"remote_size,omitempty"`
}

func runConflicts(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	journal, err := sync.OpenJournal(ctx, config.JournalPath(), cc.Logger)
	if err != nil {
		return err
	}
	defer journal.Close()

	if age, _ := cmd.Flags().GetDuration("prune"); age > 0 {
		n, err := journal.Prune(ctx, time.Now().Add(-age))
		if err != nil {
			return err
		}

		cc.Statusf("Pruned %d entr%s older than %s\n", n, plural(n, "y", "ies"), age)
	}

	limit, _ := cmd.Flags().GetInt("limit")

	entries, err := journal.List(ctx, limit)
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		return printConflictsJSON(os.Stdout, entries)
	}

	if len(entries) == 0 {
		fmt.Fprintln(os.Stdout, "No conflicts recorded.")
		return nil
	}

	printConflictsTable(os.Stdout, entries)

	return nil
}

func conflictItems(entries []sync.JournalEntry) []conflictJSON {
	items := make([]conflictJSON, len(entries))

	for i := range entries {
		e := &entries[i]
		items[i] = conflictJSON{
			ID:           e.ID,
			Path:         e.Path,
			LocalRoot:    e.LocalRoot,
			RemoteRoot:   e.RemoteRoot,
			Policy:       e.Policy,
			Action:       e.Action.String(),
			DetectedAt:   e.DetectedAt.UTC().Format(time.RFC3339),
			LocalExists:  e.Local.Exists,
			LocalMtime:   e.Local.ModTime,
			LocalSize:    e.Local.Size,
			RemoteExists: e.Remote.Exists,
			RemoteMtime:  e.Remote.ModTime,
			RemoteSize:   e.Remote.Size,
		}
	}

	return items
}

func printConflictsJSON(w io.Writer, entries []sync.JournalEntry) error {
	return printJSON(w, conflictItems(entries))
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := gojson.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}

	return nil
}

func printConflictsTable(w io.Writer, entries []sync.JournalEntry) {
	headers := []string{"ID", "PATH", "LOCAL", "REMOTE", "ACTION", "WHEN"}
	rows := make([][]string, len(entries))

	for i := range entries {
		e := &entries[i]

		id := e.ID
		if len(id) > conflictIDPrefixLen {
			id = id[:conflictIDPrefixLen]
		}

		rows[i] = []string{
			id,
			e.Path,
			sideSummary(e.Local),
			sideSummary(e.Remote),
			e.Action.String() + " (" + e.Policy + ")",
			humanize.Time(e.DetectedAt),
		}
	}

	printTable(w, headers, rows)
}

func sideSummary(m sync.FileMetadata) string {
	if !m.Exists {
		return "deleted"
	}

	return formatSize(m.Size) + ", " + formatTime(m.Time())
}

func plural[T ~int | ~int64](n T, one, many string) string {
	if n == 1 {
		return one
	}

	return many
}
