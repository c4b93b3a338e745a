package main

import (
	"fmt"
	"maps"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/sshcp/sshcp/internal/config"
)

func newBookmarkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "bookmark",
		Aliases: []string{"bm"},
		Short:   "Manage remote path bookmarks",
		Long: `Bookmarks name frequently used remote paths. Any REMOTE argument that
starts with @name is expanded, so with "logs" pointing at /var/log/app,
@logs/error.log means /var/log/app/error.log.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add NAME PATH",
		Short: "Add a bookmark",
		Args:  cobra.ExactArgs(2),
		RunE:  runBookmarkAdd,
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List bookmarks",
		Args:    cobra.NoArgs,
		RunE:    runBookmarkList,
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "rm NAME",
		Aliases: []string{"remove"},
		Short:   "Remove a bookmark",
		Args:    cobra.ExactArgs(1),
		RunE:    runBookmarkRemove,
	})

	return cmd
}

func runBookmarkAdd(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	if err := config.AddBookmark(cc.Cfg.Path, args[0], args[1]); err != nil {
		return err
	}

	cc.Statusf("%s Added bookmark %s → %s\n", styleSuccess.Render("✓"),
		styleBold.Render("@"+args[0]), args[1])

	return nil
}

func runBookmarkList(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	bookmarks := cc.Cfg.Bookmarks

	if cc.Flags.JSON {
		return printJSON(os.Stdout, bookmarks)
	}

	if len(bookmarks) == 0 {
		fmt.Fprintln(os.Stdout, "No bookmarks. Add one with 'sshcp bookmark add NAME PATH'.")
		return nil
	}

	rows := make([][]string, 0, len(bookmarks))
	for _, name := range slices.Sorted(maps.Keys(bookmarks)) {
		rows = append(rows, []string{"@" + name, bookmarks[name]})
	}

	printTable(os.Stdout, []string{"NAME", "PATH"}, rows)

	return nil
}

func runBookmarkRemove(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	if err := config.RemoveBookmark(cc.Cfg.Path, args[0]); err != nil {
		return err
	}

	cc.Statusf("%s Removed bookmark %s\n", styleSuccess.Render("✓"), styleBold.Render("@"+args[0]))

	return nil
}
