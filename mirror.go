package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/sshcp/sshcp/internal/config"
	"github.com/sshcp/sshcp/internal/remote"
)

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync LOCAL REMOTE",
		Short: "Mirror a directory once with rsync",
		Long: `Run a one-shot rsync between a local and a remote directory. By default
the local side is pushed to the remote; --pull reverses the direction.

Examples:
  sshcp sync ./site /srv/site
  sshcp sync ./site /srv/site --pull
  sshcp sync ./src @deploy --delete --exclude '*.log'`,
		Args: cobra.ExactArgs(2),
		RunE: runMirror,
	}

	cmd.Flags().BoolP("pull", "p", false, "copy from the remote to the local directory")
	cmd.Flags().BoolP("delete", "d", false, "delete destination files missing from the source")
	cmd.Flags().BoolP("dry-run", "n", false, "show what would change without copying")
	cmd.Flags().StringArrayP("exclude", "e", nil, "rsync exclude pattern (repeatable)")

	return cmd
}

func mirrorOptionsFromFlags(cmd *cobra.Command) remote.MirrorOptions {
	var opts remote.MirrorOptions

	opts.Pull, _ = cmd.Flags().GetBool("pull")
	opts.Delete, _ = cmd.Flags().GetBool("delete")
	opts.DryRun, _ = cmd.Flags().GetBool("dry-run")
	opts.Exclude, _ = cmd.Flags().GetStringArray("exclude")

	return opts
}

func runMirror(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	host, err := cc.Cfg.RequireHost()
	if err != nil {
		return err
	}

	local, err := config.ExpandPath(args[0])
	if err != nil {
		return err
	}

	remoteDir, err := expandRemote(cc, args[1])
	if err != nil {
		return err
	}

	opts := mirrorOptionsFromFlags(cmd)
	ssh := newSSH(cc, host)

	if !cc.Flags.Quiet {
		fmt.Fprintln(os.Stderr, mirrorBanner(opts, local, ssh.RemoteSpec(remoteDir)))
	}

	ctx, stop := shutdownContext(cmd.Context(), cc.Logger)
	defer stop()

	files, err := ssh.Mirror(ctx, local, remoteDir, opts, mirrorLinePrinter(os.Stdout, cc.Flags.Quiet))
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	verb := "Synced"
	if opts.DryRun {
		verb = "Would sync"
	}

	cc.Statusf("%s %s %d file(s)\n", styleSuccess.Render("✓"), verb, files)

	return nil
}

func mirrorBanner(opts remote.MirrorOptions, local, remoteSpec string) string {
	mode, arrow := "push", "→"
	if opts.Pull {
		mode, arrow = "pull", "←"
	}

	deleteLabel := "no"
	if opts.Delete {
		deleteLabel = "yes"
	}

	body := lipgloss.JoinVertical(lipgloss.Left,
		styleLocal.Bold(true).Render("Syncing "+arrow),
		styleBold.Render("Mode:   ")+mode,
		styleBold.Render("Local:  ")+local,
		styleBold.Render("Remote: ")+remoteSpec,
		styleBold.Render("Delete: ")+deleteLabel,
	)

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("6")).
		Padding(0, 1).
		Render(body)
}

// mirrorLinePrinter shows transferred and deleted files. Progress lines and
// rsync's summary are dropped in quiet mode.
func mirrorLinePrinter(w io.Writer, quiet bool) func(remote.MirrorLine) {
	return func(line remote.MirrorLine) {
		switch line.Kind {
		case remote.LineFile:
			fmt.Fprintln(w, "  "+line.Text)
		case remote.LineDeleted:
			fmt.Fprintln(w, "  "+styleError.Render("deleted")+" "+line.Text)
		case remote.LineProgress, remote.LineOther:
			if !quiet && line.Text != "" {
				fmt.Fprintln(w, styleDim.Render("  "+line.Text))
			}
		}
	}
}
