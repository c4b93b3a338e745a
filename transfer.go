package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sshcp/sshcp/internal/config"
)

func newPushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "push LOCAL REMOTE",
		Short: "Upload a file or directory to the selected host",
		Long: `Upload a file or directory with scp. Directories are copied recursively.

REMOTE may start with @bookmark, e.g. @logs/app.conf.`,
		Args: cobra.ExactArgs(2),
		RunE: runPush,
	}
}

func newPullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pull REMOTE LOCAL",
		Short: "Download a file or directory from the selected host",
		Long: `Download a file or directory with scp. The copy is always recursive so
remote directories work without a flag.

REMOTE may start with @bookmark, e.g. @logs/error.log.`,
		Args: cobra.ExactArgs(2),
		RunE: runPull,
	}
}

func runPush(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	host, err := cc.Cfg.RequireHost()
	if err != nil {
		return err
	}

	local, err := config.ExpandPath(args[0])
	if err != nil {
		return err
	}

	info, err := os.Stat(local)
	if err != nil {
		return fmt.Errorf("local path does not exist: %s", args[0])
	}

	remotePath, err := expandRemote(cc, args[1])
	if err != nil {
		return err
	}

	ssh := newSSH(cc, host)
	dst := ssh.RemoteSpec(remotePath)

	cc.Statusf("%s %s %s %s\n", styleDim.Render("Uploading"), styleLocal.Render(args[0]),
		styleDim.Render("to"), styleRemote.Render(dst))

	ctx, stop := shutdownContext(cmd.Context(), cc.Logger)
	defer stop()

	if err := ssh.Copy(ctx, local, dst, info.IsDir()); err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}

	cc.Statusf("%s Uploaded %s to %s\n", styleSuccess.Render("✓"), args[0], dst)

	return nil
}

func runPull(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	host, err := cc.Cfg.RequireHost()
	if err != nil {
		return err
	}

	remotePath, err := expandRemote(cc, args[0])
	if err != nil {
		return err
	}

	local, err := config.ExpandPath(args[1])
	if err != nil {
		return err
	}

	ssh := newSSH(cc, host)
	src := ssh.RemoteSpec(remotePath)

	cc.Statusf("%s %s %s %s\n", styleDim.Render("Downloading"), styleRemote.Render(src),
		styleDim.Render("to"), styleLocal.Render(args[1]))

	ctx, stop := shutdownContext(cmd.Context(), cc.Logger)
	defer stop()

	if err := ssh.Copy(ctx, src, local, true); err != nil {
		return fmt.Errorf("download failed: %w", err)
	}

	cc.Statusf("%s Downloaded %s to %s\n", styleSuccess.Render("✓"), src, args[1])

	return nil
}
