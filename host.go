package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/sshcp/sshcp/internal/config"
)

func newHostCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "host",
		Short: "Select or show the remote host",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set HOST",
		Short: "Select the host used by every command",
		Long: `Store HOST as the selected host. HOST is passed to ssh as-is, so an alias
from ~/.ssh/config works, as does user@hostname.`,
		Args: cobra.ExactArgs(1),
		RunE: runHostSet,
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the selected host and connection settings",
		Args:  cobra.NoArgs,
		RunE:  runHostShow,
	})

	return cmd
}

func runHostSet(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	if err := config.SetHost(cc.Cfg.Path, args[0]); err != nil {
		return err
	}

	cc.Statusf("%s Selected host %s\n", styleSuccess.Render("✓"), styleBold.Render(args[0]))

	return nil
}

func runHostShow(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	if cc.Cfg.Host == "" {
		fmt.Fprintln(os.Stdout, styleWarn.Render("No host selected.")+
			" Run "+styleBold.Render("sshcp host set HOST")+" to select one.")

		return nil
	}

	fmt.Fprintln(os.Stdout, hostPanel(cc.Cfg))

	return nil
}

func hostPanel(cfg *config.Resolved) string {
	rows := [][2]string{{"Host", cfg.Host}}

	if cfg.Remote.User != "" {
		rows = append(rows, [2]string{"User", cfg.Remote.User})
	}

	if cfg.Remote.Port != 0 {
		rows = append(rows, [2]string{"Port", strconv.Itoa(cfg.Remote.Port)})
	}

	if cfg.Remote.IdentityFile != "" {
		rows = append(rows, [2]string{"Identity", cfg.Remote.IdentityFile})
	}

	rows = append(rows, [2]string{"Transport", cfg.Remote.Transport})

	if cfg.BandwidthLimit > 0 {
		rows = append(rows, [2]string{"Bandwidth", formatSize(cfg.BandwidthLimit) + "/s"})
	}

	lines := make([]string, 0, len(rows)+1)
	lines = append(lines, styleSuccess.Render("Current Host"))

	for _, r := range rows {
		lines = append(lines, styleDim.Render(fmt.Sprintf("%-10s", r[0]))+" "+styleBold.Render(r[1]))
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("2")).
		Padding(0, 1).
		Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}
