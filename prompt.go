package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/sshcp/sshcp/internal/sync"
)

const (
	keyCtrlC = 0x03
	keyCtrlD = 0x04
)

var errPromptClosed = errors.New("prompt: input closed")

var conflictPanel = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("3")).
	Padding(1, 2)

// terminalPrompter asks about each conflict on the controlling terminal and
// reads a single key press in raw mode.
type terminalPrompter struct {
	in  *os.File
	out io.Writer
}

func newTerminalPrompter(in *os.File, out io.Writer) *terminalPrompter {
	return &terminalPrompter{in: in, out: out}
}

// Prompt shows the conflict panel and blocks until the user picks local,
// remote, skip or quit. Ctrl+C counts as quit because raw mode swallows
// the signal.
func (p *terminalPrompter) Prompt(ctx context.Context, rec sync.ConflictRecord) (sync.Action, error) {
	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, renderConflict(rec))

	fd := int(p.in.Fd())

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return sync.ActionSkip, fmt.Errorf("prompt: entering raw mode: %w", err)
	}
	defer term.Restore(fd, oldState) //nolint:errcheck // best effort on the way out

	keys := make(chan byte)
	readErr := make(chan error, 1)

	go func() {
		buf := make([]byte, 1)

		for {
			if _, err := p.in.Read(buf); err != nil {
				readErr <- err
				return
			}

			select {
			case keys <- buf[0]:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return sync.ActionSkip, ctx.Err()
		case err := <-readErr:
			return sync.ActionSkip, fmt.Errorf("%w: %w", errPromptClosed, err)
		case k := <-keys:
			action, label, ok := decideKey(k)
			if !ok {
				continue
			}

			// Raw mode needs an explicit carriage return.
			fmt.Fprint(p.out, label+"\r\n")

			return action, nil
		}
	}
}

// decideKey maps a key press to an action and the line echoed back.
func decideKey(k byte) (sync.Action, string, bool) {
	switch k {
	case 'l', 'L':
		return sync.ActionUseLocal, styleLocal.Render("→ Using local version"), true
	case 'r', 'R':
		return sync.ActionUseRemote, styleRemote.Render("→ Using remote version"), true
	case 's', 'S':
		return sync.ActionSkip, styleWarn.Render("→ Skipping file"), true
	case 'q', 'Q', keyCtrlC, keyCtrlD:
		return sync.ActionAbort, styleError.Render("→ Stopping watch"), true
	default:
		return sync.ActionSkip, "", false
	}
}

// renderConflict draws the side-by-side comparison panel.
func renderConflict(rec sync.ConflictRecord) string {
	const stamp = "2006-01-02 15:04:05"

	local, remote := rec.Local, rec.Remote

	rows := [][3]string{
		{"", "Local", "Remote"},
		{"Modified", describeTime(local, stamp), describeTime(remote, stamp)},
		{"Size", describeSize(local), describeSize(remote)},
	}

	var table strings.Builder

	for i, r := range rows {
		label := styleDim.Render(fmt.Sprintf("%-10s", r[0]))
		l := styleLocal.Render(fmt.Sprintf("%-21s", r[1]))
		rm := styleRemote.Render(r[2])

		if i == 0 {
			l = styleBold.Render(fmt.Sprintf("%-21s", r[1]))
			rm = styleBold.Render(r[2])
		}

		table.WriteString(label + l + rm)

		if i < len(rows)-1 {
			table.WriteString("\n")
		}
	}

	options := styleLocal.Bold(true).Render("[L]") + styleDim.Render(" Keep local  ") +
		styleRemote.Bold(true).Render("[R]") + styleDim.Render(" Keep remote  ") +
		styleWarn.Bold(true).Render("[S]") + styleDim.Render(" Skip  ") +
		styleError.Bold(true).Render("[Q]") + styleDim.Render(" Quit")

	body := lipgloss.JoinVertical(lipgloss.Left,
		styleWarn.Bold(true).Render("⚠ Conflict Detected"),
		"",
		styleBold.Render("File: ")+rec.Path,
		"",
		table.String(),
		"",
		newerLine(local, remote),
		"",
		options,
	)

	return conflictPanel.Render(body)
}

func describeTime(m sync.FileMetadata, layout string) string {
	if !m.Exists {
		return "deleted"
	}

	return m.Time().Local().Format(layout)
}

func describeSize(m sync.FileMetadata) string {
	if !m.Exists {
		return "-"
	}

	return formatSize(m.Size)
}

func newerLine(local, remote sync.FileMetadata) string {
	switch {
	case !local.Exists:
		return styleWarn.Render("Deleted locally")
	case !remote.Exists:
		return styleWarn.Render("Deleted on remote")
	case local.ModTime > remote.ModTime:
		return styleLocal.Render("Local is newer")
	case remote.ModTime > local.ModTime:
		return styleRemote.Render("Remote is newer")
	default:
		return "Same time"
	}
}
