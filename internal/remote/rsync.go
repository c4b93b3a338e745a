package remote

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
)

// MirrorOptions controls a one-shot rsync between a local and a remote
// directory.
type MirrorOptions struct {
	Pull    bool // remote to local; push otherwise
	Delete  bool // delete destination files absent from the source
	DryRun  bool
	Exclude []string
}

// MirrorLineKind classifies one line of rsync output.
type MirrorLineKind int

// MirrorLineKind values.
const (
	LineFile MirrorLineKind = iota
	LineDeleted
	LineProgress
	LineOther
)

// MirrorLine is one classified line of rsync output.
type MirrorLine struct {
	Kind MirrorLineKind
	Text string
}

// MirrorArgs builds the rsync argument vector. Directory sources get a
// trailing slash so rsync copies their contents rather than the directory.
func (s *SSH) MirrorArgs(localDir, remoteDir string, opts MirrorOptions) []string {
	args := []string{"-avz", "--progress"}

	if opts.Delete {
		args = append(args, "--delete")
	}

	if opts.DryRun {
		args = append(args, "--dry-run")
	}

	if s.opts.BandwidthLimit > 0 {
		args = append(args, "--bwlimit="+strconv.FormatInt(rsyncLimit(s.opts.BandwidthLimit), 10))
	}

	for _, pattern := range opts.Exclude {
		args = append(args, "--exclude", pattern)
	}

	if rsh := s.rsyncShell(); rsh != "" {
		args = append(args, "-e", rsh)
	}

	if opts.Pull {
		return append(args, s.remoteSpec(withTrailingSlash(remoteDir)), localDir)
	}

	return append(args, withTrailingSlash(localDir), s.remoteSpec(remoteDir))
}

// rsyncShell returns the -e value when the ssh invocation differs from
// rsync's default.
func (s *SSH) rsyncShell() string {
	if s.opts.Port <= 0 && s.opts.IdentityFile == "" && s.opts.KnownHosts == "" && s.opts.SSHCommand == "ssh" {
		return ""
	}

	parts := []string{s.opts.SSHCommand}

	if s.opts.KnownHosts != "" {
		parts = append(parts, "-o", "UserKnownHostsFile="+s.opts.KnownHosts)
	}

	if s.opts.Port > 0 {
		parts = append(parts, "-p", strconv.Itoa(s.opts.Port))
	}

	if s.opts.IdentityFile != "" {
		parts = append(parts, "-i", s.opts.IdentityFile)
	}

	return strings.Join(parts, " ")
}

// Mirror runs rsync and reports each classified output line to onLine. It
// returns the number of files rsync listed as transferred. There is no
// timeout: a large mirror runs until it finishes or ctx is canceled.
func (s *SSH) Mirror(
	ctx context.Context, localDir, remoteDir string, opts MirrorOptions, onLine func(MirrorLine),
) (int, error) {
	cmd := exec.CommandContext(ctx, s.opts.RsyncCommand, s.MirrorArgs(localDir, remoteDir, opts)...)

	out, err := cmd.StdoutPipe()
	if err != nil {
		return 0, fmt.Errorf("remote: rsync stdout pipe: %w", err)
	}

	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("remote: starting %s: %w", s.opts.RsyncCommand, err)
	}

	files := scanMirrorOutput(out, onLine)

	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return files, &CommandError{Command: "rsync", ExitCode: exitErr.ExitCode(), Err: ErrCommandFailed}
		}

		return files, fmt.Errorf("remote: rsync: %w", err)
	}

	return files, nil
}

func scanMirrorOutput(r io.Reader, onLine func(MirrorLine)) int {
	files := 0
	current := ""

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := ClassifyMirrorLine(sc.Text())
		if line.Kind == LineOther {
			continue
		}

		if line.Kind == LineFile {
			if line.Text == current {
				continue
			}

			current = line.Text
			files++
		}

		if onLine != nil {
			onLine(line)
		}
	}

	return files
}

// ClassifyMirrorLine sorts an rsync -av --progress output line into file,
// deletion, progress or noise.
func ClassifyMirrorLine(raw string) MirrorLine {
	line := strings.TrimRight(raw, " \r")

	switch {
	case line == "":
		return MirrorLine{Kind: LineOther}
	case strings.HasPrefix(line, "sending") || strings.HasPrefix(line, "receiving"):
		return MirrorLine{Kind: LineOther, Text: line}
	case strings.Contains(line, "%"):
		return MirrorLine{Kind: LineProgress, Text: strings.TrimSpace(line)}
	case strings.HasPrefix(line, "deleting "):
		return MirrorLine{Kind: LineDeleted, Text: strings.TrimPrefix(line, "deleting ")}
	case strings.HasPrefix(line, " ") || strings.HasPrefix(line, "total") || strings.HasPrefix(line, "sent "):
		return MirrorLine{Kind: LineOther, Text: line}
	default:
		return MirrorLine{Kind: LineFile, Text: line}
	}
}

func withTrailingSlash(p string) string {
	if strings.HasSuffix(p, "/") {
		return p
	}

	return p + "/"
}
