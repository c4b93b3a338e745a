package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/sshcp/sshcp/internal/config"
	"github.com/sshcp/sshcp/internal/remote"
	"github.com/sshcp/sshcp/internal/sync"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch LOCAL REMOTE",
		Short: "Keep a local and a remote directory in sync",
		Long: `Watch a local directory and a remote directory and copy changes in both
directions until interrupted.

Local changes are picked up from filesystem events. The remote side is
polled every --interval. When both sides changed the same file since the
last sync, --on-conflict decides what happens:

  ask     show both versions and wait for a key press (needs a terminal)
  local   keep the local version
  remote  keep the remote version
  newer   keep whichever was modified last
  skip    leave both sides alone

REMOTE may start with @bookmark.`,
		Args: cobra.ExactArgs(2),
		RunE: runWatch,
	}

	cmd.Flags().DurationP("interval", "i", 0, "time between remote polls (default from config, 5s)")
	cmd.Flags().Duration("debounce", 0, "quiet period before a local change is processed (default from config, 500ms)")
	cmd.Flags().StringP("on-conflict", "c", "", "conflict strategy: ask, local, remote, newer, skip (default from config, ask)")

	return cmd
}

// watchOptions are the settings of one watch session after flags and
// config are merged.
type watchOptions struct {
	localRoot  string
	remoteRoot string
	interval   time.Duration
	debounce   time.Duration
	strategy   string
}

func resolveWatchOptions(cmd *cobra.Command, cc *CLIContext, args []string) (watchOptions, error) {
	localRoot, err := config.ExpandPath(args[0])
	if err != nil {
		return watchOptions{}, fmt.Errorf("resolving %s: %w", args[0], err)
	}

	// A missing root is created when the session starts.
	if info, err := os.Stat(localRoot); err == nil && !info.IsDir() {
		return watchOptions{}, fmt.Errorf("local path is not a directory: %s", localRoot)
	}

	remoteRoot, err := expandRemote(cc, args[1])
	if err != nil {
		return watchOptions{}, err
	}

	opts := watchOptions{
		localRoot:  localRoot,
		remoteRoot: remoteRoot,
		interval:   cc.Cfg.PollInterval,
		debounce:   cc.Cfg.Debounce,
		strategy:   cc.Cfg.Watch.ConflictStrategy,
	}

	if cmd.Flags().Changed("interval") {
		opts.interval, _ = cmd.Flags().GetDuration("interval")
		if opts.interval < time.Second {
			return watchOptions{}, errors.New("--interval must be at least 1s")
		}
	}

	if cmd.Flags().Changed("debounce") {
		opts.debounce, _ = cmd.Flags().GetDuration("debounce")
	}

	if cmd.Flags().Changed("on-conflict") {
		opts.strategy, _ = cmd.Flags().GetString("on-conflict")
	}

	return opts, nil
}

// conflictPolicy builds the policy for strategy. The ask strategy needs a
// terminal on both stdin and stdout.
func conflictPolicy(cc *CLIContext, strategy string, interactive bool) (sync.Policy, error) {
	var prompter sync.Prompter
	if interactive {
		prompter = newTerminalPrompter(os.Stdin, os.Stdout)
	}

	if !interactive && strings.EqualFold(strings.TrimSpace(strategy), sync.StrategyAsk) {
		return nil, errors.New("--on-conflict ask needs an interactive terminal; use local, remote, newer or skip")
	}

	return sync.PolicyFromName(strategy, prompter, cc.Logger)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	logger := cc.Logger

	host, err := cc.Cfg.RequireHost()
	if err != nil {
		return err
	}

	opts, err := resolveWatchOptions(cmd, cc, args)
	if err != nil {
		return err
	}

	policy, err := conflictPolicy(cc, opts.strategy, isTerminal(os.Stdin) && isTerminal(os.Stdout))
	if err != nil {
		return err
	}

	filter, err := sync.NewFilter(cc.Cfg.Filter.Exclude)
	if err != nil {
		return err
	}

	release, err := lockLocalRoot(config.DefaultDataDir(), opts.localRoot)
	if err != nil {
		return err
	}
	defer release()

	signals := gracefulShutdown(cmd.Context(), logger)
	defer signals.Close()

	ctx := signals.Context()

	journal, err := sync.OpenJournal(ctx, config.JournalPath(), logger)
	if err != nil {
		return err
	}
	defer journal.Close()

	backend, err := openBackend(ctx, cc, host)
	if err != nil {
		return err
	}
	defer backend.Close()

	out := newEventPrinter(os.Stdout)

	session, err := sync.NewSession(sync.SessionConfig{
		LocalRoot:      opts.localRoot,
		RemoteRoot:     opts.remoteRoot,
		Remote:         remote.NewLimited(backend, cc.Cfg.Remote.MaxCommandsPerSecond),
		Transfer:       backend,
		Policy:         policy,
		Journal:        journal,
		Filter:         filter,
		PollInterval:   opts.interval,
		Debounce:       opts.debounce,
		CommandTimeout: cc.Cfg.CommandTimeout,
		Events:         out,
		OnReady: func(localFiles, remoteFiles int) {
			cc.Statusf("Found %d local, %d remote files\n", localFiles, remoteFiles)
			cc.Statusf("%s\n\n", styleDim.Render("Watching for changes. Press Ctrl+C to stop."))
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}

	signals.OnStop(session.Stop)

	cc.Statusf("%s\n", watchBanner(opts, host, policy.Name()))

	if err := session.Run(ctx); err != nil {
		return err
	}

	if errors.Is(session.Err(), sync.ErrAborted) {
		cc.Statusf("Watch aborted at a conflict.\n")
		return nil
	}

	cc.Statusf("Watch stopped.\n")

	return nil
}

func watchBanner(opts watchOptions, host, policy string) string {
	body := lipgloss.JoinVertical(lipgloss.Left,
		styleBold.Render("Local:    ")+styleLocal.Render(opts.localRoot),
		styleBold.Render("Remote:   ")+styleRemote.Render(host+":"+opts.remoteRoot),
		styleBold.Render("Interval: ")+opts.interval.String(),
		styleBold.Render("Conflict: ")+policy,
	)

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("6")).
		Padding(0, 1).
		Render(body)
}

// eventPrinter renders session events as timestamped, coloured lines.
type eventPrinter struct {
	w io.Writer
}

func newEventPrinter(w io.Writer) *eventPrinter {
	return &eventPrinter{w: w}
}

// SyncEvent implements sync.EventSink.
func (p *eventPrinter) SyncEvent(ev sync.Event) {
	fmt.Fprintln(p.w, formatEvent(ev))
}

// formatEvent builds one event line, e.g. "14:02:11 → Added: css/site.css".
func formatEvent(ev sync.Event) string {
	icon := "→"
	if ev.Direction == sync.DirectionDownload {
		icon = "←"
	}

	style := styleBold

	switch ev.Op {
	case sync.OpAdded:
		style = styleSuccess
	case sync.OpUpdated:
		style = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	case sync.OpDeleted:
		style = styleError
	case sync.OpSkipped, sync.OpConflict:
		icon = "⚠"
		style = styleWarn
	}

	line := styleDim.Render(ev.Time.Format(time.TimeOnly)) + " " +
		style.Render(icon+" "+string(ev.Op)+":") + " " + ev.Path

	if ev.Detail != "" {
		line += " " + styleDim.Render("("+ev.Detail+")")
	}

	return line
}
