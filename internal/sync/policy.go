package sync

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Conflict strategy names accepted by PolicyFromName.
const (
	StrategyAsk    = "ask"
	StrategyLocal  = "local"
	StrategyRemote = "remote"
	StrategyNewer  = "newer"
	StrategySkip   = "skip"
)

// Strategies lists every valid strategy name in display order.
var Strategies = []string{StrategyAsk, StrategyLocal, StrategyRemote, StrategyNewer, StrategySkip}

// Policy decides what to do with a conflict. It is selected once when the
// session is built and consulted only for paths the detector flagged.
type Policy interface {
	Resolve(ctx context.Context, rec ConflictRecord) Action
	Name() string
}

// Prompter asks the operator to resolve a conflict. Implementations block
// until the operator answers.
type Prompter interface {
	Prompt(ctx context.Context, rec ConflictRecord) (Action, error)
}

// PolicyFromName builds the policy for a strategy name. The ask strategy
// requires a Prompter.
func PolicyFromName(name string, prompter Prompter, logger *slog.Logger) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case StrategyAsk:
		if prompter == nil {
			return nil, fmt.Errorf("sync: conflict strategy %q needs an interactive prompt", StrategyAsk)
		}

		return &AskPolicy{prompter: prompter, logger: logger}, nil
	case StrategyLocal:
		return PreferLocal{}, nil
	case StrategyRemote:
		return PreferRemote{}, nil
	case StrategyNewer:
		return PreferNewer{}, nil
	case StrategySkip:
		return SkipPolicy{}, nil
	default:
		return nil, fmt.Errorf("sync: unknown conflict strategy %q (valid: %s)",
			name, strings.Join(Strategies, ", "))
	}
}

// AskPolicy defers every conflict to the operator. A prompt that fails,
// for example because stdin closed, skips the path.
type AskPolicy struct {
	prompter Prompter
	logger   *slog.Logger
}

func (p *AskPolicy) Resolve(ctx context.Context, rec ConflictRecord) Action {
	action, err := p.prompter.Prompt(ctx, rec)
	if err != nil {
		p.logger.Warn("conflict prompt failed, skipping",
			slog.String("path", rec.Path),
			slog.String("error", err.Error()),
		)

		return ActionSkip
	}

	return action
}

func (p *AskPolicy) Name() string { return StrategyAsk }

// PreferLocal always keeps the local copy.
type PreferLocal struct{}

func (PreferLocal) Resolve(context.Context, ConflictRecord) Action { return ActionUseLocal }
func (PreferLocal) Name() string                                   { return StrategyLocal }

// PreferRemote always keeps the remote copy.
type PreferRemote struct{}

func (PreferRemote) Resolve(context.Context, ConflictRecord) Action { return ActionUseRemote }
func (PreferRemote) Name() string                                   { return StrategyRemote }

// PreferNewer keeps whichever copy has the later modification time. Equal
// times keep the remote copy.
type PreferNewer struct{}

func (PreferNewer) Resolve(_ context.Context, rec ConflictRecord) Action {
	if rec.Local.ModTime > rec.Remote.ModTime {
		return ActionUseLocal
	}

	return ActionUseRemote
}

func (PreferNewer) Name() string { return StrategyNewer }

// SkipPolicy leaves both copies alone. The path stays divergent until one
// side changes again.
type SkipPolicy struct{}

func (SkipPolicy) Resolve(context.Context, ConflictRecord) Action { return ActionSkip }
func (SkipPolicy) Name() string                                   { return StrategySkip }
