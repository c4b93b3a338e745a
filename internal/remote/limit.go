package remote

import (
	"context"
	"fmt"
	"math"
	"time"

	"golang.org/x/time/rate"
)

// DefaultCommandsPerSecond bounds how fast the watch loop may issue remote
// commands when the configuration does not say otherwise.
const DefaultCommandsPerSecond = 20

// Limited paces an Executor with a token bucket. A burst of local edits then
// costs the remote host a steady trickle of ssh sessions instead of a spike.
type Limited struct {
	next    Executor
	limiter *rate.Limiter
}

// NewLimited wraps next so that at most perSecond commands start each
// second. perSecond <= 0 disables pacing.
func NewLimited(next Executor, perSecond float64) *Limited {
	limit := rate.Inf
	burst := 1

	if perSecond > 0 {
		limit = rate.Limit(perSecond)
		burst = max(int(math.Ceil(perSecond)), 1)
	}

	return &Limited{next: next, limiter: rate.NewLimiter(limit, burst)}
}

// Run waits for a token, then delegates. Waiting counts against ctx, not
// against the command timeout.
func (l *Limited) Run(ctx context.Context, command string, timeout time.Duration) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("remote: waiting for command slot: %w", err)
	}

	return l.next.Run(ctx, command, timeout)
}
