package remote

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"
)

// burstMultiplier sizes the token bucket relative to the per-second rate so
// a short stall can be made up on the next read without exceeding the
// sustained limit.
const burstMultiplier = 2

// ParseBandwidth parses a limit like "5MB/s", "512KiB" or "0" into bytes
// per second. Empty and "0" mean unlimited.
func ParseBandwidth(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return 0, nil
	}

	size := s
	if strings.HasSuffix(strings.ToLower(size), "/s") {
		size = size[:len(size)-len("/s")]
	}

	n, err := humanize.ParseBytes(size)
	if err != nil {
		return 0, fmt.Errorf("remote: invalid bandwidth limit %q: %w", s, err)
	}

	return int64(n), nil //nolint:gosec // limits are far below 2^63
}

// BandwidthLimiter throttles transfer streams to a shared byte rate. A nil
// limiter is unlimited.
type BandwidthLimiter struct {
	limiter *rate.Limiter
}

// NewBandwidthLimiter returns a limiter for bytesPerSec, or nil when the
// rate is zero or negative.
func NewBandwidthLimiter(bytesPerSec int64, logger *slog.Logger) *BandwidthLimiter {
	if bytesPerSec <= 0 {
		return nil
	}

	burst := int(bytesPerSec) * burstMultiplier

	logger.Debug("bandwidth limiter created",
		slog.Int64("bytes_per_sec", bytesPerSec),
		slog.Int("burst", burst),
	)

	return &BandwidthLimiter{limiter: rate.NewLimiter(rate.Limit(bytesPerSec), burst)}
}

// WrapReader returns r throttled to the limiter's rate.
func (bl *BandwidthLimiter) WrapReader(ctx context.Context, r io.Reader) io.Reader {
	if bl == nil {
		return r
	}

	return &limitedReader{ctx: ctx, r: r, limiter: bl.limiter}
}

type limitedReader struct {
	ctx     context.Context
	r       io.Reader
	limiter *rate.Limiter
}

func (lr *limitedReader) Read(p []byte) (int, error) {
	n, err := lr.r.Read(p)
	if n > 0 {
		if waitErr := waitN(lr.ctx, lr.limiter, n); waitErr != nil {
			return n, waitErr
		}
	}

	return n, err
}

// waitN takes n tokens in burst-sized pieces; WaitN rejects requests larger
// than the burst.
func waitN(ctx context.Context, limiter *rate.Limiter, n int) error {
	burst := limiter.Burst()

	for n > 0 {
		take := min(n, burst)

		if err := limiter.WaitN(ctx, take); err != nil {
			return err
		}

		n -= take
	}

	return nil
}

// scpLimit converts bytes per second to the Kbit/s unit of scp -l.
func scpLimit(bytesPerSec int64) int64 {
	return max(bytesPerSec*8/1000, 1) //nolint:mnd // bits per byte, kilo
}

// rsyncLimit converts bytes per second to the KiB/s unit of rsync --bwlimit.
func rsyncLimit(bytesPerSec int64) int64 {
	return max(bytesPerSec/1024, 1) //nolint:mnd // KiB
}
