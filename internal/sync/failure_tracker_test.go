package sync

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestFailureTracker_QuietsAfterLoudLimit(t *testing.T) {
	t.Parallel()

	ft := newFailureTracker(clockwork.NewFakeClockAt(baseTime))
	path := "docs/report.pdf"

	for i := 1; i <= failureLoudLimit; i++ {
		count, loud := ft.recordFailure(path)
		assert.Equal(t, i, count)
		assert.True(t, loud, "failure %d should be loud", i)
	}

	count, loud := ft.recordFailure(path)
	assert.Equal(t, failureLoudLimit+1, count)
	assert.False(t, loud)
	assert.Equal(t, 1, ft.failing())
}

func TestFailureTracker_CooldownResetsCount(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClockAt(baseTime)
	ft := newFailureTracker(clock)
	path := "data/big.csv"

	for range failureLoudLimit + 2 {
		ft.recordFailure(path)
	}

	clock.Advance(failureCooldown + time.Second)

	count, loud := ft.recordFailure(path)
	assert.Equal(t, 1, count)
	assert.True(t, loud)
}

func TestFailureTracker_SuccessClears(t *testing.T) {
	t.Parallel()

	ft := newFailureTracker(clockwork.NewFakeClockAt(baseTime))

	ft.recordFailure("a.txt")
	ft.recordFailure("b.txt")
	ft.recordSuccess("a.txt")

	assert.Equal(t, 1, ft.failing())

	count, _ := ft.recordFailure("a.txt")
	assert.Equal(t, 1, count)
}
