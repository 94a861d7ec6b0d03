package microsurvey

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type stubProposer struct {
	at  time.Time
	err error
}

func (p *stubProposer) ProposePushTime(_ context.Context, _ int64, _ time.Time, _ *time.Location) (time.Time, error) {
	return p.at, p.err
}

func TestNextPushTime_AcceptsValidProposal(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	proposed := now.Add(3 * time.Hour)

	sched := NewScheduler(&stubProposer{at: proposed}, "UTC")
	got := sched.NextPushTime(context.Background(), 1, now)

	assert.Equal(t, proposed, got)
}

func TestNextPushTime_RejectsTooSoonProposal(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	sched := NewScheduler(&stubProposer{at: now.Add(10 * time.Minute)}, "UTC")
	got := sched.NextPushTime(context.Background(), 1, now)

	// Fallback: one hour out, already outside the quiet window
	assert.Equal(t, now.Add(time.Hour), got)
}

func TestNextPushTime_RejectsQuietWindowProposal(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	quiet := time.Date(2026, 3, 2, 23, 0, 0, 0, time.UTC)

	sched := NewScheduler(&stubProposer{at: quiet}, "UTC")
	got := sched.NextPushTime(context.Background(), 1, now)

	assert.Equal(t, now.Add(time.Hour), got)
}

func TestNextPushTime_FallbackOnProposerError(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

	sched := NewScheduler(&stubProposer{err: errors.New("model unavailable")}, "UTC")
	got := sched.NextPushTime(context.Background(), 1, now)

	assert.Equal(t, now.Add(time.Hour), got)
}

func TestNextPushTime_FallbackClampsOutOfQuietWindow(t *testing.T) {
	// 22:00 + 1h lands at 23:00, inside the quiet window: clamp to next 07:00
	now := time.Date(2026, 3, 2, 22, 0, 0, 0, time.UTC)

	sched := NewScheduler(nil, "UTC")
	got := sched.NextPushTime(context.Background(), 1, now)

	assert.Equal(t, time.Date(2026, 3, 3, 7, 0, 0, 0, time.UTC), got)
}

func TestNextPushTime_EarlyMorningClamp(t *testing.T) {
	// 04:00 + 1h is 05:00, still quiet: clamp to 07:00 the same day
	now := time.Date(2026, 3, 2, 4, 0, 0, 0, time.UTC)

	sched := NewScheduler(nil, "UTC")
	got := sched.NextPushTime(context.Background(), 1, now)

	assert.Equal(t, time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC), got)
}

func TestInQuietWindow_Bounds(t *testing.T) {
	sched := NewScheduler(nil, "UTC")

	cases := []struct {
		hour, minute int
		quiet        bool
	}{
		{22, 29, false},
		{22, 30, true},
		{23, 59, true},
		{0, 0, true},
		{6, 59, true},
		{7, 0, false},
		{12, 0, false},
	}
	for _, tc := range cases {
		at := time.Date(2026, 3, 2, tc.hour, tc.minute, 0, 0, time.UTC)
		assert.Equal(t, tc.quiet, sched.inQuietWindow(at), "%02d:%02d", tc.hour, tc.minute)
	}
}
