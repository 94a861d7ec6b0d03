package microsurvey

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/movesmart/maas-backend/pkg/logger"
)

// Quiet window bounds, in minutes from user-local midnight. No push may land
// between 22:30 and 07:00.
const (
	quietStartMin = 22*60 + 30
	quietEndMin   = 7 * 60
)

// minPushLead is the monotonicity floor on proposed push times.
const minPushLead = 30 * time.Minute

// fallbackLead is used when no valid proposal is available.
const fallbackLead = time.Hour

// PushTimeProposer proposes a nudge time for a user, typically by asking an
// external language model.
type PushTimeProposer interface {
	ProposePushTime(ctx context.Context, userID int64, now time.Time, loc *time.Location) (time.Time, error)
}

// Scheduler computes the next push instant for a user. Proposals from the
// model are validated against the quiet window and the minimum lead; invalid
// or failed proposals fall back to a fixed offset clamped out of the window.
type Scheduler struct {
	proposer PushTimeProposer
	loc      *time.Location
}

// NewScheduler builds a scheduler for the given default timezone. proposer
// may be nil, in which case the fallback heuristic always applies.
func NewScheduler(proposer PushTimeProposer, timezone string) *Scheduler {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		logger.Get().Warn("invalid survey timezone, using America/Chicago",
			zap.String("timezone", timezone), zap.Error(err))
		loc, err = time.LoadLocation("America/Chicago")
		if err != nil {
			loc = time.UTC
		}
	}
	return &Scheduler{proposer: proposer, loc: loc}
}

// NextPushTime returns a UTC instant at least 30 minutes out and outside the
// user-local quiet window.
func (s *Scheduler) NextPushTime(ctx context.Context, userID int64, now time.Time) time.Time {
	if s.proposer != nil {
		proposed, err := s.proposer.ProposePushTime(ctx, userID, now, s.loc)
		if err != nil {
			logger.Get().Warn("push time proposal failed, using fallback",
				zap.Int64("user_id", userID), zap.Error(err))
		} else if s.validProposal(proposed, now) {
			return proposed.UTC()
		} else {
			logger.Get().Warn("push time proposal rejected, using fallback",
				zap.Int64("user_id", userID), zap.Time("proposed", proposed))
		}
	}
	return s.clampQuiet(now.Add(fallbackLead)).UTC()
}

func (s *Scheduler) validProposal(t, now time.Time) bool {
	return !t.Before(now.Add(minPushLead)) && !s.inQuietWindow(t)
}

func (s *Scheduler) inQuietWindow(t time.Time) bool {
	local := t.In(s.loc)
	mins := local.Hour()*60 + local.Minute()
	return mins >= quietStartMin || mins < quietEndMin
}

// clampQuiet shifts an instant inside the quiet window to the next 07:00
// user-local.
func (s *Scheduler) clampQuiet(t time.Time) time.Time {
	if !s.inQuietWindow(t) {
		return t
	}
	local := t.In(s.loc)
	seven := time.Date(local.Year(), local.Month(), local.Day(), 7, 0, 0, 0, s.loc)
	if !local.Before(seven) {
		seven = seven.AddDate(0, 0, 1)
	}
	return seven
}
