package expire

import (
	"context"
	"time"

	"github.com/runnerr0/attic/internal/storage"
)

// ReaderKind selects one of the fixed visit-reading strategies the
// archival loop cycles through. The set is closed, so dispatch is a
// switch rather than an interface.
type ReaderKind int

const (
	// ReadAllVisits returns any visit older than the cutoff.
	ReadAllVisits ReaderKind = iota

	// ReadAutoSubframe returns only auto-subframe visits, scanning
	// ahead of the main archive cutoff by a fixed margin and keeping a
	// persisted watermark so finished ranges are never re-scanned.
	ReadAutoSubframe
)

// earlyExpirationAdvance is how far past the archive cutoff the
// auto-subframe reader is allowed to purge. Subframe visits have no
// user-visible value, so they are expired ahead of schedule.
const earlyExpirationAdvance = 3 * 24 * time.Hour

// readExpiringVisits returns up to max visits that end before end
// (exclusive) according to the given strategy, plus a flag indicating
// whether more work may remain before that bound.
func (e *Engine) readExpiringVisits(ctx context.Context, kind ReaderKind, end time.Time, max int) ([]storage.VisitRow, bool) {
	switch kind {
	case ReadAutoSubframe:
		return e.readAutoSubframeVisits(ctx, end, max)
	default:
		return e.readAllVisits(ctx, end, max)
	}
}

func (e *Engine) readAllVisits(ctx context.Context, end time.Time, max int) ([]storage.VisitRow, bool) {
	visits, err := e.main.GetAllVisitsInRange(ctx, time.Time{}, end, max)
	if err != nil {
		e.log.Debug("read all visits failed", "error", err)
		return nil, false
	}
	return visits, max > 0 && len(visits) == max
}

func (e *Engine) readAutoSubframeVisits(ctx context.Context, end time.Time, max int) ([]storage.VisitRow, bool) {
	begin, err := e.main.GetEarlyExpirationThreshold(ctx)
	if err != nil {
		e.log.Debug("read early expiration threshold failed", "error", err)
		return nil, false
	}
	if begin.IsZero() {
		// First run: one tick past the epoch, so the scan covers all
		// of history without treating zero as "unset".
		begin = time.UnixMicro(1).UTC()
	}

	// Advance the effective end ahead of the archive schedule, but
	// never into the future.
	end = end.Add(earlyExpirationAdvance)
	if now := e.now(); end.After(now) {
		end = now
	}

	visits, err := e.main.GetVisitsInRangeForTransition(ctx, begin, end, max,
		storage.TransitionAutoSubframe)
	if err != nil {
		e.log.Debug("read auto-subframe visits failed", "error", err)
		return nil, false
	}

	more := max > 0 && len(visits) == max
	if !more {
		// The range is exhausted; persist the watermark so the next
		// pass starts past it.
		if err := e.main.UpdateEarlyExpirationThreshold(ctx, end); err != nil {
			e.log.Debug("update early expiration threshold failed", "error", err)
		}
	}
	return visits, more
}
