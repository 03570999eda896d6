// Package expire migrates old browsing history from the main store into
// the cold archive store and permanently deletes records, with their
// dependent favicon and thumbnail data, when they age out or when the
// user asks for them to go.
//
// The engine assumes exclusive, single-goroutine access to all three
// stores for the duration of any one operation. Callers must serialize
// requests onto one goroutine; the engine performs no internal locking
// on the data path. A detached store (SetStores with nils) is a valid
// inert state: every operation silently no-ops.
package expire

import (
	"context"
	"log/slog"
	"time"

	"github.com/runnerr0/attic/internal/bookmark"
	"github.com/runnerr0/attic/internal/metrics"
	"github.com/runnerr0/attic/internal/notify"
	"github.com/runnerr0/attic/internal/storage"
)

// Engine is the history expiration/archival orchestrator.
type Engine struct {
	main    storage.HistoryStore
	archive storage.HistoryStore
	icons   storage.IconStore

	bookmarks bookmark.Oracle
	sink      notify.Sink
	log       *slog.Logger
	metrics   *metrics.Set

	// now is swappable for tests.
	now func() time.Time
}

// Options configures a new Engine. Main, Archive, and Icons may be nil;
// the engine stays inert until SetStores attaches them.
type Options struct {
	Main      storage.HistoryStore
	Archive   storage.HistoryStore
	Icons     storage.IconStore
	Bookmarks bookmark.Oracle
	Sink      notify.Sink
	Log       *slog.Logger
	Metrics   *metrics.Set
}

// NewEngine builds an engine from explicit collaborators.
func NewEngine(opts Options) *Engine {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	sink := opts.Sink
	if sink == nil {
		sink = notify.LogSink{Log: log}
	}
	oracle := opts.Bookmarks
	if oracle == nil {
		oracle = noBookmarks{}
	}
	return &Engine{
		main:      opts.Main,
		archive:   opts.Archive,
		icons:     opts.Icons,
		bookmarks: oracle,
		sink:      sink,
		log:       log,
		metrics:   opts.Metrics,
		now:       time.Now,
	}
}

// SetStores attaches or detaches the engine's databases. Passing nils
// detaches; subsequent operations no-op until reattached. Teardown
// order is therefore not safety-critical.
func (e *Engine) SetStores(main, archive storage.HistoryStore, icons storage.IconStore) {
	e.main = main
	e.archive = archive
	e.icons = icons
}

// DeleteURL removes one URL and all its visits from the main store.
// Bookmarked URLs keep their row (with zeroed counts) but lose their
// visits.
func (e *Engine) DeleteURL(ctx context.Context, url string) {
	e.DeleteURLs(ctx, []string{url})
}

// DeleteURLs removes each of the given URLs and all their visits from
// the main store. One user-initiated deletion notification covers the
// whole call.
func (e *Engine) DeleteURLs(ctx context.Context, urls []string) {
	if e.main == nil {
		return
	}

	e.bookmarks.BlockTillLoaded(ctx)

	deps := newDeleteDependencies()
	for _, url := range urls {
		row, err := e.main.GetRowForURL(ctx, url)
		if err != nil {
			// Not in the main store; there may still be archived
			// visits, which are intentionally left alone.
			continue
		}

		visits, err := e.main.GetVisitsForURL(ctx, row.ID)
		if err != nil {
			e.log.Debug("get visits for url failed", "url", url, "error", err)
			continue
		}
		e.deleteVisitRelatedInfo(ctx, visits, deps)

		e.deleteOneURL(ctx, *row, e.bookmarks.IsBookmarked(url), deps)
	}

	e.deleteFaviconsIfPossible(ctx, deps)
	e.broadcastDeleteNotifications(deps, false)
}

// ExpireHistoryBetween deletes all visits in [begin, end) from the main
// store. A zero end means "until now". When restrictURLs is non-empty,
// only visits belonging to those URLs are expired. User-initiated
// expiry always physically deletes; nothing moves to the archive.
func (e *Engine) ExpireHistoryBetween(ctx context.Context, restrictURLs []string, begin, end time.Time) {
	if e.main == nil {
		return
	}

	visits, err := e.main.GetAllVisitsInRange(ctx, begin, end, 0)
	if err != nil {
		e.log.Debug("get visits in range failed", "error", err)
		return
	}

	if len(restrictURLs) > 0 {
		ids := make(map[storage.URLID]struct{}, len(restrictURLs))
		for _, url := range restrictURLs {
			row, err := e.main.GetRowForURL(ctx, url)
			if err != nil {
				continue
			}
			ids[row.ID] = struct{}{}
		}

		filtered := visits[:0]
		for _, v := range visits {
			if _, ok := ids[v.URLID]; ok {
				filtered = append(filtered, v)
			}
		}
		visits = filtered
	}

	e.ExpireVisits(ctx, visits)
}

// ExpireHistoryForTimes deletes the visits whose timestamps exactly
// match the given times. Callers must supply the times in strictly
// decreasing order with no duplicates; the engine trusts its callers
// and only logs when the precondition is violated, proceeding
// best-effort.
func (e *Engine) ExpireHistoryForTimes(ctx context.Context, times []time.Time) {
	if e.main == nil {
		return
	}

	if !sortedUniqueDesc(times) {
		e.log.Debug("ExpireHistoryForTimes called with unsorted or duplicate times")
	}

	visits, err := e.main.GetVisitsForTimes(ctx, times)
	if err != nil {
		e.log.Debug("get visits for times failed", "error", err)
		return
	}
	e.ExpireVisits(ctx, visits)
}

// ExpireVisits deletes the given visits, rewrites the visit/typed
// counts of the URLs they belonged to, removes URLs that lost their
// last visit and are not bookmarked, sweeps orphaned favicons, and
// broadcasts one user-initiated deletion notification.
func (e *Engine) ExpireVisits(ctx context.Context, visits []storage.VisitRow) {
	if e.main == nil || len(visits) == 0 {
		return
	}

	deps := newDeleteDependencies()
	e.deleteVisitRelatedInfo(ctx, visits, deps)
	e.expireURLsForVisits(ctx, visits, deps)
	e.deleteFaviconsIfPossible(ctx, deps)
	e.broadcastDeleteNotifications(deps, false)

	e.scheduleCommitSweep()
}

// ArchiveHistoryBefore archives or deletes every visit at or before
// end, looping over unbounded batches until no work remains. The idle
// scheduler uses the bounded ArchiveSomeOldHistory instead.
func (e *Engine) ArchiveHistoryBefore(ctx context.Context, end time.Time) {
	if e.main == nil {
		return
	}

	for e.ArchiveSomeOldHistory(ctx, end, ReadAllVisits, archiveAllBatch) {
	}

	e.scheduleCommitSweep()
}

// archiveAllBatch bounds one iteration of the bulk archival loop. Large
// enough to finish quickly, small enough to keep memory flat.
const archiveAllBatch = 1024

// ArchiveSomeOldHistory performs one bounded unit of archival work:
// read up to max visits at or before end using the given reader,
// archive the archive-worthy ones, delete the rest, and retire URLs
// that lost all their visits. Returns whether more work may remain.
func (e *Engine) ArchiveSomeOldHistory(ctx context.Context, end time.Time, kind ReaderKind, max int) bool {
	if e.main == nil {
		return false
	}

	// Callers pass an inclusive cutoff; reader queries use an
	// exclusive upper bound.
	effectiveEnd := end.Add(time.Microsecond)

	visits, more := e.readExpiringVisits(ctx, kind, effectiveEnd, max)
	if len(visits) == 0 {
		return more
	}

	var archivable, deletable []storage.VisitRow
	for _, v := range visits {
		if shouldArchive(v) {
			archivable = append(archivable, v)
		} else {
			deletable = append(deletable, v)
		}
	}

	// The two subsets keep separate dependency sets so that URL
	// disposition below never sees a URL as fully deleted while its
	// archive-worthy visits are still pending.
	archivedDeps := newDeleteDependencies()
	deletedDeps := newDeleteDependencies()

	e.archiveURLsAndVisits(ctx, archivable, archivedDeps)
	e.deleteVisitRelatedInfo(ctx, archivable, archivedDeps)
	e.deleteVisitRelatedInfo(ctx, deletable, deletedDeps)

	e.expireURLsForVisits(ctx, archivable, archivedDeps)
	e.expireURLsForVisits(ctx, deletable, deletedDeps)

	// Favicons are never archived, so one merged orphan sweep covers
	// both subsets.
	deletedDeps.mergeFavicons(archivedDeps)
	e.deleteFaviconsIfPossible(ctx, deletedDeps)

	// Archived URLs are not "deleted"; only the discardable side may
	// appear in the notification.
	e.broadcastDeleteNotifications(deletedDeps, true)

	return more
}

// deleteVisitRelatedInfo deletes each visit row. The first time a URL
// is seen in this pass its current row is snapshotted into deps so the
// expiry arithmetic later runs against before-the-pass counts. URLs
// that cannot be loaded are skipped; one corrupt row never aborts a
// batch.
func (e *Engine) deleteVisitRelatedInfo(ctx context.Context, visits []storage.VisitRow, deps *deleteDependencies) {
	if e.metrics != nil {
		e.metrics.VisitsDeleted.Add(float64(len(visits)))
	}
	for _, v := range visits {
		if err := e.main.DeleteVisit(ctx, v); err != nil {
			e.log.Debug("delete visit failed", "visit", v.ID, "error", err)
		}

		if _, ok := deps.affectedURLs[v.URLID]; !ok {
			row, err := e.main.GetURLRow(ctx, v.URLID)
			if err != nil {
				continue
			}
			deps.affectedURLs[v.URLID] = *row
		}
	}
}

// deleteOneURL removes a URL row's derived data and, unless it is
// bookmarked, the row itself along with its thumbnail and favicon
// mappings. Bookmarked rows stay; only their visits were removed by the
// caller.
func (e *Engine) deleteOneURL(ctx context.Context, row storage.URLRow, bookmarked bool, deps *deleteDependencies) {
	if err := e.main.DeleteSegmentForURL(ctx, row.ID); err != nil {
		e.log.Debug("delete segment failed", "url", row.URL, "error", err)
	}

	if bookmarked {
		return
	}

	deps.deletedURLs = append(deps.deletedURLs, row)

	if e.icons != nil {
		if err := e.icons.DeleteThumbnail(ctx, row.ID); err != nil {
			e.log.Debug("delete thumbnail failed", "url", row.URL, "error", err)
		}

		mappings, err := e.icons.GetIconMappingsForPageURL(ctx, row.URL)
		if err == nil {
			for _, m := range mappings {
				deps.affectedFavicons[m.IconID] = struct{}{}
			}
			if err := e.icons.DeleteIconMappings(ctx, row.URL); err != nil {
				e.log.Debug("delete icon mappings failed", "url", row.URL, "error", err)
			}
		}
	}

	if err := e.main.DeleteURLRow(ctx, row.ID); err != nil {
		e.log.Debug("delete url row failed", "url", row.URL, "error", err)
	}
}

// urlChange tallies how many of a URL's deleted visits decrement each
// counter.
type urlChange struct {
	visitCount int
	typedCount int
}

// decrementsTypedCount mirrors the counting rule used when visits are
// recorded: a plain typed navigation or a keyword-generated one bumps
// typed_count, so removing one decrements it.
func decrementsTypedCount(t storage.Transition) bool {
	if t.Core() == storage.TransitionTyped && !t.IsRedirect() {
		return true
	}
	return t.Core() == storage.TransitionKeywordGenerated
}

// expireURLsForVisits rewrites the counts and last_visit of every URL
// that lost visits in this pass, deleting URLs that have no visits left
// and are not bookmarked. Counts never go negative: if the stored value
// drifted below the computed decrement, it clamps to zero.
func (e *Engine) expireURLsForVisits(ctx context.Context, visits []storage.VisitRow, deps *deleteDependencies) {
	if len(visits) == 0 {
		return
	}

	changes := make(map[storage.URLID]*urlChange)
	for _, v := range visits {
		ch, ok := changes[v.URLID]
		if !ok {
			ch = &urlChange{}
			changes[v.URLID] = ch
		}
		if v.Transition.Core() != storage.TransitionReload {
			ch.visitCount++
		}
		if decrementsTypedCount(v.Transition) {
			ch.typedCount++
		}
	}

	e.bookmarks.BlockTillLoaded(ctx)

	for urlID, ch := range changes {
		row, ok := deps.affectedURLs[urlID]
		if !ok {
			// The snapshot step could not load this row; skip it.
			continue
		}

		var lastVisit time.Time
		hasVisits := false
		if recent, err := e.main.GetMostRecentVisitForURL(ctx, urlID); err == nil {
			lastVisit = recent.VisitTime
			hasVisits = true
		}

		if !hasVisits && !e.bookmarks.IsBookmarked(row.URL) {
			e.deleteOneURL(ctx, row, false, deps)
			continue
		}

		row.VisitCount = max(0, row.VisitCount-ch.visitCount)
		row.TypedCount = max(0, row.TypedCount-ch.typedCount)
		row.LastVisit = lastVisit
		if err := e.main.UpdateURLRow(ctx, urlID, &row); err != nil {
			e.log.Debug("update url row failed", "url", row.URL, "error", err)
		}
	}
}

// deleteFaviconsIfPossible removes every candidate favicon that has no
// icon-mapping left, recording its icon URL for the notification. A
// favicon with any remaining mapping is left untouched.
func (e *Engine) deleteFaviconsIfPossible(ctx context.Context, deps *deleteDependencies) {
	if e.icons == nil {
		return
	}

	for id := range deps.affectedFavicons {
		mapped, err := e.icons.HasMappingFor(ctx, id)
		if err != nil || mapped {
			continue
		}

		iconURL, _, err := e.icons.GetFaviconHeader(ctx, id)
		if err != nil {
			continue
		}
		if err := e.icons.DeleteFavicon(ctx, id); err != nil {
			e.log.Debug("delete favicon failed", "favicon", id, "error", err)
			continue
		}
		deps.expiredFavicons[iconURL] = struct{}{}
	}
}

// broadcastDeleteNotifications emits one deletion notification for the
// pass, or nothing when no URL row was fully deleted and no favicon
// expired.
func (e *Engine) broadcastDeleteNotifications(deps *deleteDependencies, archived bool) {
	if len(deps.deletedURLs) == 0 && len(deps.expiredFavicons) == 0 {
		return
	}
	e.sink.BroadcastDeletion(notify.NewDeletionDetails(
		deps.deletedURLs, archived, deps.faviconURLList()))
}

// scheduleCommitSweep is the extension point for a best-effort
// consistency sweep after user-initiated expiry. No corruption-repair
// logic exists yet; the call point is kept so the sweep has somewhere
// to live when it does.
func (e *Engine) scheduleCommitSweep() {
	e.log.Debug("consistency sweep requested")
}

// noBookmarks is the oracle used when none is configured: nothing is
// bookmarked, so every URL is eligible for deletion.
type noBookmarks struct{}

func (noBookmarks) BlockTillLoaded(context.Context) {}
func (noBookmarks) IsBookmarked(string) bool        { return false }

// sortedUniqueDesc reports whether times are strictly decreasing with
// no duplicates.
func sortedUniqueDesc(times []time.Time) bool {
	for i := 1; i < len(times); i++ {
		if !times[i].Before(times[i-1]) {
			return false
		}
	}
	return true
}
