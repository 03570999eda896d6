package expire

import (
	"context"

	"github.com/runnerr0/attic/internal/storage"
)

// shouldArchive decides whether a visit is worth keeping in the archive
// or can simply be discarded. Typed, auto-bookmark, and auto-toplevel
// visits always matter. Link, form-submit, keyword, and generated
// visits matter only when they terminate a redirect chain; the
// intermediate hops carry no user-visible value. Everything else
// (subframes, reloads) is discarded.
func shouldArchive(v storage.VisitRow) bool {
	switch v.Transition.Core() {
	case storage.TransitionTyped,
		storage.TransitionAutoBookmark,
		storage.TransitionAutoToplevel:
		return true
	case storage.TransitionLink,
		storage.TransitionFormSubmit,
		storage.TransitionKeyword,
		storage.TransitionGenerated:
		return v.Transition.IsChainEnd()
	default:
		return false
	}
}

// archiveOneURL resolves the destination row in the archive store for a
// main-store URL row. If the URL already exists there, only its
// last_visit is refreshed (keeping the newer of the two) and the
// existing archive-local id is returned; otherwise a fresh row is
// inserted.
func (e *Engine) archiveOneURL(ctx context.Context, row storage.URLRow) (storage.URLID, error) {
	existing, err := e.archive.GetRowForURL(ctx, row.URL)
	if err == nil {
		if row.LastVisit.After(existing.LastVisit) {
			existing.LastVisit = row.LastVisit
			if err := e.archive.UpdateURLRow(ctx, existing.ID, existing); err != nil {
				e.log.Debug("refresh archived url failed", "url", row.URL, "error", err)
			}
		}
		return existing.ID, nil
	}

	fresh := row
	fresh.ID = 0
	return e.archive.AddURL(ctx, &fresh)
}

// archiveURLsAndVisits copies the given visits and their URL rows into
// the archive store. Destination URL rows are resolved once per
// main-store url id; each copied visit gets its url_id rewritten to the
// archive-local id and its referring_visit cleared, since archived
// visits are never chained. Source annotations are carried over.
// deps.affectedURLs stays keyed by MAIN-store url ids so the expiry
// accounting that follows is consistent with the deletion path.
func (e *Engine) archiveURLsAndVisits(ctx context.Context, visits []storage.VisitRow, deps *deleteDependencies) {
	if e.archive == nil || len(visits) == 0 {
		return
	}

	urlMap := make(map[storage.URLID]storage.URLID)
	for _, v := range visits {
		if _, ok := urlMap[v.URLID]; ok {
			continue
		}
		row, err := e.main.GetURLRow(ctx, v.URLID)
		if err != nil {
			continue
		}

		archivedID, err := e.archiveOneURL(ctx, *row)
		if err != nil {
			e.log.Debug("archive url failed", "url", row.URL, "error", err)
			continue
		}
		urlMap[v.URLID] = archivedID

		if _, ok := deps.affectedURLs[v.URLID]; !ok {
			deps.affectedURLs[v.URLID] = *row
		}
	}

	sources, err := e.main.GetVisitsSource(ctx, visits)
	if err != nil {
		e.log.Debug("get visit sources failed", "error", err)
		sources = map[storage.VisitID]storage.VisitSource{}
	}

	for _, v := range visits {
		archivedURLID, ok := urlMap[v.URLID]
		if !ok {
			continue
		}
		copied := v
		copied.ID = 0
		copied.URLID = archivedURLID
		copied.ReferringVisit = 0
		if _, err := e.archive.AddVisit(ctx, &copied, sources[v.ID]); err != nil {
			e.log.Debug("archive visit failed", "visit", v.ID, "error", err)
			continue
		}
		if e.metrics != nil {
			e.metrics.VisitsArchived.Inc()
		}
	}
}
