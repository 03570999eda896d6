package expire

import "github.com/runnerr0/attic/internal/storage"

// deleteDependencies accumulates the side effects of one expiration or
// archival pass: URL rows touched by visit deletion (snapshotted with
// their before-the-pass counts), URL rows that were fully deleted, and
// the favicons whose mappings may now be orphaned.
type deleteDependencies struct {
	// affectedURLs maps a main-store url id to the row as it looked
	// before the first visit for that URL was deleted in this pass.
	affectedURLs map[storage.URLID]storage.URLRow

	// deletedURLs holds the rows removed from the main store entirely.
	deletedURLs []storage.URLRow

	// affectedFavicons holds favicon ids to re-check for orphaning
	// after the pass.
	affectedFavicons map[storage.FaviconID]struct{}

	// expiredFavicons holds the icon URLs of favicons that were
	// actually removed, for notification payloads.
	expiredFavicons map[string]struct{}
}

func newDeleteDependencies() *deleteDependencies {
	return &deleteDependencies{
		affectedURLs:     make(map[storage.URLID]storage.URLRow),
		affectedFavicons: make(map[storage.FaviconID]struct{}),
		expiredFavicons:  make(map[string]struct{}),
	}
}

// mergeFavicons folds another pass's favicon candidates into this one
// so a single orphan sweep can cover both.
func (d *deleteDependencies) mergeFavicons(other *deleteDependencies) {
	for id := range other.affectedFavicons {
		d.affectedFavicons[id] = struct{}{}
	}
}

func (d *deleteDependencies) faviconURLList() []string {
	if len(d.expiredFavicons) == 0 {
		return nil
	}
	urls := make([]string, 0, len(d.expiredFavicons))
	for u := range d.expiredFavicons {
		urls = append(urls, u)
	}
	return urls
}
