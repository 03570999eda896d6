package storage

import "time"

// Row identifiers are local to one database. A URL that exists in both
// the main and the archive store has unrelated ids in each.
type (
	URLID     int64
	VisitID   int64
	FaviconID int64
)

// Transition describes how a navigation happened. The low byte holds
// the core type; the high bits carry qualifiers such as redirect-chain
// position.
type Transition uint32

const (
	TransitionLink             Transition = 0
	TransitionTyped            Transition = 1
	TransitionAutoBookmark     Transition = 2
	TransitionAutoSubframe     Transition = 3
	TransitionManualSubframe   Transition = 4
	TransitionGenerated        Transition = 5
	TransitionAutoToplevel     Transition = 6
	TransitionFormSubmit       Transition = 7
	TransitionReload           Transition = 8
	TransitionKeyword          Transition = 9
	TransitionKeywordGenerated Transition = 10

	// Qualifier bits.
	TransitionChainStart     Transition = 0x10000000
	TransitionChainEnd       Transition = 0x20000000
	TransitionClientRedirect Transition = 0x40000000
	TransitionServerRedirect Transition = 0x80000000

	transitionCoreMask     Transition = 0x000000FF
	transitionRedirectMask             = TransitionClientRedirect | TransitionServerRedirect
)

// Core strips all qualifier bits, leaving the base transition type.
func (t Transition) Core() Transition { return t & transitionCoreMask }

// IsChainEnd reports whether this visit is the terminal hop of a
// redirect chain.
func (t Transition) IsChainEnd() bool { return t&TransitionChainEnd != 0 }

// IsRedirect reports whether this visit arrived via a client or server
// redirect.
func (t Transition) IsRedirect() bool { return t&transitionRedirectMask != 0 }

// VisitSource records where a visit originally came from.
type VisitSource int

const (
	SourceBrowsed VisitSource = iota
	SourceSynced
	SourceExtension
	SourceImported
)

// URLRow is one browsed URL. A zero LastVisit means no visit rows
// reference it.
type URLRow struct {
	ID         URLID
	URL        string
	Title      string
	VisitCount int
	TypedCount int
	LastVisit  time.Time
	Hidden     bool
}

// VisitRow is one navigation event. ReferringVisit is zero when the
// visit has no referrer; archived visits always have it cleared.
type VisitRow struct {
	ID             VisitID
	URLID          URLID
	VisitTime      time.Time
	ReferringVisit VisitID
	Transition     Transition
	SegmentID      int64
}

// IconMapping links a page URL to a favicon.
type IconMapping struct {
	ID      int64
	PageURL string
	IconID  FaviconID
}

// Favicon icon types.
const (
	IconTypeFavicon          = 1
	IconTypeTouch            = 2
	IconTypeTouchPrecomposed = 4
)

// Stats holds aggregate statistics about one history database.
type Stats struct {
	TotalURLs         int64
	TotalVisits       int64
	OldestVisit       time.Time
	NewestVisit       time.Time
	DatabaseSizeBytes int64
}
