// Package notify fans deletion notifications out from the expiration
// engine to interested listeners. Details are passed by value; the
// engine retains no reference after broadcasting.
package notify

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/runnerr0/attic/internal/storage"
)

// DeletionDetails describes one completed deletion pass. Archived is
// true when the deletions happened as a side effect of idle archival
// rather than a user-initiated request.
type DeletionDetails struct {
	ID          string
	Time        time.Time
	Rows        []storage.URLRow
	Archived    bool
	FaviconURLs []string
}

// NewDeletionDetails builds a details value with a fresh id.
func NewDeletionDetails(rows []storage.URLRow, archived bool, faviconURLs []string) DeletionDetails {
	return DeletionDetails{
		ID:          uuid.NewString(),
		Time:        time.Now().UTC(),
		Rows:        rows,
		Archived:    archived,
		FaviconURLs: faviconURLs,
	}
}

// Sink receives deletion notifications from the engine.
type Sink interface {
	BroadcastDeletion(details DeletionDetails)
}

// LogSink logs each deletion at info level.
type LogSink struct {
	Log *slog.Logger
}

func (s LogSink) BroadcastDeletion(d DeletionDetails) {
	s.Log.Info("history deleted",
		"id", d.ID,
		"urls", len(d.Rows),
		"archived", d.Archived,
		"favicons", len(d.FaviconURLs))
}

// Bus is a Sink that fans each notification out to subscriber channels.
// Slow subscribers drop notifications rather than block the engine.
type Bus struct {
	mu     sync.Mutex
	nextID int64
	subs   map[int64]chan DeletionDetails
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int64]chan DeletionDetails)}
}

// Subscribe registers a listener. The returned cancel func removes the
// subscription and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan DeletionDetails, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan DeletionDetails, buffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if ch, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// BroadcastDeletion delivers the details to every subscriber.
func (b *Bus) BroadcastDeletion(d DeletionDetails) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- d:
		default:
		}
	}
}

// Multi combines several sinks into one.
type Multi []Sink

func (m Multi) BroadcastDeletion(d DeletionDetails) {
	for _, s := range m {
		s.BroadcastDeletion(d)
	}
}
