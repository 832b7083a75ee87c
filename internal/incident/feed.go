package incident

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/anhducle99/bluecode/internal/clock"
	"github.com/anhducle99/bluecode/internal/logger"
	"github.com/anhducle99/bluecode/internal/models"
	"github.com/google/uuid"
)

const DefaultDedupeWindow = 5 * time.Second

var ErrLoadInProgress = errors.New("history load already in progress")

// HistorySource returns the persisted call records visible to viewer.
type HistorySource interface {
	History(ctx context.Context, viewer string) ([]models.CallLog, error)
}

// Feed is the merged, deduplicated, newest-first incident list of one
// viewer.
type Feed struct {
	source HistorySource
	clock  clock.Clock
	window time.Duration
	logger *slog.Logger

	mu        sync.Mutex
	items     []Incident
	ids       map[string]struct{}
	viewer    string
	loaded    bool
	loading   bool
	gen       uint64
	listeners []func([]Incident)
}

func NewFeed(source HistorySource, clk clock.Clock, window time.Duration, log *slog.Logger) *Feed {
	if window <= 0 {
		window = DefaultDedupeWindow
	}
	return &Feed{
		source: source,
		clock:  clock.OrReal(clk),
		window: window,
		logger: logger.OrDefault(log).With("component", "incident"),
		ids:    make(map[string]struct{}),
	}
}

// OnChange registers fn to receive a snapshot after every change.
func (f *Feed) OnChange(fn func([]Incident)) {
	f.mu.Lock()
	f.listeners = append(f.listeners, fn)
	f.mu.Unlock()
}

// Add appends a live incident. A missing id or timestamp is filled in. The
// incident is dropped when its id is known or when an entry with the same
// source and message lies within the dedupe window.
func (f *Feed) Add(in Incident) bool {
	if in.ID == "" {
		in.ID = uuid.New().String()
	}
	if in.Timestamp.IsZero() {
		in.Timestamp = f.clock.Now()
	}

	f.mu.Lock()
	if !f.insertLocked(in) {
		f.mu.Unlock()
		return false
	}
	f.sortLocked()
	snapshot, listeners := f.snapshotLocked(), f.listenersLocked()
	f.mu.Unlock()

	notify(listeners, snapshot)
	return true
}

// Load merges the persisted history of viewer. The first successful load
// for a viewer replaces the feed; later loads only add records not already
// present. A failed load leaves the feed untouched.
func (f *Feed) Load(ctx context.Context, viewer string) error {
	if f.source == nil {
		return nil
	}

	f.mu.Lock()
	if viewer != f.viewer {
		f.resetLocked()
		f.viewer = viewer
	}
	if f.loading {
		f.mu.Unlock()
		return ErrLoadInProgress
	}
	f.loading = true
	gen := f.gen
	f.mu.Unlock()

	records, err := f.source.History(ctx, viewer)

	f.mu.Lock()
	if gen != f.gen {
		// Superseded by a reset or a viewer change.
		f.mu.Unlock()
		return nil
	}
	f.loading = false
	if err != nil {
		f.mu.Unlock()
		f.logger.Warn("history load failed", "viewer", viewer, "error", err)
		return fmt.Errorf("failed to load history: %w", err)
	}

	var incoming []Incident
	for _, record := range records {
		incoming = append(incoming, FromCallLog(record)...)
	}

	changed := false
	if !f.loaded {
		f.items = nil
		f.ids = make(map[string]struct{})
		for _, in := range incoming {
			if _, ok := f.ids[in.ID]; ok {
				continue
			}
			f.ids[in.ID] = struct{}{}
			f.items = append(f.items, in)
		}
		f.loaded = true
		changed = true
	} else {
		for _, in := range incoming {
			if f.insertLocked(in) {
				changed = true
			}
		}
	}
	if !changed {
		f.mu.Unlock()
		return nil
	}
	f.sortLocked()
	snapshot, listeners := f.snapshotLocked(), f.listenersLocked()
	f.mu.Unlock()

	notify(listeners, snapshot)
	return nil
}

// Reset clears the feed and forgets the viewer.
func (f *Feed) Reset() {
	f.mu.Lock()
	f.resetLocked()
	f.viewer = ""
	f.mu.Unlock()
}

func (f *Feed) Incidents() []Incident {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

// Filter returns the incidents of the given kind, newest first.
func (f *Feed) Filter(kind Kind) []Incident {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Incident
	for _, in := range f.items {
		if in.Kind == kind {
			out = append(out, in)
		}
	}
	return out
}

func (f *Feed) insertLocked(in Incident) bool {
	if _, ok := f.ids[in.ID]; ok {
		return false
	}
	for _, existing := range f.items {
		if f.sameEvent(existing, in) {
			return false
		}
	}
	f.ids[in.ID] = struct{}{}
	f.items = append(f.items, in)
	return true
}

func (f *Feed) sameEvent(a, b Incident) bool {
	if a.Source != b.Source || a.Message != b.Message {
		return false
	}
	delta := a.Timestamp.Sub(b.Timestamp)
	if delta < 0 {
		delta = -delta
	}
	return delta < f.window
}

func (f *Feed) resetLocked() {
	f.items = nil
	f.ids = make(map[string]struct{})
	f.loaded = false
	f.loading = false
	f.gen++
}

func (f *Feed) sortLocked() {
	sort.SliceStable(f.items, func(i, j int) bool {
		return f.items[i].Timestamp.After(f.items[j].Timestamp)
	})
}

func (f *Feed) snapshotLocked() []Incident {
	return append([]Incident(nil), f.items...)
}

func (f *Feed) listenersLocked() []func([]Incident) {
	return append(([]func([]Incident))(nil), f.listeners...)
}

func notify(listeners []func([]Incident), snapshot []Incident) {
	for _, fn := range listeners {
		fn(snapshot)
	}
}
