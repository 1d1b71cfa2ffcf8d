package autosave

import (
	"log"
	"strings"
	"sync"
	"time"

	"github.com/inkwell-app/inkwell/internal/bus"
	"github.com/inkwell-app/inkwell/internal/store"
)

// TargetNew marks a pending write that should create an entry rather than
// update one.
const TargetNew = "new"

// Save statuses published on the bus.
const (
	StatusIdle    = "idle"
	StatusPending = "pending"
	StatusSaving  = "saving"
	StatusSaved   = "saved"
	StatusError   = "error"
)

// PendingWrite is the snapshot captured when an edit was scheduled. Content
// and target are fixed at schedule time and never re-read from the editor.
type PendingWrite struct {
	Content string
	Title   string
	Kind    string
	Target  string // entry id, or TargetNew
}

// EntryWriter is the persistence surface the scheduler writes through.
// *store.Store satisfies it.
type EntryWriter interface {
	CreateEntry(content, title, kind string) (*store.Entry, error)
	UpdateEntry(id, content, title, kind string) (*store.Entry, error)
}

// Scheduler converts bursty edit events into at most one in-flight
// persistence call. Each ScheduleWrite replaces the previous snapshot
// wholesale and restarts the debounce timer.
type Scheduler struct {
	writer   EntryWriter
	bus      *bus.EventBus
	debounce time.Duration

	mu          sync.Mutex
	pending     *PendingWrite
	timer       *time.Timer
	creating    bool
	lastCreated string
	status      string
}

func NewScheduler(writer EntryWriter, b *bus.EventBus, debounce time.Duration) *Scheduler {
	if debounce <= 0 {
		debounce = time.Second
	}
	return &Scheduler{
		writer:   writer,
		bus:      b,
		debounce: debounce,
		status:   StatusIdle,
	}
}

// ScheduleWrite replaces any pending snapshot with this one and restarts the
// debounce timer. Safe to call on every keystroke.
func (s *Scheduler) ScheduleWrite(content, title, kind, target string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if target == "" {
		target = TargetNew
	}
	if target == TargetNew && s.lastCreated != "" {
		// An earlier flush already created the entry this editor is
		// bound to. Update it instead of creating a duplicate.
		target = s.lastCreated
	}
	s.pending = &PendingWrite{Content: content, Title: title, Kind: kind, Target: target}
	s.restartTimerLocked()
	s.setStatusLocked(StatusPending, target, nil)
}

// FlushNow cancels the timer and executes the pending write immediately.
// Returns the id of the entry written, or "" when nothing was flushed.
// Calling it with no pending write is a no-op.
func (s *Scheduler) FlushNow() (string, error) {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	pw := s.pending
	if pw == nil {
		s.mu.Unlock()
		return "", nil
	}
	if strings.TrimSpace(pw.Content) == "" {
		// Blank snapshots never create or overwrite an entry.
		s.pending = nil
		s.setStatusLocked(StatusIdle, pw.Target, nil)
		s.mu.Unlock()
		return "", nil
	}
	if pw.Target == TargetNew && s.creating {
		// A create is already outstanding. Keep the snapshot; it is
		// promoted and rescheduled when the create resolves.
		s.mu.Unlock()
		return "", nil
	}

	s.pending = nil
	if pw.Target == TargetNew {
		s.creating = true
	}
	s.setStatusLocked(StatusSaving, pw.Target, nil)
	s.mu.Unlock()

	entry, err := s.execute(pw)

	s.mu.Lock()
	defer s.mu.Unlock()
	if pw.Target == TargetNew {
		s.creating = false
	}
	if err != nil {
		log.Printf("[autosave] flush failed (target=%s): %v", pw.Target, err)
		if s.pending == nil {
			// Restore the snapshot so a retry can re-flush it.
			s.pending = pw
		}
		s.setStatusLocked(StatusError, pw.Target, err)
		return "", err
	}

	if pw.Target == TargetNew {
		s.lastCreated = entry.ID
	}
	if pw.Target == TargetNew && s.pending != nil && s.pending.Target == TargetNew {
		// Edits that arrived mid-create must update the entry the create
		// just produced, not create a second one.
		s.pending.Target = entry.ID
		s.restartTimerLocked()
	}
	s.setStatusLocked(StatusSaved, entry.ID, nil)
	return entry.ID, nil
}

// Rebind clears the create binding when the editor switches context. Without
// it, a later "new"-target edit in a fresh blank entry would be promoted to
// the id a previous editing session created and overwrite that entry.
func (s *Scheduler) Rebind() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCreated = ""
}

// Cancel discards the pending write without persisting it.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.pending = nil
	s.lastCreated = ""
	s.setStatusLocked(StatusIdle, "", nil)
}

// HasPending reports whether a snapshot is waiting to be flushed.
func (s *Scheduler) HasPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

// Status returns the last observed save status.
func (s *Scheduler) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Scheduler) execute(pw *PendingWrite) (*store.Entry, error) {
	if pw.Target == TargetNew {
		return s.writer.CreateEntry(pw.Content, pw.Title, pw.Kind)
	}
	return s.writer.UpdateEntry(pw.Target, pw.Content, pw.Title, pw.Kind)
}

func (s *Scheduler) restartTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, func() {
		if _, err := s.FlushNow(); err != nil {
			log.Printf("[autosave] debounced flush: %v", err)
		}
	})
}

func (s *Scheduler) setStatusLocked(status, entryID string, err error) {
	s.status = status
	if s.bus == nil {
		return
	}
	n := bus.Notification{Kind: bus.NoteSaveStatus, Status: status}
	if entryID != TargetNew {
		n.EntryID = entryID
	}
	if err != nil {
		n.Err = err.Error()
	}
	s.bus.Notify(n)
}
