package autosave

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/inkwell-app/inkwell/internal/bus"
	"github.com/inkwell-app/inkwell/internal/store"
)

type writeCall struct {
	id      string
	content string
}

type fakeWriter struct {
	mu        sync.Mutex
	creates   []writeCall
	updates   []writeCall
	createErr error
	updateErr error
	gate      chan struct{} // when set, CreateEntry blocks until closed
}

func (f *fakeWriter) CreateEntry(content, title, kind string) (*store.Entry, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	id := fmt.Sprintf("entry-%d", len(f.creates)+1)
	f.creates = append(f.creates, writeCall{id: id, content: content})
	return &store.Entry{ID: id, Content: content, Title: title, Kind: kind}, nil
}

func (f *fakeWriter) UpdateEntry(id, content, title, kind string) (*store.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	f.updates = append(f.updates, writeCall{id: id, content: content})
	return &store.Entry{ID: id, Content: content, Title: title, Kind: kind}, nil
}

func (f *fakeWriter) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.creates), len(f.updates)
}

func TestDebounceKeepsOnlyLastSnapshot(t *testing.T) {
	w := &fakeWriter{}
	s := NewScheduler(w, bus.New(16), 20*time.Millisecond)

	s.ScheduleWrite("Hello", "", "journal", TargetNew)
	s.ScheduleWrite("Hello world", "", "journal", TargetNew)

	time.Sleep(100 * time.Millisecond)

	creates, updates := w.counts()
	if creates != 1 || updates != 0 {
		t.Fatalf("creates=%d updates=%d, want exactly one create", creates, updates)
	}
	if w.creates[0].content != "Hello world" {
		t.Fatalf("persisted %q, want last snapshot", w.creates[0].content)
	}
}

func TestBlankContentNeverPersisted(t *testing.T) {
	w := &fakeWriter{}
	s := NewScheduler(w, bus.New(16), time.Hour)

	s.ScheduleWrite("   \n\t", "", "journal", TargetNew)
	if _, err := s.FlushNow(); err != nil {
		t.Fatalf("FlushNow: %v", err)
	}

	creates, updates := w.counts()
	if creates != 0 || updates != 0 {
		t.Fatalf("creates=%d updates=%d, want none for blank content", creates, updates)
	}
	if s.HasPending() {
		t.Fatal("blank snapshot should be discarded")
	}
}

func TestFlushTwiceIsOneWrite(t *testing.T) {
	w := &fakeWriter{}
	s := NewScheduler(w, bus.New(16), time.Hour)

	s.ScheduleWrite("text", "", "journal", "e1")
	if _, err := s.FlushNow(); err != nil {
		t.Fatalf("first flush: %v", err)
	}
	if _, err := s.FlushNow(); err != nil {
		t.Fatalf("second flush: %v", err)
	}

	if _, updates := w.counts(); updates != 1 {
		t.Fatalf("updates=%d, want 1", updates)
	}
}

func TestCreateInFlightGuard(t *testing.T) {
	w := &fakeWriter{gate: make(chan struct{})}
	s := NewScheduler(w, bus.New(16), time.Hour)

	s.ScheduleWrite("first", "", "journal", TargetNew)

	done := make(chan struct{})
	go func() {
		s.FlushNow()
		close(done)
	}()

	// Wait for the create to enter the writer.
	time.Sleep(20 * time.Millisecond)

	s.ScheduleWrite("second", "", "journal", TargetNew)
	if id, err := s.FlushNow(); err != nil || id != "" {
		t.Fatalf("flush during in-flight create: id=%q err=%v, want ignored", id, err)
	}

	close(w.gate)
	<-done

	creates, _ := w.counts()
	if creates != 1 {
		t.Fatalf("creates=%d, want exactly 1 despite concurrent flush", creates)
	}

	// The snapshot scheduled mid-create now targets the created entry.
	if id, err := s.FlushNow(); err != nil || id != "entry-1" {
		t.Fatalf("promoted flush: id=%q err=%v, want entry-1", id, err)
	}
	if _, updates := w.counts(); updates != 1 {
		t.Fatalf("updates=%d, want 1 after promotion", updates)
	}
	if w.updates[0].content != "second" {
		t.Fatalf("updated with %q, want second snapshot", w.updates[0].content)
	}
}

func TestNewTargetReusesCreatedEntry(t *testing.T) {
	w := &fakeWriter{}
	s := NewScheduler(w, bus.New(16), time.Hour)

	s.ScheduleWrite("draft", "", "journal", TargetNew)
	id, err := s.FlushNow()
	if err != nil || id != "entry-1" {
		t.Fatalf("create flush: id=%q err=%v", id, err)
	}

	s.ScheduleWrite("draft, extended", "", "journal", TargetNew)
	if _, err := s.FlushNow(); err != nil {
		t.Fatalf("second flush: %v", err)
	}

	creates, updates := w.counts()
	if creates != 1 || updates != 1 {
		t.Fatalf("creates=%d updates=%d, want 1/1", creates, updates)
	}
	if w.updates[0].id != "entry-1" {
		t.Fatalf("updated %q, want entry-1", w.updates[0].id)
	}
}

func TestRebindCreatesFreshEntryAfterSwitch(t *testing.T) {
	w := &fakeWriter{}
	s := NewScheduler(w, bus.New(16), time.Hour)

	// First editing session creates note A.
	s.ScheduleWrite("note A", "", "journal", TargetNew)
	if id, err := s.FlushNow(); err != nil || id != "entry-1" {
		t.Fatalf("create flush: id=%q err=%v", id, err)
	}

	// Switch to a fresh blank entry, then type note B.
	s.Rebind()
	s.ScheduleWrite("note B", "", "journal", TargetNew)
	if _, err := s.FlushNow(); err != nil {
		t.Fatalf("second flush: %v", err)
	}

	creates, updates := w.counts()
	if creates != 2 || updates != 0 {
		t.Fatalf("creates=%d updates=%d, want 2 creates and no updates", creates, updates)
	}
	if w.creates[0].content != "note A" || w.creates[1].content != "note B" {
		t.Fatalf("creates = %+v, note B must not overwrite note A", w.creates)
	}
}

func TestFlushFailureKeepsSnapshot(t *testing.T) {
	w := &fakeWriter{updateErr: errors.New("disk full")}
	s := NewScheduler(w, bus.New(16), time.Hour)

	s.ScheduleWrite("keep me", "", "journal", "e1")
	if _, err := s.FlushNow(); err == nil {
		t.Fatal("expected flush error")
	}
	if !s.HasPending() {
		t.Fatal("snapshot must survive a failed flush")
	}
	if s.Status() != StatusError {
		t.Fatalf("status = %q, want error", s.Status())
	}

	w.mu.Lock()
	w.updateErr = nil
	w.mu.Unlock()

	if _, err := s.FlushNow(); err != nil {
		t.Fatalf("retry flush: %v", err)
	}
	if _, updates := w.counts(); updates != 1 {
		t.Fatalf("updates=%d, want 1 after retry", updates)
	}
}

func TestCancelDiscardsPending(t *testing.T) {
	w := &fakeWriter{}
	s := NewScheduler(w, bus.New(16), 20*time.Millisecond)

	s.ScheduleWrite("abandoned", "", "journal", "e1")
	s.Cancel()

	time.Sleep(60 * time.Millisecond)

	creates, updates := w.counts()
	if creates != 0 || updates != 0 {
		t.Fatalf("creates=%d updates=%d, want none after cancel", creates, updates)
	}
	if s.Status() != StatusIdle {
		t.Fatalf("status = %q, want idle", s.Status())
	}
}

func TestSaveStatusNotifications(t *testing.T) {
	w := &fakeWriter{}
	b := bus.New(16)
	s := NewScheduler(w, b, time.Hour)

	s.ScheduleWrite("hello", "", "journal", "e1")
	if s.Status() != StatusPending {
		t.Fatalf("status = %q, want pending", s.Status())
	}
	if _, err := s.FlushNow(); err != nil {
		t.Fatalf("FlushNow: %v", err)
	}
	if s.Status() != StatusSaved {
		t.Fatalf("status = %q, want saved", s.Status())
	}
}
