package store

import "testing"

func TestAppendAndListChatTurns(t *testing.T) {
	s := openTestStore(t)
	e, _ := s.CreateEntry("journal body", "", "")

	first, err := s.AppendChatTurn(e.ID, "user", "Hello", "")
	if err != nil {
		t.Fatalf("AppendChatTurn error: %v", err)
	}
	second, err := s.AppendChatTurn(e.ID, "assistant", "Hi there!", `{"sources":[]}`)
	if err != nil {
		t.Fatal(err)
	}

	turns, err := s.ListChatHistory(e.ID)
	if err != nil {
		t.Fatalf("ListChatHistory error: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("turns = %d, want 2", len(turns))
	}
	if turns[0].ID != first.ID || turns[1].ID != second.ID {
		t.Errorf("turns out of order: %+v", turns)
	}
	if turns[1].Metadata != `{"sources":[]}` {
		t.Errorf("metadata = %q", turns[1].Metadata)
	}
}

func TestGlobalScope_IsolatedFromEntries(t *testing.T) {
	s := openTestStore(t)
	e, _ := s.CreateEntry("scoped entry", "", "")

	if _, err := s.AppendChatTurn(GlobalScope, "user", "global question", ""); err != nil {
		t.Fatalf("global AppendChatTurn error: %v", err)
	}
	if _, err := s.AppendChatTurn(e.ID, "user", "scoped question", ""); err != nil {
		t.Fatal(err)
	}

	global, err := s.ListChatHistory(GlobalScope)
	if err != nil {
		t.Fatal(err)
	}
	if len(global) != 1 || global[0].Content != "global question" {
		t.Errorf("global history = %+v", global)
	}

	scoped, err := s.ListChatHistory(e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(scoped) != 1 || scoped[0].Content != "scoped question" {
		t.Errorf("scoped history = %+v", scoped)
	}

	// Deleting the entry must leave the global session untouched.
	if err := s.DeleteEntry(e.ID); err != nil {
		t.Fatal(err)
	}
	global, err = s.ListChatHistory(GlobalScope)
	if err != nil {
		t.Fatal(err)
	}
	if len(global) != 1 {
		t.Errorf("global history after entry delete = %d, want 1", len(global))
	}
}

func TestRecentChatHistory(t *testing.T) {
	s := openTestStore(t)
	e, _ := s.CreateEntry("entry", "", "")

	contents := []string{"one", "two", "three", "four"}
	for _, c := range contents {
		if _, err := s.AppendChatTurn(e.ID, "user", c, ""); err != nil {
			t.Fatal(err)
		}
	}

	recent, err := s.RecentChatHistory(e.ID, 2)
	if err != nil {
		t.Fatalf("RecentChatHistory error: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("recent = %d, want 2", len(recent))
	}
	// Chronological order within the window.
	if recent[0].Content != "three" || recent[1].Content != "four" {
		t.Errorf("recent window = [%s, %s]", recent[0].Content, recent[1].Content)
	}

	none, err := s.RecentChatHistory(e.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Errorf("limit 0 returned %d turns", len(none))
	}
}

func TestDeleteChatHistory(t *testing.T) {
	s := openTestStore(t)
	e, _ := s.CreateEntry("entry", "", "")

	s.AppendChatTurn(e.ID, "user", "a", "")
	s.AppendChatTurn(e.ID, "assistant", "b", "")

	n, err := s.DeleteChatHistory(e.ID)
	if err != nil {
		t.Fatalf("DeleteChatHistory error: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted = %d, want 2", n)
	}

	turns, _ := s.ListChatHistory(e.ID)
	if len(turns) != 0 {
		t.Errorf("history not cleared: %+v", turns)
	}
}
