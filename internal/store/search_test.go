package store

import (
	"testing"
)

func TestSearchEntries_FTS(t *testing.T) {
	s := openTestStore(t)

	s.CreateEntry("Went hiking up the mountain trail today", "Hike", "")
	s.CreateEntry("Cooked pasta for dinner with friends", "Dinner", "")

	results, err := s.SearchEntries("hiking", 10, false)
	if err != nil {
		t.Fatalf("SearchEntries error: %v", err)
	}
	if len(results) != 1 || results[0].Title != "Hike" {
		t.Errorf("results = %+v", results)
	}

	// Prefix matching on partial words.
	results, err = s.SearchEntries("moun", 10, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Errorf("prefix search returned %d results", len(results))
	}
}

func TestSearchEntries_UpdateReindexes(t *testing.T) {
	s := openTestStore(t)

	e, _ := s.CreateEntry("original text about sailing", "", "")
	if _, err := s.UpdateEntry(e.ID, "now it is about climbing", "", ""); err != nil {
		t.Fatal(err)
	}

	if results, _ := s.SearchEntries("sailing", 10, false); len(results) != 0 {
		t.Errorf("stale FTS rows: %+v", results)
	}
	if results, _ := s.SearchEntries("climbing", 10, false); len(results) != 1 {
		t.Errorf("updated content not indexed: %+v", results)
	}
}

func TestSearchEntries_ExcludesArchived(t *testing.T) {
	s := openTestStore(t)

	e, _ := s.CreateEntry("thoughts about winter", "", "")
	s.ArchiveEntry(e.ID)

	if results, _ := s.SearchEntries("winter", 10, false); len(results) != 0 {
		t.Errorf("archived entry surfaced: %+v", results)
	}
	if results, _ := s.SearchEntries("winter", 10, true); len(results) != 1 {
		t.Errorf("includeArchived missed entry: %+v", results)
	}
}

func TestHybridSearch_FusesRankings(t *testing.T) {
	s := openTestStore(t)

	a, _ := s.CreateEntry("a quiet morning with coffee", "", "")
	b, _ := s.CreateEntry("an afternoon of coffee and reading", "", "")
	c, _ := s.CreateEntry("completely unrelated gym session", "", "")

	// Embeddings: make c closest to the query vector even though it has no
	// FTS match, to prove fusion considers both rankings.
	s.SaveEmbedding(a.ID, []float32{1, 0, 0}, "m1")
	s.SaveEmbedding(b.ID, []float32{0.5, 0.5, 0}, "m1")
	s.SaveEmbedding(c.ID, []float32{0, 1, 0}, "m1")

	results, err := s.HybridSearch("coffee", []float32{0, 1, 0}, 3, false)
	if err != nil {
		t.Fatalf("HybridSearch error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}

	found := map[string]HybridResult{}
	for _, r := range results {
		found[r.Entry.ID] = r
	}
	if r, ok := found[c.ID]; !ok || r.VecRank != 1 || r.FTSRank != 0 {
		t.Errorf("vector-only match misranked: %+v", r)
	}
	if r, ok := found[a.ID]; !ok || r.FTSRank == 0 {
		t.Errorf("fts match missing rank: %+v", r)
	}
	for _, r := range results {
		if r.Score <= 0 {
			t.Errorf("non-positive fused score: %+v", r)
		}
	}
}

func TestHybridSearch_NoEmbedding(t *testing.T) {
	s := openTestStore(t)
	s.CreateEntry("notes about the garden", "", "")

	results, err := s.HybridSearch("garden", nil, 5, false)
	if err != nil {
		t.Fatalf("HybridSearch error: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("results = %d, want 1", len(results))
	}
	if results[0].VecRank != 0 {
		t.Errorf("unexpected vector rank: %+v", results[0])
	}
}

func TestEscapeFTSQuery(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"hello", `"hello"*`},
		{"hello world", `"hello"* "world"*`},
		{`quo"te`, `"quo""te"*`},
		{"   ", ""},
		{"NEAR(abc)", `"NEAR(abc)"*`},
	}
	for _, tt := range tests {
		if got := escapeFTSQuery(tt.input); got != tt.want {
			t.Errorf("escapeFTSQuery(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
