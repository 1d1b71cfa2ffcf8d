package store

import (
	"math"
	"testing"
)

func TestVectorRoundTrip(t *testing.T) {
	in := []float32{0.25, -1.5, 3.75, 0}
	blob, err := EncodeVector(in)
	if err != nil {
		t.Fatalf("EncodeVector error: %v", err)
	}

	out, err := DecodeVector(blob)
	if err != nil {
		t.Fatalf("DecodeVector error: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("dim = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("value[%d] = %v, want %v", i, out[i], in[i])
		}
	}
}

func TestEncodeVector_Invalid(t *testing.T) {
	if _, err := EncodeVector(nil); err == nil {
		t.Error("empty vector accepted")
	}
	if _, err := EncodeVector([]float32{float32(math.NaN())}); err == nil {
		t.Error("NaN accepted")
	}
}

func TestDecodeVector_Invalid(t *testing.T) {
	if _, err := DecodeVector([]byte{1, 2}); err == nil {
		t.Error("short blob accepted")
	}
	// Header claims 2 values but payload has 1.
	blob, _ := EncodeVector([]float32{1, 2})
	if _, err := DecodeVector(blob[:len(blob)-4]); err == nil {
		t.Error("truncated blob accepted")
	}
}

func TestCosineSimilarity(t *testing.T) {
	score, err := CosineSimilarity([]float32{1, 0}, []float32{1, 0})
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(score-1) > 1e-9 {
		t.Errorf("identical vectors score = %v", score)
	}

	score, err = CosineSimilarity([]float32{1, 0}, []float32{0, 1})
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(score) > 1e-9 {
		t.Errorf("orthogonal vectors score = %v", score)
	}

	if _, err := CosineSimilarity([]float32{1}, []float32{1, 2}); err == nil {
		t.Error("dimension mismatch accepted")
	}
	if _, err := CosineSimilarity([]float32{0, 0}, []float32{1, 1}); err == nil {
		t.Error("zero vector accepted")
	}
}

func TestSaveEmbedding_ReplaceAndBackfill(t *testing.T) {
	s := openTestStore(t)
	e, _ := s.CreateEntry("embedded entry", "", "")

	if err := s.SaveEmbedding(e.ID, []float32{1, 2, 3}, "v1"); err != nil {
		t.Fatalf("SaveEmbedding error: %v", err)
	}

	// Same model: nothing missing.
	ids, err := s.MissingEmbeddings("v1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 0 {
		t.Errorf("missing = %v, want none", ids)
	}

	// New model version: entry is stale and due for backfill.
	ids, err = s.MissingEmbeddings("v2", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != e.ID {
		t.Errorf("missing = %v, want [%s]", ids, e.ID)
	}

	// Replace resolves the staleness.
	if err := s.SaveEmbedding(e.ID, []float32{4, 5, 6}, "v2"); err != nil {
		t.Fatal(err)
	}
	ids, _ = s.MissingEmbeddings("v2", 10)
	if len(ids) != 0 {
		t.Errorf("missing after replace = %v", ids)
	}
}

func TestMissingEmbeddings_SkipsArchived(t *testing.T) {
	s := openTestStore(t)
	e, _ := s.CreateEntry("never embedded", "", "")
	s.ArchiveEntry(e.ID)

	ids, err := s.MissingEmbeddings("v1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 0 {
		t.Errorf("archived entry scheduled for backfill: %v", ids)
	}
}
