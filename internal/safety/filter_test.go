package safety

import (
	"strings"
	"testing"
)

func TestClassify_Crisis(t *testing.T) {
	f := NewFilter()

	for _, msg := range []string{
		"I want to kill myself",
		"thinking about suicide",
		"I've been self-harming",
		"I want to end it all... ending it all feels close",
	} {
		r := f.Classify(msg)
		if r.Safe {
			t.Errorf("Classify(%q).Safe = true, want false", msg)
		}
		if r.Level != LevelCrisis {
			t.Errorf("Classify(%q).Level = %q, want crisis", msg, r.Level)
		}
		if r.Intervention == "" {
			t.Errorf("Classify(%q) missing intervention text", msg)
		}
	}
}

func TestClassify_Distress(t *testing.T) {
	f := NewFilter()

	r := f.Classify("I feel hopeless about everything")
	if !r.Safe {
		t.Error("distress messages should remain sendable")
	}
	if r.Level != LevelDistress {
		t.Errorf("Level = %q, want distress", r.Level)
	}
	if r.Intervention != DistressMessage {
		t.Errorf("Intervention = %q", r.Intervention)
	}
}

func TestClassify_Safe(t *testing.T) {
	f := NewFilter()

	for _, msg := range []string{
		"I had a great day today",
		"I'm feeling a bit stressed about work",
	} {
		r := f.Classify(msg)
		if !r.Safe || r.Level != LevelSafe {
			t.Errorf("Classify(%q) = %+v, want safe", msg, r)
		}
		if r.Intervention != "" {
			t.Errorf("Classify(%q) unexpected intervention", msg)
		}
	}
}

func TestClassify_CaseInsensitive(t *testing.T) {
	f := NewFilter()

	r := f.Classify("I WANT TO KILL MYSELF")
	if r.Safe || r.Level != LevelCrisis {
		t.Errorf("uppercase crisis message not detected: %+v", r)
	}
}

func TestClassify_WordBoundaries(t *testing.T) {
	f := NewFilter()

	// "suicide" inside another word must not match.
	r := f.Classify("reading about suicidegenomics research")
	if r.Level == LevelCrisis {
		t.Errorf("boundary-crossing match: %+v", r)
	}
}

func TestAugmentResponse(t *testing.T) {
	f := NewFilter()

	distress := Result{Safe: true, Level: LevelDistress}
	out := f.AugmentResponse("Take care of yourself.", distress)
	if !strings.Contains(out, "988") {
		t.Errorf("distress response missing resources: %q", out)
	}

	safe := Result{Safe: true, Level: LevelSafe}
	out = f.AugmentResponse("Sounds like a good day.", safe)
	if out != "Sounds like a good day." {
		t.Errorf("safe response modified: %q", out)
	}
}
