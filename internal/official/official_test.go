package official

import (
	"math"
	"testing"
)

func TestScore_ExactAcronym(t *testing.T) {
	if s := Score("ehc.org", "Example Health Center", nil); s != 1.0 {
		t.Fatalf("acronym match score = %v, want 1.0", s)
	}
	if s := Score("theehc.org", "Example Health Center", nil); s != 1.0 {
		t.Fatalf("the+acronym score = %v, want 1.0", s)
	}
	if s := Score("www.ehc.org", "Example Health Center", nil); s != 1.0 {
		t.Fatalf("www-stripped acronym score = %v, want 1.0", s)
	}
}

func TestScore_AcronymAsToken(t *testing.T) {
	if s := Score("my-ehc.org", "Example Health Center", nil); s != 0.9 {
		t.Fatalf("token acronym score = %v, want 0.9", s)
	}
	if s := Score("portal_ehc.net", "Example Health Center", nil); s != 0.9 {
		t.Fatalf("token acronym score = %v, want 0.9", s)
	}
}

func TestScore_ShortFirstWordIsAcronym(t *testing.T) {
	// A first word of five or fewer characters is likely already an acronym.
	if s := Score("acme.com", "ACME Recovery Services", nil); s != 1.0 {
		t.Fatalf("first-word acronym score = %v, want 1.0", s)
	}
}

func TestScore_WordOverlapWithConsecutiveBonus(t *testing.T) {
	sig := []string{"example", "health", "center"}
	s := Score("examplehealth.org", "Example Health Center", sig)
	// 2/3 matched + 0.2 for the adjacent example/health pair.
	want := 2.0/3.0 + 0.2
	if math.Abs(s-want) > 1e-9 {
		t.Fatalf("overlap score = %v, want %v", s, want)
	}
	if s < Threshold {
		t.Fatalf("expected official classification, got %v", s)
	}
}

func TestScore_RatioCappedAtOne(t *testing.T) {
	sig := []string{"alpha", "beta", "gamma"}
	if s := Score("alphabetagamma.com", "Alpha Beta Gamma", sig); s != 1.0 {
		t.Fatalf("capped score = %v, want 1.0", s)
	}
}

func TestScore_BoundaryBonusRaisesOnly(t *testing.T) {
	// No significant word matches, but the label ends with "recovery".
	if s := Score("hillrecovery.com", "Completely Different Name", []string{"completely", "different"}); s != 0.6 {
		t.Fatalf("boundary floor = %v, want 0.6", s)
	}
	// A higher overlap score is never lowered by the boundary term.
	sig := []string{"hillrecovery"}
	if s := Score("hillrecovery.com", "Hillrecovery", sig); s != 1.0 {
		t.Fatalf("score = %v, want 1.0", s)
	}
	if s := Score("mhrsomething.org", "Unrelated Organization", []string{"unrelated"}); s != 0.8 {
		t.Fatalf("mhr prefix floor = %v, want 0.8", s)
	}
}

func TestScore_EmptyInputs(t *testing.T) {
	if s := Score("", "Example", nil); s != 0 {
		t.Fatalf("empty domain score = %v", s)
	}
	if s := Score("example.com", "", nil); s != 0 {
		t.Fatalf("empty org score = %v", s)
	}
}
