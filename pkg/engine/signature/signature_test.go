package signature

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewSelectsFuzzyForLongBody(t *testing.T) {
	body := bytes.Repeat([]byte("a"), sizeThreshold)
	sig := New(body)
	if sig.Kind != Fuzzy {
		t.Fatalf("Kind = %v, want Fuzzy", sig.Kind)
	}
	if sig.Hash == "" {
		t.Fatal("Hash is empty")
	}
}

func TestNewSelectsMinHashForShortBody(t *testing.T) {
	sig := New([]byte("a short body"))
	if sig.Kind != MinHash {
		t.Fatalf("Kind = %v, want MinHash", sig.Kind)
	}
	if len(sig.Vector) != minHashPermutations {
		t.Fatalf("Vector length = %d, want %d", len(sig.Vector), minHashPermutations)
	}
}

func TestFuzzyHashIdenticalBodiesCompareHigh(t *testing.T) {
	body := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog. "), 10)
	h1 := FuzzyHash(body)
	h2 := FuzzyHash(body)
	if score := CompareFuzzy(h1, h2); score != 100 {
		t.Fatalf("CompareFuzzy(identical) = %d, want 100", score)
	}
}

func TestFuzzyHashDifferentBodiesCompareLow(t *testing.T) {
	a := bytes.Repeat([]byte("alpha beta gamma delta epsilon "), 20)
	b := bytes.Repeat([]byte("1234567890 zzz yyy xxx www vvv "), 20)
	h1 := FuzzyHash(a)
	h2 := FuzzyHash(b)
	if score := CompareFuzzy(h1, h2); score > 60 {
		t.Fatalf("CompareFuzzy(different) = %d, want <= 60", score)
	}
}

func TestCompareFuzzyMismatchedFormatReturnsZero(t *testing.T) {
	if score := CompareFuzzy("not-a-hash", "also-not-one:x"); score != 0 {
		t.Fatalf("CompareFuzzy(malformed) = %d, want 0", score)
	}
}

func TestMinHashIdenticalTokensHaveJaccardOne(t *testing.T) {
	body := []byte(strings.Repeat("foo bar baz ", 5))
	a := MinHashSketch(body)
	b := MinHashSketch(body)
	if got := JaccardSimilarity(a, b); got != 1 {
		t.Fatalf("JaccardSimilarity(identical) = %v, want 1", got)
	}
}

func TestMinHashDisjointTokensHaveLowJaccard(t *testing.T) {
	a := MinHashSketch([]byte("alpha beta gamma"))
	b := MinHashSketch([]byte("uniquewordone uniquewordtwo uniquewordthree"))
	if got := JaccardSimilarity(a, b); got > 0.5 {
		t.Fatalf("JaccardSimilarity(disjoint) = %v, want <= 0.5", got)
	}
}

func TestJaccardSimilarityMismatchedLengthsReturnsZero(t *testing.T) {
	if got := JaccardSimilarity([]uint16{1, 2}, []uint16{1, 2, 3}); got != 0 {
		t.Fatalf("JaccardSimilarity(mismatched lengths) = %v, want 0", got)
	}
}
