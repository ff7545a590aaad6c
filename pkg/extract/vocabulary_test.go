package extract

import (
	"reflect"
	"testing"

	"github.com/colorcue/colorcue/pkg/errorsx"
)

func TestVocabularyNormalizes(t *testing.T) {
	v, err := NewVocabulary(" Red ", "BLUE", "blue", "")
	if err != nil {
		t.Fatalf("new vocabulary: %v", err)
	}
	if v.Len() != 2 {
		t.Fatalf("expected 2 labels, got %d", v.Len())
	}
	if !v.Contains("red") || !v.Contains("blue") {
		t.Fatalf("expected normalized membership")
	}
	if v.Contains("Red") {
		t.Fatalf("lookups are against normalized labels only")
	}
	want := []string{"blue", "red"}
	if got := v.Labels(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Labels() = %v, want %v", got, want)
	}
}

func TestVocabularyEmpty(t *testing.T) {
	_, err := NewVocabulary("", "  ")
	if err == nil {
		t.Fatalf("expected error for empty vocabulary")
	}
	if !errorsx.HasReason(err, errorsx.ReasonVocabularyEmpty) {
		t.Fatalf("expected vocabulary_empty reason, got %s", errorsx.Reason(err))
	}
}

func TestClosedSetEviction(t *testing.T) {
	c := newClosedSet(2)
	c.Add("a")
	c.Add("b")
	c.Add("a") // duplicate add is a no-op
	c.Add("c")
	if c.Len() != 2 {
		t.Fatalf("expected len 2, got %d", c.Len())
	}
	if c.Has("a") {
		t.Fatalf("expected oldest id evicted")
	}
	if !c.Has("b") || !c.Has("c") {
		t.Fatalf("expected recent ids retained")
	}
}
