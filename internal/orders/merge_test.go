package orders

import (
	"reflect"
	"testing"
)

func TestMergeSumsRepeatedCodes(t *testing.T) {
	d := Merge([]ItemProposal{{"A1", "2"}, {"A1", "3"}})

	want := []Line{{Code: "A1", Quantity: 5}}
	if !reflect.DeepEqual(d.Lines, want) {
		t.Fatalf("expected %+v, got %+v", want, d.Lines)
	}
}

func TestMergeAmbiguousThenResolved(t *testing.T) {
	d := Merge([]ItemProposal{{"B2", ""}, {"B2", "1"}})

	qty, ok := d.Quantity("B2")
	if !ok || qty != 1 {
		t.Fatalf("expected B2=1, got %d (ok=%v)", qty, ok)
	}
	if codes := d.AmbiguousCodes(); len(codes) != 0 {
		t.Fatalf("expected no ambiguous codes, got %v", codes)
	}
}

func TestMergeResolvedThenEmptyStaysResolved(t *testing.T) {
	d := Merge([]ItemProposal{{"B2", "4"}, {"B2", ""}})

	if qty, ok := d.Quantity("B2"); !ok || qty != 4 {
		t.Fatalf("expected B2=4, got %d (ok=%v)", qty, ok)
	}
}

func TestMergeKeepsUnresolvedCodesAsAmbiguous(t *testing.T) {
	d := Merge([]ItemProposal{{"C3", ""}, {"A1", "1"}, {"C3", ""}})

	want := []Line{{Code: "C3", Ambiguous: true}, {Code: "A1", Quantity: 1}}
	if !reflect.DeepEqual(d.Lines, want) {
		t.Fatalf("expected %+v, got %+v", want, d.Lines)
	}
	if _, ok := d.Quantity("C3"); ok {
		t.Fatalf("ambiguous code must not report an ordered quantity")
	}
	if len(d.Resolved()) != 1 {
		t.Fatalf("expected one resolved line, got %+v", d.Resolved())
	}
}

func TestMergePreservesFirstAppearanceAndCase(t *testing.T) {
	d := Merge([]ItemProposal{{"kg990a", "1"}, {"A100", "2"}, {"KG990A", "3"}, {"kg990a", "1"}})

	want := []Line{
		{Code: "kg990a", Quantity: 2},
		{Code: "A100", Quantity: 2},
		{Code: "KG990A", Quantity: 3},
	}
	if !reflect.DeepEqual(d.Lines, want) {
		t.Fatalf("expected %+v, got %+v", want, d.Lines)
	}
}

func TestMergeEmptyInput(t *testing.T) {
	if d := Merge(nil); !d.Empty() {
		t.Fatalf("expected empty draft, got %+v", d)
	}
	if d := Merge([]ItemProposal{}); !d.Empty() {
		t.Fatalf("expected empty draft, got %+v", d)
	}
}

func TestMergeIgnoresInvalidTokens(t *testing.T) {
	d := Merge([]ItemProposal{{"A1", "dos"}, {"A1", "-1"}, {" ", "3"}, {"B2", "0"}})

	want := []Line{{Code: "B2", Quantity: 0}}
	if !reflect.DeepEqual(d.Lines, want) {
		t.Fatalf("expected %+v, got %+v", want, d.Lines)
	}
}

func TestMergeIsDeterministic(t *testing.T) {
	in := []ItemProposal{{"A1", "2"}, {"B2", ""}, {"A1", "1"}, {"C3", "7"}}

	first := Merge(in)
	second := Merge(in)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical drafts, got %+v and %+v", first, second)
	}
}

func TestMergeOverrideComesFromReseededExtraction(t *testing.T) {
	// Turn 1 the client asked for two; turn 2 the extractor, seeded with the
	// full history, already resolved "mejor ponme cuatro" to a single pair.
	turn1 := Merge([]ItemProposal{{"A1", "2"}})
	turn2 := Merge([]ItemProposal{{"A1", "4"}})

	if qty, _ := turn1.Quantity("A1"); qty != 2 {
		t.Fatalf("expected turn 1 A1=2, got %d", qty)
	}
	if qty, _ := turn2.Quantity("A1"); qty != 4 {
		t.Fatalf("expected turn 2 A1=4 (override), got %d", qty)
	}
}
