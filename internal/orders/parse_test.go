package orders

import (
	"reflect"
	"testing"
)

func TestParseProposals(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []ItemProposal
	}{
		{
			name: "well formed",
			raw:  `{"items": [["8741", "3"], ["GFT543", "3"]]}`,
			want: []ItemProposal{{"8741", "3"}, {"GFT543", "3"}},
		},
		{
			name: "empty quantity and unquoted integer",
			raw:  `{"items": [["B2", ""], ["C3", 4]]}`,
			want: []ItemProposal{{"B2", ""}, {"C3", "4"}},
		},
		{
			name: "truncated output keeps complete pairs",
			raw:  `{"items": [["A1", "2"], ["B2", "`,
			want: []ItemProposal{{"A1", "2"}},
		},
		{
			name: "prose",
			raw:  "Claro, te preparo el pedido.",
			want: nil,
		},
		{
			name: "empty items",
			raw:  `{ "items": [] }`,
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseProposals(tt.raw)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestUnparsableExtractionYieldsEmptyDraft(t *testing.T) {
	if d := Merge(ParseProposals("<<not json>>")); !d.Empty() {
		t.Fatalf("expected empty draft, got %+v", d)
	}
}

func TestParseOrderVerdict(t *testing.T) {
	cases := map[string]bool{
		`{"order": true}`:                     true,
		`{ "order": false }`:                  false,
		`Sure! {"Order": TRUE} hope it helps`: true,
		``:                                    false,
		`{"order": "maybe"}`:                  false,
		`not json at all`:                     false,
	}
	for raw, want := range cases {
		if got := ParseOrderVerdict(raw); got != want {
			t.Fatalf("%q: expected %v, got %v", raw, want, got)
		}
	}
}

func TestParseAssistantReply(t *testing.T) {
	text, ok := ParseAssistantReply(`{"responder": true, "respuesta": "Envíame códigos y cantidades, por ejemplo 2 x KG500."}`)
	if !ok || text != "Envíame códigos y cantidades, por ejemplo 2 x KG500." {
		t.Fatalf("unexpected reply %q (ok=%v)", text, ok)
	}

	if _, ok := ParseAssistantReply(`{"responder": false}`); ok {
		t.Fatalf("expected no reply when responder is false")
	}
	if _, ok := ParseAssistantReply(`{"responder": true, "respuesta": "   "}`); ok {
		t.Fatalf("expected blank reply to count as no reply")
	}

	text, ok = ParseAssistantReply(`prefix "responder": true, "respuesta": "Tu comercial te atenderá pronto`)
	if !ok || text != "Tu comercial te atenderá pronto" {
		t.Fatalf("expected tolerant fallback, got %q (ok=%v)", text, ok)
	}
}
