package conversation

import "testing"

func TestOperatorDisplayNameFallback(t *testing.T) {
	if got := (Operator{Name: "  "}).DisplayName(); got != DefaultOperatorName {
		t.Fatalf("expected fallback %q, got %q", DefaultOperatorName, got)
	}
	if got := (Operator{Name: "Lucía"}).DisplayName(); got != "Lucía" {
		t.Fatalf("expected operator name, got %q", got)
	}
}

func TestFlattenNewlines(t *testing.T) {
	got := FlattenNewlines("PEDIDO:\r\n8741 x1\nGFT543 x3\n")
	if want := `PEDIDO: \8741 x1 \GFT543 x3`; got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestDirectionValid(t *testing.T) {
	if !DirectionReceived.Valid() || !DirectionSent.Valid() {
		t.Fatalf("canonical directions must be valid")
	}
	if Direction("sended").Valid() {
		t.Fatalf("legacy spelling must be rejected")
	}
}
