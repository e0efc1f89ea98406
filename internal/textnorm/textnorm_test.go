package textnorm

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFold(t *testing.T) {
	tests := map[string]string{
		"  Café   Crème ": "cafe creme",
		"MÁLAGA":          "malaga",
		"São Paulo":       "sao paulo",
		"":                "",
	}
	for in, want := range tests {
		if got := Fold(in); got != want {
			t.Errorf("Fold(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTokensAndCompact(t *testing.T) {
	if diff := cmp.Diff([]string{"coca", "cola", "espana"}, Tokens("Coca-Cola @ España!")); diff != "" {
		t.Fatalf("tokens mismatch (-want +got):\n%s", diff)
	}
	if Compact("Coca-Cola") != Compact("cocacola") {
		t.Fatal("compact forms should match")
	}
}

func TestContainsAny(t *testing.T) {
	if !ContainsAny("Fitness coach in Malága", "malaga") {
		t.Fatal("expected diacritic-insensitive match")
	}
	if ContainsAny("travel blog", "", "food") {
		t.Fatal("unexpected match")
	}
}
