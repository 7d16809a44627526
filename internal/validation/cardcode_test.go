package validation

import (
	"strings"
	"testing"
)

func TestGenerateCardCode_Format(t *testing.T) {
	seen := make(map[string]bool)

	for i := 0; i < 100; i++ {
		code, err := GenerateCardCode()
		if err != nil {
			t.Fatalf("GenerateCardCode error: %v", err)
		}

		if !IsValidCardCode(code) {
			t.Fatalf("generated code %q does not pass validation", code)
		}

		if seen[code] {
			t.Fatalf("duplicate code generated: %q", code)
		}
		seen[code] = true
	}
}

func TestGenerateCardCode_NoAmbiguousChars(t *testing.T) {
	for i := 0; i < 100; i++ {
		code, err := GenerateCardCode()
		if err != nil {
			t.Fatalf("GenerateCardCode error: %v", err)
		}

		if strings.ContainsAny(code, "01IO") {
			t.Fatalf("code %q contains ambiguous characters", code)
		}
	}
}

func TestIsValidCardCode(t *testing.T) {
	tests := []struct {
		name string
		code string
		want bool
	}{
		{"valid", "GC-ABCD-2345", true},
		{"empty", "", false},
		{"wrong prefix", "XX-ABCD-2345", false},
		{"too short", "GC-ABC-2345", false},
		{"too long", "GC-ABCDE-2345", false},
		{"lowercase", "gc-abcd-2345", false},
		{"ambiguous zero", "GC-ABC0-2345", false},
		{"ambiguous letter o", "GC-ABCO-2345", false},
		{"missing dash", "GC-ABCD92345", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidCardCode(tt.code); got != tt.want {
				t.Fatalf("IsValidCardCode(%q) = %v, want %v", tt.code, got, tt.want)
			}
		})
	}
}
