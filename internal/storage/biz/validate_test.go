package biz

import (
	"strings"
	"testing"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "report.pdf", false},
		{"spaces", "my report final.pdf", false},
		{"unicode", "отчёт.txt", false},
		{"max length", strings.Repeat("a", 255), false},
		{"empty", "", true},
		{"too long", strings.Repeat("a", 256), true},
		{"slash", "a/b", true},
		{"backslash", `a\b`, true},
		{"angle brackets", "a<b>", true},
		{"colon", "a:b", true},
		{"quote", `a"b`, true},
		{"pipe", "a|b", true},
		{"question mark", "a?b", true},
		{"asterisk", "a*b", true},
		{"dot", ".", true},
		{"dot dot", "..", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}
