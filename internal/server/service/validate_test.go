package service

import (
	"strings"
	"testing"
)

func TestValidName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"simple", "Documents", true},
		{"with spaces", "My Tax Returns 2025", true},
		{"unicode", "résumé.pdf", true},
		{"dotfile", ".bashrc", true},
		{"empty", "", false},
		{"dot", ".", false},
		{"dotdot", "..", false},
		{"slash", "a/b", false},
		{"backslash", `a\b`, false},
		{"nul", "a\x00b", false},
		{"newline", "a\nb", false},
		{"tab", "a\tb", false},
		{"max length", strings.Repeat("x", 255), true},
		{"too long", strings.Repeat("x", 256), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := validName(tt.input); got != tt.want {
				t.Errorf("validName(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
