package color

import (
	"testing"

	"github.com/charmbracelet/lipgloss"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func TestDisabled(t *testing.T) {
	tests := []struct {
		name       string
		vars       map[string]string
		isTerminal bool
		want       bool
	}{
		{"terminal without NO_COLOR", nil, true, false},
		{"NO_COLOR empty", map[string]string{"NO_COLOR": ""}, true, true},
		{"NO_COLOR set", map[string]string{"NO_COLOR": "1"}, true, true},
		{"pipe", nil, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Disabled(env(tt.vars), tt.isTerminal); got != tt.want {
				t.Errorf("Disabled() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestForceDisable(t *testing.T) {
	ForceDisable()
	got := lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true).Render("hot")
	if got != "hot" {
		t.Errorf("expected plain text after ForceDisable, got %q", got)
	}
}

func TestStripANSI(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"\x1b[31mred\x1b[0m", "red"},
		{"\x1b[1;38;2;34;197;94m● Connected\x1b[0m", "● Connected"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := StripANSI(tt.in); got != tt.want {
			t.Errorf("StripANSI(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
