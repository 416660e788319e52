// Package color decides whether styled output keeps its ANSI sequences.
//
// Colour is off when NO_COLOR is set (any value, see https://no-color.org/)
// or when the output is not a terminal. Turning it off switches lipgloss to
// the Ascii profile so every Render call yields plain text.
package color

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/charmbracelet/x/term"
	"github.com/muesli/termenv"
)

// Disabled reports whether colour should be suppressed.
func Disabled(lookupEnv func(string) (string, bool), isTerminal bool) bool {
	if _, ok := lookupEnv("NO_COLOR"); ok {
		return true
	}
	return !isTerminal
}

// Apply inspects out and the environment, and switches lipgloss to plain
// output when colour is disabled. It returns true when colour stays on.
func Apply(out *os.File) bool {
	if Disabled(os.LookupEnv, term.IsTerminal(out.Fd())) {
		ForceDisable()
		return false
	}
	return true
}

// ForceDisable switches lipgloss to plain output unconditionally.
func ForceDisable() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

// StripANSI removes escape sequences that bypassed lipgloss.
func StripANSI(s string) string {
	return ansi.Strip(s)
}
