package manpage

import (
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"gitlab.com/tinyland/lab/gpu-pulse/config"
)

func testRoot() *cobra.Command {
	root := &cobra.Command{
		Use:   "gpu-pulse",
		Short: "GPU telemetry dashboard",
		Long:  "gpu-pulse pairs a backend with a dashboard.\n.starts with a dot",
	}
	root.PersistentFlags().StringP("config", "c", "", "config file")

	bench := &cobra.Command{Use: "bench <type>", Short: "Run one benchmark", Run: func(*cobra.Command, []string) {}}
	bench.Flags().Int("size", 0, "matrix size")
	bench.Flags().String("via", "call", "call, baseline or feed")
	bench.Flags().Bool("json", false, "print JSON")

	hidden := &cobra.Command{Use: "secret", Hidden: true, Run: func(*cobra.Command, []string) {}}
	root.AddCommand(bench, hidden)
	return root
}

func TestGenerateSections(t *testing.T) {
	page := Generate(testRoot(), "0.3.0", "abc1234", "2026-02-06")

	if !strings.HasPrefix(page, ".TH GPU-PULSE 1") {
		t.Errorf("page should start with .TH header, got: %.60s", page)
	}
	for _, section := range []string{
		".SH NAME", ".SH SYNOPSIS", ".SH DESCRIPTION", ".SH GLOBAL OPTIONS",
		".SH COMMANDS", ".SH DASHBOARD KEYS", ".SH ENVIRONMENT", ".SH FILES",
		".SH EXIT STATUS", ".SH VERSION",
	} {
		if !strings.Contains(page, section) {
			t.Errorf("page missing section %s", section)
		}
	}
}

func TestGenerateVersion(t *testing.T) {
	page := Generate(testRoot(), "1.2.3", "deadbeef", "2026-02-06")
	if !strings.Contains(page, "1.2.3 (deadbeef) built 2026-02-06") {
		t.Error("page should contain version, commit and date")
	}
}

func TestGenerateCommandsAndFlags(t *testing.T) {
	page := Generate(testRoot(), "0.3.0", "dev", "unknown")

	for _, want := range []string{
		`.SS gpu\-pulse bench <type> [flags]`,
		`\-\-size`,
		`\-\-via`,
		"(default call)",
		`.B \-\-json`,
		`\-c, \-\-config`,
	} {
		if !strings.Contains(page, want) {
			t.Errorf("page missing %q", want)
		}
	}
	if strings.Contains(page, "secret") {
		t.Error("hidden commands must not be documented")
	}
}

func TestGenerateKeysAndEnvironment(t *testing.T) {
	page := Generate(testRoot(), "0.3.0", "dev", "unknown")

	for _, want := range []string{"compare gpu/cpu", "larger matrix", config.EnvServerURL, "NO_COLOR"} {
		if !strings.Contains(page, want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestRoffEscape(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"gpu-pulse", `gpu\-pulse`},
		{`a\b`, `a\\b`},
		{".starts", `\&.starts`},
		{"line\n.next", "line\n\\&.next"},
		{"v0.3.0", "v0.3.0"},
	}
	for _, tt := range tests {
		if got := roffEscape(tt.in); got != tt.want {
			t.Errorf("roffEscape(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
