// Package manpage generates a roff man(1) page for gpu-pulse from the live
// command tree and the dashboard key bindings, so the page never drifts
// from the flags the binary actually accepts.
//
// Usage:
//
//	gpu-pulse man | man -l -
//	gpu-pulse man > ~/.local/share/man/man1/gpu-pulse.1
package manpage

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"gitlab.com/tinyland/lab/gpu-pulse/config"
	"gitlab.com/tinyland/lab/gpu-pulse/display/tui"
)

// Generate produces the page for root and its visible subcommands.
func Generate(root *cobra.Command, version, commit, date string) string {
	var b strings.Builder

	writeHeader(&b, root.Name(), version)
	writeName(&b, root)
	writeSynopsis(&b, root)
	writeDescription(&b, root)
	writeGlobalOptions(&b, root)
	writeCommands(&b, root)
	writeKeybindings(&b)
	writeEnvironment(&b)
	writeFiles(&b, root.Name())
	writeExitStatus(&b)
	writeFooter(&b, version, commit, date)

	return b.String()
}

// roffEscape escapes special roff characters in a string.
func roffEscape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `-`, `\-`)
	var lines []string
	for _, l := range strings.Split(s, "\n") {
		if strings.HasPrefix(l, ".") || strings.HasPrefix(l, "'") {
			l = `\&` + l
		}
		lines = append(lines, l)
	}
	return strings.Join(lines, "\n")
}

func writeHeader(b *strings.Builder, name, version string) {
	month := time.Now().Format("January 2006")
	fmt.Fprintf(b, ".TH %s 1 \"%s\" \"%s %s\" \"User Commands\"\n", strings.ToUpper(name), month, name, version)
}

func writeName(b *strings.Builder, root *cobra.Command) {
	fmt.Fprintf(b, ".SH NAME\n%s \\- %s\n", roffEscape(root.Name()), roffEscape(root.Short))
}

func writeSynopsis(b *strings.Builder, root *cobra.Command) {
	fmt.Fprintf(b, ".SH SYNOPSIS\n.B %s\n\\fICOMMAND\\fR [\\fIOPTIONS\\fR]\n", roffEscape(root.Name()))
}

func writeDescription(b *strings.Builder, root *cobra.Command) {
	b.WriteString(".SH DESCRIPTION\n.nf\n")
	b.WriteString(roffEscape(strings.TrimSpace(root.Long)) + "\n")
	b.WriteString(".fi\n")
}

func writeGlobalOptions(b *strings.Builder, root *cobra.Command) {
	b.WriteString(".SH GLOBAL OPTIONS\n")
	writeFlags(b, root.PersistentFlags())
}

func writeCommands(b *strings.Builder, root *cobra.Command) {
	b.WriteString(".SH COMMANDS\n")

	cmds := append([]*cobra.Command(nil), root.Commands()...)
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name() < cmds[j].Name() })
	for _, c := range cmds {
		if c.Hidden || !c.IsAvailableCommand() {
			continue
		}
		fmt.Fprintf(b, ".SS %s\n", roffEscape(c.UseLine()))
		desc := c.Long
		if desc == "" {
			desc = c.Short
		}
		b.WriteString(".nf\n" + roffEscape(strings.TrimSpace(desc)) + "\n.fi\n")
		if c.HasAvailableLocalFlags() {
			writeFlags(b, c.LocalNonPersistentFlags())
		}
	}
}

func writeFlags(b *strings.Builder, flags *pflag.FlagSet) {
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Hidden {
			return
		}
		b.WriteString(".TP\n")
		name := "\\-\\-" + roffEscape(f.Name)
		if f.Shorthand != "" {
			name = "\\-" + f.Shorthand + ", " + name
		}
		if f.Value.Type() == "bool" {
			fmt.Fprintf(b, ".B %s\n", name)
		} else {
			fmt.Fprintf(b, ".BR \"%s\" \" \\fI%s\\fR\"\n", name, f.Value.Type())
		}
		usage := f.Usage
		if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "[]" {
			usage += fmt.Sprintf(" (default %s)", f.DefValue)
		}
		b.WriteString(roffEscape(usage) + "\n")
	})
}

func writeKeybindings(b *strings.Builder) {
	b.WriteString(".SH DASHBOARD KEYS\n")
	for _, k := range tui.Bindings() {
		fmt.Fprintf(b, ".TP\n.B %s\n%s\n", roffEscape(strings.Join(k.Keys(), ", ")), roffEscape(k.Help().Desc))
	}
	b.WriteString(".PP\nButtons can also be clicked with the mouse.\n")
}

func writeEnvironment(b *strings.Builder) {
	b.WriteString(".SH ENVIRONMENT\n")
	vars := []struct{ name, desc string }{
		{config.EnvListen, "Overrides server.listen."},
		{config.EnvServerURL, "Overrides dashboard.server_url."},
		{config.EnvLogLevel, "Overrides logging.level."},
		{config.EnvLogFile, "Overrides logging.file."},
		{"NO_COLOR", "Disables colored output when set."},
	}
	for _, v := range vars {
		fmt.Fprintf(b, ".TP\n.B %s\n%s\n", v.name, v.desc)
	}
}

func writeFiles(b *strings.Builder, name string) {
	fmt.Fprintf(b, `.SH FILES
.TP
.I ~/.config/%[1]s/config.yaml
Configuration file (YAML).
.TP
.I ~/.cache/%[1]s/
Last result of each benchmark run with the bench command.
`, roffEscape(name))
}

func writeExitStatus(b *strings.Builder) {
	b.WriteString(".SH EXIT STATUS\n")
	b.WriteString(".TP\n.B 0\n")
	b.WriteString("Success. For \\fBhealth\\fR, the server reported healthy.\n")
	b.WriteString(".TP\n.B 1\n")
	b.WriteString("Failure. For \\fBhealth\\fR, the server is unreachable or unhealthy.\n")
}

func writeFooter(b *strings.Builder, version, commit, date string) {
	fmt.Fprintf(b, ".SH VERSION\n%s (%s) built %s\n", version, commit, date)
}
