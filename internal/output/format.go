// Package output writes changelogs in the selected format and reports
// incomplete results.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/deploylog/deploylog/internal/changelog"
	"github.com/fatih/color"
	"golang.org/x/term"
)

// Format names an output format.
type Format string

const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatMarkdown Format = "markdown"
)

// Formats lists the supported format names.
func Formats() []string {
	return []string{string(FormatText), string(FormatJSON), string(FormatYAML), string(FormatMarkdown)}
}

// ParseFormat accepts a format name, case-insensitively. "md" and "yml" are
// accepted as aliases.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "txt":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unknown output format %q", s)
	}
}

// Options controls Write.
type Options struct {
	Format Format
	// Terminal enables colored text output. Plain text is used otherwise, so
	// piped output is byte-for-byte stable.
	Terminal bool
	// Width caps terminal line width; 0 detects it.
	Width int
}

// Write renders c to w.
func Write(w io.Writer, c *changelog.Changelog, opts Options) error {
	switch opts.Format {
	case "", FormatText:
		if opts.Terminal {
			return changelog.FormatTerminal(c, w, changelog.FormatOptions{MaxWidth: opts.Width})
		}
		return changelog.Render(c, w)
	case FormatJSON:
		return changelog.Encode(c, w, changelog.EncodingJSON)
	case FormatYAML:
		return changelog.Encode(c, w, changelog.EncodingYAML)
	case FormatMarkdown:
		return changelog.RenderMarkdown(c, w)
	default:
		return fmt.Errorf("unknown output format %q", opts.Format)
	}
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// WritePartialSummary lists the lookups that failed while building a
// partial changelog.
func WritePartialSummary(w io.Writer, failures []changelog.BatchFailure, plain bool) {
	yellow := color.New(color.FgYellow, color.Bold).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()
	if plain {
		yellow = fmt.Sprint
		red = fmt.Sprint
		dim = fmt.Sprint
	}

	fmt.Fprintf(w, "%s changelog is incomplete: %d failed %s\n",
		yellow("Warning:"), len(failures), pluralize(len(failures), "lookup", "lookups"))
	for _, f := range failures {
		fmt.Fprintf(w, "  %s %s batch %d %s: %v\n",
			red("✗"), f.Stage, f.Index, dim("["+summarizeKeys(f.Keys, 3)+"]"), f.Err)
	}
}

// summarizeKeys shows the first n keys, abbreviating revisions.
func summarizeKeys(keys []string, n int) string {
	shown := make([]string, 0, n)
	for i, k := range keys {
		if i == n {
			break
		}
		shown = append(shown, changelog.ShortRevision(k))
	}
	s := strings.Join(shown, ", ")
	if len(keys) > n {
		s += fmt.Sprintf(", +%d more", len(keys)-n)
	}
	return s
}

func pluralize(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
