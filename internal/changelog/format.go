package changelog

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// stateStyles maps change-request states to their terminal color.
var stateStyles = map[string]*color.Color{
	"MERGED":   color.New(color.FgGreen),
	"OPEN":     color.New(color.FgBlue),
	"OPENED":   color.New(color.FgBlue),
	"DECLINED": color.New(color.FgRed),
	"CLOSED":   color.New(color.FgRed),
}

// FormatOptions controls the terminal output formatting.
type FormatOptions struct {
	Plain    bool // Disable colors
	MaxWidth int  // Maximum line width (0 = auto-detect)
}

// FormatTerminal writes the changelog with terminal styling. With Plain set
// the output is exactly Render's.
func FormatTerminal(c *Changelog, w io.Writer, opts FormatOptions) error {
	if opts.Plain {
		return Render(c, w)
	}

	width := resolveWidth(opts.MaxWidth)
	bold := color.New(color.Bold).SprintFunc()
	faint := color.New(color.Faint).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	if c == nil {
		_, err := fmt.Fprintln(w, faint("No changes."))
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", bold("Changelog for "+c.Range.Repository.String()),
		faint(fmt.Sprintf("(%s..%s)", ShortRevision(c.Range.StartRevision), ShortRevision(c.Range.EndRevision))))

	if c.IsEmpty() {
		fmt.Fprintf(&b, "%s\n", faint(fmt.Sprintf("No changes between %s and %s.",
			ShortRevision(c.Range.StartRevision), ShortRevision(c.Range.EndRevision))))
		_, err := io.WriteString(w, b.String())
		return err
	}

	fmt.Fprintf(&b, "%s\n", faint(fmt.Sprintf("%s, %s, %s",
		plural(len(c.Commits), "commit", "commits"),
		plural(len(c.ChangeRequests), "change request", "change requests"),
		plural(len(c.Issues), "issue", "issues"))))

	commitLine := func(commit Commit) {
		prefix := fmt.Sprintf("    %s  %s  ", commit.ShortID(), authorOrUnknown(commit.Author))
		subject := truncateText(commit.Subject(), width-len(prefix))
		fmt.Fprintf(&b, "    %s  %s  %s\n", yellow(commit.ShortID()), faint(authorOrUnknown(commit.Author)), subject)
	}

	for _, cr := range c.OrderedChangeRequests() {
		b.WriteString("\n")
		fmt.Fprintf(&b, "%s %s", bold(cr.ID.String()), bold(cr.Title))
		if cr.State != "" {
			style, ok := stateStyles[strings.ToUpper(cr.State)]
			if !ok {
				style = color.New(color.Faint)
			}
			fmt.Fprintf(&b, " %s", style.Sprint(cr.State))
		}
		b.WriteString("\n")

		for _, issue := range c.IssuesFor(cr.ID) {
			line := fmt.Sprintf("  %s  %s", cyan(issue.Key), issue.Summary)
			if issue.Status != "" {
				line += " " + faint("("+issue.Status+")")
			}
			b.WriteString(line + "\n")
		}
		for _, commit := range c.CommitsFor(cr.ID) {
			commitLine(commit)
		}
	}

	if ungrouped := c.UngroupedCommits(); len(ungrouped) > 0 {
		fmt.Fprintf(&b, "\n%s\n", bold("Commits without a change request"))
		for _, commit := range ungrouped {
			commitLine(commit)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// resolveWidth determines the terminal width to use.
func resolveWidth(maxWidth int) int {
	if maxWidth > 0 {
		return maxWidth
	}
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return 100
}

// truncateText truncates text to maxLen, adding ellipsis if needed.
func truncateText(text string, maxLen int) string {
	if maxLen < 4 || len(text) <= maxLen {
		return text
	}
	return text[:maxLen-3] + "..."
}
