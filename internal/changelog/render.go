package changelog

import (
	"fmt"
	"io"
	"strings"
)

// Render writes the plain-text changelog to w: a header naming the range,
// one block per change-request ordered by first appearance of its commits,
// then commits that belong to no change-request.
//
// The output depends only on c, so rendering the same changelog twice yields
// identical bytes. A nil changelog renders as "No changes.".
func Render(c *Changelog, w io.Writer) error {
	var b strings.Builder
	writeText(c, &b)
	_, err := io.WriteString(w, b.String())
	return err
}

// RenderString is a convenience function that renders to a string.
func RenderString(c *Changelog) string {
	var b strings.Builder
	writeText(c, &b)
	return b.String()
}

func writeText(c *Changelog, b *strings.Builder) {
	if c == nil {
		b.WriteString("No changes.\n")
		return
	}
	fmt.Fprintf(b, "Changelog for %s (%s..%s)\n",
		c.Range.Repository, ShortRevision(c.Range.StartRevision), ShortRevision(c.Range.EndRevision))

	if c.IsEmpty() {
		fmt.Fprintf(b, "No changes between %s and %s.\n",
			ShortRevision(c.Range.StartRevision), ShortRevision(c.Range.EndRevision))
		return
	}

	fmt.Fprintf(b, "%s, %s, %s\n",
		plural(len(c.Commits), "commit", "commits"),
		plural(len(c.ChangeRequests), "change request", "change requests"),
		plural(len(c.Issues), "issue", "issues"))

	for _, cr := range c.OrderedChangeRequests() {
		b.WriteString("\n")
		fmt.Fprintf(b, "Change request %s: %s", cr.ID, cr.Title)
		if cr.State != "" {
			fmt.Fprintf(b, " [%s]", cr.State)
		}
		b.WriteString("\n")

		if issues := c.IssuesFor(cr.ID); len(issues) > 0 {
			b.WriteString("  Issues:\n")
			for _, issue := range issues {
				fmt.Fprintf(b, "    %s  %s", issue.Key, issue.Summary)
				if issue.Status != "" {
					fmt.Fprintf(b, " (%s)", issue.Status)
				}
				b.WriteString("\n")
			}
		}

		b.WriteString("  Commits:\n")
		for _, commit := range c.CommitsFor(cr.ID) {
			writeCommitLine(b, commit)
		}
	}

	if ungrouped := c.UngroupedCommits(); len(ungrouped) > 0 {
		b.WriteString("\nCommits without a change request:\n")
		for _, commit := range ungrouped {
			writeCommitLine(b, commit)
		}
	}
}

func writeCommitLine(b *strings.Builder, commit Commit) {
	fmt.Fprintf(b, "    %s  %s  %s\n", commit.ShortID(), authorOrUnknown(commit.Author), commit.Subject())
}

// RenderMarkdown writes the changelog as a markdown document with the same
// ordering as Render.
func RenderMarkdown(c *Changelog, w io.Writer) error {
	if c == nil {
		_, err := io.WriteString(w, "_No changes._\n")
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Changelog for %s\n\n", c.Range.Repository)
	fmt.Fprintf(&b, "`%s`..`%s`\n", ShortRevision(c.Range.StartRevision), ShortRevision(c.Range.EndRevision))

	if c.IsEmpty() {
		b.WriteString("\n_No changes._\n")
		_, err := io.WriteString(w, b.String())
		return err
	}

	for _, cr := range c.OrderedChangeRequests() {
		b.WriteString("\n")
		if cr.URL != "" {
			fmt.Fprintf(&b, "## [%s](%s) %s", cr.ID, cr.URL, escapeMarkdown(cr.Title))
		} else {
			fmt.Fprintf(&b, "## %s %s", cr.ID, escapeMarkdown(cr.Title))
		}
		if cr.State != "" {
			fmt.Fprintf(&b, " (%s)", cr.State)
		}
		b.WriteString("\n")

		if issues := c.IssuesFor(cr.ID); len(issues) > 0 {
			b.WriteString("\n**Issues**\n\n")
			for _, issue := range issues {
				key := issue.Key
				if issue.URL != "" {
					key = fmt.Sprintf("[%s](%s)", issue.Key, issue.URL)
				}
				fmt.Fprintf(&b, "- %s: %s", key, escapeMarkdown(issue.Summary))
				if issue.Status != "" {
					fmt.Fprintf(&b, " (%s)", issue.Status)
				}
				b.WriteString("\n")
			}
		}

		b.WriteString("\n**Commits**\n\n")
		for _, commit := range c.CommitsFor(cr.ID) {
			writeMarkdownCommit(&b, commit)
		}
	}

	if ungrouped := c.UngroupedCommits(); len(ungrouped) > 0 {
		b.WriteString("\n## Other commits\n\n")
		for _, commit := range ungrouped {
			writeMarkdownCommit(&b, commit)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// RenderMarkdownString is a convenience function that renders markdown to a string.
func RenderMarkdownString(c *Changelog) (string, error) {
	var b strings.Builder
	if err := RenderMarkdown(c, &b); err != nil {
		return "", err
	}
	return b.String(), nil
}

func writeMarkdownCommit(b *strings.Builder, commit Commit) {
	fmt.Fprintf(b, "- `%s` %s (%s)\n", commit.ShortID(), escapeMarkdown(commit.Subject()), authorOrUnknown(commit.Author))
}

func escapeMarkdown(s string) string {
	replacer := strings.NewReplacer("*", `\*`, "_", `\_`, "`", "\\`", "[", `\[`, "]", `\]`)
	return replacer.Replace(s)
}

func authorOrUnknown(author string) string {
	if author == "" {
		return "unknown"
	}
	return author
}

func plural(n int, singular, many string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, singular)
	}
	return fmt.Sprintf("%d %s", n, many)
}
