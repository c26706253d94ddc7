package errors

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

type styles struct {
	label, category, message func(a ...any) string
	usageLabel, usage        func(a ...any) string
	fixLabel, bullet         func(a ...any) string
}

var (
	colored = styles{
		label:      color.New(color.FgRed, color.Bold).SprintFunc(),
		category:   color.New(color.FgYellow).SprintFunc(),
		message:    color.New(color.FgRed).SprintFunc(),
		usageLabel: color.New(color.FgCyan, color.Bold).SprintFunc(),
		usage:      color.New(color.FgCyan).SprintFunc(),
		fixLabel:   color.New(color.FgGreen, color.Bold).SprintFunc(),
		bullet:     color.New(color.FgGreen).SprintFunc(),
	}
	uncolored = styles{
		label: fmt.Sprint, category: fmt.Sprint, message: fmt.Sprint,
		usageLabel: fmt.Sprint, usage: fmt.Sprint,
		fixLabel: fmt.Sprint, bullet: fmt.Sprint,
	}
)

// Format renders err as the CLI prints it:
//
//	Error [Argument Error]: invalid repository: "payments"
//
//	Usage: deploylog range <PROJECT/repo> <start> <end>
//
//	To fix this:
//	  • Repositories are named PROJECT/repo (e.g., PAY/payments-api)
//
// Colors follow fatih/color's terminal detection unless plain is set.
func Format(err *CLIError, plain bool) string {
	if err == nil {
		return ""
	}
	st := colored
	if plain {
		st = uncolored
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s [%s]: %s\n", st.label("Error"), st.category(err.Category.String()), st.message(err.Message))
	if err.Usage != "" {
		fmt.Fprintf(&sb, "\n%s%s\n", st.usageLabel("Usage: "), st.usage(err.Usage))
	}
	if len(err.Remediation) > 0 {
		fmt.Fprintf(&sb, "\n%s\n", st.fixLabel("To fix this:"))
		for _, step := range err.Remediation {
			fmt.Fprintf(&sb, "  %s %s\n", st.bullet("•"), step)
		}
	}
	return sb.String()
}

// FprintError prints a formatted CLIError to w, without colors when plain is set.
func FprintError(w io.Writer, err *CLIError, plain bool) {
	fmt.Fprint(w, Format(err, plain))
}
