package cli

import (
	"fmt"
	"io"
	"runtime"

	"github.com/deploylog/deploylog/internal/version"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:     "version",
	Aliases: []string{"v"},
	Short:   "Display version information (v)",
	Long:    "Display version, commit, build date, and Go version information for deploylog",
	Example: `  # Show version info
  deploylog version

  # Plain output (for scripts)
  deploylog version --plain`,
	GroupID: GroupConfiguration,
	Args:    argsBetween(0, 0),
	Run: func(cmd *cobra.Command, args []string) {
		if plainFlag {
			printPlainVersion(cmd.OutOrStdout())
			return
		}
		printPrettyVersion(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// printPlainVersion prints a simple version output for scripting
func printPlainVersion(w io.Writer) {
	fmt.Fprintf(w, "deploylog %s\n", version.Version)
	fmt.Fprintf(w, "commit: %s\n", version.Commit)
	fmt.Fprintf(w, "built: %s\n", version.BuildDate)
	fmt.Fprintf(w, "go: %s\n", runtime.Version())
	fmt.Fprintf(w, "platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

func printPrettyVersion(w io.Writer) {
	bold := color.New(color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()
	label := color.New(color.FgCyan).SprintFunc()

	fmt.Fprintf(w, "%s %s\n", bold("deploylog"), bold(version.Version))
	if version.IsDevBuild() {
		fmt.Fprintf(w, "%s\n", dim("development build"))
	}
	fmt.Fprintf(w, "  %s   %s\n", label("commit"), version.Commit)
	fmt.Fprintf(w, "  %s    %s\n", label("built"), version.BuildDate)
	fmt.Fprintf(w, "  %s       %s\n", label("go"), runtime.Version())
	fmt.Fprintf(w, "  %s %s/%s\n", label("platform"), runtime.GOOS, runtime.GOARCH)
}
