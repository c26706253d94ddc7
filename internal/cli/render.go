package cli

import (
	"fmt"
	"time"

	"github.com/deploylog/deploylog/internal/changelog"
	clierrors "github.com/deploylog/deploylog/internal/errors"
	"github.com/spf13/cobra"
)

var renderCmd = &cobra.Command{
	Use:   "render <file>",
	Short: "Render a saved changelog in another format",
	Long: `Render a changelog saved with -o json or -o yaml, without contacting any
gateway. The encoding is chosen by the file extension.

With --watch the file is rendered again every time it changes, until
interrupted.`,
	Example: `  deploylog range PAY/payments-api v1.4.0 v1.5.0 -o json > release.json
  deploylog render release.json -o markdown
  deploylog render release.yml --watch`,
	GroupID: GroupChangelogs,
	Args:    argsBetween(1, 1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format := outputFlag
		if format == "" {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			format = cfg.Output
		}
		f, err := outputFormat(format)
		if err != nil {
			return err
		}

		cl, err := changelog.Load(args[0])
		if err != nil {
			return clierrors.WrapWithMessage(err, clierrors.Argument,
				fmt.Sprintf("cannot read changelog %s", args[0]),
				"Pass a file written with -o json or -o yaml")
		}

		out := cmd.OutOrStdout()
		terminal := !plainFlag && isTerminalWriter(out)
		if err := writeChangelog(out, cl, f, terminal); err != nil {
			return err
		}
		if !watchFlag {
			return nil
		}

		errOut := cmd.ErrOrStderr()
		return changelog.Watch(cmd.Context(), args[0], func(cl *changelog.Changelog, err error) {
			if err != nil {
				fmt.Fprintf(errOut, "cannot read changelog %s: %v\n", args[0], err)
				return
			}
			fmt.Fprintf(errOut, "--- %s reloaded at %s\n", args[0], time.Now().Format(time.TimeOnly))
			if err := writeChangelog(out, cl, f, terminal); err != nil {
				fmt.Fprintln(errOut, err)
			}
		})
	},
}

var watchFlag bool

func init() {
	renderCmd.Flags().BoolVarP(&watchFlag, "watch", "w", false, "Render again whenever the file changes")
	rootCmd.AddCommand(renderCmd)
}
