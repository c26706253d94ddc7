package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/deploylog/deploylog/internal/config"
	clierrors "github.com/deploylog/deploylog/internal/errors"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	initUserFlag  bool
	initForceFlag bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and create deploylog configuration",
	Long: `Inspect and create deploylog configuration.

Configuration is loaded with the following priority (highest to lowest):
  1. Command-line flags (--output, --batch-size, ...)
  2. Environment variables (DEPLOYLOG_*, '__' between nested keys)
  3. A .env file in the working directory
  4. Project config (.deploylog/config.yml or .deploylog/config.json)
  5. User config (~/.config/deploylog/config.yml)
  6. Built-in defaults`,
	Example: `  # Show the merged configuration with secrets masked
  deploylog config show

  # List every key with its environment variable
  deploylog config keys

  # Write a commented project config
  deploylog config init`,
	GroupID: GroupConfiguration,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the merged configuration as YAML",
	Args:  argsBetween(0, 0),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(cfg.Redacted()); err != nil {
			return fmt.Errorf("encoding configuration: %w", err)
		}
		return enc.Close()
	},
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List configuration keys and their environment variables",
	Args:  argsBetween(0, 0),
	Run: func(cmd *cobra.Command, args []string) {
		bold := color.New(color.Bold).SprintFunc()
		dim := color.New(color.Faint).SprintFunc()
		if plainFlag {
			bold, dim = fmt.Sprint, fmt.Sprint
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "%s\t%s\t%s\n", bold("KEY"), bold("ENVIRONMENT"), bold("DESCRIPTION"))
		for _, k := range config.KnownKeys {
			desc := k.Description
			if len(k.AllowedValues) > 0 {
				desc += " " + dim("("+strings.Join(k.AllowedValues, " | ")+")")
			}
			if k.Secret {
				desc += " " + dim("[secret]")
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", k.Path, config.EnvName(k.Path), desc)
		}
		_ = tw.Flush()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a commented config file",
	Long: `Write a commented configuration template.

By default the project config .deploylog/config.yml is created; --user
writes the user config instead. An existing file is left unchanged unless
--force is given.`,
	Args: argsBetween(0, 0),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.ProjectConfigPath()
		if initUserFlag {
			p, err := config.UserConfigPath()
			if err != nil {
				return clierrors.WrapWithMessage(err, clierrors.Configuration, "cannot locate the user config directory")
			}
			path = p
		}

		if _, err := os.Stat(path); err == nil && !initForceFlag {
			return clierrors.NewConfigError(
				fmt.Sprintf("%s already exists", path),
				"Pass --force to overwrite it with the template")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
		if err := os.WriteFile(path, []byte(config.GetDefaultConfigTemplate()), 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		green := color.New(color.FgGreen).SprintFunc()
		if plainFlag {
			green = fmt.Sprint
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Created %s\n", green("✓"), path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&initUserFlag, "user", false, "Write the user config instead of the project config")
	configInitCmd.Flags().BoolVarP(&initForceFlag, "force", "f", false, "Overwrite an existing config file")
	configCmd.AddCommand(configShowCmd, configKeysCmd, configInitCmd)
	rootCmd.AddCommand(configCmd)
}
