// Package configcmder provides the config command for managing persistent
// chatstream configuration stored in the .chatstream/ directory.
package configcmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatstream/pkg/cliui"
	"github.com/papercomputeco/chatstream/pkg/config"
)

const configLongDesc string = `Manage persistent chatstream configuration.

Configuration is stored as config.toml in the .chatstream/ directory and
provides default values for command flags. CLI flags and CHATSTREAM_*
environment variables take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  client.base_url, client.timeout,
  chat.greeting,
  mock.listen, mock.script, mock.delay,
  eventstream.brokers, eventstream.topic

Use subcommands to get, set, or list configuration values:
  chatstream config set <key> <value>    Set a configuration value
  chatstream config get <key>            Get a configuration value
  chatstream config list                 List all configuration values

Examples:
  chatstream config set client.base_url http://localhost:8000
  chatstream config set eventstream.brokers kafka-1:9092,kafka-2:9092
  chatstream config get client.timeout
  chatstream config list`

const configShortDesc string = "Manage persistent chatstream configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

func validateKey(key string) error {
	if !config.IsValidConfigKey(key) {
		return fmt.Errorf("unknown config key: %q\n\nValid keys: %s",
			key, strings.Join(config.ValidConfigKeys(), ", "))
	}
	return nil
}

func printTarget(w io.Writer, cfger *config.Configer) {
	if target := cfger.GetTarget(); target != "" {
		fmt.Fprintf(w, "\n  %s %s\n\n",
			cliui.KeyStyle.Render("Config file:"),
			cliui.DimStyle.Render(target),
		)
		return
	}
	fmt.Fprintf(w, "\n  %s\n\n", cliui.DimStyle.Render("No config file found. Using defaults."))
}
