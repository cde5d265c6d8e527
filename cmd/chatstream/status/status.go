// Package statuscmder provides the status command for displaying the resolved
// chatstream configuration and checking that the chat backend is reachable.
package statuscmder

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatstream/pkg/cliui"
	"github.com/papercomputeco/chatstream/pkg/config"
	"github.com/papercomputeco/chatstream/pkg/utils"
)

const statusLongDesc string = `Show the resolved chatstream configuration and probe the backend.

Prints the base URL, timeout, greeting, and event stream settings after
applying flags, CHATSTREAM_* environment variables, and config.toml. Then sends
a GET to the base URL: any HTTP response counts as reachable.

Examples:
  chatstream status
  chatstream status --base-url http://localhost:9000`

const statusShortDesc string = "Show configuration and backend reachability"

const probeTimeout = 5 * time.Second

var statusFlags = []string{config.FlagBaseURL}

type statusCommander struct {
	baseURL  string
	timeout  string
	greeting string
	brokers  []string
	topic    string
	target   string
}

func NewStatusCmd() *cobra.Command {
	cmder := &statusCommander{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: statusShortDesc,
		Long:  statusLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, statusFlags)

			cmder.baseURL = v.GetString("client.base_url")
			cmder.timeout = v.GetString("client.timeout")
			cmder.greeting = v.GetString("chat.greeting")
			cmder.brokers = config.Brokers(v)
			cmder.topic = v.GetString("eventstream.topic")
			cmder.target = v.ConfigFileUsed()
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context(), cmd.OutOrStdout())
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagBaseURL, &cmder.baseURL)

	return cmd
}

func (c *statusCommander) run(ctx context.Context, w io.Writer) error {
	fmt.Fprintln(w)
	if c.target != "" {
		c.row(w, "Config file:", cliui.DimStyle.Render(c.target))
	} else {
		c.row(w, "Config file:", cliui.DimStyle.Render("<defaults>"))
	}
	c.row(w, "Base URL:   ", cliui.ValueStyle.Render(c.baseURL))
	c.row(w, "Timeout:    ", cliui.ValueStyle.Render(c.timeout))
	if c.greeting == "" {
		c.row(w, "Greeting:   ", cliui.DimStyle.Render("<none>"))
	} else {
		c.row(w, "Greeting:   ", cliui.ValueStyle.Render(utils.Truncate(c.greeting, 60)))
	}
	if len(c.brokers) == 0 {
		c.row(w, "Events:     ", cliui.DimStyle.Render("disabled"))
	} else {
		c.row(w, "Events:     ", cliui.ValueStyle.Render(c.topic+" @ "+strings.Join(c.brokers, ",")))
	}
	fmt.Fprintln(w)

	var status int
	err := cliui.Step(w, "Probing "+c.baseURL, func() error {
		var err error
		status, err = probe(ctx, c.baseURL)
		return err
	})
	if err != nil {
		return fmt.Errorf("backend unreachable: %w", err)
	}

	fmt.Fprintf(w, "  %s %s\n\n", cliui.DimStyle.Render("HTTP"), cliui.NameStyle.Render(fmt.Sprintf("%d %s", status, http.StatusText(status))))
	return nil
}

func (c *statusCommander) row(w io.Writer, key, value string) {
	fmt.Fprintf(w, "  %s  %s\n", cliui.KeyStyle.Render(key), value)
}

// probe returns the status code of a GET to baseURL. Any response, including
// 404 or 5xx, means the server is up.
func probe(ctx context.Context, baseURL string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL, nil)
	if err != nil {
		return 0, fmt.Errorf("building probe request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	return resp.StatusCode, nil
}
