// Package mockcmder provides the mock command, which serves the scripted
// fixture backend for local development.
package mockcmder

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatstream/pkg/config"
	"github.com/papercomputeco/chatstream/pkg/fixture"
	"github.com/papercomputeco/chatstream/pkg/logger"
)

type mockCommander struct {
	listen string
	script string
	delay  string
	debug  bool
}

const mockLongDesc string = `Run a scripted chat backend.

Serves GET /chat_stream with the same event stream as a real backend, replaying
a TOML script for every message. New threads get a fresh checkpoint id.
"{{message}}" in scripted content and queries is replaced by the user's message.

Script format:
  delay = "50ms"

  [[events]]
  type = "content"
  content = "You asked about {{message}}."

  [[events]]
  type = "search_start"
  query = "{{message}}"

  [[events]]
  type = "search_results"
  urls = ["https://example.com"]

Examples:
  chatstream mock
  chatstream mock --listen :9000 --script demo.toml --delay 100ms`

const mockShortDesc string = "Run a scripted chat backend"

var mockFlags = []string{config.FlagMockListen, config.FlagMockScript, config.FlagMockDelay}

func NewMockCmd() *cobra.Command {
	cmder := &mockCommander{}

	cmd := &cobra.Command{
		Use:   "mock",
		Short: mockShortDesc,
		Long:  mockLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, mockFlags)

			cmder.listen = v.GetString("mock.listen")
			cmder.script = v.GetString("mock.script")
			cmder.delay = v.GetString("mock.delay")
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run()
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagMockListen, &cmder.listen)
	config.AddStringFlag(cmd, config.Flags, config.FlagMockScript, &cmder.script)
	config.AddStringFlag(cmd, config.Flags, config.FlagMockDelay, &cmder.delay)

	return cmd
}

func (c *mockCommander) run() error {
	log := logger.New(logger.WithDebug(c.debug), logger.WithPretty(true), logger.WithWriter(os.Stderr))

	serverCfg, err := c.serverConfig()
	if err != nil {
		return err
	}
	serverCfg.Logger = log

	server, err := fixture.NewServer(serverCfg)
	if err != nil {
		return fmt.Errorf("could not create fixture backend: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Run()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info("received signal, shutting down", "signal", sig.String())
		return server.Shutdown()
	case err := <-errChan:
		return err
	}
}

func (c *mockCommander) serverConfig() (fixture.Config, error) {
	delay, err := config.ParseDuration(c.delay)
	if err != nil {
		return fixture.Config{}, fmt.Errorf("invalid delay %q: %w", c.delay, err)
	}

	cfg := fixture.Config{
		ListenAddr: c.listen,
		Delay:      delay,
	}

	if c.script != "" {
		cfg.Script, err = fixture.LoadScript(c.script)
		if err != nil {
			return fixture.Config{}, err
		}
	}

	return cfg, nil
}
