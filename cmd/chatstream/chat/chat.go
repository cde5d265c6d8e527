// Package chatcmder provides the chat command: an interactive chat with a
// streaming search-augmented backend, as a full-screen TUI on terminals or a
// line-oriented REPL otherwise.
package chatcmder

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/papercomputeco/chatstream/pkg/config"
	"github.com/papercomputeco/chatstream/pkg/dotdir"
	"github.com/papercomputeco/chatstream/pkg/eventstream"
	"github.com/papercomputeco/chatstream/pkg/eventstream/kafka"
	"github.com/papercomputeco/chatstream/pkg/eventstream/nop"
	"github.com/papercomputeco/chatstream/pkg/logger"
	"github.com/papercomputeco/chatstream/pkg/session"
	"github.com/papercomputeco/chatstream/pkg/stream"
)

type chatCommander struct {
	baseURL    string
	timeout    string
	plain      bool
	dumpStream string
	debug      bool
	configDir  string

	greeting string
	brokers  []string
	topic    string
}

const chatLongDesc string = `Start an interactive chat session with a streaming chat backend.

Each message is sent to GET {base-url}/chat_stream and the answer is shown as
it streams in, including web searches the backend runs along the way. The
conversation continues server-side through the checkpoint id the backend
hands out on the first turn; it is not persisted locally.

On a terminal the chat opens a full-screen UI. Use --plain, or pipe stdin, for
a line-oriented REPL instead. Type /exit or press Ctrl+D to quit.

Examples:
  chatstream chat
  chatstream chat --base-url http://localhost:8000
  chatstream chat --plain --dump-stream stream.log`

const chatShortDesc string = "Chat with a streaming backend"

var chatFlags = []string{config.FlagBaseURL, config.FlagTimeout}

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, chatFlags)

			cmder.baseURL = v.GetString("client.base_url")
			cmder.timeout = v.GetString("client.timeout")
			cmder.greeting = v.GetString("chat.greeting")
			cmder.brokers = config.Brokers(v)
			cmder.topic = v.GetString("eventstream.topic")
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run(cmd)
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagBaseURL, &cmder.baseURL)
	config.AddStringFlag(cmd, config.Flags, config.FlagTimeout, &cmder.timeout)
	cmd.Flags().BoolVar(&cmder.plain, "plain", false, "Use the line-oriented REPL even on a terminal")
	cmd.Flags().StringVar(&cmder.dumpStream, "dump-stream", "", "Append the raw event stream to this file")

	return cmd
}

func (c *chatCommander) run(cmd *cobra.Command) error {
	timeout, err := config.ParseDuration(c.timeout)
	if err != nil {
		return fmt.Errorf("invalid timeout %q: %w", c.timeout, err)
	}

	tui := !c.plain && isTerminal(os.Stdin) && isTerminal(os.Stdout)

	log, closeLog, err := c.newLogger(tui)
	if err != nil {
		return err
	}
	defer closeLog()

	var tee io.Writer
	if c.dumpStream != "" {
		f, err := os.OpenFile(c.dumpStream, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("opening stream dump: %w", err)
		}
		defer f.Close()
		tee = f
	}

	client, err := stream.NewClient(stream.Config{
		BaseURL: c.baseURL,
		Logger:  log.With("component", "stream"),
		Tee:     tee,
	})
	if err != nil {
		return fmt.Errorf("configuring backend: %w", err)
	}

	publisher, err := c.newPublisher(log)
	if err != nil {
		return err
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Warn("closing event publisher", "error", err)
		}
	}()

	sess, err := session.New(session.Config{
		Client:    client,
		Logger:    log.With("component", "session"),
		Publisher: publisher,
		Timeout:   timeout,
		Greeting:  c.greeting,
	})
	if err != nil {
		return err
	}

	log.Info("chat started", "base_url", client.BaseURL(), "tui", tui, "timeout", timeout)

	if tui {
		return runTUI(cmd.Context(), sess, client.BaseURL())
	}

	return newLineChat(sess, cmd.InOrStdin(), cmd.OutOrStdout()).run(cmd.Context())
}

// newLogger builds the session logger. The TUI owns the terminal, so it logs
// JSON to the log file only; line mode also logs to stderr.
func (c *chatCommander) newLogger(tui bool) (*slog.Logger, func(), error) {
	path, err := dotdir.NewManager().LogPath(c.configDir)
	if err != nil {
		return nil, nil, fmt.Errorf("resolving log file: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	closeLog := func() { _ = f.Close() }

	fileLog := logger.New(logger.WithDebug(c.debug), logger.WithSource(c.debug), logger.WithJSON(true), logger.WithWriter(f))
	if tui {
		return fileLog, closeLog, nil
	}

	stderrLog := logger.New(logger.WithDebug(c.debug), logger.WithPretty(true), logger.WithWriter(os.Stderr))
	if !c.debug {
		// Keep the REPL readable: only warnings and errors reach stderr.
		stderrLog = logger.New(logger.WithPretty(true), logger.WithWriter(os.Stderr), logger.WithLevel(slog.LevelWarn))
	}

	return logger.Multi(stderrLog, fileLog), closeLog, nil
}

func (c *chatCommander) newPublisher(log *slog.Logger) (eventstream.Publisher, error) {
	if len(c.brokers) == 0 {
		return nop.NewPublisher(), nil
	}

	p, err := kafka.NewPublisher(kafka.Config{
		Brokers:      c.brokers,
		Topic:        c.topic,
		WriteTimeout: 10 * time.Second,
		Logger:       log.With("component", "eventstream"),
	})
	if err != nil {
		return nil, fmt.Errorf("configuring event stream: %w", err)
	}

	log.Info("publishing turn events", "brokers", c.brokers, "topic", c.topic)
	return p, nil
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
