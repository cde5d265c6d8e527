package chatcmder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/papercomputeco/chatstream/pkg/cliui"
	"github.com/papercomputeco/chatstream/pkg/conversation"
	"github.com/papercomputeco/chatstream/pkg/session"
)

const exitCommand = "/exit"

var (
	userPrompt      = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true).Render("you> ")
	assistantPrompt = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Render("assistant> ")
)

// lineChat is the REPL used when stdin or stdout is not a terminal.
type lineChat struct {
	sess *session.Session
	in   io.Reader
	out  io.Writer
}

func newLineChat(sess *session.Session, in io.Reader, out io.Writer) *lineChat {
	return &lineChat{sess: sess, in: in, out: out}
}

func (l *lineChat) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	fmt.Fprintln(l.out)
	for _, msg := range l.sess.State().Conversation.Messages() {
		if msg.Role == conversation.RoleAssistant {
			fmt.Fprintf(l.out, "%s%s\n", assistantPrompt, msg.Content)
		}
	}
	fmt.Fprintf(l.out, "\n  %s\n\n", cliui.DimStyle.Render("Type your message and press Enter. /exit or Ctrl+D to quit."))

	scanner := bufio.NewScanner(l.in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for {
		fmt.Fprint(l.out, userPrompt)
		if !scanner.Scan() {
			break
		}

		input := scanner.Text()
		if strings.TrimSpace(input) == exitCommand {
			break
		}

		// Failed turns are rendered in place of the reply.
		if err := l.turn(ctx, input); errors.Is(err, session.ErrEmptyInput) {
			continue
		}

		fmt.Fprint(l.out, "\n\n")
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	fmt.Fprintln(l.out)
	return nil
}

// turn submits input and prints the reply as it streams.
func (l *lineChat) turn(ctx context.Context, input string) error {
	started := false

	return l.sess.Submit(ctx, input, func(u session.Update) {
		if !started {
			fmt.Fprint(l.out, assistantPrompt)
			started = true
		}

		if u.Err != nil {
			fmt.Fprintf(l.out, "\n  %s %s", cliui.FailMark, cliui.ErrorStyle.Render(session.ErrorMessage))
			return
		}

		fmt.Fprint(l.out, u.Delta)
	})
}
