package chatcmder

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	bubbletea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"

	"github.com/papercomputeco/chatstream/pkg/cliui"
	"github.com/papercomputeco/chatstream/pkg/conversation"
	"github.com/papercomputeco/chatstream/pkg/session"
)

func init() {
	// Force TrueColor profile to fix lipgloss color detection issue
	// See: https://github.com/charmbracelet/lipgloss/issues/439
	renderer := lipgloss.NewRenderer(os.Stdout, termenv.WithProfile(termenv.TrueColor))
	renderer.SetColorProfile(termenv.TrueColor)
	lipgloss.SetDefaultRenderer(renderer)
}

const (
	typingText   = "Assistant is typing…"
	inputHeight  = 3
	headerHeight = 2
	footerHeight = 2
	minWidth     = 20
	updateBuffer = 64
)

var (
	chatTitleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	chatMutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	chatUserStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("82"))
	chatAssistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("111"))
	chatSpinnerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
)

type chatKeyMap struct {
	Send     key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Quit     key.Binding
}

func (k chatKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Send, k.PageUp, k.PageDown, k.Quit}
}

func (k chatKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Send, k.PageUp, k.PageDown, k.Quit}}
}

func defaultKeyMap() chatKeyMap {
	return chatKeyMap{
		Send:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send")),
		PageUp:   key.NewBinding(key.WithKeys("pgup"), key.WithHelp("pgup", "scroll up")),
		PageDown: key.NewBinding(key.WithKeys("pgdown"), key.WithHelp("pgdn", "scroll down")),
		Quit:     key.NewBinding(key.WithKeys("ctrl+c", "esc"), key.WithHelp("esc", "quit")),
	}
}

// updateMsg carries one session update into the bubbletea loop.
type updateMsg session.Update

// turnDoneMsg is sent when Submit returns.
type turnDoneMsg struct {
	err error
}

type chatModel struct {
	ctx     context.Context
	sess    *session.Session
	baseURL string
	updates chan session.Update

	state    session.State
	lastErr  error
	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model
	help     help.Model
	keys     chatKeyMap
	width    int
	height   int
	ready    bool

	// markdown holds glamour output of finished assistant messages, keyed by
	// content. Cleared on resize.
	markdown map[string]string
}

func runTUI(ctx context.Context, sess *session.Session, baseURL string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	program := bubbletea.NewProgram(newChatModel(ctx, sess, baseURL),
		bubbletea.WithContext(ctx),
		bubbletea.WithAltScreen(),
	)
	_, err := program.Run()
	if errors.Is(err, bubbletea.ErrProgramKilled) {
		return nil
	}
	return err
}

func newChatModel(ctx context.Context, sess *session.Session, baseURL string) chatModel {
	input := textarea.New()
	input.Placeholder = "Send a message…"
	input.ShowLineNumbers = false
	input.CharLimit = 0
	input.SetHeight(inputHeight)
	input.KeyMap.InsertNewline.SetEnabled(false)
	input.Focus()

	return chatModel{
		ctx:      ctx,
		sess:     sess,
		baseURL:  baseURL,
		updates:  make(chan session.Update, updateBuffer),
		state:    sess.State(),
		input:    input,
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(chatSpinnerStyle)),
		help:     help.New(),
		keys:     defaultKeyMap(),
		markdown: map[string]string{},
	}
}

func (m chatModel) Init() bubbletea.Cmd {
	return bubbletea.Batch(textarea.Blink, waitForUpdate(m.updates))
}

func (m chatModel) Update(msg bubbletea.Msg) (bubbletea.Model, bubbletea.Cmd) {
	switch msg := msg.(type) {
	case bubbletea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil
	case updateMsg:
		return m.applyUpdate(session.Update(msg))
	case turnDoneMsg:
		if msg.err != nil && !errors.Is(msg.err, session.ErrEmptyInput) && !errors.Is(msg.err, session.ErrTurnInProgress) {
			m.lastErr = msg.err
		}
		return m, nil
	case spinner.TickMsg:
		if !m.state.Typing() {
			return m, nil
		}
		var cmd bubbletea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case bubbletea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m chatModel) handleKey(msg bubbletea.KeyMsg) (bubbletea.Model, bubbletea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, bubbletea.Quit
	case key.Matches(msg, m.keys.PageUp), key.Matches(msg, m.keys.PageDown):
		var cmd bubbletea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	case key.Matches(msg, m.keys.Send):
		return m.send()
	}

	if m.state.Typing() {
		return m, nil
	}

	var cmd bubbletea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// send starts a turn with the current input. Input is ignored while a
// response is streaming.
func (m chatModel) send() (bubbletea.Model, bubbletea.Cmd) {
	if m.state.Typing() {
		return m, nil
	}

	text := m.input.Value()
	m.input.Reset()
	if strings.TrimSpace(text) == "" {
		return m, nil
	}

	m.lastErr = nil
	m.input.Blur()
	return m, m.submit(text)
}

func (m chatModel) submit(text string) bubbletea.Cmd {
	ctx, sess, updates := m.ctx, m.sess, m.updates
	return func() bubbletea.Msg {
		err := sess.Submit(ctx, text, func(u session.Update) {
			select {
			case updates <- u:
			case <-ctx.Done():
			}
		})
		return turnDoneMsg{err: err}
	}
}

func waitForUpdate(updates <-chan session.Update) bubbletea.Cmd {
	return func() bubbletea.Msg {
		return updateMsg(<-updates)
	}
}

func (m chatModel) applyUpdate(u session.Update) (bubbletea.Model, bubbletea.Cmd) {
	wasTyping := m.state.Typing()
	m.state = u.State
	if u.Err != nil {
		m.lastErr = u.Err
	}
	m.refresh()

	cmds := []bubbletea.Cmd{waitForUpdate(m.updates)}
	// The tick handler stops rescheduling once idle, so each turn restarts it.
	if !wasTyping && m.state.Typing() {
		cmds = append(cmds, m.spinner.Tick)
	}
	if !m.state.Typing() && !m.input.Focused() {
		cmds = append(cmds, m.input.Focus())
	}
	return m, bubbletea.Batch(cmds...)
}

func (m *chatModel) resize(width, height int) {
	m.width = max(width, minWidth)
	m.height = height

	vpHeight := max(height-headerHeight-inputHeight-footerHeight-1, 1)
	if !m.ready {
		m.viewport = viewport.New(m.width, vpHeight)
		m.ready = true
	} else {
		m.viewport.Width = m.width
		m.viewport.Height = vpHeight
	}

	m.input.SetWidth(m.width)
	m.help.Width = m.width
	clear(m.markdown)
	m.refresh()
}

func (m *chatModel) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(renderConversation(m.state, m.width, m.markdown))
	m.viewport.GotoBottom()
}

func (m chatModel) View() string {
	if !m.ready {
		return "\n  " + chatMutedStyle.Render("Starting…")
	}

	header := chatTitleStyle.Render("chatstream") + " " +
		chatMutedStyle.Render(ansi.Truncate(m.baseURL, max(m.width-12, 1), "…"))

	var status string
	switch {
	case m.state.Typing():
		status = m.spinner.View() + " " + chatMutedStyle.Render(typingText)
	case m.lastErr != nil:
		status = cliui.FailMark + " " + cliui.ErrorStyle.Render(ansi.Truncate(m.lastErr.Error(), max(m.width-3, 1), "…"))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		"",
		m.viewport.View(),
		status,
		m.input.View(),
		chatMutedStyle.Render(m.help.View(m.keys)),
	)
}

// renderConversation renders every message for the viewport. The open
// assistant message is shown as wrapped plain text until the turn finishes;
// finished assistant messages are rendered as markdown.
func renderConversation(st session.State, width int, cache map[string]string) string {
	msgs := st.Conversation.Messages()
	contentWidth := max(width-2, minWidth-2)

	var b strings.Builder
	for i, msg := range msgs {
		open := st.Typing() && i == len(msgs)-1

		switch msg.Role {
		case conversation.RoleUser:
			b.WriteString(chatUserStyle.Render("You"))
			b.WriteString("\n")
			b.WriteString(indent(ansi.Wordwrap(msg.Content, contentWidth, "")))
		default:
			b.WriteString(chatAssistantStyle.Render("Assistant"))
			b.WriteString("\n")
			if open {
				b.WriteString(indent(ansi.Wordwrap(msg.Content, contentWidth, "")))
			} else {
				b.WriteString(renderMarkdown(msg.Content, width, cache))
			}
		}
		b.WriteString("\n\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

func renderMarkdown(content string, width int, cache map[string]string) string {
	if out, ok := cache[content]; ok {
		return out
	}

	out, err := cliui.RenderMarkdownWidth(content, width)
	if err != nil {
		out = indent(ansi.Wordwrap(content, width, ""))
	}
	out = strings.Trim(out, "\n")

	if cache != nil {
		cache[content] = out
	}
	return out
}

func indent(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = "  " + line
	}
	return strings.Join(lines, "\n")
}
