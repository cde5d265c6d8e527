package chatcmder

import (
	"context"
	"errors"

	"github.com/charmbracelet/bubbles/spinner"
	bubbletea "github.com/charmbracelet/bubbletea"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatstream/pkg/chatevent"
	"github.com/papercomputeco/chatstream/pkg/conversation"
	"github.com/papercomputeco/chatstream/pkg/fixture"
	"github.com/papercomputeco/chatstream/pkg/session"
)

var _ = Describe("Chat TUI", func() {
	Describe("renderConversation", func() {
		It("shows user text and the open reply as plain text", func() {
			st := session.State{
				Phase: session.PhaseStreaming,
				Conversation: conversation.New(
					conversation.User("what is **go**"),
					conversation.Assistant("partial **bold"),
				),
			}

			out := renderConversation(st, 80, map[string]string{})
			Expect(out).To(ContainSubstring("You"))
			Expect(out).To(ContainSubstring("what is **go**"))
			Expect(out).To(ContainSubstring("partial **bold"))
		})

		It("renders finished replies as markdown and caches them", func() {
			st := session.State{
				Phase:        session.PhaseIdle,
				Conversation: conversation.New(conversation.Assistant("Some **bold** text")),
			}

			cache := map[string]string{}
			out := renderConversation(st, 80, cache)
			Expect(out).To(ContainSubstring("bold"))
			Expect(out).NotTo(ContainSubstring("**bold**"))
			Expect(cache).To(HaveKey("Some **bold** text"))
		})

		It("wraps long user messages to the width", func() {
			st := session.State{
				Conversation: conversation.New(conversation.User("aaaa bbbb cccc dddd eeee ffff gggg hhhh")),
			}

			out := renderConversation(st, 22, nil)
			Expect(out).To(MatchRegexp(`dddd\s*\n\s*eeee`))
		})
	})

	Describe("model", func() {
		var m chatModel

		sized := func(model chatModel) chatModel {
			next, _ := model.Update(bubbletea.WindowSizeMsg{Width: 80, Height: 24})
			return next.(chatModel)
		}

		BeforeEach(func() {
			sess, server := newFixtureSession(&fixture.Script{Events: []chatevent.Payload{
				{Type: chatevent.KindContent, Content: "pong"},
			}}, "Hello there")
			DeferCleanup(server.Close)

			m = sized(newChatModel(context.Background(), sess, server.URL))
		})

		It("starts with the greeting in the viewport", func() {
			Expect(m.ready).To(BeTrue())
			Expect(m.View()).To(ContainSubstring("Hello there"))
			Expect(m.input.Focused()).To(BeTrue())
		})

		It("ignores empty submissions", func() {
			m.input.SetValue("   ")
			next, cmd := m.Update(bubbletea.KeyMsg{Type: bubbletea.KeyEnter})
			Expect(cmd).To(BeNil())
			Expect(next.(chatModel).input.Value()).To(BeEmpty())
			Expect(next.(chatModel).state.Conversation.Len()).To(Equal(1))
		})

		It("ignores submissions while a reply is streaming", func() {
			m.state.Phase = session.PhaseStreaming
			m.input.SetValue("again")
			_, cmd := m.Update(bubbletea.KeyMsg{Type: bubbletea.KeyEnter})
			Expect(cmd).To(BeNil())
		})

		It("runs a turn and applies its updates in order", func() {
			m.input.SetValue("ping")
			next, cmd := m.Update(bubbletea.KeyMsg{Type: bubbletea.KeyEnter})
			Expect(cmd).NotTo(BeNil())
			m = next.(chatModel)
			Expect(m.input.Focused()).To(BeFalse())

			done := m.submit("ping")()
			Expect(done).To(Equal(turnDoneMsg{}))

			for len(m.updates) > 0 {
				next, _ = m.Update(updateMsg(<-m.updates))
				m = next.(chatModel)
			}

			Expect(m.state.Typing()).To(BeFalse())
			Expect(m.input.Focused()).To(BeTrue())
			last, _ := m.state.Conversation.Last()
			Expect(last.Content).To(Equal("pong"))
			Expect(m.View()).To(ContainSubstring("pong"))
		})

		It("shows the typing indicator while streaming", func() {
			next, _ := m.Update(updateMsg(session.Update{State: session.State{
				Phase:        session.PhaseStreaming,
				Conversation: conversation.New(conversation.User("q"), conversation.Assistant("")),
			}}))
			Expect(next.(chatModel).View()).To(ContainSubstring(typingText))
		})

		It("starts the spinner when a turn starts streaming", func() {
			_, cmd := m.Update(updateMsg(session.Update{State: session.State{
				Phase:        session.PhaseStreaming,
				Conversation: conversation.New(conversation.User("q"), conversation.Assistant("")),
			}}))
			DeferCleanup(func() { m.updates <- session.Update{} })

			batch, ok := cmd().(bubbletea.BatchMsg)
			Expect(ok).To(BeTrue())

			msgs := make(chan bubbletea.Msg, len(batch))
			for _, c := range batch {
				go func(c bubbletea.Cmd) { msgs <- c() }(c)
			}
			Eventually(msgs).Should(Receive(BeAssignableToTypeOf(spinner.TickMsg{})))
		})

		It("keeps ticking while streaming and stops once idle", func() {
			streaming := session.State{
				Phase:        session.PhaseStreaming,
				Conversation: conversation.New(conversation.User("q"), conversation.Assistant("")),
			}
			next, _ := m.Update(updateMsg(session.Update{State: streaming}))
			m = next.(chatModel)

			tick := m.spinner.Tick().(spinner.TickMsg)
			_, cmd := m.Update(tick)
			Expect(cmd).NotTo(BeNil())

			m.state.Phase = session.PhaseIdle
			_, cmd = m.Update(tick)
			Expect(cmd).To(BeNil())
		})

		It("shows turn failures in the status line", func() {
			next, _ := m.Update(turnDoneMsg{err: errors.New("connection refused")})
			Expect(next.(chatModel).View()).To(ContainSubstring("connection refused"))
		})

		It("does not report rejected submissions as failures", func() {
			next, _ := m.Update(turnDoneMsg{err: session.ErrTurnInProgress})
			Expect(next.(chatModel).lastErr).To(BeNil())
		})

		It("quits on esc", func() {
			_, cmd := m.Update(bubbletea.KeyMsg{Type: bubbletea.KeyEsc})
			Expect(cmd).NotTo(BeNil())
			Expect(cmd()).To(Equal(bubbletea.QuitMsg{}))
		})
	})
})
