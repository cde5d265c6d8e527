package session_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatstream/pkg/conversation"
	"github.com/papercomputeco/chatstream/pkg/eventstream"
	"github.com/papercomputeco/chatstream/pkg/session"
	"github.com/papercomputeco/chatstream/pkg/stream"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*eventstream.TurnCompletedEvent
	err    error
}

func (p *recordingPublisher) PublishTurn(_ context.Context, event *eventstream.TurnCompletedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) Events() []*eventstream.TurnCompletedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*eventstream.TurnCompletedEvent(nil), p.events...)
}

func records(payloads ...string) string {
	var b strings.Builder
	for _, p := range payloads {
		fmt.Fprintf(&b, "data: %s\n\n", p)
	}
	return b.String()
}

var _ = Describe("Session", func() {
	var (
		server    *httptest.Server
		handler   http.HandlerFunc
		requests  chan *http.Request
		publisher *recordingPublisher
		sess      *session.Session
		timeout   time.Duration
	)

	newSession := func(greeting string) {
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case requests <- r:
			default:
			}
			handler(w, r)
		}))

		client, err := stream.NewClient(stream.Config{BaseURL: server.URL})
		Expect(err).NotTo(HaveOccurred())

		sess, err = session.New(session.Config{
			Client:    client,
			Publisher: publisher,
			Timeout:   timeout,
			Greeting:  greeting,
		})
		Expect(err).NotTo(HaveOccurred())
	}

	serve := func(body string) {
		handler = func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprint(w, body)
		}
	}

	BeforeEach(func() {
		requests = make(chan *http.Request, 8)
		publisher = &recordingPublisher{}
		timeout = 0
		serve(records(`{"type":"end"}`))
	})

	AfterEach(func() {
		if server != nil {
			server.Close()
		}
	})

	It("requires a client", func() {
		_, err := session.New(session.Config{})
		Expect(err).To(MatchError(session.ErrNoClient))
	})

	It("starts idle with the greeting", func() {
		newSession("Hello there")

		st := sess.State()
		Expect(st.Phase).To(Equal(session.PhaseIdle))
		Expect(st.Typing()).To(BeFalse())
		Expect(st.Conversation.Messages()).To(Equal([]conversation.Message{conversation.Assistant("Hello there")}))
	})

	It("starts empty without a greeting", func() {
		newSession("")
		Expect(sess.State().Conversation.Len()).To(BeZero())
	})

	Describe("Submit", func() {
		It("appends one user and one assistant message per submission", func() {
			serve(records(`{"type":"content","content":"Hi"}`, `{"type":"end"}`))
			newSession("greeting")

			Expect(sess.Submit(context.Background(), "hello", nil)).To(Succeed())

			msgs := sess.State().Conversation.Messages()
			Expect(msgs).To(HaveLen(3))
			Expect(msgs[1]).To(Equal(conversation.User("hello")))
			Expect(msgs[2]).To(Equal(conversation.Assistant("Hi")))
		})

		It("keeps the user text as entered", func() {
			newSession("")
			Expect(sess.Submit(context.Background(), "  spaced out  ", nil)).To(Succeed())

			msgs := sess.State().Conversation.Messages()
			Expect(msgs[0].Content).To(Equal("  spaced out  "))
		})

		It("concatenates content in arrival order", func() {
			serve(records(
				`{"type":"content","content":"The "}`,
				`{"type":"content","content":"quick "}`,
				`{"type":"content","content":"fox"}`,
				`{"type":"end"}`,
			))
			newSession("")

			var deltas []string
			Expect(sess.Submit(context.Background(), "go", func(u session.Update) {
				if u.Delta != "" {
					deltas = append(deltas, u.Delta)
				}
			})).To(Succeed())

			last, _ := sess.State().Conversation.Last()
			Expect(last.Content).To(Equal("The quick fox"))
			Expect(deltas).To(Equal([]string{"The ", "quick ", "fox"}))
		})

		It("formats search markers and results", func() {
			serve(records(
				`{"type":"content","content":"Let me check."}`,
				`{"type":"search_start","query":"weather"}`,
				`{"type":"search_results","urls":["https://a.test","https://b.test"]}`,
				`{"type":"end"}`,
			))
			newSession("")

			Expect(sess.Submit(context.Background(), "weather?", nil)).To(Succeed())

			last, _ := sess.State().Conversation.Last()
			Expect(last.Content).To(ContainSubstring("Searching: weather"))
			Expect(last.Content).To(Equal("Let me check.\n\n🔍 Searching: weather\n\n• https://a.test\n• https://b.test\n"))
		})

		It("stores the checkpoint and sends it on the next request", func() {
			serve(records(`{"type":"checkpoint","checkpoint_id":"thread-1"}`, `{"type":"end"}`))
			newSession("")

			Expect(sess.Submit(context.Background(), "first", nil)).To(Succeed())
			Expect(sess.State().CheckpointID).To(Equal("thread-1"))

			var first *http.Request
			Eventually(requests).Should(Receive(&first))
			Expect(first.URL.Query().Has("checkpoint_id")).To(BeFalse())

			serve(records(`{"type":"content","content":"again"}`, `{"type":"end"}`))
			Expect(sess.Submit(context.Background(), "second", nil)).To(Succeed())

			var second *http.Request
			Eventually(requests).Should(Receive(&second))
			Expect(second.URL.Query().Get("checkpoint_id")).To(Equal("thread-1"))
			Expect(second.URL.Query().Get("message")).To(Equal("second"))
		})

		It("keeps the latest checkpoint when several arrive", func() {
			serve(records(
				`{"type":"checkpoint","checkpoint_id":"a"}`,
				`{"type":"checkpoint","checkpoint_id":"b"}`,
				`{"type":"end"}`,
			))
			newSession("")

			Expect(sess.Submit(context.Background(), "x", nil)).To(Succeed())
			Expect(sess.State().CheckpointID).To(Equal("b"))
		})

		It("returns to idle on end even without content", func() {
			newSession("")

			var typing []bool
			Expect(sess.Submit(context.Background(), "x", func(u session.Update) {
				typing = append(typing, u.State.Typing())
			})).To(Succeed())

			Expect(typing).To(Equal([]bool{true, false}))
			Expect(sess.State().Phase).To(Equal(session.PhaseIdle))
			last, _ := sess.State().Conversation.Last()
			Expect(last).To(Equal(conversation.Assistant("")))
		})

		It("stops reading after the end event", func() {
			serve(records(`{"type":"content","content":"a"}`, `{"type":"end"}`, `{"type":"content","content":"late"}`))
			newSession("")

			Expect(sess.Submit(context.Background(), "x", nil)).To(Succeed())
			last, _ := sess.State().Conversation.Last()
			Expect(last.Content).To(Equal("a"))
		})

		It("skips malformed payloads and continues", func() {
			serve(records(`{"type":"content","content":"a"}`, `not json`, `{"content":"untyped"}`, `{"type":"content","content":"b"}`, `{"type":"end"}`))
			newSession("")

			Expect(sess.Submit(context.Background(), "x", nil)).To(Succeed())
			last, _ := sess.State().Conversation.Last()
			Expect(last.Content).To(Equal("ab"))
		})

		It("ignores unknown event kinds", func() {
			serve(records(`{"type":"heartbeat"}`, `{"type":"content","content":"a"}`, `{"type":"end"}`))
			newSession("")

			Expect(sess.Submit(context.Background(), "x", nil)).To(Succeed())
			last, _ := sess.State().Conversation.Last()
			Expect(last.Content).To(Equal("a"))
		})

		It("goes idle when the stream closes before end", func() {
			serve(records(`{"type":"content","content":"partial"}`))
			newSession("")

			Expect(sess.Submit(context.Background(), "x", nil)).To(Succeed())

			st := sess.State()
			Expect(st.Phase).To(Equal(session.PhaseIdle))
			last, _ := st.Conversation.Last()
			Expect(last.Content).To(Equal("partial"))

			events := publisher.Events()
			Expect(events).To(HaveLen(1))
			Expect(events[0].Outcome).To(Equal(eventstream.OutcomeClosed))
		})

		Context("with empty input", func() {
			It("rejects empty and whitespace-only text without a request", func() {
				newSession("")

				Expect(sess.Submit(context.Background(), "", nil)).To(MatchError(session.ErrEmptyInput))
				Expect(sess.Submit(context.Background(), " \t\n", nil)).To(MatchError(session.ErrEmptyInput))

				Expect(sess.State().Conversation.Len()).To(BeZero())
				Consistently(requests, 50*time.Millisecond).ShouldNot(Receive())
				Expect(publisher.Events()).To(BeEmpty())
			})
		})

		Context("when the backend fails", func() {
			It("replaces the placeholder on a non-success status", func() {
				handler = func(w http.ResponseWriter, _ *http.Request) {
					http.Error(w, "boom", http.StatusInternalServerError)
				}
				newSession("greeting")

				var updates []session.Update
				err := sess.Submit(context.Background(), "x", func(u session.Update) {
					updates = append(updates, u)
				})
				Expect(err).To(MatchError(stream.ErrConnection))

				var statusErr *stream.StatusError
				Expect(errors.As(err, &statusErr)).To(BeTrue())
				Expect(statusErr.StatusCode).To(Equal(http.StatusInternalServerError))

				st := sess.State()
				Expect(st.Conversation.Len()).To(Equal(3))
				last, _ := st.Conversation.Last()
				Expect(last).To(Equal(conversation.Assistant(session.ErrorMessage)))
				Expect(st.Typing()).To(BeFalse())

				Expect(updates).NotTo(BeEmpty())
				Expect(updates[len(updates)-1].Err).To(MatchError(stream.ErrConnection))

				events := publisher.Events()
				Expect(events).To(HaveLen(1))
				Expect(events[0].Outcome).To(Equal(eventstream.OutcomeFailed))
				Expect(events[0].Error).To(ContainSubstring("500"))
			})

			It("replaces partial content when the connection is refused", func() {
				newSession("")
				server.Close()

				err := sess.Submit(context.Background(), "x", nil)
				Expect(err).To(MatchError(stream.ErrConnection))

				last, _ := sess.State().Conversation.Last()
				Expect(last.Content).To(Equal(session.ErrorMessage))
				Expect(sess.State().Phase).To(Equal(session.PhaseIdle))
			})

			It("fails the turn when the per-turn timeout elapses", func() {
				timeout = 100 * time.Millisecond
				release := make(chan struct{})
				defer close(release)
				handler = func(w http.ResponseWriter, r *http.Request) {
					fmt.Fprint(w, records(`{"type":"content","content":"slow"}`))
					w.(http.Flusher).Flush()
					select {
					case <-release:
					case <-r.Context().Done():
					}
				}
				newSession("")

				err := sess.Submit(context.Background(), "x", nil)
				Expect(err).To(HaveOccurred())
				Expect(errors.Is(err, context.DeadlineExceeded)).To(BeTrue())

				last, _ := sess.State().Conversation.Last()
				Expect(last.Content).To(Equal(session.ErrorMessage))
				Expect(sess.State().Phase).To(Equal(session.PhaseIdle))
			})
		})

		It("rejects a submission while a turn is streaming", func() {
			release := make(chan struct{})
			handler = func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, records(`{"type":"content","content":"working"}`))
				w.(http.Flusher).Flush()
				select {
				case <-release:
				case <-r.Context().Done():
					return
				}
				fmt.Fprint(w, records(`{"type":"end"}`))
			}
			newSession("")

			var streaming atomic.Bool
			done := make(chan error, 1)
			go func() {
				done <- sess.Submit(context.Background(), "first", func(u session.Update) {
					if u.Delta != "" {
						streaming.Store(true)
					}
				})
			}()

			Eventually(streaming.Load).Should(BeTrue())
			Expect(sess.State().Typing()).To(BeTrue())

			Expect(sess.Submit(context.Background(), "second", nil)).To(MatchError(session.ErrTurnInProgress))
			Expect(sess.State().Conversation.Len()).To(Equal(2))

			close(release)
			Eventually(done).Should(Receive(BeNil()))
			Expect(sess.State().Phase).To(Equal(session.PhaseIdle))
		})

		It("publishes a completed event with the turn details", func() {
			serve(records(
				`{"type":"checkpoint","checkpoint_id":"thread-9"}`,
				`{"type":"search_start","query":"go"}`,
				`{"type":"search_results","urls":["https://go.dev"]}`,
				`{"type":"content","content":"done"}`,
				`{"type":"end"}`,
			))
			newSession("")

			Expect(sess.Submit(context.Background(), "what is go", nil)).To(Succeed())

			events := publisher.Events()
			Expect(events).To(HaveLen(1))
			ev := events[0]
			Expect(ev.Outcome).To(Equal(eventstream.OutcomeCompleted))
			Expect(ev.CheckpointID).To(Equal("thread-9"))
			Expect(ev.Turn.Request).To(Equal("what is go"))
			Expect(ev.Turn.Response).To(HaveSuffix("done"))
			Expect(ev.Search.Queries).To(Equal([]string{"go"}))
			Expect(ev.Search.URLs).To(Equal([]string{"https://go.dev"}))
			Expect(ev.TurnID).NotTo(BeEmpty())
		})

		It("does not fail the turn when publishing fails", func() {
			publisher.err = errors.New("broker down")
			newSession("")

			Expect(sess.Submit(context.Background(), "x", nil)).To(Succeed())
		})
	})
})

// slowCloseBody serves body and blocks Close until release is closed.
type slowCloseBody struct {
	*strings.Reader
	closing chan struct{}
	release chan struct{}
}

func (b *slowCloseBody) Close() error {
	close(b.closing)
	<-b.release
	return nil
}

type scriptedTransport struct {
	mu     sync.Mutex
	bodies []io.ReadCloser
}

func (t *scriptedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	body := t.bodies[0]
	t.bodies = t.bodies[1:]
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"text/event-stream"}},
		Body:       body,
		Request:    req,
	}, nil
}

var _ = Describe("Session turn events", func() {
	It("publishes the state the turn ended with when the next turn starts during close", func() {
		first := &slowCloseBody{
			Reader: strings.NewReader(records(
				`{"type":"checkpoint","checkpoint_id":"thread-1"}`,
				`{"type":"content","content":"first reply"}`,
				`{"type":"end"}`,
			)),
			closing: make(chan struct{}),
			release: make(chan struct{}),
		}
		second := io.NopCloser(strings.NewReader(records(
			`{"type":"checkpoint","checkpoint_id":"thread-2"}`,
			`{"type":"content","content":"second reply"}`,
			`{"type":"end"}`,
		)))

		client, err := stream.NewClient(stream.Config{
			BaseURL:    "http://backend.test",
			HTTPClient: &http.Client{Transport: &scriptedTransport{bodies: []io.ReadCloser{first, second}}},
		})
		Expect(err).NotTo(HaveOccurred())

		publisher := &recordingPublisher{}
		sess, err := session.New(session.Config{Client: client, Publisher: publisher})
		Expect(err).NotTo(HaveOccurred())

		done := make(chan error, 1)
		go func() {
			done <- sess.Submit(context.Background(), "one", nil)
		}()

		Eventually(first.closing).Should(BeClosed())
		Expect(sess.Submit(context.Background(), "two", nil)).To(Succeed())

		close(first.release)
		Eventually(done).Should(Receive(BeNil()))

		events := publisher.Events()
		Expect(events).To(HaveLen(2))

		byRequest := map[string]*eventstream.TurnCompletedEvent{}
		for _, ev := range events {
			byRequest[ev.Turn.Request] = ev
		}
		Expect(byRequest["one"].Turn.Response).To(Equal("first reply"))
		Expect(byRequest["one"].CheckpointID).To(Equal("thread-1"))
		Expect(byRequest["two"].Turn.Response).To(Equal("second reply"))
		Expect(byRequest["two"].CheckpointID).To(Equal("thread-2"))
	})
})

var _ = Describe("Phase", func() {
	It("has readable names", func() {
		Expect(session.PhaseIdle.String()).To(Equal("idle"))
		Expect(session.PhaseStreaming.String()).To(Equal("streaming"))
	})
})
