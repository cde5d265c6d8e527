// Package conversation holds the ordered message sequence rendered by the
// chat views. A Conversation is a value: every update returns a new
// Conversation and never mutates the receiver.
package conversation

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single entry of the conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// User returns a user message with the given content.
func User(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// Assistant returns an assistant message with the given content.
func Assistant(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// Conversation is an immutable ordered sequence of messages. The last message
// is held apart from the settled ones so replacing it while a reply streams
// copies nothing; head is shared between values and never written.
type Conversation struct {
	head    []Message
	tail    Message
	hasTail bool
}

// New returns a conversation seeded with msgs.
func New(msgs ...Message) Conversation {
	return Conversation{}.Append(msgs...)
}

// Append returns a new conversation with msgs added to the end. It copies the
// settled messages once.
func (c Conversation) Append(msgs ...Message) Conversation {
	if len(msgs) == 0 {
		return c
	}

	n := len(c.head) + len(msgs) - 1
	if c.hasTail {
		n++
	}

	var head []Message
	if n > 0 {
		head = make([]Message, 0, n)
		head = append(head, c.head...)
		if c.hasTail {
			head = append(head, c.tail)
		}
		head = append(head, msgs[:len(msgs)-1]...)
	}

	return Conversation{head: head, tail: msgs[len(msgs)-1], hasTail: true}
}

// ReplaceLast returns a new conversation whose last element is m. On an empty
// conversation it behaves like Append.
func (c Conversation) ReplaceLast(m Message) Conversation {
	if !c.hasTail {
		return c.Append(m)
	}
	return Conversation{head: c.head, tail: m, hasTail: true}
}

// Last returns the final message, and false if the conversation is empty.
func (c Conversation) Last() (Message, bool) {
	return c.tail, c.hasTail
}

// Len returns the number of messages.
func (c Conversation) Len() int {
	if !c.hasTail {
		return 0
	}
	return len(c.head) + 1
}

// Messages returns a copy of the messages in order.
func (c Conversation) Messages() []Message {
	out := make([]Message, 0, c.Len())
	out = append(out, c.head...)
	if c.hasTail {
		out = append(out, c.tail)
	}
	return out
}
