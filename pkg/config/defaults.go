package config

const (
	defaultBaseURL  = "http://localhost:8000"
	defaultTimeout  = "5m"
	defaultGreeting = "Hello there 👋\nHow can I assist you today?"

	defaultMockListen = ":8000"
	defaultMockDelay  = "40ms"

	defaultEventStreamTopic = "chatstream.turns"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Client: ClientConfig{
			BaseURL: defaultBaseURL,
			Timeout: defaultTimeout,
		},
		Chat: ChatConfig{
			Greeting: defaultGreeting,
		},
		Mock: MockConfig{
			Listen: defaultMockListen,
			Delay:  defaultMockDelay,
		},
		EventStream: EventStreamConfig{
			Topic: defaultEventStreamTopic,
		},
	}
}
