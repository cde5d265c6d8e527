package config

import (
	"fmt"
	"strings"
	"time"
)

// Config represents the persistent chatstream configuration stored as
// config.toml in the .chatstream/ directory. The TOML layout uses sections for
// logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Client      ClientConfig      `toml:"client"`
	Chat        ChatConfig        `toml:"chat"`
	Mock        MockConfig        `toml:"mock"`
	EventStream EventStreamConfig `toml:"eventstream"`
}

// ClientConfig holds settings for reaching the chat backend.
type ClientConfig struct {
	// BaseURL is the backend root (scheme + host + port).
	BaseURL string `toml:"base_url,omitempty"`

	// Timeout bounds a single turn, as a Go duration string. "0" disables it.
	Timeout string `toml:"timeout,omitempty"`
}

// ChatConfig holds settings for the interactive chat views.
type ChatConfig struct {
	// Greeting is the assistant message every conversation starts with.
	Greeting string `toml:"greeting,omitempty"`
}

// MockConfig holds settings for the fixture backend served by "chatstream mock".
type MockConfig struct {
	Listen string `toml:"listen,omitempty"`
	Script string `toml:"script,omitempty"`
	Delay  string `toml:"delay,omitempty"`
}

// EventStreamConfig configures publishing of completed turns. Publishing is
// disabled while Brokers is empty.
type EventStreamConfig struct {
	Brokers []string `toml:"brokers,omitempty"`
	Topic   string   `toml:"topic,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"client.base_url": {
		get: func(c *Config) string { return c.Client.BaseURL },
		set: func(c *Config, v string) error { c.Client.BaseURL = v; return nil },
	},
	"client.timeout": {
		get: func(c *Config) string { return c.Client.Timeout },
		set: func(c *Config, v string) error {
			if err := validateDuration("client.timeout", v); err != nil {
				return err
			}
			c.Client.Timeout = v
			return nil
		},
	},
	"chat.greeting": {
		get: func(c *Config) string { return c.Chat.Greeting },
		set: func(c *Config, v string) error { c.Chat.Greeting = v; return nil },
	},
	"mock.listen": {
		get: func(c *Config) string { return c.Mock.Listen },
		set: func(c *Config, v string) error { c.Mock.Listen = v; return nil },
	},
	"mock.script": {
		get: func(c *Config) string { return c.Mock.Script },
		set: func(c *Config, v string) error { c.Mock.Script = v; return nil },
	},
	"mock.delay": {
		get: func(c *Config) string { return c.Mock.Delay },
		set: func(c *Config, v string) error {
			if err := validateDuration("mock.delay", v); err != nil {
				return err
			}
			c.Mock.Delay = v
			return nil
		},
	},
	"eventstream.brokers": {
		get: func(c *Config) string { return strings.Join(c.EventStream.Brokers, ",") },
		set: func(c *Config, v string) error {
			c.EventStream.Brokers = splitList(v)
			return nil
		},
	},
	"eventstream.topic": {
		get: func(c *Config) string { return c.EventStream.Topic },
		set: func(c *Config, v string) error { c.EventStream.Topic = v; return nil },
	},
}

func validateDuration(key, v string) error {
	if v == "" || v == "0" {
		return nil
	}
	if _, err := time.ParseDuration(v); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return nil
}

// splitList splits a comma separated value, dropping blanks.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ParseDuration parses a configured duration. Empty and "0" mean zero.
func ParseDuration(v string) (time.Duration, error) {
	if v == "" || v == "0" {
		return 0, nil
	}
	return time.ParseDuration(v)
}
