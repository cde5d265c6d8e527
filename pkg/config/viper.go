package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/chatstream/pkg/dotdir"
)

// legacyBaseURLEnv is honoured as an alias for CHATSTREAM_CLIENT_BASE_URL.
const legacyBaseURLEnv = "API_BASE_URL"

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the CHATSTREAM_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (CHATSTREAM_CLIENT_BASE_URL or API_BASE_URL, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	setViperDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix("CHATSTREAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AllowEmptyEnv(true)
	v.AutomaticEnv()

	if err := v.BindEnv("client.base_url", "CHATSTREAM_CLIENT_BASE_URL", legacyBaseURLEnv); err != nil {
		return nil, fmt.Errorf("binding env: %w", err)
	}

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	v.SetDefault("client.base_url", d.Client.BaseURL)
	v.SetDefault("client.timeout", d.Client.Timeout)

	v.SetDefault("chat.greeting", d.Chat.Greeting)

	v.SetDefault("mock.listen", d.Mock.Listen)
	v.SetDefault("mock.script", d.Mock.Script)
	v.SetDefault("mock.delay", d.Mock.Delay)

	v.SetDefault("eventstream.brokers", d.EventStream.Brokers)
	v.SetDefault("eventstream.topic", d.EventStream.Topic)
}

// Brokers reads eventstream.brokers from v, accepting either a TOML array or
// a comma separated string (as set through the environment).
func Brokers(v *viper.Viper) []string {
	var out []string
	for _, b := range v.GetStringSlice("eventstream.brokers") {
		out = append(out, splitList(b)...)
	}
	return out
}
