package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline, so the same logical flag
// (e.g. --base-url on both "chatstream chat" and "chatstream status") cannot
// drift between commands.
type Flag struct {
	// Name is the long flag name (e.g. "base-url").
	Name string

	// Shorthand is the one-letter short flag (e.g. "u"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "client.base_url").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of registry keys to Flag definitions.
type FlagSet map[string]Flag

// Flag registry keys.
const (
	FlagBaseURL    = "base-url"
	FlagTimeout    = "timeout"
	FlagMockListen = "mock-listen"
	FlagMockScript = "mock-script"
	FlagMockDelay  = "mock-delay"
)

// Flags is the registry shared by all chatstream commands.
var Flags = FlagSet{
	FlagBaseURL:    {Name: "base-url", Shorthand: "u", ViperKey: "client.base_url", Description: "Chat backend base URL"},
	FlagTimeout:    {Name: "timeout", ViperKey: "client.timeout", Description: "Per-turn timeout (e.g. 90s, 5m); 0 disables"},
	FlagMockListen: {Name: "listen", Shorthand: "l", ViperKey: "mock.listen", Description: "Address for the mock backend to listen on"},
	FlagMockScript: {Name: "script", ViperKey: "mock.script", Description: "TOML script of events to replay (default: built-in script)"},
	FlagMockDelay:  {Name: "delay", ViperKey: "mock.delay", Description: "Delay between replayed events"},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaultString returns the default string value for a viper key from NewDefaultConfig.
func defaultString(viperKey string) string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetString(viperKey)
}
