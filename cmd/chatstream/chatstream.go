// Package chatstreamcmder
package chatstreamcmder

import (
	"github.com/spf13/cobra"

	chatcmder "github.com/papercomputeco/chatstream/cmd/chatstream/chat"
	configcmder "github.com/papercomputeco/chatstream/cmd/chatstream/config"
	mockcmder "github.com/papercomputeco/chatstream/cmd/chatstream/mock"
	statuscmder "github.com/papercomputeco/chatstream/cmd/chatstream/status"
	versioncmder "github.com/papercomputeco/chatstream/cmd/chatstream/version"
)

const chatstreamLongDesc string = `chatstream is a terminal client for search-augmented chat backends.

It sends each message to the backend's /chat_stream endpoint and renders the
answer as it streams in, including the web searches run along the way.

Get started using:
  chatstream chat           Start an interactive chat
  chatstream mock           Run a scripted local backend
  chatstream status         Show configuration and probe the backend
  chatstream config list    Show persistent configuration`

const chatstreamShortDesc string = "chatstream - streaming chat in the terminal"

func NewChatstreamCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "chatstream",
		Short:        chatstreamShortDesc,
		Long:         chatstreamLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .chatstream/ config directory")

	// Add subcommands
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(mockcmder.NewMockCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(statuscmder.NewStatusCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
