package client

import (
	"github.com/spf13/cobra"
)

// NewRoot constructs a root Cobra command for the certd client.
// It registers the session, generate and email commands.
func NewRoot(baseURL BaseURLFunc) *cobra.Command {
	root := &cobra.Command{
		Use:   "certd",
		Short: "certd client commands",
	}
	AddCommands(root, baseURL)
	return root
}

// AddCommands registers the client command groups on root along with the
// persistent --transport flag.
func AddCommands(root *cobra.Command, baseURL BaseURLFunc) {
	root.PersistentFlags().String("transport", "http", "Transport: http|grpc")
	root.AddCommand(
		NewSessionCommand(baseURL),
		NewGenerateCommand(baseURL),
		NewEmailCommand(baseURL),
	)
}
