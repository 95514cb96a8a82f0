package client

import (
	"context"

	transports "github.com/tinkertanker/bamboobot-cert-generator-sub002/internal/cmd/client/transports"
	"github.com/spf13/cobra"
)

// NewGenerateCommand constructs the `generate` command, which starts a
// certificate generation session from a JSON request document.
func NewGenerateCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Start a certificate generation session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStart(cmd, baseURL, func(ctx context.Context, t transports.SessionsTransport, body []byte) ([]byte, error) {
				return t.StartGeneration(ctx, body)
			})
		},
	}
	cmd.Flags().StringP("file", "f", "", "Request document (JSON), or - for stdin")
	cmd.Flags().String("session-id", "", "Session id (overrides the document)")
	cmd.Flags().Bool("watch", false, "Follow progress until the session finishes")
	return cmd
}

// NewEmailCommand constructs the `email` command, which starts an email
// session from a JSON request document.
func NewEmailCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "email",
		Short: "Start an email session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStart(cmd, baseURL, func(ctx context.Context, t transports.SessionsTransport, body []byte) ([]byte, error) {
				return t.StartEmail(ctx, body)
			})
		},
	}
	cmd.Flags().StringP("file", "f", "", "Request document (JSON), or - for stdin")
	cmd.Flags().String("session-id", "", "Session id (overrides the document)")
	cmd.Flags().Bool("watch", false, "Follow progress until the session finishes")
	return cmd
}

func runStart(cmd *cobra.Command, baseURL BaseURLFunc, start func(context.Context, transports.SessionsTransport, []byte) ([]byte, error)) error {
	path, _ := cmd.Flags().GetString("file")
	id, _ := cmd.Flags().GetString("session-id")
	watch, _ := cmd.Flags().GetBool("watch")

	body, err := readBody(cmd, path)
	if err != nil {
		return err
	}
	if body, err = withSessionID(body, id); err != nil {
		return err
	}
	t, err := getTransport(cmd, baseURL)
	if err != nil {
		return err
	}
	out, err := start(cmd.Context(), t, body)
	if err != nil {
		return err
	}
	if err := printJSON(cmd.OutOrStdout(), out); err != nil {
		return err
	}
	if !watch {
		return nil
	}
	started, err := sessionIDOf(out)
	if err != nil {
		return err
	}
	return t.Watch(cmd.Context(), started, func(ev []byte) error {
		return printJSON(cmd.OutOrStdout(), ev)
	})
}
