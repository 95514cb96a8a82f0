package client

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// NewSessionCommand constructs the `session` command group and subcommands.
func NewSessionCommand(baseURL BaseURLFunc) *cobra.Command {
	sessionCmd := &cobra.Command{Use: "session", Short: "Session operations"}
	sessionCmd.AddCommand(
		newSessionPollCommand(baseURL),
		newSessionControlCommand(baseURL, "pause", "Pause a processing session"),
		newSessionControlCommand(baseURL, "resume", "Resume a paused session"),
		newSessionControlCommand(baseURL, "cancel", "Cancel a session"),
		newSessionListCommand(baseURL),
		newSessionWatchCommand(baseURL),
		newSessionArchiveCommand(baseURL),
	)
	return sessionCmd
}

func requireID(cmd *cobra.Command) (string, error) {
	id, _ := cmd.Flags().GetString("id")
	if id == "" {
		return "", fmt.Errorf("--id is required")
	}
	return id, nil
}

// newSessionPollCommand constructs the `session poll` subcommand.
func newSessionPollCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Show session progress (and results once finished)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := requireID(cmd)
			if err != nil {
				return err
			}
			t, err := getTransport(cmd, baseURL)
			if err != nil {
				return err
			}
			out, err := t.Poll(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().String("id", "", "Session id")
	return cmd
}

// newSessionControlCommand constructs `session pause|resume|cancel`.
func newSessionControlCommand(baseURL BaseURLFunc, action, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   action,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := requireID(cmd)
			if err != nil {
				return err
			}
			t, err := getTransport(cmd, baseURL)
			if err != nil {
				return err
			}
			out, err := t.Control(cmd.Context(), id, action)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().String("id", "", "Session id")
	return cmd
}

// newSessionListCommand constructs the `session list` subcommand.
func newSessionListCommand(baseURL BaseURLFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List live sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, err := getTransport(cmd, baseURL)
			if err != nil {
				return err
			}
			out, err := t.List(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}

// newSessionWatchCommand constructs the `session watch` subcommand. Each
// progress snapshot is printed as one JSON line.
func newSessionWatchCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow session progress until it finishes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := requireID(cmd)
			if err != nil {
				return err
			}
			t, err := getTransport(cmd, baseURL)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			return t.Watch(cmd.Context(), id, func(ev []byte) error {
				_, err := fmt.Fprintln(w, string(ev))
				return err
			})
		},
	}
	cmd.Flags().String("id", "", "Session id")
	return cmd
}

// newSessionArchiveCommand constructs the `session archive` subcommand.
func newSessionArchiveCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Show archived sessions (one with --id, recent ones otherwise)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, _ := cmd.Flags().GetString("id")
			limit, _ := cmd.Flags().GetInt("limit")
			t, err := getTransport(cmd, baseURL)
			if err != nil {
				return err
			}
			var out []byte
			if id != "" {
				out, err = t.Archived(cmd.Context(), id)
			} else {
				out, err = t.ListArchived(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().String("id", "", "Session id")
	cmd.Flags().Int("limit", 20, "Maximum sessions to list")
	return cmd
}

func sessionIDOf(startResponse []byte) (string, error) {
	var v struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(startResponse, &v); err != nil {
		return "", err
	}
	if v.SessionID == "" {
		return "", fmt.Errorf("response carries no session_id")
	}
	return v.SessionID, nil
}
