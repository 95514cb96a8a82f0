package transports

import "context"

// SessionsTransport abstracts the transport used by the CLI (gRPC/HTTP).
// Requests and responses are JSON documents with the server's field names,
// so both transports print identical output.
type SessionsTransport interface {
	StartGeneration(ctx context.Context, body []byte) ([]byte, error)
	StartEmail(ctx context.Context, body []byte) ([]byte, error)
	Poll(ctx context.Context, sessionID string) ([]byte, error)
	Control(ctx context.Context, sessionID, action string) ([]byte, error)
	List(ctx context.Context) ([]byte, error)
	Archived(ctx context.Context, sessionID string) ([]byte, error)
	ListArchived(ctx context.Context, limit int) ([]byte, error)
	// Watch calls onEvent with each progress snapshot until the session
	// finishes or ctx is done.
	Watch(ctx context.Context, sessionID string, onEvent func([]byte) error) error
}
