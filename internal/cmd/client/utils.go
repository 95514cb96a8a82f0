package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	transports "github.com/tinkertanker/bamboobot-cert-generator-sub002/internal/cmd/client/transports"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// BaseURLFunc provides the base HTTP API URL (e.g., from env or flag).
type BaseURLFunc func() string

// HTTPBaseFromEnv returns the HTTP API base from CERTD_HTTP or a default.
func HTTPBaseFromEnv() string {
	if v := os.Getenv("CERTD_HTTP"); v != "" {
		return v
	}
	return "http://127.0.0.1:8080"
}

// grpcAddrFromEnv returns the gRPC server address from CERTD_GRPC or a default.
func grpcAddrFromEnv() string {
	if addr := os.Getenv("CERTD_GRPC"); addr != "" {
		return addr
	}
	return "127.0.0.1:9090"
}

// dialGRPCContext connects to the certd gRPC endpoint with insecure transport for local/dev.
func dialGRPCContext(_ context.Context) (*grpc.ClientConn, error) {
	return grpc.NewClient(grpcAddrFromEnv(), grpc.WithTransportCredentials(insecure.NewCredentials()))
}

// getTransport picks the transport named by the --transport flag.
func getTransport(cmd *cobra.Command, baseURL BaseURLFunc) (transports.SessionsTransport, error) {
	name, _ := cmd.Flags().GetString("transport")
	switch name {
	case "", "http":
		return transports.NewHTTPTransport(baseURL(), nil), nil
	case "grpc":
		return transports.NewGrpcTransport(dialGRPCContext), nil
	default:
		return nil, fmt.Errorf("invalid --transport %q; use http|grpc", name)
	}
}

// printJSON writes b indented, or as-is when it is not valid JSON.
func printJSON(w io.Writer, b []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, b, "", "  "); err != nil {
		_, err = w.Write(b)
		return err
	}
	buf.WriteByte('\n')
	_, err := w.Write(buf.Bytes())
	return err
}

// readBody reads a request document from path, or stdin when path is "-".
func readBody(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "" {
		return nil, fmt.Errorf("--file is required")
	}
	var (
		b   []byte
		err error
	)
	if path == "-" {
		b, err = io.ReadAll(cmd.InOrStdin())
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	if !json.Valid(b) {
		return nil, fmt.Errorf("%s: not valid JSON", path)
	}
	return b, nil
}

// withSessionID sets session_id in the request document when id is non-empty.
func withSessionID(body []byte, id string) ([]byte, error) {
	if id == "" {
		return body, nil
	}
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, err
	}
	doc["session_id"] = id
	return json.Marshal(doc)
}
