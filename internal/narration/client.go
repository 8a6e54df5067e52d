package narration

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	// ServiceName is the gRPC service TTS backends implement.
	ServiceName = "hypnotone.narration.v1.Narrator"
	// SessionIDHeader carries the session id as request metadata.
	SessionIDHeader = "x-session-id"

	speakMethod = "/" + ServiceName + "/Speak"
)

// Client sends narration text to a remote TTS service over gRPC.
type Client struct {
	conn *grpc.ClientConn
}

// NewClient creates a narration client for addr. Extra dial options are
// appended after the default insecure transport credentials.
func NewClient(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, opts...)

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// Narrate asks the TTS service to speak text. The call returns once the
// service has accepted the request.
func (c *Client) Narrate(ctx context.Context, sessionID, text string) error {
	ctx = metadata.AppendToOutgoingContext(ctx, SessionIDHeader, sessionID)
	return c.conn.Invoke(ctx, speakMethod, wrapperspb.String(text), &emptypb.Empty{})
}

// Close shuts down the gRPC connection.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
