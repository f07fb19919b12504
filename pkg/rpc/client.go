package rpc

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/HatiCode/escolta/pkg/ensemble"
)

// Client calls a remote forecast service.
type Client struct {
	cc   grpc.ClientConnInterface
	conn *grpc.ClientConn
}

// Dial connects to target. A nil tlsCfg uses plaintext.
func Dial(target string, tlsCfg *tls.Config, opts ...grpc.DialOption) (*Client, error) {
	creds := insecure.NewCredentials()
	if tlsCfg != nil {
		creds = credentials.NewTLS(tlsCfg)
	}
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(creds)}, opts...)

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	return &Client{cc: conn, conn: conn}, nil
}

// NewClient wraps an existing connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Combine asks the server for an ensemble forecast of series.
func (c *Client) Combine(ctx context.Context, series []float64, horizon int) (ensemble.Result, error) {
	values := make([]any, len(series))
	for i, v := range series {
		values[i] = v
	}
	in, err := structpb.NewStruct(map[string]any{
		"series":  values,
		"horizon": horizon,
	})
	if err != nil {
		return ensemble.Result{}, fmt.Errorf("build request: %w", err)
	}

	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, CombineMethod, in, out); err != nil {
		return ensemble.Result{}, err
	}

	b, err := protojson.Marshal(out)
	if err != nil {
		return ensemble.Result{}, fmt.Errorf("read response: %w", err)
	}
	var res ensemble.Result
	if err := json.Unmarshal(b, &res); err != nil {
		return ensemble.Result{}, fmt.Errorf("decode response: %w", err)
	}
	return res, nil
}

// Close releases the connection opened by Dial.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
