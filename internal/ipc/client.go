package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to a running daemon.
type Client struct {
	conn net.Conn
	rpc  *rpc.Client
}

// Dial connects to the IPC socket at path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, rpc: rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.rpc != nil {
		_ = c.rpc.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func call[Resp any](c *Client, method string, req any) (*Resp, error) {
	var resp Resp
	if err := c.rpc.Call(method, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Ping checks that the daemon is alive and returns its process id.
func (c *Client) Ping() (*PingResponse, error) {
	return call[PingResponse](c, "Vigil.Ping", PingRequest{})
}

// Start asks the daemon to begin monitoring.
func (c *Client) Start() (*StartResponse, error) {
	return call[StartResponse](c, "Vigil.Start", StartRequest{})
}

// Stop asks the daemon to stop monitoring and drain its pipeline.
func (c *Client) Stop() (*StopResponse, error) {
	return call[StopResponse](c, "Vigil.Stop", StopRequest{})
}

// Status retrieves the daemon's full status snapshot.
func (c *Client) Status() (*StatusResponse, error) {
	return call[StatusResponse](c, "Vigil.Status", StatusRequest{})
}

// RecentOutcomes returns the newest outcome history rows plus all-time
// totals.
func (c *Client) RecentOutcomes(limit int) (*RecentOutcomesResponse, error) {
	return call[RecentOutcomesResponse](c, "Vigil.RecentOutcomes", RecentOutcomesRequest{Limit: limit})
}

// Playthroughs returns per-playthrough outcome aggregates.
func (c *Client) Playthroughs() (*PlaythroughsResponse, error) {
	return call[PlaythroughsResponse](c, "Vigil.Playthroughs", PlaythroughsRequest{})
}

// ResetTracking clears the daemon's dedup state.
func (c *Client) ResetTracking() (*ResetTrackingResponse, error) {
	return call[ResetTrackingResponse](c, "Vigil.ResetTracking", ResetTrackingRequest{})
}

// HistoryHealth retrieves history database diagnostics.
func (c *Client) HistoryHealth() (*HistoryHealthResponse, error) {
	return call[HistoryHealthResponse](c, "Vigil.HistoryHealth", HistoryHealthRequest{})
}
