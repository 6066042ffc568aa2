package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, client: rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func (c *Client) call(method string, req, resp any) error {
	return c.client.Call(ServiceName+"."+method, req, resp)
}

// SyncStart asks the daemon to start a session, optionally waiting for it.
func (c *Client) SyncStart(wait bool) (*SyncStartResponse, error) {
	var resp SyncStartResponse
	if err := c.call("SyncStart", SyncStartRequest{Wait: wait}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SyncCancel asks the daemon to cancel the active session.
func (c *Client) SyncCancel() (*SyncCancelResponse, error) {
	var resp SyncCancelResponse
	if err := c.call("SyncCancel", SyncCancelRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.call("Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LogTail returns log lines from the daemon.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	var resp LogTailResponse
	if err := c.call("LogTail", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DatabaseHealth retrieves detailed database diagnostics.
func (c *Client) DatabaseHealth() (*DatabaseHealthResponse, error) {
	var resp DatabaseHealthResponse
	if err := c.call("DatabaseHealth", DatabaseHealthRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	var resp TestNotificationResponse
	if err := c.call("TestNotification", TestNotificationRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Shutdown asks the daemon process to exit.
func (c *Client) Shutdown() (*ShutdownResponse, error) {
	var resp ShutdownResponse
	if err := c.call("Shutdown", ShutdownRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
