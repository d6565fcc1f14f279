package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"sync"
)

var (
	ErrTimeout     = errors.New("recache: request timed out")
	ErrKeyNotFound = errors.New("recache: key not found")
)

// Client is a recache client holding a persistent connection. Requests are
// serialized over the connection; one in-flight request at a time.
type Client struct {
	c    net.Conn
	r    *bufio.Reader
	addr string
	mu   sync.Mutex
}

func Dial(address string) (*Client, error) {
	conn, err := net.Dial("tcp", address)
	if err != nil {
		return nil, err
	}
	return &Client{
		c:    conn,
		r:    bufio.NewReader(conn),
		addr: address,
	}, nil
}

func (client *Client) Close() error {
	return client.c.Close()
}

func (client *Client) Reconnect() error {
	client.mu.Lock()
	defer client.mu.Unlock()
	return client.reconnect()
}

func (client *Client) reconnect() error {
	if err := client.c.Close(); err != nil {
		return err
	}
	conn, err := net.Dial("tcp", client.addr)
	if err != nil {
		return err
	}
	client.c = conn
	client.r = bufio.NewReader(conn)
	return nil
}

// Put stores value under key. The returned string is the server's
// acknowledgement message.
func (client *Client) Put(ctx context.Context, key, value string) (string, error) {
	return client.queryServer(ctx, request{
		operation: PUT,
		key:       key,
		headers: map[string]string{
			LENGTH_HEADER: fmt.Sprintf("%d", len(value)),
		},
		body: &value,
	})
}

// Get fetches the value cached under key. A miss is reported as
// ErrKeyNotFound.
func (client *Client) Get(ctx context.Context, key string) (string, error) {
	return client.queryServer(ctx, request{
		operation: GET,
		key:       key,
	})
}

func (client *Client) Delete(ctx context.Context, key string) (string, error) {
	return client.queryServer(ctx, request{
		operation: DELETE,
		key:       key,
	})
}

// Stats returns the server's one-line cache statistics summary.
func (client *Client) Stats(ctx context.Context) (string, error) {
	return client.queryServer(ctx, request{
		operation: STATS,
	})
}

type request struct {
	operation Operation
	key       string
	headers   map[string]string
	body      *string
}

func (r request) Marshal() []byte {
	req := string(r.operation) + "\n"
	if r.key != "" {
		req += fmt.Sprintf("%s: %s\n", KEY_HEADER, r.key)
	}
	for k, v := range r.headers {
		req += fmt.Sprintf("%s: %s\n", k, v)
	}
	req += "\n" // leave a blank line between headers and body
	if r.body != nil {
		req += *r.body
	}
	return []byte(req)
}

func (client *Client) queryServer(ctx context.Context, r request) (string, error) {
	client.mu.Lock()
	defer client.mu.Unlock()
	if _, err := client.c.Write(r.Marshal()); err != nil {
		return "", fmt.Errorf("failed to send request to server: %s", err)
	}

	t, _ := ctx.Deadline()
	client.c.SetReadDeadline(t)

	status, body, err := client.readResponse()
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return "", ErrTimeout
		}
		return "", fmt.Errorf("failed to read server response: %s", err)
	}

	switch status {
	case StatusOK:
		return string(body), nil
	case StatusNotFound:
		return "", ErrKeyNotFound
	case StatusError:
		client.reconnect() // server ends the connection on protocol errors, so reconnect
		return "", fmt.Errorf("failed to process request: %s", body)
	default:
		client.reconnect()
		return "", fmt.Errorf("unknown response status '%s'", status)
	}
}

// readResponse parses one framed server reply: a status line, a Length
// header and a body read in full, so values larger than any single network
// read arrive intact.
func (client *Client) readResponse() (string, []byte, error) {
	status, err := readLine(client.r)
	if err != nil {
		return "", nil, err
	}
	headers, err := readHeaders(client.r)
	if err != nil {
		return "", nil, err
	}
	length, ok := headers[LENGTH_HEADER]
	if !ok {
		return "", nil, fmt.Errorf("response missing %s header", LENGTH_HEADER)
	}
	bodyLen, err := strconv.Atoi(length)
	if err != nil || bodyLen < 0 {
		return "", nil, fmt.Errorf("invalid response %s header '%s'", LENGTH_HEADER, length)
	}
	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(client.r, body); err != nil {
		return "", nil, err
	}
	return status, body, nil
}
