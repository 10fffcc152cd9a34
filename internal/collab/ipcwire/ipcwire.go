// Package ipcwire is the default collab.IPCTransport implementation: a
// Unix domain socket carrying length-prefixed JSON messages, exactly
// the wire shape the core's IPC contract documents ({method_name,
// arguments} requests, {ok|error, payload} responses). It exists so
// the daemon has a concrete, dialable transport out of the box; any
// other framing satisfying collab.IPCTransport can be swapped in.
package ipcwire

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"github.com/dxhq/dx/internal/collab"
)

const maxMessageSize = 16 << 20 // 16 MiB, guards against a malformed length prefix

// Reserved method names outside the registry's own command namespace.
const (
	statusMethod   = "__status__"
	registerMethod = "__register__"
)

func registerFromArgs(ctx context.Context, handler collab.IPCHandler, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("register requires [name, interpreter, script], got %d arguments", len(args))
	}
	return handler.Register(ctx, args[0], args[1], args[2])
}

// request is the wire shape of one IPC call.
type request struct {
	Method    string   `json:"method_name"`
	Arguments []string `json:"arguments"`
	APIKey    string   `json:"api_key,omitempty"`
}

// response is the wire shape of one IPC reply.
type response struct {
	OK      bool   `json:"ok"`
	Payload string `json:"payload"`
	Error   string `json:"error,omitempty"`
}

// Transport implements collab.IPCTransport over a Unix domain socket.
type Transport struct {
	mu       sync.Mutex
	listener net.Listener
}

// New creates an unstarted Transport.
func New() *Transport {
	return &Transport{}
}

// Serve listens on addr (a filesystem path) and handles connections
// until ctx is cancelled or Close is called. Each connection may carry
// multiple sequential requests.
func (t *Transport) Serve(ctx context.Context, addr string, handler collab.IPCHandler) error {
	os.Remove(addr)
	ln, err := net.Listen("unix", addr)
	if err != nil {
		return fmt.Errorf("listen on %q: %w", addr, err)
	}

	t.mu.Lock()
	t.listener = ln
	t.mu.Unlock()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go serveConn(ctx, conn, handler)
	}
}

// Close stops accepting new connections.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener == nil {
		return nil
	}
	return t.listener.Close()
}

func serveConn(ctx context.Context, conn net.Conn, handler collab.IPCHandler) {
	defer conn.Close()
	r := bufio.NewReader(conn)

	for {
		req, err := readMessage[request](r)
		if err != nil {
			return
		}

		reqCtx := collab.WithAPIKey(ctx, req.APIKey)

		var res response
		switch req.Method {
		case statusMethod:
			result, err := handler.Status(reqCtx)
			res = fromResult(result, err)
		case registerMethod:
			err := registerFromArgs(reqCtx, handler, req.Arguments)
			res = fromResult(collab.IPCResult{OK: err == nil}, err)
		default:
			result, err := handler.Execute(reqCtx, req.Method, req.Arguments)
			res = fromResult(result, err)
		}

		if err := writeMessage(conn, res); err != nil {
			return
		}
	}
}

func fromResult(result collab.IPCResult, err error) response {
	if err != nil {
		return response{OK: false, Error: err.Error(), Payload: result.Message}
	}
	return response{OK: result.OK, Payload: result.Output}
}

func readMessage[T any](r *bufio.Reader) (T, error) {
	var zero T
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return zero, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxMessageSize {
		return zero, fmt.Errorf("message of %d bytes exceeds limit", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return zero, err
	}
	var msg T
	if err := json.Unmarshal(buf, &msg); err != nil {
		return zero, err
	}
	return msg, nil
}

func writeMessage(w io.Writer, v any) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(buf)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// Client dials an ipcwire Transport and issues requests against it.
type Client struct {
	conn   net.Conn
	r      *bufio.Reader
	apiKey string
}

// Dial connects to the Unix domain socket at addr.
func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("unix", addr)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, r: bufio.NewReader(conn)}, nil
}

// SetAPIKey attaches an API key to every subsequent request this client
// sends, for daemons started with peer authentication enabled.
func (c *Client) SetAPIKey(key string) {
	c.apiKey = key
}

// Execute issues one method call and returns its response.
func (c *Client) Execute(method string, args []string) (ok bool, payload string, err error) {
	if err := writeMessage(c.conn, request{Method: method, Arguments: args, APIKey: c.apiKey}); err != nil {
		return false, "", err
	}
	res, err := readMessage[response](c.r)
	if err != nil {
		return false, "", err
	}
	if res.Error != "" {
		return false, res.Payload, errors.New(res.Error)
	}
	return res.OK, res.Payload, nil
}

// Status issues the reserved status request.
func (c *Client) Status() (string, error) {
	_, payload, err := c.Execute(statusMethod, nil)
	return payload, err
}

// Register asks the daemon to add a subprocess-script handler to its
// live registry.
func (c *Client) Register(name, interpreter, script string) error {
	_, _, err := c.Execute(registerMethod, []string{name, interpreter, script})
	return err
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
