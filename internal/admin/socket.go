package admin

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/vmgrid/vmgrid-core/internal/entity"
)

// Timeouts for admin daemon communication.
const (
	// defaultDialTimeout is the maximum time to wait for the socket to
	// accept a connection.
	defaultDialTimeout = 10 * time.Second

	// defaultRequestTimeout bounds one enumeration round trip.
	defaultRequestTimeout = 30 * time.Second

	// eventBufferSize is the event channel buffer. It absorbs bursts
	// (mass domain shutdown) without stalling the stream reader.
	eventBufferSize = 256

	// maxLineSize caps one wire line. Domain enumerations with large
	// property sets stay well under this.
	maxLineSize = 4 << 20
)

// SocketClient talks newline-delimited JSON to the admin daemon's unix
// socket. Enumeration requests share one connection guarded by a mutex;
// the event stream runs on its own connection so a slow enumeration
// never delays event delivery.
type SocketClient struct {
	path string

	reqMu  sync.Mutex
	conn   net.Conn
	reader *bufio.Reader

	errMu     sync.Mutex
	streamErr error
}

var _ Client = (*SocketClient)(nil)

// request is one wire request to the daemon.
type request struct {
	Method string            `json:"method"`
	Args   map[string]string `json:"args,omitempty"`
}

// response is one wire response from the daemon.
type response struct {
	OK    bool            `json:"ok"`
	Error string          `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Dial connects to the admin daemon socket.
func Dial(path string) (*SocketClient, error) {
	conn, err := net.DialTimeout("unix", path, defaultDialTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return &SocketClient{
		path:   path,
		conn:   conn,
		reader: newLineReader(conn),
	}, nil
}

// Close closes the request connection. The event stream connection is
// owned by Events and closes with its context.
func (c *SocketClient) Close() error {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()
	return c.conn.Close()
}

// Domains enumerates all current domains.
func (c *SocketClient) Domains(ctx context.Context) ([]DomainInfo, error) {
	var out []DomainInfo
	if err := c.call(ctx, "domains", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Domain fetches one domain by qid.
func (c *SocketClient) Domain(ctx context.Context, qid int) (DomainInfo, error) {
	var out DomainInfo
	err := c.call(ctx, "domain", map[string]string{"qid": fmt.Sprintf("%d", qid)}, &out)
	return out, err
}

// DomainByName fetches one domain by name.
func (c *SocketClient) DomainByName(ctx context.Context, name string) (DomainInfo, error) {
	var out DomainInfo
	err := c.call(ctx, "domain", map[string]string{"name": name}, &out)
	return out, err
}

// Devices enumerates one device class of one backend domain.
func (c *SocketClient) Devices(ctx context.Context, backend int, class entity.DeviceClass) ([]DeviceInfo, error) {
	var out []DeviceInfo
	args := map[string]string{
		"backend": fmt.Sprintf("%d", backend),
		"class":   string(class),
	}
	if err := c.call(ctx, "devices", args, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Labels enumerates the label set.
func (c *SocketClient) Labels(ctx context.Context) ([]LabelInfo, error) {
	var out []LabelInfo
	if err := c.call(ctx, "labels", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Events opens the event stream on a dedicated connection and returns
// the event channel. The channel closes when ctx is cancelled or the
// stream is lost; Err distinguishes the two afterwards.
func (c *SocketClient) Events(ctx context.Context) (<-chan Event, error) {
	conn, err := net.DialTimeout("unix", c.path, defaultDialTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	if err := json.NewEncoder(conn).Encode(request{Method: "events"}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: subscribing to events: %w", ErrConnectionFailed, err)
	}

	events := make(chan Event, eventBufferSize)
	go c.receiveLoop(ctx, conn, events)
	return events, nil
}

// Err reports why the event stream terminated.
func (c *SocketClient) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.streamErr
}

// receiveLoop reads event lines until the stream ends. Malformed lines
// are skipped; the daemon interleaving an invalid line is not a reason
// to drop the mirror.
func (c *SocketClient) receiveLoop(ctx context.Context, conn net.Conn, events chan<- Event) {
	defer close(events)
	defer conn.Close()

	// Unblock the reader when the context ends.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			continue
		}
		select {
		case events <- ev:
		case <-ctx.Done():
			return
		}
	}

	if ctx.Err() == nil {
		err := scanner.Err()
		c.errMu.Lock()
		if err != nil {
			c.streamErr = fmt.Errorf("%w: %w", ErrStreamClosed, err)
		} else {
			c.streamErr = ErrStreamClosed
		}
		c.errMu.Unlock()
	}
}

// call performs one request/response round trip on the shared request
// connection.
func (c *SocketClient) call(ctx context.Context, method string, args map[string]string, out any) error {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	deadline := time.Now().Add(defaultRequestTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}

	if err := json.NewEncoder(c.conn).Encode(request{Method: method, Args: args}); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrRequestFailed, method, err)
	}

	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrRequestFailed, method, err)
	}
	var resp response
	if err := json.Unmarshal(line, &resp); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrRequestFailed, method, err)
	}
	if !resp.OK {
		if strings.Contains(resp.Error, "no such") {
			return fmt.Errorf("%w: %s", ErrNoSuchEntity, resp.Error)
		}
		return fmt.Errorf("%w: %s: %s", ErrRequestFailed, method, resp.Error)
	}
	if out == nil || len(resp.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("%w: %s: decoding data: %w", ErrRequestFailed, method, err)
	}
	return nil
}

func newLineReader(conn net.Conn) *bufio.Reader {
	return bufio.NewReaderSize(conn, 64*1024)
}
