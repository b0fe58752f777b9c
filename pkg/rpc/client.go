package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"

	"github.com/scrogson/walle/pkg/log"
)

var (
	ErrNotConnected     = errors.New("not connected to node")
	ErrDialingWebsocket = errors.New("error dialing websocket node")
	ErrSendingRequest   = errors.New("error sending request")
	ErrNoResponse       = errors.New("no response received")
	// ErrUntrustedResponse is returned when a response is not signed by the expected node.
	ErrUntrustedResponse = errors.New("response not signed by node")
)

// ClientConfig configures Dial.
type ClientConfig struct {
	HandshakeTimeout time.Duration
	// NodeAddress, when set, must be the signer of every response.
	NodeAddress common.Address
	Logger      log.Logger
}

// Client is a request/response connection to a WebsocketNode. It is safe for
// concurrent use.
type Client struct {
	cfg    ClientConfig
	conn   *websocket.Conn
	nextID atomic.Uint64

	mu      sync.Mutex
	sinks   map[uint64]chan *Response
	writeMu sync.Mutex

	done chan struct{}
}

// Dial connects to url and starts the read loop.
func Dial(ctx context.Context, url string, cfg ClientConfig) (*Client, error) {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNoopLogger()
	}
	cfg.Logger = cfg.Logger.WithName("rpc-client")

	dialer := websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDialingWebsocket, err)
	}

	c := &Client{
		cfg:   cfg,
		conn:  conn,
		sinks: make(map[uint64]chan *Response),
		done:  make(chan struct{}),
	}
	go c.readMessages()
	return c, nil
}

// Call sends method with params and waits for the matching response.
// Error responses are returned as a *Response with a nil error; use CallInto
// to have them converted.
func (c *Client) Call(ctx context.Context, method Method, params any) (*Response, error) {
	p, err := NewParams(params)
	if err != nil {
		return nil, err
	}

	id := c.nextID.Add(1)
	sink := make(chan *Response, 1)

	c.mu.Lock()
	select {
	case <-c.done:
		c.mu.Unlock()
		return nil, ErrNotConnected
	default:
	}
	c.sinks[id] = sink
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.sinks, id)
		c.mu.Unlock()
	}()

	data, err := json.Marshal(NewRequest(NewPayload(id, method.String(), p)))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	c.writeMu.Lock()
	err = c.conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSendingRequest, err)
	}

	select {
	case res := <-sink:
		if err := c.verify(res); err != nil {
			return nil, err
		}
		return res, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w for request %d: %w", ErrNoResponse, id, ctx.Err())
	case <-c.done:
		return nil, fmt.Errorf("%w for request %d: %w", ErrNoResponse, id, ErrNotConnected)
	}
}

// CallInto is Call followed by decoding the result params into result.
// An error response is returned as an Error carrying the node's message.
func (c *Client) CallInto(ctx context.Context, method Method, params, result any) error {
	res, err := c.Call(ctx, method, params)
	if err != nil {
		return err
	}
	if err := res.Error(); err != nil {
		return Errorf("%s", err.Error())
	}
	if result == nil {
		return nil
	}
	return res.Res.Params.Translate(result)
}

// Close closes the connection. Pending calls fail with ErrNotConnected.
func (c *Client) Close() error {
	err := c.conn.Close()
	<-c.done
	return err
}

func (c *Client) verify(res *Response) error {
	if c.cfg.NodeAddress == (common.Address{}) {
		return nil
	}

	signers, err := res.GetSigners()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUntrustedResponse, err)
	}
	for _, signer := range signers {
		if signer == c.cfg.NodeAddress {
			return nil
		}
	}
	return ErrUntrustedResponse
}

func (c *Client) readMessages() {
	defer func() {
		c.mu.Lock()
		close(c.done)
		c.mu.Unlock()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.cfg.Logger.Debug("read loop stopped", "error", err)
			return
		}

		var res Response
		if err := json.Unmarshal(data, &res); err != nil {
			c.cfg.Logger.Warn("malformed response", "error", err)
			continue
		}

		c.mu.Lock()
		sink, ok := c.sinks[res.Res.RequestID]
		c.mu.Unlock()
		if !ok {
			c.cfg.Logger.Debug("dropping response for unknown request", "requestID", res.Res.RequestID)
			continue
		}

		select {
		case sink <- &res:
		default:
		}
	}
}
