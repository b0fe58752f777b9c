package rpc

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/scrogson/walle/pkg/log"
)

var (
	defaultWsConnWriteTimeout      = 5 * time.Second
	defaultWsConnWriteBufferSize   = 10
	defaultWsConnProcessBufferSize = 10
)

// Connection is a single client session as seen by the node.
type Connection interface {
	ConnectionID() string
	// RawRequests yields incoming messages and is closed when reading stops.
	RawRequests() <-chan []byte
	// WriteRawResponse queues a message, reporting false if the write queue
	// stayed full for the write timeout. In that case the connection is closed.
	WriteRawResponse(message []byte) bool
	// Serve starts the read and write loops and returns immediately.
	// handleClosure is called once all loops have stopped.
	Serve(ctx context.Context, handleClosure func(error))
}

// GorillaWsConnectionAdapter is the subset of *websocket.Conn used by WebsocketConnection.
type GorillaWsConnectionAdapter interface {
	ReadMessage() (messageType int, p []byte, err error)
	NextWriter(messageType int) (io.WriteCloser, error)
	Close() error
}

var _ Connection = &WebsocketConnection{}

// WebsocketConnection pumps messages between a gorilla connection and two buffered channels.
type WebsocketConnection struct {
	connectionID  string
	websocketConn GorillaWsConnectionAdapter
	writeTimeout  time.Duration

	logger               log.Logger
	onMessageSentHandler func([]byte)
	writeSink            chan []byte
	processSink          chan []byte
	closeConnCh          chan struct{}

	mu      sync.Mutex
	serving bool
}

type WebsocketConnectionConfig struct {
	ConnectionID  string
	WebsocketConn GorillaWsConnectionAdapter

	// Optional; zero values select the defaults.
	WriteTimeout         time.Duration
	WriteBufferSize      int
	ProcessBufferSize    int
	Logger               log.Logger
	OnMessageSentHandler func([]byte)
}

func NewWebsocketConnection(config WebsocketConnectionConfig) (*WebsocketConnection, error) {
	if config.ConnectionID == "" {
		return nil, fmt.Errorf("connection ID cannot be empty")
	}
	if config.WebsocketConn == nil {
		return nil, fmt.Errorf("websocket connection cannot be nil")
	}
	if config.Logger == nil {
		config.Logger = log.NewNoopLogger()
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaultWsConnWriteTimeout
	}
	if config.WriteBufferSize <= 0 {
		config.WriteBufferSize = defaultWsConnWriteBufferSize
	}
	if config.ProcessBufferSize <= 0 {
		config.ProcessBufferSize = defaultWsConnProcessBufferSize
	}
	if config.OnMessageSentHandler == nil {
		config.OnMessageSentHandler = func([]byte) {}
	}

	return &WebsocketConnection{
		connectionID:         config.ConnectionID,
		websocketConn:        config.WebsocketConn,
		writeTimeout:         config.WriteTimeout,
		logger:               config.Logger.WithKV("connectionID", config.ConnectionID),
		onMessageSentHandler: config.OnMessageSentHandler,
		writeSink:            make(chan []byte, config.WriteBufferSize),
		processSink:          make(chan []byte, config.ProcessBufferSize),
		closeConnCh:          make(chan struct{}, 1),
	}, nil
}

func (conn *WebsocketConnection) Serve(ctx context.Context, handleClosure func(error)) {
	conn.mu.Lock()
	if conn.serving {
		conn.mu.Unlock()
		handleClosure(nil)
		return
	}
	conn.serving = true
	conn.mu.Unlock()

	childCtx, cancel := context.WithCancel(ctx)
	wg := &sync.WaitGroup{}
	wg.Add(3)

	var (
		closureErr   error
		closureErrMu sync.Mutex
	)
	childHandleClosure := func(err error) {
		closureErrMu.Lock()
		if err != nil && closureErr == nil {
			closureErr = err
		}
		closureErrMu.Unlock()

		cancel()
		wg.Done()
	}

	go conn.readMessages(childCtx, childHandleClosure)
	go conn.writeMessages(childCtx, childHandleClosure)
	go conn.waitForConnClose(childCtx, childHandleClosure)

	go func() {
		wg.Wait()

		closureErrMu.Lock()
		defer closureErrMu.Unlock()
		handleClosure(closureErr)
	}()
}

func (conn *WebsocketConnection) ConnectionID() string {
	return conn.connectionID
}

func (conn *WebsocketConnection) RawRequests() <-chan []byte {
	return conn.processSink
}

func (conn *WebsocketConnection) WriteRawResponse(message []byte) bool {
	timer := time.NewTimer(conn.writeTimeout)
	defer timer.Stop()

	select {
	case conn.writeSink <- message:
		return true
	case <-timer.C:
		conn.logger.Warn("write queue full, closing connection")
		select {
		case conn.closeConnCh <- struct{}{}:
		default:
		}
		return false
	}
}

func (conn *WebsocketConnection) readMessages(ctx context.Context, handleClosure func(error)) {
	defer close(conn.processSink)

	for {
		_, messageBytes, err := conn.websocketConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				conn.logger.Error("WebSocket connection closed unexpectedly", "error", err)
				handleClosure(err)
			} else {
				handleClosure(nil)
			}
			return
		}

		if len(messageBytes) == 0 {
			continue
		}

		select {
		case conn.processSink <- messageBytes:
		case <-ctx.Done():
			handleClosure(nil)
			return
		}
	}
}

func (conn *WebsocketConnection) writeMessages(ctx context.Context, handleClosure func(error)) {
	defer handleClosure(nil)

	for {
		select {
		case <-ctx.Done():
			return
		case messageBytes := <-conn.writeSink:
			if len(messageBytes) == 0 {
				continue
			}
			if err := conn.writeMessage(messageBytes); err != nil {
				conn.logger.Error("failed to write response", "error", err)
				continue
			}
			conn.onMessageSentHandler(messageBytes)
		}
	}
}

func (conn *WebsocketConnection) writeMessage(messageBytes []byte) error {
	w, err := conn.websocketConn.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}
	if _, err := w.Write(messageBytes); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// waitForConnClose closes the socket once any loop stops, which also unblocks
// a pending ReadMessage.
func (conn *WebsocketConnection) waitForConnClose(ctx context.Context, handleClosure func(error)) {
	defer handleClosure(nil)

	select {
	case <-ctx.Done():
	case <-conn.closeConnCh:
		conn.logger.Info("closing unresponsive connection")
	}

	if err := conn.websocketConn.Close(); err != nil {
		conn.logger.Debug("error closing WebSocket connection", "error", err)
	}
}
