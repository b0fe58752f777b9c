package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/scrogson/walle/pkg/log"
	"github.com/scrogson/walle/pkg/sign"
)

const defaultNodeErrorMessage = "an error occurred while processing the request"

const (
	nodeGroupHandlerPrefix = "group."
	nodeGroupRoot          = "root"

	defaultMaxMessageSize = 1 << 20
)

// Node routes RPC methods to handler chains.
type Node interface {
	Handle(method string, handler Handler)
	Use(middleware Handler)
	NewGroup(name string) HandlerGroup
}

// HandlerGroup shares middleware between a set of methods. Groups nest.
type HandlerGroup interface {
	Handle(method string, handler Handler)
	Use(middleware Handler)
	NewGroup(name string) HandlerGroup
}

var (
	_ Node         = &WebsocketNode{}
	_ http.Handler = &WebsocketNode{}
	_ HandlerGroup = &WebsocketHandlerGroup{}
)

// WebsocketNode serves the RPC protocol over WebSocket. Every response,
// including protocol errors, is signed by the configured Signer. Requests on
// one connection are processed in order; connections run concurrently.
type WebsocketNode struct {
	upgrader websocket.Upgrader
	cfg      WebsocketNodeConfig
	groupID  string
	// handlerChain maps a group ID or method name to its handlers.
	handlerChain map[string][]Handler
	// routes maps a method to the chain IDs it runs through, e.g. ["group.root", "group.unlock", "sign_message"].
	routes map[string][]string

	// ctx is cancelled by Close to end every open connection.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// WebsocketNodeConfig configures a WebsocketNode. Signer and Logger are required.
type WebsocketNodeConfig struct {
	Signer sign.Signer
	Logger log.Logger

	OnConnectHandler     func(connectionID string)
	OnDisconnectHandler  func(connectionID string)
	OnMessageSentHandler func([]byte)

	WsUpgraderReadBufferSize  int
	WsUpgraderWriteBufferSize int
	// WsUpgraderCheckOrigin defaults to accepting every origin.
	WsUpgraderCheckOrigin func(r *http.Request) bool
	// WsMaxMessageSize bounds incoming messages (default 1 MiB).
	WsMaxMessageSize int64

	WsConnWriteTimeout      time.Duration
	WsConnWriteBufferSize   int
	WsConnProcessBufferSize int
}

// NewWebsocketNode validates config and registers the built-in ping handler.
func NewWebsocketNode(config WebsocketNodeConfig) (*WebsocketNode, error) {
	if config.Signer == nil {
		return nil, fmt.Errorf("signer cannot be nil")
	}
	if config.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	config.Logger = config.Logger.WithName("rpc-node")

	if config.OnConnectHandler == nil {
		config.OnConnectHandler = func(string) {}
	}
	if config.OnDisconnectHandler == nil {
		config.OnDisconnectHandler = func(string) {}
	}
	if config.OnMessageSentHandler == nil {
		config.OnMessageSentHandler = func([]byte) {}
	}
	if config.WsUpgraderReadBufferSize <= 0 {
		config.WsUpgraderReadBufferSize = 1024
	}
	if config.WsUpgraderWriteBufferSize <= 0 {
		config.WsUpgraderWriteBufferSize = 1024
	}
	if config.WsUpgraderCheckOrigin == nil {
		config.WsUpgraderCheckOrigin = func(*http.Request) bool { return true }
	}
	if config.WsMaxMessageSize <= 0 {
		config.WsMaxMessageSize = defaultMaxMessageSize
	}

	node := &WebsocketNode{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.WsUpgraderReadBufferSize,
			WriteBufferSize: config.WsUpgraderWriteBufferSize,
			CheckOrigin:     config.WsUpgraderCheckOrigin,
		},
		cfg:          config,
		groupID:      nodeGroupHandlerPrefix + nodeGroupRoot,
		handlerChain: make(map[string][]Handler),
		routes:       make(map[string][]string),
	}
	node.ctx, node.cancel = context.WithCancel(context.Background())

	node.Handle(PingMethod.String(), node.handlePing)

	return node, nil
}

// ServeHTTP upgrades the request and blocks until the connection closes.
func (wn *WebsocketNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if wn.ctx.Err() != nil {
		http.Error(w, "node is shutting down", http.StatusServiceUnavailable)
		return
	}

	wsConn, err := wn.upgrader.Upgrade(w, r, nil)
	if err != nil {
		wn.cfg.Logger.Error("failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer wsConn.Close()
	wsConn.SetReadLimit(wn.cfg.WsMaxMessageSize)

	wn.wg.Add(1)
	defer wn.wg.Done()

	connectionID := uuid.NewString()
	connection, err := NewWebsocketConnection(WebsocketConnectionConfig{
		ConnectionID:         connectionID,
		WebsocketConn:        wsConn,
		WriteTimeout:         wn.cfg.WsConnWriteTimeout,
		WriteBufferSize:      wn.cfg.WsConnWriteBufferSize,
		ProcessBufferSize:    wn.cfg.WsConnProcessBufferSize,
		Logger:               wn.cfg.Logger,
		OnMessageSentHandler: wn.cfg.OnMessageSentHandler,
	})
	if err != nil {
		wn.cfg.Logger.Error("failed to create WebSocket connection", "error", err, "connectionID", connectionID)
		return
	}

	wn.cfg.OnConnectHandler(connectionID)
	wn.cfg.Logger.Info("new WebSocket connection established", "connectionID", connectionID, "remoteAddr", r.RemoteAddr)
	defer func() {
		wn.cfg.OnDisconnectHandler(connectionID)
		wn.cfg.Logger.Info("connection closed", "connectionID", connectionID)
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(wn.ctx, cancel)
	defer stop()

	wg := &sync.WaitGroup{}
	wg.Add(2)
	handleClosure := func(error) {
		cancel()
		wg.Done()
	}

	go connection.Serve(ctx, handleClosure)
	go wn.processRequests(ctx, connection, handleClosure)

	wg.Wait()
}

// Close ends all open connections and waits for their handlers to return.
// http.Server.Shutdown does not track upgraded connections, so call both.
func (wn *WebsocketNode) Close() {
	wn.cancel()
	wn.wg.Wait()
}

func (wn *WebsocketNode) processRequests(ctx context.Context, conn Connection, handleClosure func(error)) {
	defer handleClosure(nil)

	for {
		var messageBytes []byte
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-conn.RawRequests():
			if !ok {
				return
			}
			messageBytes = msg
		}

		var req Request
		if err := json.Unmarshal(messageBytes, &req); err != nil {
			wn.cfg.Logger.Debug("invalid message format", "error", err)
			wn.sendErrorResponse(conn, req.Req.RequestID, "invalid message format")
			continue
		}

		routeHandlers := wn.resolve(req.Req.Method)
		if len(routeHandlers) == 0 {
			wn.cfg.Logger.Debug("no route for method", "method", req.Req.Method)
			wn.sendErrorResponse(conn, req.Req.RequestID, fmt.Sprintf("unknown method: %s", req.Req.Method))
			continue
		}

		wn.cfg.Logger.Debug("processing message",
			"requestID", req.Req.RequestID,
			"connectionID", conn.ConnectionID(),
			"method", req.Req.Method)

		c := &Context{
			Context:      ctx,
			ConnectionID: conn.ConnectionID(),
			Signer:       wn.cfg.Signer,
			Request:      req,
			handlers:     routeHandlers,
		}
		c.Next()

		responseBytes, err := c.GetRawResponse()
		if err != nil {
			wn.cfg.Logger.Error("failed to prepare response", "error", err, "method", req.Req.Method)
			wn.sendErrorResponse(conn, req.Req.RequestID, defaultNodeErrorMessage)
			continue
		}
		conn.WriteRawResponse(responseBytes)
	}
}

// resolve flattens the middleware and handler chain for method.
func (wn *WebsocketNode) resolve(method string) []Handler {
	route, ok := wn.routes[method]
	if !ok {
		return nil
	}

	var handlers []Handler
	for i, id := range route {
		chain := wn.handlerChain[id]
		if len(chain) == 0 && i == len(route)-1 {
			wn.cfg.Logger.Error("no handler registered for route", "id", id)
			return nil
		}
		handlers = append(handlers, chain...)
	}
	return handlers
}

// NewGroup creates a handler group below the root.
func (wn *WebsocketNode) NewGroup(name string) HandlerGroup {
	return &WebsocketHandlerGroup{
		groupID:     nodeGroupHandlerPrefix + name,
		routePrefix: []string{wn.groupID},
		root:        wn,
	}
}

// Handle registers handler for method after the global middleware.
// It panics on an empty method or nil handler.
func (wn *WebsocketNode) Handle(method string, handler Handler) {
	wn.handle(method, handler)
	wn.routes[method] = []string{wn.groupID, method}
}

func (wn *WebsocketNode) handle(method string, handler Handler) {
	if method == "" {
		panic("Websocket method cannot be empty")
	}
	if handler == nil {
		panic(fmt.Sprintf("Websocket handler cannot be nil for method %s", method))
	}

	wn.handlerChain[method] = []Handler{handler}
}

// Use appends middleware that runs for every method.
func (wn *WebsocketNode) Use(middleware Handler) {
	wn.use(wn.groupID, middleware)
}

func (wn *WebsocketNode) use(groupID string, middleware Handler) {
	if middleware == nil {
		panic("Websocket middleware handler cannot be nil for group")
	}
	wn.handlerChain[groupID] = append(wn.handlerChain[groupID], middleware)
}

func (wn *WebsocketNode) sendErrorResponse(conn Connection, requestID uint64, message string) {
	res := NewErrorResponse(requestID, message)
	responseBytes, err := prepareRawResponse(wn.cfg.Signer, res.Res)
	if err != nil {
		wn.cfg.Logger.Error("failed to prepare error response", "error", err)
		return
	}

	conn.WriteRawResponse(responseBytes)
}

func (wn *WebsocketNode) handlePing(c *Context) {
	c.Next()
	c.Succeed(PongMethod.String(), nil)
}

// WebsocketHandlerGroup runs its middleware after that of its parents.
type WebsocketHandlerGroup struct {
	groupID     string
	routePrefix []string
	root        *WebsocketNode
}

func (hg *WebsocketHandlerGroup) NewGroup(name string) HandlerGroup {
	prefix := make([]string, 0, len(hg.routePrefix)+1)
	prefix = append(prefix, hg.routePrefix...)
	prefix = append(prefix, hg.groupID)

	return &WebsocketHandlerGroup{
		groupID:     hg.groupID + "." + name,
		routePrefix: prefix,
		root:        hg.root,
	}
}

// Handle registers handler for method. Method names are unique across the node.
func (hg *WebsocketHandlerGroup) Handle(method string, handler Handler) {
	route := make([]string, 0, len(hg.routePrefix)+2)
	route = append(route, hg.routePrefix...)
	route = append(route, hg.groupID, method)

	hg.root.handle(method, handler)
	hg.root.routes[method] = route
}

func (hg *WebsocketHandlerGroup) Use(middleware Handler) {
	hg.root.use(hg.groupID, middleware)
}
