package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"

	"github.com/R3E-Network/frame_layer/pkg/logger"
	"github.com/R3E-Network/frame_layer/services/frame"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
)

// Upgrader accepts host connections. Origin checks are left to the CORS
// configuration of the HTTP service.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type response struct {
	result json.RawMessage
	err    error
}

// Conn is a host connection. It implements frame.HostClient,
// frame.ProviderDiscovery and wallet.Provider.
type Conn struct {
	ws  *websocket.Conn
	log *logger.Logger

	writeMu sync.Mutex

	mu           sync.Mutex
	nextID       uint64
	pending      map[uint64]chan response
	handlers     map[frame.EventKind][]frame.EventHandler
	providers    []frame.ProviderDetail
	providerSubs map[uint64]func([]frame.ProviderDetail)
	accountSubs  []func([]common.Address)
	nextSubID    uint64

	done      chan struct{}
	closeOnce sync.Once
}

// Upgrade upgrades an HTTP request to a host connection.
func Upgrade(w http.ResponseWriter, r *http.Request, log *logger.Logger) (*Conn, error) {
	ws, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket upgrade: %w", err)
	}
	return NewConn(ws, log), nil
}

// NewConn wraps an established websocket and starts reading from it.
func NewConn(ws *websocket.Conn, log *logger.Logger) *Conn {
	if log == nil {
		log = logger.NewDefault("bridge")
	}
	c := &Conn{
		ws:           ws,
		log:          log,
		pending:      make(map[uint64]chan response),
		handlers:     make(map[frame.EventKind][]frame.EventHandler),
		providerSubs: make(map[uint64]func([]frame.ProviderDetail)),
		done:         make(chan struct{}),
	}

	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.readLoop()
	go c.pingLoop()
	return c
}

// Done is closed when the connection is gone.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Close closes the connection. Pending calls fail with frame.ErrClosed.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}

// Context implements frame.HostClient. A null result means no context.
func (c *Conn) Context(ctx context.Context) (*frame.FrameContext, error) {
	raw, err := c.call(ctx, MethodContext, nil)
	if err != nil {
		return nil, err
	}
	if isNull(raw) {
		return nil, nil
	}
	var fc frame.FrameContext
	if err := json.Unmarshal(raw, &fc); err != nil {
		return nil, fmt.Errorf("decode context: %w", err)
	}
	return &fc, nil
}

// AddFrame implements frame.HostClient.
func (c *Conn) AddFrame(ctx context.Context) error {
	_, err := c.call(ctx, MethodAddFrame, nil)
	return err
}

// Ready implements frame.HostClient. The signal is written without waiting
// for the host's acknowledgement.
func (c *Conn) Ready(_ context.Context, opts frame.ReadyOptions) error {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.mu.Unlock()
	return c.write(request{ID: id, Method: MethodReady, Params: opts})
}

// On implements frame.HostClient.
func (c *Conn) On(kind frame.EventKind, handler frame.EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[kind] = append(c.handlers[kind], handler)
}

// RemoveAllListeners implements frame.HostClient.
func (c *Conn) RemoveAllListeners() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = make(map[frame.EventKind][]frame.EventHandler)
}

// SubscribeProviders implements frame.ProviderDiscovery. fn is called with
// the providers announced so far and again on every announcement.
func (c *Conn) SubscribeProviders(fn func([]frame.ProviderDetail)) func() {
	c.mu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.providerSubs[id] = fn
	current := append([]frame.ProviderDetail(nil), c.providers...)
	c.mu.Unlock()

	if len(current) > 0 {
		fn(current)
	}
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.providerSubs, id)
	}
}

// OnAccountsChanged registers fn for wallet account changes.
func (c *Conn) OnAccountsChanged(fn func([]common.Address)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accountSubs = append(c.accountSubs, fn)
}

// Request implements wallet.Provider by relaying an EIP-1193 request.
func (c *Conn) Request(ctx context.Context, method string, params interface{}, result interface{}) error {
	raw, err := c.call(ctx, MethodWalletRequest, walletRequest{Method: method, Params: params})
	if err != nil {
		return err
	}
	if result == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

// Push sends an unsolicited event to the host.
func (c *Conn) Push(event string, data interface{}) error {
	return c.write(push{Event: event, Data: data})
}

func (c *Conn) call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	ch := make(chan response, 1)

	c.mu.Lock()
	select {
	case <-c.done:
		c.mu.Unlock()
		return nil, frame.ErrClosed
	default:
	}
	c.nextID++
	id := c.nextID
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.write(request{ID: id, Method: method, Params: params}); err != nil {
		return nil, err
	}

	select {
	case resp := <-ch:
		return resp.result, resp.err
	case <-c.done:
		return nil, frame.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Conn) write(v interface{}) error {
	select {
	case <-c.done:
		return frame.ErrClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteJSON(v); err != nil {
		return fmt.Errorf("%w: %v", frame.ErrClosed, err)
	}
	return nil
}

func (c *Conn) readLoop() {
	defer c.Close()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.WithError(err).Warn("Host connection closed unexpectedly")
			}
			return
		}

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.WithError(err).Debug("Ignoring malformed host message")
			continue
		}

		if msg.Event != "" {
			c.dispatch(msg.Event, msg.Data)
			continue
		}
		c.resolve(msg)
	}
}

func (c *Conn) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil {
				c.Close()
				return
			}
		}
	}
}

func (c *Conn) resolve(msg inbound) {
	c.mu.Lock()
	ch, ok := c.pending[msg.ID]
	c.mu.Unlock()
	if !ok {
		c.log.WithField("id", msg.ID).Debug("Response for unknown call")
		return
	}

	resp := response{result: msg.Result}
	if msg.Error != nil {
		resp.err = msg.Error.asFrameError()
	}
	select {
	case ch <- resp:
	default:
		c.log.WithField("id", msg.ID).Debug("Duplicate response dropped")
	}
}

// dispatch runs handlers on the read goroutine so events keep their order.
func (c *Conn) dispatch(event string, data json.RawMessage) {
	switch event {
	case EventAnnounceProvider:
		c.announce(data)
		return
	case EventAccountsChanged:
		var accounts []common.Address
		if err := json.Unmarshal(data, &accounts); err != nil {
			c.log.WithError(err).Debug("Ignoring malformed accountsChanged")
			return
		}
		c.mu.Lock()
		subs := append(([]func([]common.Address))(nil), c.accountSubs...)
		c.mu.Unlock()
		for _, fn := range subs {
			fn(accounts)
		}
		return
	}

	ev := frame.HostEvent{Kind: frame.EventKind(event)}
	if !isNull(data) {
		if err := json.Unmarshal(data, &ev); err != nil {
			c.log.WithError(err).WithField("event", event).Debug("Ignoring malformed event data")
			return
		}
		ev.Kind = frame.EventKind(event)
	}

	c.mu.Lock()
	handlers := append([]frame.EventHandler(nil), c.handlers[ev.Kind]...)
	c.mu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}

func (c *Conn) announce(data json.RawMessage) {
	var detail announceDetail
	if err := json.Unmarshal(data, &detail); err != nil {
		c.log.WithError(err).Debug("Ignoring malformed provider announcement")
		return
	}
	info := detail.Info
	if info == nil {
		info = &frame.ProviderDetail{}
		if err := json.Unmarshal(data, info); err != nil || info.UUID == "" {
			return
		}
	}

	c.mu.Lock()
	replaced := false
	for i := range c.providers {
		if c.providers[i].UUID == info.UUID {
			c.providers[i] = *info
			replaced = true
		}
	}
	if !replaced {
		c.providers = append(c.providers, *info)
	}
	current := append([]frame.ProviderDetail(nil), c.providers...)
	subs := make([]func([]frame.ProviderDetail), 0, len(c.providerSubs))
	for _, fn := range c.providerSubs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(current)
	}
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
