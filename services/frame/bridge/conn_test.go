package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/frame_layer/pkg/logger"
	"github.com/R3E-Network/frame_layer/services/frame"
)

// hostSide is the page shim end of a bridge connection.
type hostSide struct {
	t  *testing.T
	ws *websocket.Conn
}

func (h *hostSide) readRequest() request {
	h.t.Helper()
	var raw struct {
		ID     uint64          `json:"id"`
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
	}
	require.NoError(h.t, h.ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(h.t, h.ws.ReadJSON(&raw))
	return request{ID: raw.ID, Method: raw.Method, Params: raw.Params}
}

func (h *hostSide) send(v interface{}) {
	h.t.Helper()
	require.NoError(h.t, h.ws.WriteJSON(v))
}

func newPair(t *testing.T) (*Conn, *hostSide) {
	t.Helper()
	conns := make(chan *Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := Upgrade(w, r, logger.NewDiscard("bridge"))
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		conns <- c
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })

	c := <-conns
	t.Cleanup(func() { c.Close() })
	return c, &hostSide{t: t, ws: ws}
}

func TestConn_Context(t *testing.T) {
	c, host := newPair(t)

	result := make(chan *frame.FrameContext, 1)
	go func() {
		fc, err := c.Context(context.Background())
		assert.NoError(t, err)
		result <- fc
	}()

	req := host.readRequest()
	assert.Equal(t, MethodContext, req.Method)
	host.send(map[string]interface{}{
		"id": req.ID,
		"result": map[string]interface{}{
			"user":   map[string]interface{}{"fid": 887246, "username": "hellno"},
			"client": map[string]interface{}{"clientFid": 9152, "added": true},
		},
	})

	fc := <-result
	require.NotNil(t, fc)
	assert.Equal(t, int64(887246), fc.User.FID)
	assert.True(t, fc.Client.Added)
}

func TestConn_NullContext(t *testing.T) {
	c, host := newPair(t)

	errc := make(chan error, 1)
	var fc *frame.FrameContext
	go func() {
		var err error
		fc, err = c.Context(context.Background())
		errc <- err
	}()

	req := host.readRequest()
	host.send(map[string]interface{}{"id": req.ID, "result": nil})

	require.NoError(t, <-errc)
	assert.Nil(t, fc)
}

func TestConn_AddFrameClassifiedErrors(t *testing.T) {
	c, host := newPair(t)

	errc := make(chan error, 1)
	go func() { errc <- c.AddFrame(context.Background()) }()

	req := host.readRequest()
	assert.Equal(t, MethodAddFrame, req.Method)
	host.send(map[string]interface{}{
		"id":    req.ID,
		"error": map[string]string{"type": ErrorTypeRejectedByUser, "message": "user dismissed"},
	})

	err := <-errc
	result := frame.ClassifyAddError(err)
	assert.Equal(t, frame.AddRejectedByUser, result.Outcome)
	assert.Equal(t, "Not added: user dismissed", result.Display())

	go func() { errc <- c.AddFrame(context.Background()) }()
	req = host.readRequest()
	host.send(map[string]interface{}{
		"id":    req.ID,
		"error": map[string]string{"type": "unknown", "message": "boom"},
	})
	assert.Equal(t, "Error: unknown: boom", frame.ClassifyAddError(<-errc).Display())
}

func TestConn_EventsDispatched(t *testing.T) {
	c, host := newPair(t)

	got := make(chan frame.HostEvent, 4)
	c.On(frame.EventFrameAdded, func(ev frame.HostEvent) { got <- ev })
	c.On(frame.EventFrameRemoved, func(ev frame.HostEvent) { got <- ev })

	host.send(map[string]interface{}{
		"event": "frameAdded",
		"data":  map[string]interface{}{"notificationDetails": map[string]string{"url": "https://n.example", "token": "tok"}},
	})
	host.send(map[string]interface{}{"event": "frameRemoved"})

	ev := <-got
	assert.Equal(t, frame.EventFrameAdded, ev.Kind)
	require.NotNil(t, ev.NotificationDetails)
	assert.Equal(t, "tok", ev.NotificationDetails.Token)
	assert.Equal(t, frame.EventFrameRemoved, (<-got).Kind)

	c.RemoveAllListeners()
	host.send(map[string]interface{}{"event": "frameAdded"})
	select {
	case <-got:
		t.Fatal("handler called after RemoveAllListeners")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestConn_ProviderAnnouncements(t *testing.T) {
	c, host := newPair(t)

	var mu sync.Mutex
	var lists [][]frame.ProviderDetail
	unsubscribe := c.SubscribeProviders(func(p []frame.ProviderDetail) {
		mu.Lock()
		lists = append(lists, p)
		mu.Unlock()
	})

	host.send(map[string]interface{}{
		"event": EventAnnounceProvider,
		"data":  map[string]interface{}{"info": map[string]string{"uuid": "u1", "name": "Warpcast", "rdns": "com.warpcast"}},
	})
	host.send(map[string]interface{}{
		"event": EventAnnounceProvider,
		"data":  map[string]string{"uuid": "u2", "name": "Other"},
	})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(lists) == 2
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Len(t, lists[1], 2)
	assert.Equal(t, "Warpcast", lists[1][0].Name)
	mu.Unlock()

	unsubscribe()
	host.send(map[string]interface{}{
		"event": EventAnnounceProvider,
		"data":  map[string]string{"uuid": "u3", "name": "Third"},
	})
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	assert.Len(t, lists, 2)
	mu.Unlock()
}

func TestConn_WalletRequest(t *testing.T) {
	c, host := newPair(t)

	accounts := make(chan []common.Address, 1)
	c.OnAccountsChanged(func(a []common.Address) { accounts <- a })

	result := make(chan common.Hash, 1)
	go func() {
		var hash common.Hash
		assert.NoError(t, c.Request(context.Background(), "eth_sendTransaction", []string{"tx"}, &hash))
		result <- hash
	}()

	req := host.readRequest()
	assert.Equal(t, MethodWalletRequest, req.Method)
	assert.JSONEq(t, `{"method":"eth_sendTransaction","params":["tx"]}`, string(req.Params.(json.RawMessage)))

	hash := common.HexToHash("0xbeef")
	host.send(map[string]interface{}{"id": req.ID, "result": hash.Hex()})
	assert.Equal(t, hash, <-result)

	host.send(map[string]interface{}{"event": EventAccountsChanged, "data": []string{"0x0000000000000000000000000000000000000001"}})
	got := <-accounts
	require.Len(t, got, 1)
	assert.Equal(t, common.HexToAddress("0x01"), got[0])
}

func TestConn_PendingCallsFailOnClose(t *testing.T) {
	c, host := newPair(t)

	errc := make(chan error, 1)
	go func() { errc <- c.AddFrame(context.Background()) }()

	req := host.readRequest()
	assert.Equal(t, MethodAddFrame, req.Method)
	host.ws.Close()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, frame.ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("pending call not released")
	}

	<-c.Done()
	assert.ErrorIs(t, c.AddFrame(context.Background()), frame.ErrClosed)
}

func TestConn_ReadyDoesNotWaitForAck(t *testing.T) {
	c, host := newPair(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Ready(ctx, frame.ReadyOptions{}))

	req := host.readRequest()
	assert.Equal(t, MethodReady, req.Method)
	assert.NotZero(t, req.ID)

	// A late acknowledgement is ignored and later calls still resolve.
	host.send(map[string]interface{}{"id": req.ID, "result": nil})

	errc := make(chan error, 1)
	go func() { errc <- c.AddFrame(context.Background()) }()
	next := host.readRequest()
	assert.Equal(t, MethodAddFrame, next.Method)
	assert.Greater(t, next.ID, req.ID)
	host.send(map[string]interface{}{"id": next.ID, "result": nil})
	assert.NoError(t, <-errc)
}

func TestConn_DuplicateResponsesDoNotStallReader(t *testing.T) {
	c, host := newPair(t)

	errc := make(chan error, 1)
	go func() { errc <- c.AddFrame(context.Background()) }()
	req := host.readRequest()

	for i := 0; i < 3; i++ {
		host.send(map[string]interface{}{"id": req.ID, "result": nil})
	}
	require.NoError(t, <-errc)

	result := make(chan *frame.FrameContext, 1)
	go func() {
		fc, err := c.Context(context.Background())
		assert.NoError(t, err)
		result <- fc
	}()
	next := host.readRequest()
	assert.Equal(t, MethodContext, next.Method)
	host.send(map[string]interface{}{"id": next.ID, "result": map[string]interface{}{"user": map[string]interface{}{"fid": 7}}})

	select {
	case fc := <-result:
		require.NotNil(t, fc)
		assert.Equal(t, int64(7), fc.User.FID)
	case <-time.After(2 * time.Second):
		t.Fatal("reader stalled on duplicate responses")
	}
}

func TestConn_AccountsChangedFansOut(t *testing.T) {
	c, host := newPair(t)

	first := make(chan []common.Address, 1)
	second := make(chan []common.Address, 1)
	c.OnAccountsChanged(func(a []common.Address) { first <- a })
	c.OnAccountsChanged(func(a []common.Address) { second <- a })

	host.send(map[string]interface{}{"event": EventAccountsChanged, "data": []string{}})
	assert.Empty(t, <-first)
	assert.Empty(t, <-second)
}

func TestConn_CallContextCanceled(t *testing.T) {
	c, host := newPair(t)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- c.AddFrame(ctx) }()

	host.readRequest()
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
}

func TestConn_Push(t *testing.T) {
	c, host := newPair(t)

	require.NoError(t, c.Push(EventView, frame.View{Phase: frame.PhaseReady}))

	var msg struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	require.NoError(t, host.ws.ReadJSON(&msg))
	assert.Equal(t, EventView, msg.Event)
	assert.Contains(t, string(msg.Data), `"phase":"ready"`)
}

func TestRemoteError(t *testing.T) {
	err := (&RemoteError{Type: ErrorTypeInvalidDomainManifest, Message: "bad domain"}).asFrameError()
	var invalid *frame.InvalidDomainManifestError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "bad domain", invalid.Reason)

	assert.Equal(t, "plain", (&RemoteError{Message: "plain"}).Error())
}
