package frame

import (
	"context"
	"sync"
)

// fakeHost is a scripted HostClient. Calls are counted and the registered
// handlers can be fired from tests.
type fakeHost struct {
	mu sync.Mutex

	frameCtx   *FrameContext
	contextErr error
	addErr     error
	readyErr   error

	contextCalls   int
	addCalls       int
	readyCalls     int
	removeAllCalls int
	calls          []string

	handlers map[EventKind][]EventHandler

	// addGate, when set, blocks AddFrame until closed.
	addGate chan struct{}
}

func newFakeHost(fc *FrameContext) *fakeHost {
	return &fakeHost{frameCtx: fc, handlers: map[EventKind][]EventHandler{}}
}

func (h *fakeHost) Context(context.Context) (*FrameContext, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.contextCalls++
	h.calls = append(h.calls, "context")
	return h.frameCtx, h.contextErr
}

func (h *fakeHost) AddFrame(context.Context) error {
	h.mu.Lock()
	h.addCalls++
	h.calls = append(h.calls, "addFrame")
	gate := h.addGate
	err := h.addErr
	h.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return err
}

func (h *fakeHost) Ready(context.Context, ReadyOptions) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readyCalls++
	h.calls = append(h.calls, "ready")
	return h.readyErr
}

func (h *fakeHost) On(kind EventKind, handler EventHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, "on:"+string(kind))
	h.handlers[kind] = append(h.handlers[kind], handler)
}

func (h *fakeHost) RemoveAllListeners() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeAllCalls++
	h.handlers = map[EventKind][]EventHandler{}
}

// emit delivers ev to the registered handlers.
func (h *fakeHost) emit(ev HostEvent) {
	h.mu.Lock()
	handlers := append([]EventHandler(nil), h.handlers[ev.Kind]...)
	h.mu.Unlock()
	for _, fn := range handlers {
		fn(ev)
	}
}

func (h *fakeHost) handlerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, hs := range h.handlers {
		n += len(hs)
	}
	return n
}

// discoveringHost adds EIP-6963 provider discovery.
type discoveringHost struct {
	*fakeHost
	providers    []ProviderDetail
	unsubscribed int
}

func (h *discoveringHost) SubscribeProviders(fn func([]ProviderDetail)) func() {
	fn(h.providers)
	return func() { h.unsubscribed++ }
}

func hostContext(added bool) *FrameContext {
	return &FrameContext{
		User:   UserContext{FID: 887246, Username: "hellno"},
		Client: ClientContext{ClientFID: 9152, Added: added},
	}
}
