package framemarble

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/R3E-Network/frame_layer/internal/events"
	"github.com/R3E-Network/frame_layer/internal/metrics"
	"github.com/R3E-Network/frame_layer/pkg/logger"
	"github.com/R3E-Network/frame_layer/services/frame"
	"github.com/R3E-Network/frame_layer/services/frame/bridge"
	"github.com/R3E-Network/frame_layer/services/frame/wallet"
)

const (
	sessionJournalSize = 256
	sessionTokenBytes  = 32
	connectTimeout     = 30 * time.Second
)

// SessionGrant is pushed to the host when a session opens. The token
// authorizes the session's HTTP routes.
type SessionGrant struct {
	SessionID string `json:"session_id"`
	Token     string `json:"token"`
}

// SessionView is pushed to the host after every state change and returned by
// the session endpoint.
type SessionView struct {
	frame.View
	Account  string               `json:"account,omitempty"`
	Transfer frame.TransferStatus `json:"transfer"`
}

// Session is one mounted frame: a bridge connection with its bootstrap,
// wallet and transfer trigger.
type Session struct {
	ID        string
	CreatedAt time.Time

	token     string
	unforward func()

	conn     *bridge.Conn
	boot     *frame.Bootstrap
	wallet   *wallet.Client
	transfer *frame.Transfer
	journal  *events.RingBuffer
	log      *logger.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

type sessionDeps struct {
	recipient     common.Address
	receiptSource wallet.ReceiptSource
	pollInterval  time.Duration
	// activity receives the journal entries selected by activityEvent.
	activity *events.RingBuffer
	log      *logger.Logger
}

func newSession(conn *bridge.Conn, deps sessionDeps) (*Session, error) {
	token, err := newSessionToken()
	if err != nil {
		return nil, err
	}
	id := uuid.New().String()
	log := deps.log.Named("session")
	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		ID:        id,
		CreatedAt: time.Now(),
		token:     token,
		unforward: func() {},
		conn:      conn,
		journal:   events.NewRingBuffer(sessionJournalSize),
		log:       log,
		ctx:       ctx,
		cancel:    cancel,
	}
	if deps.activity != nil {
		s.unforward = s.journal.SubscribeFiltered(activityEvent, deps.activity.Log)
	}

	opts := []wallet.Option{wallet.WithLogger(log)}
	if deps.receiptSource != nil {
		opts = append(opts, wallet.WithReceiptSource(deps.receiptSource))
	}
	if deps.pollInterval > 0 {
		opts = append(opts, wallet.WithPollInterval(deps.pollInterval))
	}
	s.wallet = wallet.NewClient(conn, opts...)

	s.boot = frame.NewBootstrap(conn, frame.Options{
		SessionID: id,
		Logger:    log,
		Journal:   s.journal,
		OnChange:  func(frame.View) { s.push() },
	})
	s.transfer = frame.NewTransfer(s.wallet, frame.TransferOptions{
		SessionID: id,
		Recipient: deps.recipient,
		Logger:    log,
		Journal:   s.journal,
		OnChange:  func(frame.TransferStatus) { s.push() },
	})

	conn.OnAccountsChanged(func(accounts []common.Address) {
		s.wallet.SetAccounts(accounts)
		s.push()
	})
	return s, nil
}

func newSessionToken() (string, error) {
	buf := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// activityEvent selects the journal entries kept in the service-wide feed.
func activityEvent(e events.Event) bool {
	switch e.Type {
	case events.EventReady, events.EventAddResult, events.EventUnmounted,
		events.EventTransferPending, events.EventTransferConfirmed, events.EventTransferFailed:
		return true
	}
	return e.Severity == events.SeverityWarning || e.Severity == events.SeverityError
}

// Run mounts the frame, connects the wallet once the frame is ready and
// blocks until the connection closes.
func (s *Session) Run() {
	metrics.SessionOpened()
	defer metrics.SessionClosed()

	if err := s.conn.Push(bridge.EventSession, SessionGrant{SessionID: s.ID, Token: s.token}); err != nil {
		s.log.WithError(err).WithField("session_id", s.ID).Warn("Session grant not delivered")
		s.Close()
		return
	}

	// Host-initiated transfers arrive on the read goroutine; sending from there
	// would block the reply it waits for.
	s.conn.On(frame.EventKind(bridge.EventTransfer), func(frame.HostEvent) {
		go func() {
			if _, err := s.Send(s.ctx); err != nil {
				s.log.WithError(err).WithField("session_id", s.ID).Debug("Host transfer not sent")
			}
		}()
	})

	go func() {
		s.boot.Mount(s.ctx)
		if s.boot.Phase() == frame.PhaseReady {
			s.connectWallet()
		}
	}()

	select {
	case <-s.conn.Done():
	case <-s.ctx.Done():
	}
	s.Close()
}

func (s *Session) connectWallet() {
	ctx, cancel := context.WithTimeout(s.ctx, connectTimeout)
	defer cancel()

	account, err := s.wallet.Connect(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.log.WithError(err).WithField("session_id", s.ID).Info("Wallet not connected")
		}
		return
	}
	s.log.WithField("session_id", s.ID).WithField("account", account.Hex()).Info("Wallet connected")
	s.push()
}

// Send triggers the 1 USDC transfer.
func (s *Session) Send(ctx context.Context) (common.Hash, error) {
	return s.transfer.Send(ctx)
}

// View returns the current session state.
func (s *Session) View() SessionView {
	view := SessionView{
		View:     s.boot.View(),
		Transfer: s.transfer.Status(),
	}
	if account, ok := s.wallet.Account(); ok {
		view.Account = account.Hex()
	}
	return view
}

// Authorize reports whether token is this session's grant token.
func (s *Session) Authorize(token string) bool {
	if token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.token)) == 1
}

// Events returns up to n of the most recent journal entries, newest first,
// optionally restricted to one type.
func (s *Session) Events(eventType events.EventType, n int) []events.Event {
	return recentEvents(s.journal, eventType, n)
}

func recentEvents(rb *events.RingBuffer, eventType events.EventType, n int) []events.Event {
	if eventType == "" {
		return rb.Recent(n)
	}
	return rb.RecentByType(eventType, n)
}

// Closed reports whether the session has ended.
func (s *Session) Closed() bool {
	select {
	case <-s.ctx.Done():
		return true
	case <-s.conn.Done():
		return true
	default:
		return false
	}
}

// Close unmounts the frame, abandons receipt waits and closes the connection.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.boot.Unmount()
		s.unforward()
		s.cancel()
		s.transfer.Close()
		_ = s.conn.Close()
		s.log.WithField("session_id", s.ID).WithField("events", s.journal.Count()).Info("Session closed")
	})
}

func (s *Session) push() {
	if s.Closed() {
		return
	}
	if err := s.conn.Push(bridge.EventView, s.View()); err != nil {
		s.log.WithError(err).WithField("session_id", s.ID).Debug("View push failed")
	}
}

// Registry tracks live sessions by ID.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Add registers s.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
}

// Get returns the session with id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Remove drops the session with id.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// IDs returns registered session IDs in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Sweep removes closed sessions and returns how many were dropped.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, s := range r.sessions {
		if s.Closed() {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}

// CloseAll closes every session and empties the registry.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
