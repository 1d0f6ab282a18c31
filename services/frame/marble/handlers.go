package framemarble

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	svcerrors "github.com/R3E-Network/frame_layer/internal/errors"
	"github.com/R3E-Network/frame_layer/internal/events"
	"github.com/R3E-Network/frame_layer/internal/httputil"
	"github.com/R3E-Network/frame_layer/internal/middleware"
	"github.com/R3E-Network/frame_layer/services/frame"
	"github.com/R3E-Network/frame_layer/services/frame/bridge"
	"github.com/R3E-Network/frame_layer/services/frame/store"
	"github.com/R3E-Network/frame_layer/services/frame/webhook"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 256
	notifyBodyLimit   = 4 << 10
)

// =============================================================================
// Request/Response Types
// =============================================================================

// SessionResponse is returned by GET /frame/sessions/{id}.
type SessionResponse struct {
	ID      string         `json:"id"`
	Session SessionView    `json:"session"`
	Events  []events.Event `json:"events"`
}

// ActivityResponse is returned by GET /frame/events.
type ActivityResponse struct {
	Events []events.Event `json:"events"`
	Count  int            `json:"count"`
}

// TransferResponse is returned by POST /frame/sessions/{id}/transfer.
type TransferResponse struct {
	TxHash string               `json:"tx_hash"`
	Status frame.TransferStatus `json:"status"`
}

// NotifyInput is the body of POST /frame/notify.
type NotifyInput struct {
	FID   int64  `json:"fid"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// NotifyResponse reports the host's verdict.
type NotifyResponse struct {
	FID    int64  `json:"fid"`
	Result string `json:"result"`
}

// =============================================================================
// HTTP Handlers
// =============================================================================

// handleSession upgrades to a bridge connection and runs one frame session
// on it until the connection closes.
func (s *Service) handleSession(w http.ResponseWriter, r *http.Request) {
	conn, err := bridge.Upgrade(w, r, s.Logger().Named("bridge"))
	if err != nil {
		s.Logger().WithContext(r.Context()).WithError(err).Warn("Bridge upgrade failed")
		return
	}

	sess, err := newSession(conn, sessionDeps{
		recipient:     s.recipient,
		receiptSource: s.receiptSource,
		pollInterval:  s.receiptPoll,
		activity:      s.activity,
		log:           s.Logger(),
	})
	if err != nil {
		s.Logger().WithContext(r.Context()).WithError(err).Error("Session setup failed")
		_ = conn.Close()
		return
	}
	s.sessions.Add(sess)
	defer s.sessions.Remove(sess.ID)

	s.Logger().WithContext(r.Context()).WithField("session_id", sess.ID).Info("Session opened")
	sess.Run()
}

func (s *Service) handleListSessions(w http.ResponseWriter, r *http.Request) {
	ids := s.sessions.IDs()
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"sessions": ids,
		"count":    len(ids),
	})
}

func (s *Service) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sess, ok := s.sessions.Get(id)
	if !ok {
		httputil.WriteError(w, svcerrors.NotFound("session", id))
		return
	}

	limit, err := eventLimit(r.URL.Query().Get("events"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, SessionResponse{
		ID:      sess.ID,
		Session: sess.View(),
		Events:  sess.Events(eventTypeParam(r), limit),
	})
}

// handleActivity lists recent milestones and failures across sessions.
func (s *Service) handleActivity(w http.ResponseWriter, r *http.Request) {
	limit, err := eventLimit(r.URL.Query().Get("events"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	recent := recentEvents(s.activity, eventTypeParam(r), limit)
	httputil.WriteJSON(w, http.StatusOK, ActivityResponse{Events: recent, Count: len(recent)})
}

func eventTypeParam(r *http.Request) events.EventType {
	return events.EventType(strings.TrimSpace(r.URL.Query().Get("type")))
}

func eventLimit(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultEventLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, svcerrors.BadRequest("events must be a non-negative integer")
	}
	if n > maxEventLimit {
		n = maxEventLimit
	}
	return n, nil
}

// handleTransfer triggers the 1 USDC transfer of a session.
func (s *Service) handleTransfer(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sess, ok := s.sessions.Get(id)
	if !ok || sess.Closed() {
		httputil.WriteError(w, svcerrors.NotFound("session", id))
		return
	}

	hash, err := sess.Send(r.Context())
	if err != nil {
		httputil.WriteError(w, transferError(err))
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, TransferResponse{
		TxHash: hash.Hex(),
		Status: sess.View().Transfer,
	})
}

func transferError(err error) error {
	switch {
	case errors.Is(err, frame.ErrWalletNotConnected):
		return svcerrors.Wrap(svcerrors.CodeConflict, http.StatusConflict, "wallet not connected", err)
	case errors.Is(err, frame.ErrTransferPending):
		return svcerrors.Wrap(svcerrors.CodeConflict, http.StatusConflict, "transfer already pending", err)
	case errors.Is(err, frame.ErrClosed):
		return svcerrors.Wrap(svcerrors.CodeUnavailable, http.StatusServiceUnavailable, "session closed", err)
	default:
		return svcerrors.Wrap(svcerrors.CodeUnavailable, http.StatusBadGateway, "wallet rejected transfer", err)
	}
}

// handleNotify sends a notification to a user who enabled them.
func (s *Service) handleNotify(w http.ResponseWriter, r *http.Request) {
	var input NotifyInput
	if err := httputil.DecodeJSON(r, notifyBodyLimit, &input); err != nil {
		httputil.WriteError(w, err)
		return
	}
	input.Title = strings.TrimSpace(input.Title)
	if input.FID <= 0 || input.Title == "" {
		httputil.WriteError(w, svcerrors.BadRequest("fid and title required"))
		return
	}

	s.Logger().WithContext(r.Context()).
		WithField("operator", middleware.Operator(r.Context())).
		WithField("fid", input.FID).
		Info("Operator notification requested")

	result, err := s.notifier.Send(r.Context(), input.FID, input.Title, input.Body)
	switch {
	case errors.Is(err, store.ErrNotFound):
		httputil.WriteError(w, svcerrors.NotFound("notification token for fid", strconv.FormatInt(input.FID, 10)))
		return
	case err != nil:
		httputil.WriteError(w, svcerrors.Wrap(svcerrors.CodeUnavailable, http.StatusBadGateway, "notification failed", err))
		return
	}

	status := http.StatusOK
	if result == webhook.SendRateLimited {
		status = http.StatusTooManyRequests
	}
	httputil.WriteJSON(w, status, NotifyResponse{FID: input.FID, Result: result.String()})
}
