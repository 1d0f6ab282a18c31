package webhook

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	svcerrors "github.com/R3E-Network/frame_layer/internal/errors"
	"github.com/R3E-Network/frame_layer/internal/httputil"
	"github.com/R3E-Network/frame_layer/internal/metrics"
	"github.com/R3E-Network/frame_layer/pkg/logger"
	"github.com/R3E-Network/frame_layer/services/frame"
	"github.com/R3E-Network/frame_layer/services/frame/store"
)

// Webhook event names.
const (
	EventFrameAdded            = "frame_added"
	EventFrameRemoved          = "frame_removed"
	EventNotificationsEnabled  = "notifications_enabled"
	EventNotificationsDisabled = "notifications_disabled"
)

const defaultMaxBodyBytes = 64 << 10

// Event is a verified webhook event.
type Event struct {
	Name                string                     `json:"event"`
	FID                 int64                      `json:"fid"`
	NotificationDetails *frame.NotificationDetails `json:"notificationDetails,omitempty"`
}

// KeyVerifier checks that an app key is an active signer of fid. Signed
// envelopes are rejected when none is configured.
type KeyVerifier interface {
	VerifyAppKey(ctx context.Context, fid int64, key string) (bool, error)
}

// Welcomer sends the welcome notification after a frame is added.
type Welcomer interface {
	Welcome(ctx context.Context, fid int64, details frame.NotificationDetails) (SendResult, error)
}

// Options configures a Handler.
type Options struct {
	Store       store.NotificationStore
	Welcomer    Welcomer
	KeyVerifier KeyVerifier
	Logger      *logger.Logger

	// SkipVerify accepts unsigned envelopes. Local development only.
	SkipVerify   bool
	MaxBodyBytes int64
}

// Handler applies host webhook events to the notification store.
type Handler struct {
	store       store.NotificationStore
	welcomer    Welcomer
	keyVerifier KeyVerifier
	log         *logger.Logger
	skipVerify  bool
	maxBody     int64
}

// NewHandler creates a webhook handler.
func NewHandler(opts Options) *Handler {
	log := opts.Logger
	if log == nil {
		log = logger.NewDefault("webhook")
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	return &Handler{
		store:       opts.Store,
		welcomer:    opts.Welcomer,
		keyVerifier: opts.KeyVerifier,
		log:         log,
		skipVerify:  opts.SkipVerify,
		maxBody:     maxBody,
	}
}

// ServeHTTP handles POST /api/webhook.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := httputil.ReadAllStrict(r.Body, h.maxBody)
	if err != nil {
		metrics.RecordWebhookEvent("", "bad_request")
		httputil.WriteError(w, svcerrors.BadRequest(err.Error()))
		return
	}

	ev, err := h.Process(r.Context(), body)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true, "event": ev.Name})
}

// Process verifies and applies one webhook body.
func (h *Handler) Process(ctx context.Context, body []byte) (*Event, error) {
	env, hdr, err := ParseEnvelope(body)
	if err != nil {
		metrics.RecordWebhookEvent("", "bad_request")
		return nil, svcerrors.Wrap(svcerrors.CodeBadRequest, http.StatusBadRequest, "invalid webhook envelope", err)
	}

	if !h.skipVerify {
		if err := h.verify(ctx, env, hdr); err != nil {
			metrics.RecordWebhookEvent("", "unauthorized")
			h.log.WithError(err).WithField("fid", hdr.FID).Warn("Rejected webhook signature")
			return nil, err
		}
	}

	payload, err := env.PayloadJSON()
	if err != nil {
		metrics.RecordWebhookEvent("", "bad_request")
		return nil, svcerrors.Wrap(svcerrors.CodeBadRequest, http.StatusBadRequest, "invalid webhook payload", err)
	}

	ev := &Event{
		Name:                gjson.GetBytes(payload, "event").String(),
		FID:                 hdr.FID,
		NotificationDetails: notificationDetails(payload),
	}

	if err := h.apply(ctx, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

func (h *Handler) verify(ctx context.Context, env *Envelope, hdr *Header) error {
	if err := env.Verify(hdr); err != nil {
		return svcerrors.Wrap(svcerrors.CodeUnauthorized, http.StatusUnauthorized, "invalid webhook signature", err)
	}
	if h.keyVerifier == nil {
		return svcerrors.Unavailable("app key verification is not configured")
	}
	ok, err := h.keyVerifier.VerifyAppKey(ctx, hdr.FID, hdr.Key)
	if err != nil {
		return svcerrors.Wrap(svcerrors.CodeUnavailable, http.StatusServiceUnavailable, "app key verification failed", err)
	}
	if !ok {
		return svcerrors.Wrap(svcerrors.CodeUnauthorized, http.StatusUnauthorized, "app key is not active for fid", ErrInvalidSignature)
	}
	return nil
}

func (h *Handler) apply(ctx context.Context, ev *Event) error {
	entry := h.log.WithFields(logrus.Fields{"event": ev.Name, "fid": ev.FID})

	var err error
	switch ev.Name {
	case EventFrameAdded, EventNotificationsEnabled:
		if ev.NotificationDetails == nil {
			if ev.Name == EventNotificationsEnabled {
				metrics.RecordWebhookEvent(ev.Name, "bad_request")
				return svcerrors.BadRequest("notifications_enabled without notificationDetails")
			}
			err = h.store.Delete(ctx, ev.FID)
			break
		}
		err = h.store.Save(ctx, ev.FID, *ev.NotificationDetails)
	case EventFrameRemoved, EventNotificationsDisabled:
		err = h.store.Delete(ctx, ev.FID)
	default:
		metrics.RecordWebhookEvent(eventLabel(ev.Name), "unknown_event")
		return svcerrors.BadRequest(fmt.Sprintf("unknown webhook event %q", ev.Name))
	}
	if err != nil {
		metrics.RecordWebhookEvent(ev.Name, "store_error")
		entry.WithError(err).Error("Applying webhook event failed")
		return svcerrors.Internal("failed to store notification details", err)
	}

	metrics.RecordWebhookEvent(ev.Name, "ok")
	entry.Info("Webhook event applied")

	if ev.Name == EventFrameAdded && ev.NotificationDetails != nil && h.welcomer != nil {
		result, err := h.welcomer.Welcome(ctx, ev.FID, *ev.NotificationDetails)
		if err != nil {
			entry.WithError(err).Warn("Welcome notification failed")
		} else {
			entry.WithField("result", result.String()).Info("Welcome notification sent")
		}
	}
	return nil
}

func notificationDetails(payload []byte) *frame.NotificationDetails {
	d := gjson.GetBytes(payload, "notificationDetails")
	if !d.IsObject() {
		return nil
	}
	details := &frame.NotificationDetails{
		URL:   d.Get("url").String(),
		Token: d.Get("token").String(),
	}
	if details.URL == "" || details.Token == "" {
		return nil
	}
	return details
}

// eventLabel bounds the metric label to the known event names.
func eventLabel(name string) string {
	switch name {
	case EventFrameAdded, EventFrameRemoved, EventNotificationsEnabled, EventNotificationsDisabled:
		return name
	default:
		return "unknown"
	}
}
