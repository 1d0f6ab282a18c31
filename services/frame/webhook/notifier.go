package webhook

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/R3E-Network/frame_layer/internal/httputil"
	"github.com/R3E-Network/frame_layer/internal/metrics"
	"github.com/R3E-Network/frame_layer/pkg/logger"
	"github.com/R3E-Network/frame_layer/services/frame"
	"github.com/R3E-Network/frame_layer/services/frame/store"
)

// Host limits on notification fields.
const (
	maxTitleLen = 32
	maxBodyLen  = 128
)

// SendResult is the host's verdict on a notification token.
type SendResult int

const (
	SendSuccess SendResult = iota
	SendInvalidToken
	SendRateLimited
	SendNoToken
	SendError
)

func (r SendResult) String() string {
	switch r {
	case SendSuccess:
		return "success"
	case SendInvalidToken:
		return "invalid_token"
	case SendRateLimited:
		return "rate_limited"
	case SendNoToken:
		return "no_token"
	default:
		return "error"
	}
}

// Notification is the request body sent to a host notification URL.
type Notification struct {
	NotificationID string   `json:"notificationId"`
	Title          string   `json:"title"`
	Body           string   `json:"body"`
	TargetURL      string   `json:"targetUrl"`
	Tokens         []string `json:"tokens"`
}

// Notifier sends notifications to users who enabled them.
type Notifier struct {
	client    *httputil.Client
	store     store.NotificationStore
	targetURL string
	title     string
	log       *logger.Logger
}

// NewNotifier creates a notifier whose notifications open targetURL.
func NewNotifier(s store.NotificationStore, targetURL, title string, log *logger.Logger) *Notifier {
	if log == nil {
		log = logger.NewDefault("notifier")
	}
	return &Notifier{
		client:    httputil.NewClient(httputil.ClientConfig{MaxRetries: 1, UserAgent: "frame-notifier"}),
		store:     s,
		targetURL: targetURL,
		title:     title,
		log:       log,
	}
}

// Welcome implements Welcomer.
func (n *Notifier) Welcome(ctx context.Context, fid int64, details frame.NotificationDetails) (SendResult, error) {
	return n.SendTo(ctx, fid, details, "Welcome to "+n.title, "Frame is now added to your client")
}

// Send notifies fid using its stored details.
func (n *Notifier) Send(ctx context.Context, fid int64, title, body string) (SendResult, error) {
	rec, err := n.store.Get(ctx, fid)
	if err != nil {
		metrics.RecordNotification(SendNoToken.String())
		return SendNoToken, err
	}
	return n.SendTo(ctx, fid, rec.Details(), title, body)
}

// SendTo posts one notification to details.URL. Tokens the host reports as
// invalid are removed from the store.
func (n *Notifier) SendTo(ctx context.Context, fid int64, details frame.NotificationDetails, title, body string) (SendResult, error) {
	msg := Notification{
		NotificationID: uuid.NewString(),
		Title:          truncate(title, maxTitleLen),
		Body:           truncate(body, maxBodyLen),
		TargetURL:      n.targetURL,
		Tokens:         []string{details.Token},
	}

	result, err := n.post(ctx, details.URL, msg)
	metrics.RecordNotification(result.String())
	if err != nil {
		return result, err
	}

	if result == SendInvalidToken {
		if err := n.store.Delete(ctx, fid); err != nil {
			n.log.WithError(err).WithField("fid", fid).Warn("Removing invalid token failed")
		}
	}
	return result, nil
}

func (n *Notifier) post(ctx context.Context, url string, msg Notification) (SendResult, error) {
	resp, err := n.client.Post(ctx, url, msg)
	if err != nil {
		return SendError, fmt.Errorf("send notification: %w", err)
	}

	var body json.RawMessage
	if err := httputil.DecodeResponse(resp, &body); err != nil {
		return SendError, err
	}

	token := msg.Tokens[0]
	switch {
	case containsToken(body, "result.successfulTokens", token):
		return SendSuccess, nil
	case containsToken(body, "result.invalidTokens", token):
		return SendInvalidToken, nil
	case containsToken(body, "result.rateLimitedTokens", token):
		return SendRateLimited, nil
	default:
		return SendError, fmt.Errorf("token missing from notification response")
	}
}

func containsToken(body []byte, path, token string) bool {
	for _, t := range gjson.GetBytes(body, path).Array() {
		if t.String() == token {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
