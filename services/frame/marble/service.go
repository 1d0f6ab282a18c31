// Package framemarble provides the frame HTTP service.
//
// The service serves the discovery document, the landing page and the image
// assets a host needs to render the frame, receives host webhooks, and runs
// one bootstrap session per bridge connection opened by the page shim.
package framemarble

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/R3E-Network/frame_layer/internal/events"
	"github.com/R3E-Network/frame_layer/internal/middleware"
	"github.com/R3E-Network/frame_layer/manifest"
	"github.com/R3E-Network/frame_layer/pkg/logger"
	"github.com/R3E-Network/frame_layer/services/common/service"
	"github.com/R3E-Network/frame_layer/services/frame"
	"github.com/R3E-Network/frame_layer/services/frame/store"
	"github.com/R3E-Network/frame_layer/services/frame/wallet"
	"github.com/R3E-Network/frame_layer/services/frame/webhook"
)

const (
	ServiceID   = "frame"
	ServiceName = "Frame Service"
	Version     = "1.0.0"

	// DefaultSweepSchedule evicts closed sessions and idle rate limiters.
	DefaultSweepSchedule = "@every 5m"

	defaultWebhookRate  = 10
	defaultWebhookBurst = 20
	storeProbeTimeout   = 2 * time.Second
	activityJournalSize = 1024
)

// Config holds frame service configuration.
type Config struct {
	Manifest *manifest.Provider
	Store    store.NotificationStore
	Logger   *logger.Logger

	// Welcomer defaults to a Notifier over Store.
	Welcomer webhook.Welcomer
	// KeyVerifier is required unless SkipVerify is set.
	KeyVerifier webhook.KeyVerifier
	SkipVerify  bool

	// AdminJWTSecret signs operator bearer tokens. Operator routes reject
	// every request while it is empty.
	AdminJWTSecret string

	// ReceiptSource, when set, is polled for receipts instead of the host
	// wallet.
	ReceiptSource wallet.ReceiptSource
	ReceiptPoll   time.Duration

	WebhookRateLimit int
	WebhookRateBurst int
	AllowedOrigins   []string
	SweepSchedule    string

	// Recipient overrides the account derived from the manifest.
	Recipient common.Address
}

// Service implements the frame service.
type Service struct {
	*service.BaseService

	manifest  *manifest.Provider
	store     store.NotificationStore
	webhook   *webhook.Handler
	notifier  *webhook.Notifier
	sessions  *Registry
	limiter   *middleware.RateLimiter
	cors      *middleware.CORSMiddleware
	auth      *middleware.AuthMiddleware
	activity  *events.RingBuffer
	recipient common.Address

	receiptSource wallet.ReceiptSource
	receiptPoll   time.Duration
	sweepSchedule string
}

// New creates a new frame service.
func New(cfg Config) (*Service, error) {
	if cfg.Manifest == nil {
		return nil, fmt.Errorf("manifest provider is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("notification store is required")
	}
	if cfg.KeyVerifier == nil && !cfg.SkipVerify {
		return nil, fmt.Errorf("webhook key verifier is required unless signature verification is skipped")
	}

	log := cfg.Logger
	if log == nil {
		log = logger.NewDefault(ServiceID)
	}
	base := service.NewBase(service.BaseConfig{
		ID:      ServiceID,
		Name:    ServiceName,
		Version: Version,
		Logger:  log,
	})

	doc := cfg.Manifest.Document()
	notifier := webhook.NewNotifier(cfg.Store, doc.Frame.HomeURL, doc.Frame.Name, log.Named("notifier"))
	welcomer := cfg.Welcomer
	if welcomer == nil {
		welcomer = notifier
	}

	rate, burst := cfg.WebhookRateLimit, cfg.WebhookRateBurst
	if rate <= 0 {
		rate = defaultWebhookRate
	}
	if burst <= 0 {
		burst = defaultWebhookBurst
	}
	schedule := cfg.SweepSchedule
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}

	s := &Service{
		BaseService: base,
		manifest:    cfg.Manifest,
		store:       cfg.Store,
		webhook: webhook.NewHandler(webhook.Options{
			Store:       cfg.Store,
			Welcomer:    welcomer,
			KeyVerifier: cfg.KeyVerifier,
			Logger:      log.Named("webhook"),
			SkipVerify:  cfg.SkipVerify,
		}),
		notifier:      notifier,
		sessions:      NewRegistry(),
		limiter:       middleware.NewRateLimiter(rate, burst, log),
		cors:          middleware.NewCORSMiddleware(cfg.AllowedOrigins),
		auth:          middleware.NewAuthMiddleware([]byte(cfg.AdminJWTSecret), log.Named("auth"), nil),
		activity:      events.NewRingBuffer(activityJournalSize),
		recipient:     resolveRecipient(cfg.Recipient, cfg.Manifest, log),
		receiptSource: cfg.ReceiptSource,
		receiptPoll:   cfg.ReceiptPoll,
		sweepSchedule: schedule,
	}

	base.WithStats(s.statistics)
	base.AddProbe("store", s.probeStore)
	if err := base.AddCronWorker(schedule, s.sweep); err != nil {
		return nil, err
	}

	s.registerRoutes()
	return s, nil
}

// resolveRecipient picks the transfer recipient: an explicit override, else
// the custody address in the account association, else the built-in default.
func resolveRecipient(override common.Address, p *manifest.Provider, log *logger.Logger) common.Address {
	if override != (common.Address{}) {
		return override
	}
	hdr, err := p.Credentials().DecodeHeader()
	if err != nil {
		log.WithError(err).Warn("Account association header unreadable; using default recipient")
		return frame.DefaultRecipient
	}
	if !common.IsHexAddress(hdr.Key) {
		return frame.DefaultRecipient
	}
	return common.HexToAddress(hdr.Key)
}

// Recipient returns the transfer recipient.
func (s *Service) Recipient() common.Address {
	return s.recipient
}

// Sessions returns the live session registry.
func (s *Service) Sessions() *Registry {
	return s.sessions
}

// Notifier returns the notification sender.
func (s *Service) Notifier() *webhook.Notifier {
	return s.notifier
}

// Handler returns the router wrapped in the CORS middleware. Preflight
// requests never reach the router.
func (s *Service) Handler() http.Handler {
	return s.cors.Handler(s.Router())
}

func (s *Service) statistics() map[string]any {
	stats := map[string]any{
		"sessions":       s.sessions.Len(),
		"activity":       s.activity.Count(),
		"rate_limiters":  s.limiter.Size(),
		"recipient":      s.recipient.Hex(),
		"sweep_schedule": s.sweepSchedule,
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeProbeTimeout)
	defer cancel()
	if n, err := s.store.Count(ctx); err == nil {
		stats["notification_tokens"] = n
	}
	return stats
}

func (s *Service) probeStore(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, storeProbeTimeout)
	defer cancel()
	_, err := s.store.Count(ctx)
	return err
}

func (s *Service) sweep(context.Context) error {
	sessions := s.sessions.Sweep()
	limiters := s.limiter.Cleanup()
	if sessions > 0 || limiters > 0 {
		s.Logger().WithField("sessions", sessions).WithField("rate_limiters", limiters).Debug("Swept idle state")
	}
	return nil
}
