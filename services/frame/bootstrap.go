package frame

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/R3E-Network/frame_layer/internal/events"
	"github.com/R3E-Network/frame_layer/internal/metrics"
	"github.com/R3E-Network/frame_layer/pkg/logger"
)

const componentBootstrap = "bootstrap"

// View is a read-only snapshot of a mount.
type View struct {
	SessionID      string           `json:"session_id,omitempty"`
	Phase          Phase            `json:"phase"`
	SDKLoaded      bool             `json:"sdk_loaded"`
	Added          bool             `json:"added"`
	Context        *FrameContext    `json:"context,omitempty"`
	AddFrameResult string           `json:"add_frame_result,omitempty"`
	Providers      []ProviderDetail `json:"providers,omitempty"`
}

// Options configures a Bootstrap.
type Options struct {
	SessionID string
	Logger    *logger.Logger
	Journal   events.EventLogger
	// OnChange is called with a fresh snapshot after every state change. It
	// must not call back into the Bootstrap synchronously with Mount.
	OnChange func(View)
}

// Bootstrap runs the one-time initialization of a frame mount against a
// host client.
type Bootstrap struct {
	host      HostClient
	sessionID string
	log       *logger.Logger
	journal   events.EventLogger
	onChange  func(View)

	sdkLoaded atomic.Bool
	subs      subscriptions

	mu        sync.Mutex
	phase     Phase
	frameCtx  *FrameContext
	added     bool
	addResult AddResult
	providers []ProviderDetail
}

// NewBootstrap creates a bootstrap for one mount of host.
func NewBootstrap(host HostClient, opts Options) *Bootstrap {
	log := opts.Logger
	if log == nil {
		log = logger.NewDefault("frame")
	}
	journal := opts.Journal
	if journal == nil {
		journal = events.NoOpLogger{}
	}
	return &Bootstrap{
		host:      host,
		sessionID: opts.SessionID,
		log:       log,
		journal:   journal,
		onChange:  opts.OnChange,
	}
}

// Mount runs the initialization sequence. Only the first call has an effect;
// later calls, and calls after Unmount, return immediately. Mount blocks until
// the sequence finishes or stops.
func (b *Bootstrap) Mount(ctx context.Context) {
	if !b.sdkLoaded.CompareAndSwap(false, true) {
		return
	}

	b.mu.Lock()
	if b.phase == PhaseUnmounted {
		b.mu.Unlock()
		return
	}
	b.phase = PhaseLoading
	b.mu.Unlock()

	b.entry().Info("Mounting frame")
	b.record(events.EventMounted, "")
	b.notify()

	outcome := b.load(ctx)
	metrics.RecordBootstrap(outcome)
}

func (b *Bootstrap) load(ctx context.Context) string {
	frameCtx, err := b.host.Context(ctx)
	if err != nil {
		b.entry().WithError(err).Warn("Fetching frame context failed")
		events.NewEvent(events.EventContextAbsent).Session(b.sessionID).Component(componentBootstrap).
			Severity(events.SeverityWarning).ErrorFrom(err).LogTo(b.journal)
		return "context_error"
	}
	if frameCtx == nil {
		b.entry().Info("No frame context, not running inside a host")
		b.record(events.EventContextAbsent, "no context")
		return "no_context"
	}

	b.mu.Lock()
	if b.phase == PhaseUnmounted {
		b.mu.Unlock()
		return "unmounted"
	}
	b.frameCtx = frameCtx
	b.added = frameCtx.Client.Added
	added := b.added
	b.mu.Unlock()

	b.entry().WithFields(logrus.Fields{
		"fid":   frameCtx.User.FID,
		"added": added,
	}).Info("Frame context loaded")
	events.NewEvent(events.EventContextLoaded).Session(b.sessionID).Component(componentBootstrap).
		Metadata("added", strconv.FormatBool(added)).LogTo(b.journal)
	b.notify()

	if !added {
		b.requestAdd(ctx)
		if b.Phase() == PhaseUnmounted {
			return "unmounted"
		}
	}

	b.subscribe()

	outcome := "ready"
	if err := b.host.Ready(ctx, ReadyOptions{}); err != nil {
		b.entry().WithError(err).Warn("Ready signal failed")
		outcome = "ready_error"
	}

	b.mu.Lock()
	if b.phase == PhaseUnmounted {
		b.mu.Unlock()
		return "unmounted"
	}
	b.phase = PhaseReady
	b.mu.Unlock()

	b.entry().Info("Frame ready")
	b.record(events.EventReady, "")
	b.notify()

	b.discoverProviders()
	return outcome
}

// requestAdd prompts the user once. Failures are recorded for display and
// never retried.
func (b *Bootstrap) requestAdd(ctx context.Context) {
	b.record(events.EventAddRequested, "")

	result := ClassifyAddError(b.host.AddFrame(ctx))
	metrics.RecordAddRequest(result.Outcome.String())

	b.mu.Lock()
	b.addResult = result
	b.mu.Unlock()

	entry := b.entry().WithField("result", result.Outcome.String())
	if text := result.Display(); text != "" {
		entry.WithField("display", text).Warn("Add frame request failed")
	} else {
		entry.Info("Add frame requested")
	}
	events.NewEvent(events.EventAddResult).Session(b.sessionID).Component(componentBootstrap).
		Message(result.Display()).Metadata("result", result.Outcome.String()).LogTo(b.journal)
	b.notify()
}

func (b *Bootstrap) subscribe() {
	for _, kind := range LifecycleEvents {
		b.host.On(kind, b.handleHostEvent)
	}
	b.subs.add(b.host.RemoveAllListeners)
	b.record(events.EventSubscribed, "")
}

func (b *Bootstrap) discoverProviders() {
	discovery, ok := b.host.(ProviderDiscovery)
	if !ok {
		return
	}
	unsubscribe := discovery.SubscribeProviders(b.handleProviders)
	b.subs.add(unsubscribe)
}

func (b *Bootstrap) handleProviders(providers []ProviderDetail) {
	b.mu.Lock()
	if b.phase == PhaseUnmounted {
		b.mu.Unlock()
		return
	}
	b.providers = append([]ProviderDetail(nil), providers...)
	b.mu.Unlock()

	names := make([]string, 0, len(providers))
	for _, p := range providers {
		names = append(names, p.Name)
	}
	b.entry().WithField("providers", names).Info("Provider details")
	events.NewEvent(events.EventProviders).Session(b.sessionID).Component(componentBootstrap).
		Metadata("count", strconv.Itoa(len(providers))).LogTo(b.journal)
	b.notify()
}

func (b *Bootstrap) handleHostEvent(ev HostEvent) {
	b.mu.Lock()
	if b.phase == PhaseUnmounted {
		b.mu.Unlock()
		b.record(events.EventHostEventAfter, string(ev.Kind))
		return
	}
	changed := false
	switch ev.Kind {
	case EventFrameAdded:
		changed = !b.added
		b.added = true
	case EventFrameRemoved:
		changed = b.added
		b.added = false
	}
	b.mu.Unlock()

	metrics.RecordHostEvent(string(ev.Kind))
	entry := b.entry().WithField("event", string(ev.Kind))
	switch ev.Kind {
	case EventFrameAddRejected:
		entry = entry.WithField("reason", ev.Reason)
	case EventNotificationsEnabled, EventFrameAdded:
		if ev.NotificationDetails != nil {
			entry = entry.WithField("notification_url", ev.NotificationDetails.URL)
		}
	}
	entry.Info("Host event")
	b.record(events.EventHostEvent, string(ev.Kind))

	if changed {
		b.notify()
	}
}

// Unmount releases every subscription acquired by Mount. Events delivered
// afterwards are ignored. Unmount is idempotent and may be called before
// Mount.
func (b *Bootstrap) Unmount() {
	b.mu.Lock()
	if b.phase == PhaseUnmounted {
		b.mu.Unlock()
		return
	}
	b.phase = PhaseUnmounted
	b.mu.Unlock()

	released := b.subs.releaseAll()
	b.entry().WithField("released", released).Info("Frame unmounted")
	b.record(events.EventUnmounted, "")
	b.notify()
}

// Phase returns the current phase.
func (b *Bootstrap) Phase() Phase {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.phase
}

// Added reports whether the host currently lists the frame as added.
func (b *Bootstrap) Added() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.added
}

// AddResult returns the outcome of the add-frame prompt.
func (b *Bootstrap) AddResult() AddResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addResult
}

// Context returns the launch context, or nil if none was loaded.
func (b *Bootstrap) Context() *FrameContext {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.frameCtx
}

// View returns a snapshot of the mount.
func (b *Bootstrap) View() View {
	b.mu.Lock()
	defer b.mu.Unlock()
	return View{
		SessionID:      b.sessionID,
		Phase:          b.phase,
		SDKLoaded:      b.sdkLoaded.Load(),
		Added:          b.added,
		Context:        b.frameCtx,
		AddFrameResult: b.addResult.Display(),
		Providers:      append([]ProviderDetail(nil), b.providers...),
	}
}

func (b *Bootstrap) notify() {
	if b.onChange == nil {
		return
	}
	b.onChange(b.View())
}

func (b *Bootstrap) record(t events.EventType, msg string) {
	events.NewEvent(t).Session(b.sessionID).Component(componentBootstrap).Message(msg).LogTo(b.journal)
}

func (b *Bootstrap) entry() *logrus.Entry {
	return b.log.WithField("session_id", b.sessionID)
}
