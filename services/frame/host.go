// Package frame implements the frame bootstrap state machine and the wallet
// transfer trigger on top of an injected host client.
package frame

import (
	"context"
	"errors"
)

// ErrClosed is returned by host calls that were pending when the host
// connection went away.
var ErrClosed = errors.New("frame: host connection closed")

// UserContext identifies the user viewing the frame.
type UserContext struct {
	FID         int64  `json:"fid"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	PfpURL      string `json:"pfpUrl,omitempty"`
}

// NotificationDetails is the endpoint and token a host issues when the user
// enables notifications.
type NotificationDetails struct {
	URL   string `json:"url"`
	Token string `json:"token"`
}

// SafeAreaInsets are the host's layout insets in pixels.
type SafeAreaInsets struct {
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
	Left   float64 `json:"left"`
	Right  float64 `json:"right"`
}

// ClientContext describes the host client.
type ClientContext struct {
	ClientFID           int64                `json:"clientFid"`
	Added               bool                 `json:"added"`
	NotificationDetails *NotificationDetails `json:"notificationDetails,omitempty"`
	SafeAreaInsets      *SafeAreaInsets      `json:"safeAreaInsets,omitempty"`
}

// LocationContext says where the frame was launched from.
type LocationContext struct {
	Type  string `json:"type"`
	Embed string `json:"embed,omitempty"`
}

// FrameContext is the host-owned snapshot handed to the frame on launch.
type FrameContext struct {
	User     UserContext      `json:"user"`
	Client   ClientContext    `json:"client"`
	Location *LocationContext `json:"location,omitempty"`
}

// EventKind names a host lifecycle event.
type EventKind string

const (
	EventFrameAdded            EventKind = "frameAdded"
	EventFrameAddRejected      EventKind = "frameAddRejected"
	EventFrameRemoved          EventKind = "frameRemoved"
	EventNotificationsEnabled  EventKind = "notificationsEnabled"
	EventNotificationsDisabled EventKind = "notificationsDisabled"
	EventPrimaryButtonClicked  EventKind = "primaryButtonClicked"
)

// LifecycleEvents lists every event the bootstrap subscribes to.
var LifecycleEvents = []EventKind{
	EventFrameAdded,
	EventFrameAddRejected,
	EventFrameRemoved,
	EventNotificationsEnabled,
	EventNotificationsDisabled,
	EventPrimaryButtonClicked,
}

// HostEvent is a lifecycle event delivered by the host.
type HostEvent struct {
	Kind                EventKind            `json:"-"`
	NotificationDetails *NotificationDetails `json:"notificationDetails,omitempty"`
	Reason              string               `json:"reason,omitempty"`
}

// EventHandler receives host events. Handlers may run on a goroutine owned by
// the host client.
type EventHandler func(HostEvent)

// ReadyOptions accompany the ready signal.
type ReadyOptions struct {
	DisableNativeGestures bool `json:"disableNativeGestures,omitempty"`
}

// HostClient is the host SDK surface used by the bootstrap.
type HostClient interface {
	// Context returns the launch context. A nil context with a nil error
	// means the frame is not running inside a host.
	Context(ctx context.Context) (*FrameContext, error)
	// AddFrame prompts the user to add the frame. It returns
	// *RejectedByUserError or *InvalidDomainManifestError for the classified
	// failures.
	AddFrame(ctx context.Context) error
	// Ready tells the host to dismiss its splash screen.
	Ready(ctx context.Context, opts ReadyOptions) error
	On(kind EventKind, handler EventHandler)
	RemoveAllListeners()
}

// ProviderDetail is an EIP-6963 wallet provider announcement.
type ProviderDetail struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
	Icon string `json:"icon"`
	RDNS string `json:"rdns"`
}

// ProviderDiscovery is implemented by hosts that announce wallet providers.
type ProviderDiscovery interface {
	// SubscribeProviders calls fn with the full provider list each time it
	// changes and returns a function that cancels the subscription.
	SubscribeProviders(fn func([]ProviderDetail)) (unsubscribe func())
}

// RejectedByUserError reports that the user declined to add the frame.
type RejectedByUserError struct {
	Reason string
}

func (e *RejectedByUserError) Error() string {
	if e.Reason == "" {
		return "rejected by user"
	}
	return e.Reason
}

// InvalidDomainManifestError reports that the host rejected the domain
// manifest.
type InvalidDomainManifestError struct {
	Reason string
}

func (e *InvalidDomainManifestError) Error() string {
	if e.Reason == "" {
		return "invalid domain manifest"
	}
	return e.Reason
}
