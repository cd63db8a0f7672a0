package notifications

import (
	"time"
)

// NotificationType represents the type of notification being sent.
type NotificationType string

const (
	TypeNewMatch   NotificationType = "new_match"
	TypeNewMessage NotificationType = "new_message"
)

// MessageChannelID is the Android channel the client app registers for chat traffic.
const MessageChannelID = "messages"

// Notification is the client-rendered payload delivered inside an FCM data message.
type Notification struct {
	Type    NotificationType  `json:"-"`
	Title   string            `json:"title"`
	Body    string            `json:"body"`
	Data    map[string]string `json:"data,omitempty"`
	Android AndroidOptions    `json:"android"`
}

// AndroidOptions mirrors the Android block understood by the client notification library.
type AndroidOptions struct {
	ChannelID   string      `json:"channelId"`
	Category    string      `json:"category"`
	PressAction PressAction `json:"pressAction"`
}

// PressAction describes what the client does when the notification is tapped.
type PressAction struct {
	ID             string `json:"id"`
	LaunchActivity string `json:"launchActivity"`
}

// DeliveryToken is a device registration stored in Firestore.
// Collection: /notifications/{token}
type DeliveryToken struct {
	UID          string    `firestore:"uid"`
	Token        string    `firestore:"token"`
	RegisteredAt time.Time `firestore:"timestamp"`
}

// FailureReason classifies a per-token delivery failure.
type FailureReason string

const (
	ReasonUnregistered    FailureReason = "unregistered"
	ReasonInvalidArgument FailureReason = "invalid-argument"
	ReasonUnavailable     FailureReason = "unavailable"
	ReasonQuotaExceeded   FailureReason = "quota-exceeded"
	ReasonOther           FailureReason = "other"
)

// DeliveryOutcome is the gateway's verdict for one token of a multicast send.
type DeliveryOutcome struct {
	Token     string
	Success   bool
	MessageID string
	Reason    FailureReason
	Err       error
}

// Permanent reports whether the token will never accept deliveries again.
func (o DeliveryOutcome) Permanent() bool {
	return !o.Success && o.Reason == ReasonUnregistered
}
