package notifications

import (
	"encoding/json"
)

// UnknownGroupName is shown when neither the group nor the other member has a name.
const UnknownGroupName = "Unknown"

func defaultAndroid() AndroidOptions {
	return AndroidOptions{
		ChannelID: MessageChannelID,
		Category:  "msg",
		PressAction: PressAction{
			ID:             "default",
			LaunchActivity: "default",
		},
	}
}

// NewMatch builds the notification sent to members of a newly created group.
func NewMatch(groupID string) Notification {
	return Notification{
		Type:  TypeNewMatch,
		Title: "New Match",
		Body:  "You have a new match!",
		Data: map[string]string{
			"gid": groupID,
		},
		Android: defaultAndroid(),
	}
}

// NewMessage builds the notification sent to a member when a message arrives.
// An empty displayName falls back to UnknownGroupName.
func NewMessage(groupID, recipient, displayName string) Notification {
	if displayName == "" {
		displayName = UnknownGroupName
	}
	return Notification{
		Type:  TypeNewMessage,
		Title: "New Message",
		Body:  "You have a new message!",
		Data: map[string]string{
			"gid":   groupID,
			"uid":   recipient,
			"gname": displayName,
		},
		Android: defaultAndroid(),
	}
}

// Encode renders the FCM data map. The client library reads the whole
// notification from the "notifee" key.
func (n Notification) Encode() (map[string]string, error) {
	payload, err := json.Marshal(n)
	if err != nil {
		return nil, err
	}
	return map[string]string{"notifee": string(payload)}, nil
}
