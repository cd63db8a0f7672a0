package groups

import (
	"time"
)

// Group is one conversation between a fixed set of members.
// Collection: /groups/{groupId}
type Group struct {
	ID            string     `firestore:"id"`
	Name          *string    `firestore:"name"`
	Members       []string   `firestore:"members"`
	LastMessage   *string    `firestore:"lastMessage"`
	LastSender    *string    `firestore:"lastSender"`
	LastTimestamp time.Time  `firestore:"lastTimestamp"`
	LastNotified  *time.Time `firestore:"lastNotified"`
}

// NeedsDispatch reports whether the group changed since the last completed dispatch.
// A group that was never notified always needs one.
func (g Group) NeedsDispatch() bool {
	if g.LastNotified == nil {
		return true
	}
	return g.LastTimestamp.After(*g.LastNotified)
}

// DisplayName returns the group's own name, if it has a non-empty one.
func (g Group) DisplayName() (string, bool) {
	if g.Name == nil || *g.Name == "" {
		return "", false
	}
	return *g.Name, true
}

// Sender returns the author of the most recent message, if known.
func (g Group) Sender() (string, bool) {
	if g.LastSender == nil || *g.LastSender == "" {
		return "", false
	}
	return *g.LastSender, true
}

// UniqueMembers returns the member IDs in stored order without blanks or duplicates.
func (g Group) UniqueMembers() []string {
	seen := make(map[string]struct{}, len(g.Members))
	out := make([]string, 0, len(g.Members))
	for _, m := range g.Members {
		if m == "" {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

// ChangeKind classifies a change feed emission.
type ChangeKind string

const (
	ChangeCreated ChangeKind = "created"
	ChangeUpdated ChangeKind = "updated"
	ChangeDeleted ChangeKind = "deleted"
)

// ChangeEvent is one change feed emission for a single group document.
type ChangeEvent struct {
	ID         string
	Kind       ChangeKind
	Group      Group
	ReceivedAt time.Time
}

// EffectiveKind is the kind dispatch should act on. A group that already carries
// a watermark was created before, so an add replayed by a fresh subscription is
// treated as an update.
func (e ChangeEvent) EffectiveKind() ChangeKind {
	if e.Kind == ChangeCreated && e.Group.LastNotified != nil {
		return ChangeUpdated
	}
	return e.Kind
}
