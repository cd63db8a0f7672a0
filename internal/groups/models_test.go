package groups

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ptr[T any](v T) *T { return &v }

func TestNeedsDispatch(t *testing.T) {
	tests := []struct {
		name  string
		group Group
		want  bool
	}{
		{
			name:  "never notified",
			group: Group{LastTimestamp: time.Unix(100, 0)},
			want:  true,
		},
		{
			name:  "changed after watermark",
			group: Group{LastTimestamp: time.Unix(100, 0), LastNotified: ptr(time.Unix(50, 0))},
			want:  true,
		},
		{
			name:  "watermark echo",
			group: Group{LastTimestamp: time.Unix(100, 0), LastNotified: ptr(time.Unix(100, 0))},
			want:  false,
		},
		{
			name:  "watermark ahead",
			group: Group{LastTimestamp: time.Unix(100, 0), LastNotified: ptr(time.Unix(150, 0))},
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.group.NeedsDispatch())
		})
	}
}

func TestDisplayNameAndSender(t *testing.T) {
	g := Group{}
	_, ok := g.DisplayName()
	assert.False(t, ok)
	_, ok = g.Sender()
	assert.False(t, ok)

	g.Name = ptr("")
	_, ok = g.DisplayName()
	assert.False(t, ok)

	g.Name = ptr("Flat 3B")
	g.LastSender = ptr("u1")
	name, ok := g.DisplayName()
	assert.True(t, ok)
	assert.Equal(t, "Flat 3B", name)
	sender, ok := g.Sender()
	assert.True(t, ok)
	assert.Equal(t, "u1", sender)
}

func TestUniqueMembers(t *testing.T) {
	g := Group{Members: []string{"u1", "", "u2", "u1", "u3"}}
	assert.Equal(t, []string{"u1", "u2", "u3"}, g.UniqueMembers())
	assert.Empty(t, Group{}.UniqueMembers())
}

func TestEffectiveKind(t *testing.T) {
	notified := ptr(time.Unix(50, 0))

	tests := []struct {
		name string
		ev   ChangeEvent
		want ChangeKind
	}{
		{name: "new group", ev: ChangeEvent{Kind: ChangeCreated}, want: ChangeCreated},
		{name: "replayed add of notified group", ev: ChangeEvent{Kind: ChangeCreated, Group: Group{LastNotified: notified}}, want: ChangeUpdated},
		{name: "update", ev: ChangeEvent{Kind: ChangeUpdated, Group: Group{LastNotified: notified}}, want: ChangeUpdated},
		{name: "delete of notified group", ev: ChangeEvent{Kind: ChangeDeleted, Group: Group{LastNotified: notified}}, want: ChangeDeleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.ev.EffectiveKind())
		})
	}
}
