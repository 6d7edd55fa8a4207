package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationCenter_ExpiryByKind(t *testing.T) {
	start := time.Unix(1000, 0)
	c := NewNotificationCenter(DefaultNotificationTTLs(), 0)
	c.now = func() time.Time { return start }

	c.Success("Cache reset")
	c.Error("Failed to fetch cache info: refused")
	c.Info("No execution plans recorded yet")

	tests := []struct {
		name  string
		after time.Duration
		kinds []NotificationKind
	}{
		{name: "all visible", after: time.Second, kinds: []NotificationKind{KindSuccess, KindError, KindInfo}},
		{name: "success and info expire at 4s", after: 4 * time.Second, kinds: []NotificationKind{KindError}},
		{name: "error still visible at 5s", after: 5 * time.Second, kinds: []NotificationKind{KindError}},
		{name: "error expires at 6s", after: 6 * time.Second, kinds: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var kinds []NotificationKind
			for _, n := range c.Active(start.Add(tt.after)) {
				kinds = append(kinds, n.Kind)
			}
			assert.Equal(t, tt.kinds, kinds)
		})
	}
}

func TestNotificationCenter_Limit(t *testing.T) {
	c := NewNotificationCenter(DefaultNotificationTTLs(), 2)

	c.Info("one")
	c.Info("two")
	c.Info("three")

	active := c.Active(time.Now())
	require.Len(t, active, 2)
	assert.Equal(t, "two", active[0].Message)
	assert.Equal(t, "three", active[1].Message)
}

func TestNotificationCenter_Dismiss(t *testing.T) {
	c := NewNotificationCenter(DefaultNotificationTTLs(), 0)
	c.Success("a")
	c.Success("b")

	active := c.Active(time.Now())
	require.Len(t, active, 2)
	assert.NotEqual(t, active[0].ID, active[1].ID)

	assert.True(t, c.Dismiss(active[0].ID))
	assert.False(t, c.Dismiss("unknown"))

	active = c.Active(time.Now())
	require.Len(t, active, 1)
	assert.Equal(t, "b", active[0].Message)
}

func TestNotificationTTLs_ZeroFallsBack(t *testing.T) {
	ttls := NotificationTTLs{Error: time.Minute}
	assert.Equal(t, DefaultInfoTTL, ttls.forKind(KindSuccess))
	assert.Equal(t, time.Minute, ttls.forKind(KindError))
}

func TestMultiNotifier(t *testing.T) {
	a, b := &recordingNotifier{}, &recordingNotifier{}
	n := multiNotifier{a, b}

	n.Success("s")
	n.Error("e")
	n.Info("i")

	expected := []string{"success: s", "error: e", "info: i"}
	assert.Equal(t, expected, a.messages)
	assert.Equal(t, expected, b.messages)
}
