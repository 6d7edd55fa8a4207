package services

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// NotificationKind classifies a notification.
type NotificationKind string

// Notification kinds.
const (
	KindSuccess NotificationKind = "success"
	KindError   NotificationKind = "error"
	KindInfo    NotificationKind = "info"
)

// Default lifetimes of each notification kind.
const (
	DefaultSuccessTTL = 4 * time.Second
	DefaultErrorTTL   = 6 * time.Second
	DefaultInfoTTL    = 4 * time.Second
)

const defaultNotificationLimit = 20

// Notifier receives user-facing messages.
type Notifier interface {
	Success(message string)
	Error(message string)
	Info(message string)
}

// Notification is one transient message.
type Notification struct {
	ID        string           `json:"id"`
	Kind      NotificationKind `json:"kind"`
	Message   string           `json:"message"`
	CreatedAt time.Time        `json:"created_at"`
	ExpiresAt time.Time        `json:"expires_at"`
}

// NotificationTTLs sets how long each kind stays visible.
type NotificationTTLs struct {
	Success time.Duration
	Error   time.Duration
	Info    time.Duration
}

// DefaultNotificationTTLs returns 4s for success and info, 6s for errors.
func DefaultNotificationTTLs() NotificationTTLs {
	return NotificationTTLs{
		Success: DefaultSuccessTTL,
		Error:   DefaultErrorTTL,
		Info:    DefaultInfoTTL,
	}
}

func (t NotificationTTLs) forKind(kind NotificationKind) time.Duration {
	var ttl time.Duration
	switch kind {
	case KindSuccess:
		ttl = t.Success
	case KindError:
		ttl = t.Error
	default:
		ttl = t.Info
	}
	if ttl <= 0 {
		return DefaultInfoTTL
	}
	return ttl
}

// NotificationCenter is a bounded, expiring Notifier. It is safe for
// concurrent use.
type NotificationCenter struct {
	mu    sync.Mutex
	items []Notification
	ttls  NotificationTTLs
	limit int
	now   func() time.Time
}

// NewNotificationCenter creates a center keeping at most limit notifications.
func NewNotificationCenter(ttls NotificationTTLs, limit int) *NotificationCenter {
	if limit <= 0 {
		limit = defaultNotificationLimit
	}
	return &NotificationCenter{
		ttls:  ttls,
		limit: limit,
		now:   time.Now,
	}
}

func (c *NotificationCenter) Success(message string) { c.push(KindSuccess, message) }
func (c *NotificationCenter) Error(message string)   { c.push(KindError, message) }
func (c *NotificationCenter) Info(message string)    { c.push(KindInfo, message) }

func (c *NotificationCenter) push(kind NotificationKind, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.items = append(c.items, Notification{
		ID:        uuid.NewString(),
		Kind:      kind,
		Message:   message,
		CreatedAt: now,
		ExpiresAt: now.Add(c.ttls.forKind(kind)),
	})
	c.prune(now)
	if over := len(c.items) - c.limit; over > 0 {
		c.items = append(c.items[:0:0], c.items[over:]...)
	}
}

// Active returns the unexpired notifications, oldest first.
func (c *NotificationCenter) Active(now time.Time) []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.prune(now)
	out := make([]Notification, len(c.items))
	copy(out, c.items)
	return out
}

// Dismiss removes a notification. It reports whether the id was present.
func (c *NotificationCenter) Dismiss(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, n := range c.items {
		if n.ID == id {
			c.items = append(c.items[:i:i], c.items[i+1:]...)
			return true
		}
	}
	return false
}

func (c *NotificationCenter) prune(now time.Time) {
	kept := c.items[:0]
	for _, n := range c.items {
		if now.Before(n.ExpiresAt) {
			kept = append(kept, n)
		}
	}
	c.items = kept
}

// multiNotifier fans a message out to several notifiers.
type multiNotifier []Notifier

func (m multiNotifier) Success(message string) {
	for _, n := range m {
		n.Success(message)
	}
}

func (m multiNotifier) Error(message string) {
	for _, n := range m {
		n.Error(message)
	}
}

func (m multiNotifier) Info(message string) {
	for _, n := range m {
		n.Info(message)
	}
}
