package notify

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notification is a transient user-facing message, the toast of a page.
type Notification struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

type Nop struct{}

func (Nop) Notify(context.Context, Notification) {}

// LogNotifier writes notifications to the process log.
type LogNotifier struct {
	Log logrus.FieldLogger
}

func (l LogNotifier) Notify(ctx context.Context, n Notification) {
	entry := l.Log.WithField("notification", n.Level).WithContext(ctx)
	if n.Level == LevelError {
		entry.Warn(n.Message)
		return
	}
	entry.Info(n.Message)
}

// Feed keeps the most recent notifications until a reader drains them.
type Feed struct {
	mu    sync.Mutex
	items []Notification
	limit int
}

const defaultFeedLimit = 50

func NewFeed(limit int) *Feed {
	if limit <= 0 {
		limit = defaultFeedLimit
	}
	return &Feed{limit: limit}
}

func (f *Feed) Notify(_ context.Context, n Notification) {
	if n.At.IsZero() {
		n.At = time.Now()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, n)
	if over := len(f.items) - f.limit; over > 0 {
		f.items = append([]Notification(nil), f.items[over:]...)
	}
}

// Drain returns pending notifications oldest first and empties the feed.
func (f *Feed) Drain() []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.items
	f.items = nil
	if out == nil {
		return []Notification{}
	}
	return out
}

// Multi fans a notification out to several notifiers.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) {
	for _, x := range m {
		x.Notify(ctx, n)
	}
}
