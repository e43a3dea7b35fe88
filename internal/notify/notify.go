// Package notify delivers short user-facing messages (toasts) to whoever is
// watching a recording session.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// DefaultDuration is how long a toast stays visible unless overridden.
const DefaultDuration = 5 * time.Second

// Level is the category of a notification.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelWarning Level = "warning"
	LevelInfo    Level = "info"
)

// Notification is a fire-and-forget user message.
type Notification struct {
	Level    Level         `json:"level"`
	Message  string        `json:"message"`
	Duration time.Duration `json:"-"`
	At       time.Time     `json:"at"`
}

// MarshalJSON encodes the duration in milliseconds for the view.
func (n Notification) MarshalJSON() ([]byte, error) {
	type alias Notification
	return json.Marshal(struct {
		alias
		DurationMS int64 `json:"duration_ms"`
	}{alias(n), n.Duration.Milliseconds()})
}

// New returns a notification with the default duration.
func New(level Level, message string) Notification {
	return Notification{
		Level:    level,
		Message:  message,
		Duration: DefaultDuration,
		At:       time.Now().UTC(),
	}
}

// Notifier accepts notifications. Implementations must not block the caller.
type Notifier interface {
	Notify(n Notification)
}

// Func adapts a function to Notifier.
type Func func(n Notification)

func (f Func) Notify(n Notification) { f(n) }

// Multi fans a notification out to every notifier in order.
type Multi []Notifier

func (m Multi) Notify(n Notification) {
	for _, nf := range m {
		if nf != nil {
			nf.Notify(n)
		}
	}
}

// LogNotifier writes notifications to a structured logger.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (l *LogNotifier) Notify(n Notification) {
	lvl := slog.LevelInfo
	switch n.Level {
	case LevelError:
		lvl = slog.LevelError
	case LevelWarning:
		lvl = slog.LevelWarn
	}
	l.log.Log(context.Background(), lvl, "notification",
		slog.String("kind", string(n.Level)),
		slog.String("message", n.Message),
		slog.Int64("duration_ms", n.Duration.Milliseconds()))
}
