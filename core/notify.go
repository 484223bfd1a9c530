package core

import "context"

type NotificationLevel string

const (
	NotificationSuccess NotificationLevel = "success"
	NotificationError   NotificationLevel = "error"
)

type (
	// Notification is the single user-facing outcome of an operation.
	Notification struct {
		Level   NotificationLevel `json:"level"`
		Title   string            `json:"title"`
		Message string            `json:"message"`
		Details []string          `json:"details,omitempty"`
	}

	// Notifier is any service that can surface notifications to users.
	Notifier interface {
		Notify(ctx context.Context, n Notification)
	}
)

// Notifiers fans a notification out to many notifiers.
type Notifiers []Notifier

func (ns Notifiers) Notify(ctx context.Context, n Notification) {
	for _, notifier := range ns {
		notifier.Notify(ctx, n)
	}
}
