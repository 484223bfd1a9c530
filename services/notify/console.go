// Package notifysvc surfaces save outcomes to admins.
package notifysvc

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/trezcool/prepdesk/core"
)

// LogNotifier writes notifications to the logger.
type LogNotifier struct {
	logger core.Logger
}

var _ core.Notifier = (*LogNotifier)(nil)

func NewLogNotifier(logger core.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n LogNotifier) Notify(_ context.Context, note core.Notification) {
	msg := Format(note)
	if note.Level == core.NotificationError {
		n.logger.Warn(msg)
		return
	}
	n.logger.Info(msg)
}

// Format renders a notification on one line: "[level] title: message (detail; detail)".
func Format(note core.Notification) string {
	s := fmt.Sprintf("[%s] %s: %s", note.Level, note.Title, note.Message)
	if len(note.Details) > 0 {
		s += " (" + strings.Join(note.Details, "; ") + ")"
	}
	return s
}

// Recorder keeps notifications in memory; the API serves them back to the admin and tests inspect them.
type Recorder struct {
	mu    sync.Mutex
	max   int
	notes []core.Notification
}

var _ core.Notifier = (*Recorder)(nil)

// NewRecorder keeps the last max notifications (all of them when max <= 0).
func NewRecorder(max int) *Recorder {
	return &Recorder{max: max}
}

func (r *Recorder) Notify(_ context.Context, note core.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, note)
	if r.max > 0 && len(r.notes) > r.max {
		r.notes = r.notes[len(r.notes)-r.max:]
	}
}

// Last returns the most recent notification.
func (r *Recorder) Last() (core.Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notes) == 0 {
		return core.Notification{}, false
	}
	return r.notes[len(r.notes)-1], true
}

func (r *Recorder) All() []core.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.Notification(nil), r.notes...)
}
