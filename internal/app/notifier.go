package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/pitchboard/internal/adapters/docstore"
	"github.com/okian/pitchboard/internal/domain/model"
)

// Host notification types.
const (
	NotificationEventCreated = "event_created"
	NotificationEventLive    = "event_live"
	NotificationEventEnded   = "event_ended"
)

type notificationText struct {
	title   string
	message string // formatted with the event name and code
}

var notificationTexts = map[string]notificationText{
	NotificationEventCreated: {"Event Created Successfully", "Your event %q (Code: %s) has been created."},
	NotificationEventLive:    {"Event is now Live", "Your event %q (Code: %s) is now Live!"},
	NotificationEventEnded:   {"Event has ended", "Your event %q (Code: %s) has ended"},
}

var notificationNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("pitchboard/notifications"))

// Notifier writes in-app notifications.
type Notifier struct {
	store docstore.Store
	now   func() time.Time
}

// NewNotifier creates a Notifier.
func NewNotifier(store docstore.Store) *Notifier {
	return &Notifier{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// NotificationID returns the id of the kind notification for an event. It
// is derived from both so redelivery overwrites instead of duplicating.
func NotificationID(kind, eventID string) string {
	return uuid.NewSHA1(notificationNamespace, []byte(kind+":"+eventID)).String()
}

// Notify writes a kind notification to notifications/{id} and mirrors it
// under the host's own notifications. Events without a host are skipped.
func (n *Notifier) Notify(ctx context.Context, kind string, ev model.Event) error { //nolint:gocritic // hugeParam
	text, ok := notificationTexts[kind]
	if !ok {
		return fmt.Errorf("notification kind %q: %w", kind, ErrBadRequest)
	}
	if ev.HostUID == "" {
		return nil
	}
	id := NotificationID(kind, ev.ID)
	note := map[string]any{
		"type":      kind,
		"title":     text.title,
		"message":   fmt.Sprintf(text.message, ev.Name, ev.ID),
		"eventId":   ev.ID,
		"read":      false,
		"createdAt": model.FormatTime(n.now()),
	}
	root := make(map[string]any, len(note)+1)
	for k, v := range note {
		root[k] = v
	}
	root["userUid"] = ev.HostUID

	b := &docstore.Batch{}
	b.Set(model.NotificationPath(id), root).Set(model.UserNotificationPath(ev.HostUID, id), note)
	if err := n.store.Commit(ctx, b.Writes()); err != nil {
		return fmt.Errorf("write %s notification: %w", kind, err)
	}
	return nil
}
