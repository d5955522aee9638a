package service

import (
	"context"

	"github.com/okian/pitchboard/internal/adapters/docstore"
	"github.com/okian/pitchboard/internal/domain/model"
	"github.com/okian/pitchboard/internal/domain/trigger"
	"github.com/okian/pitchboard/pkg/logger"
	"github.com/okian/pitchboard/pkg/metrics"
)

// Controller turns event document changes into pipeline runs.
type Controller struct {
	pipeline *Pipeline
	notifier *Notifier
	logger   logger.Logger
}

// NewController creates a Controller. notifier may be nil.
func NewController(p *Pipeline, n *Notifier, l logger.Logger) *Controller {
	if l == nil {
		l = logger.Get().Named("controller")
	}
	return &Controller{pipeline: p, notifier: n, logger: l}
}

// HandleChange inspects one committed change. Changes to anything other
// than an event document are ignored. The returned error is the pipeline
// error so the delivery layer can retry.
func (c *Controller) HandleChange(ctx context.Context, ch docstore.Change) error { //nolint:gocritic // hugeParam
	eventID, ok := model.EventIDFromPath(ch.Path)
	if !ok {
		return nil
	}
	before, after := model.StatusOf(ch.Before), model.StatusOf(ch.After)

	if kind, ok := notificationFor(ch, before, after); ok && c.notifier != nil {
		ev := model.EventFromData(eventID, ch.After)
		if err := c.notifier.Notify(ctx, kind, ev); err != nil {
			metrics.RecordNotificationError()
			c.logger.Warn(ctx, "host notification failed",
				logger.String("event_id", eventID),
				logger.String("kind", kind),
				logger.Error(err),
			)
		}
	}

	_, err := c.pipeline.Run(ctx, eventID, before, after)
	return err
}

// notificationFor picks the host notification a change calls for, if any.
func notificationFor(ch docstore.Change, before, after model.Status) (string, bool) { //nolint:gocritic // hugeParam
	switch {
	case ch.Before == nil && ch.After != nil:
		return NotificationEventCreated, true
	case trigger.WentLive(before, after):
		return NotificationEventLive, true
	case trigger.EndedNow(before, after):
		return NotificationEventEnded, true
	}
	return "", false
}
