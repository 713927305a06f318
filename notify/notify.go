package notify

import (
	"context"

	"github.com/cityforge/webhooks/webhook"
	"github.com/rs/zerolog"
)

/* Notifier is the boundary the platform's call sites use after their
 * primary write has committed. Every method is fire-and-forget: the
 * delivery runs on its own goroutine, detached from the request
 * context, and nothing that happens there - errors, retries, panics -
 * can reach the caller or its response latency.
 */

// Sender dispatches one event to its subscribed endpoints.
// *webhook.Dispatcher satisfies it.
type Sender interface {
	Send(ctx context.Context, event webhook.Event) []webhook.Outcome
}

// FallbackFunc is invoked when every endpoint delivery for an event
// fails, e.g. to fall back to an email notification. Enforcement of
// the fallback policy lives here, at the call-site boundary, not in
// the delivery engine.
type FallbackFunc func(ctx context.Context, event webhook.Event, outcomes []webhook.Outcome)

type Notifier struct {
	sender   Sender
	logger   zerolog.Logger
	fallback FallbackFunc
}

// NewNotifier creates a notifier. fallback may be nil.
func NewNotifier(sender Sender, logger zerolog.Logger, fallback FallbackFunc) *Notifier {
	return &Notifier{
		sender:   sender,
		logger:   logger,
		fallback: fallback,
	}
}

// SubmissionCreated notifies subscribers of a new business submission
func (n *Notifier) SubmissionCreated(ctx context.Context, data interface{}) {
	n.emit(ctx, webhook.EventSubmissionCreated, data)
}

// ModificationCreated notifies subscribers of a proposed modification
func (n *Notifier) ModificationCreated(ctx context.Context, data interface{}) {
	n.emit(ctx, webhook.EventModificationCreated, data)
}

// ForumReportCreated notifies subscribers of a reported thread or post
func (n *Notifier) ForumReportCreated(ctx context.Context, data interface{}) {
	n.emit(ctx, webhook.EventForumReportCreated, data)
}

// ForumCategoryRequestCreated notifies subscribers of a category request
func (n *Notifier) ForumCategoryRequestCreated(ctx context.Context, data interface{}) {
	n.emit(ctx, webhook.EventForumCategoryRequestCreated, data)
}

// EmailVerificationRequested notifies subscribers that a user asked
// for an email verification link
func (n *Notifier) EmailVerificationRequested(ctx context.Context, data interface{}) {
	n.emit(ctx, webhook.EventEmailVerificationRequested, data)
}

// PasswordResetRequested notifies subscribers that a user asked for a
// password reset
func (n *Notifier) PasswordResetRequested(ctx context.Context, data interface{}) {
	n.emit(ctx, webhook.EventPasswordResetRequested, data)
}

// AdminNotification carries free-form operator notifications
func (n *Notifier) AdminNotification(ctx context.Context, data interface{}) {
	n.emit(ctx, webhook.EventAdminNotification, data)
}

// Emit constructs and dispatches an event of an arbitrary type, for
// call sites added after this enum was written.
func (n *Notifier) Emit(ctx context.Context, eventType string, data interface{}) {
	n.emit(ctx, eventType, data)
}

func (n *Notifier) emit(ctx context.Context, eventType string, data interface{}) {
	event, err := webhook.NewEvent(eventType, data)
	if err != nil {
		// Construction failures are logged, never propagated: the
		// caller's primary operation already succeeded.
		n.logger.Error().Err(err).Str("event_type", eventType).Msg("constructing webhook event")
		return
	}

	// The request context gets cancelled as soon as the caller's
	// response is written; deliveries must outlive it.
	detached := context.WithoutCancel(ctx)
	go n.dispatch(detached, event)
}

func (n *Notifier) dispatch(ctx context.Context, event webhook.Event) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error().Interface("panic", r).Str("event_id", event.ID).
				Msg("webhook dispatch panicked")
		}
	}()

	outcomes := n.sender.Send(ctx, event)
	if len(outcomes) == 0 || n.fallback == nil {
		return
	}

	for _, outcome := range outcomes {
		if outcome.Success {
			return
		}
	}

	n.logger.Warn().Str("event_id", event.ID).Str("event_type", event.Type).
		Msg("all webhook deliveries failed, invoking fallback")
	n.fallback(ctx, event, outcomes)
}
