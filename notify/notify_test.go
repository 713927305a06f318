package notify_test

import (
	"context"
	"testing"
	"time"

	"github.com/cityforge/webhooks/notify"
	"github.com/cityforge/webhooks/webhook"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chanSender pushes every dispatched event onto a channel so tests can
// wait for the fire-and-forget goroutine.
type chanSender struct {
	events   chan webhook.Event
	outcomes []webhook.Outcome
}

func newChanSender(outcomes []webhook.Outcome) *chanSender {
	return &chanSender{
		events:   make(chan webhook.Event, 8),
		outcomes: outcomes,
	}
}

func (s *chanSender) Send(ctx context.Context, event webhook.Event) []webhook.Outcome {
	s.events <- event
	return s.outcomes
}

func waitForEvent(t *testing.T, s *chanSender) webhook.Event {
	t.Helper()
	select {
	case event := <-s.events:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("no event dispatched")
		return webhook.Event{}
	}
}

func TestNotifierDispatch(t *testing.T) {
	t.Run("typed methods stamp the right event type", func(t *testing.T) {
		sender := newChanSender(nil)
		notifier := notify.NewNotifier(sender, zerolog.Nop(), nil)
		ctx := context.Background()

		notifier.SubmissionCreated(ctx, map[string]int{"submission_id": 1})
		assert.Equal(t, webhook.EventSubmissionCreated, waitForEvent(t, sender).Type)

		notifier.ForumReportCreated(ctx, map[string]int{"report_id": 2})
		assert.Equal(t, webhook.EventForumReportCreated, waitForEvent(t, sender).Type)

		notifier.AdminNotification(ctx, map[string]string{"message": "hi"})
		assert.Equal(t, webhook.EventAdminNotification, waitForEvent(t, sender).Type)
	})

	t.Run("generic emit carries arbitrary well-formed types", func(t *testing.T) {
		sender := newChanSender(nil)
		notifier := notify.NewNotifier(sender, zerolog.Nop(), nil)

		notifier.Emit(context.Background(), "billing.invoice.paid", map[string]int{"invoice": 7})

		event := waitForEvent(t, sender)
		assert.Equal(t, "billing.invoice.paid", event.Type)
		assert.JSONEq(t, `{"invoice":7}`, string(event.Data))
	})

	t.Run("malformed event types are swallowed, not dispatched", func(t *testing.T) {
		sender := newChanSender(nil)
		notifier := notify.NewNotifier(sender, zerolog.Nop(), nil)

		notifier.Emit(context.Background(), "not a type", nil)

		select {
		case <-sender.events:
			t.Fatal("malformed event must not be dispatched")
		case <-time.After(100 * time.Millisecond):
		}
	})

	t.Run("delivery outlives the request context", func(t *testing.T) {
		sender := newChanSender(nil)
		notifier := notify.NewNotifier(sender, zerolog.Nop(), nil)

		ctx, cancel := context.WithCancel(context.Background())
		notifier.SubmissionCreated(ctx, map[string]int{"submission_id": 1})
		cancel()

		waitForEvent(t, sender)
	})
}

func TestNotifierFallback(t *testing.T) {
	t.Run("invoked when every delivery failed", func(t *testing.T) {
		sender := newChanSender([]webhook.Outcome{
			{EndpointID: "ep_1", Attempts: 4, Success: false},
			{EndpointID: "ep_2", Attempts: 4, Success: false},
		})

		invoked := make(chan webhook.Event, 1)
		fallback := func(ctx context.Context, event webhook.Event, outcomes []webhook.Outcome) {
			invoked <- event
		}

		notifier := notify.NewNotifier(sender, zerolog.Nop(), fallback)
		notifier.SubmissionCreated(context.Background(), map[string]int{"submission_id": 1})
		dispatched := waitForEvent(t, sender)

		select {
		case event := <-invoked:
			assert.Equal(t, dispatched.ID, event.ID)
		case <-time.After(2 * time.Second):
			t.Fatal("fallback not invoked")
		}
	})

	t.Run("not invoked when any delivery succeeded", func(t *testing.T) {
		sender := newChanSender([]webhook.Outcome{
			{EndpointID: "ep_1", Attempts: 4, Success: false},
			{EndpointID: "ep_2", Attempts: 1, Success: true},
		})

		invoked := make(chan struct{}, 1)
		fallback := func(ctx context.Context, event webhook.Event, outcomes []webhook.Outcome) {
			invoked <- struct{}{}
		}

		notifier := notify.NewNotifier(sender, zerolog.Nop(), fallback)
		notifier.SubmissionCreated(context.Background(), map[string]int{"submission_id": 1})
		waitForEvent(t, sender)

		select {
		case <-invoked:
			t.Fatal("fallback must not fire on partial success")
		case <-time.After(100 * time.Millisecond):
		}
	})

	t.Run("not invoked when no endpoints matched", func(t *testing.T) {
		sender := newChanSender(nil)

		invoked := make(chan struct{}, 1)
		fallback := func(ctx context.Context, event webhook.Event, outcomes []webhook.Outcome) {
			invoked <- struct{}{}
		}

		notifier := notify.NewNotifier(sender, zerolog.Nop(), fallback)
		notifier.SubmissionCreated(context.Background(), map[string]int{"submission_id": 1})
		waitForEvent(t, sender)

		select {
		case <-invoked:
			t.Fatal("fallback must not fire without subscribers")
		case <-time.After(100 * time.Millisecond):
		}
	})
}

func TestNotifierPanicRecovery(t *testing.T) {
	t.Run("a panicking sender does not crash the process", func(t *testing.T) {
		sender := &panickingSender{done: make(chan struct{})}
		notifier := notify.NewNotifier(sender, zerolog.Nop(), nil)

		notifier.SubmissionCreated(context.Background(), map[string]int{"submission_id": 1})

		select {
		case <-sender.done:
		case <-time.After(2 * time.Second):
			t.Fatal("sender never invoked")
		}
		// Give the recover deferred in the dispatch goroutine a moment.
		time.Sleep(50 * time.Millisecond)
	})
}

type panickingSender struct {
	done chan struct{}
}

func (s *panickingSender) Send(ctx context.Context, event webhook.Event) []webhook.Outcome {
	close(s.done)
	panic("boom")
}

var _ notify.Sender = (*chanSender)(nil)

func TestSenderContract(t *testing.T) {
	require.Implements(t, (*notify.Sender)(nil), &webhook.Dispatcher{})
}
