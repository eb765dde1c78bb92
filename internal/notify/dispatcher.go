// Package notify implements the best-effort notification fan-out used by the
// task workflow, the report runner, and the client archiver. Delivery is
// fire-and-forget: the triggering operation is durable and returned to the
// caller before delivery completes, and delivery failures are logged, never
// surfaced as operation failures.
package notify

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"agencydesk/internal/types"
)

// DefaultFanoutConcurrency bounds the number of in-flight deliveries per
// event so a large recipient set cannot exhaust the mail transport.
const DefaultFanoutConcurrency = 4

// Event is a single fan-out request. RecipientUserIDs may contain duplicates;
// the dispatcher dedupes before delivery.
type Event struct {
	Type             types.EventType
	AgencyID         string
	RecipientUserIDs []string
	Subject          string
	Body             string
	TaskID           *string
	ClientID         *string
}

// EmailProvider abstracts the outbound mail transport. Implementations
// return a provider message ID for log correlation.
type EmailProvider interface {
	Send(ctx context.Context, input types.SendInput) (string, error)
}

// InAppStore abstracts the in-app notification row writes.
type InAppStore interface {
	Create(ctx context.Context, n *types.Notification) error
}

// RecipientDirectory resolves user IDs to email addresses.
type RecipientDirectory interface {
	GetEmailsByIDs(ctx context.Context, userIDs []string) (map[string]string, error)
}

// Dispatcher fans an Event out to its recipients over both channels.
type Dispatcher struct {
	email       EmailProvider
	inApp       InAppStore
	users       RecipientDirectory
	sender      types.SenderIdentity
	concurrency int
	logger      *slog.Logger
}

// DispatcherConfig holds the configuration for creating a Dispatcher.
type DispatcherConfig struct {
	Email       EmailProvider
	InApp       InAppStore
	Users       RecipientDirectory
	Sender      types.SenderIdentity
	Concurrency int
	Logger      *slog.Logger
}

// NewDispatcher creates a Dispatcher with the given configuration.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultFanoutConcurrency
	}
	return &Dispatcher{
		email:       cfg.Email,
		inApp:       cfg.InApp,
		users:       cfg.Users,
		sender:      cfg.Sender,
		concurrency: concurrency,
		logger:      logger,
	}
}

// DispatchAsync hands the event to a background goroutine and returns
// immediately. The delivery context is detached from the caller's so an
// already-answered request cannot cancel in-flight sends.
func (d *Dispatcher) DispatchAsync(ctx context.Context, event Event) {
	go d.Dispatch(context.WithoutCancel(ctx), event)
}

// Dispatch fans the event out synchronously. Every failure is logged with
// the entity and recipient so a manual resend is possible; nothing is
// returned because no caller may depend on delivery.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) {
	recipients := dedupe(event.RecipientUserIDs)
	if len(recipients) == 0 {
		return
	}

	emails, err := d.users.GetEmailsByIDs(ctx, recipients)
	if err != nil {
		d.logger.ErrorContext(ctx, "failed to resolve notification recipients",
			"event_type", event.Type,
			"recipient_count", len(recipients),
			"error", err,
		)
		// In-app rows can still be written without resolved addresses.
		emails = map[string]string{}
	}

	g := &errgroup.Group{}
	g.SetLimit(d.concurrency)

	for _, userID := range recipients {
		g.Go(func() error {
			d.deliverOne(ctx, event, userID, emails[userID])
			return nil
		})
	}

	// Goroutines never return errors; Wait only fences the fan-out.
	_ = g.Wait()

	d.logger.InfoContext(ctx, "notification fan-out complete",
		"event_type", event.Type,
		"recipients", len(recipients),
	)
}

// deliverOne writes the in-app row and sends the email for one recipient.
// Each channel fails independently.
func (d *Dispatcher) deliverOne(ctx context.Context, event Event, userID, email string) {
	n := &types.Notification{
		UserID:    userID,
		AgencyID:  event.AgencyID,
		EventType: event.Type,
		Subject:   event.Subject,
		Body:      event.Body,
		TaskID:    event.TaskID,
		ClientID:  event.ClientID,
	}
	if err := d.inApp.Create(ctx, n); err != nil {
		d.logger.ErrorContext(ctx, "failed to write in-app notification",
			"event_type", event.Type,
			"user_id", userID,
			"error", err,
		)
	}

	if email == "" {
		d.logger.WarnContext(ctx, "no email address for notification recipient",
			"event_type", event.Type,
			"user_id", userID,
		)
		return
	}

	msgID, err := d.email.Send(ctx, types.SendInput{
		To:          email,
		From:        d.sender,
		Subject:     event.Subject,
		BodyText:    event.Body,
		ReferenceID: n.ID,
	})
	if err != nil {
		d.logger.ErrorContext(ctx, "failed to send notification email",
			"event_type", event.Type,
			"user_id", userID,
			"recipient", email,
			"error", err,
		)
		return
	}

	d.logger.InfoContext(ctx, "notification email sent",
		"event_type", event.Type,
		"user_id", userID,
		"provider_message_id", msgID,
	)
}

// dedupe returns the input IDs with duplicates and empties removed,
// preserving first-seen order.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	var out []string
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
