package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"agencydesk/internal/notify"
	"agencydesk/internal/types"
)

// ArchiveStore abstracts the bulk lifecycle transitions the archiver needs.
type ArchiveStore interface {
	// ArchiveCanceled transitions canceled clients past their service end
	// date to archived. Date-only comparison.
	ArchiveCanceled(ctx context.Context, today time.Time) (int64, error)
	// ArchiveScheduled transitions clients past their scheduled archive date
	// and deactivates their report schedules in the same transaction.
	ArchiveScheduled(ctx context.Context, today time.Time) ([]types.Client, error)
	ListActiveMemberIDs(ctx context.Context, clientID string) ([]string, error)
}

// ClientArchiver runs the two lifecycle sweeps. Both are idempotent: a
// client archived by one sweep no longer matches either predicate, so
// double-firing a sweep archives nothing twice.
type ClientArchiver struct {
	clients  ArchiveStore
	notifier Notifier
	logger   *slog.Logger
}

// ClientArchiverConfig holds the configuration for creating a ClientArchiver.
type ClientArchiverConfig struct {
	Clients  ArchiveStore
	Notifier Notifier
	Logger   *slog.Logger
}

// NewClientArchiver creates a ClientArchiver.
func NewClientArchiver(cfg ClientArchiverConfig) *ClientArchiver {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ClientArchiver{
		clients:  cfg.Clients,
		notifier: cfg.Notifier,
		logger:   logger,
	}
}

// SweepCanceled archives every canceled client whose service end date is on
// or before today. The comparison ignores time of day so a client whose
// service ends today is archived by today's sweep. Returns the count.
func (a *ClientArchiver) SweepCanceled(ctx context.Context, today time.Time) (int64, error) {
	count, err := a.clients.ArchiveCanceled(ctx, today)
	if err != nil {
		return 0, err
	}

	a.logger.InfoContext(ctx, "canceled-client sweep complete",
		"archived", count,
	)
	return count, nil
}

// SweepScheduled archives every client whose scheduled archive date has
// passed, deactivating their report schedules in the same transaction, then
// fans out an archived notification per client after commit. Returns the
// count of clients archived.
func (a *ClientArchiver) SweepScheduled(ctx context.Context, today time.Time) (int, error) {
	archived, err := a.clients.ArchiveScheduled(ctx, today)
	if err != nil {
		return 0, err
	}

	for _, client := range archived {
		a.notifyArchived(ctx, client)
	}

	a.logger.InfoContext(ctx, "scheduled-archive sweep complete",
		"archived", len(archived),
	)
	return len(archived), nil
}

// notifyArchived fans the archived event out to the client's primary contact
// and active members. Runs after the archive transaction committed; failures
// here never unwind the archive.
func (a *ClientArchiver) notifyArchived(ctx context.Context, client types.Client) {
	recipients, err := a.clients.ListActiveMemberIDs(ctx, client.ID)
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to load members for archive notification",
			"client_id", client.ID,
			"error", err,
		)
	}
	if client.PrimaryContactID != "" {
		recipients = append(recipients, client.PrimaryContactID)
	}
	if len(recipients) == 0 {
		return
	}

	a.notifier.DispatchAsync(ctx, notify.Event{
		Type:             types.EventClientArchived,
		AgencyID:         client.AgencyID,
		RecipientUserIDs: recipients,
		Subject:          fmt.Sprintf("%s has been archived", client.Name),
		Body:             fmt.Sprintf("The client account %s is now archived. Its report schedules have been deactivated.", client.Name),
		ClientID:         &client.ID,
	})
}
