package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agencydesk/internal/types"
)

type mockEmailProvider struct {
	mu    sync.Mutex
	sends []types.SendInput
	err   error
}

func (m *mockEmailProvider) Send(_ context.Context, input types.SendInput) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.sends = append(m.sends, input)
	return "msg-1", nil
}

func (m *mockEmailProvider) sent() []types.SendInput {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.SendInput(nil), m.sends...)
}

type mockInAppStore struct {
	mu      sync.Mutex
	created []types.Notification
	err     error
}

func (m *mockInAppStore) Create(_ context.Context, n *types.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	n.ID = "notif_" + n.UserID
	m.created = append(m.created, *n)
	return nil
}

func (m *mockInAppStore) rows() []types.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.Notification(nil), m.created...)
}

type mockDirectory struct {
	emails map[string]string
	err    error
}

func (m *mockDirectory) GetEmailsByIDs(_ context.Context, _ []string) (map[string]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.emails, nil
}

func newTestDispatcher(email *mockEmailProvider, inApp *mockInAppStore, users *mockDirectory) *Dispatcher {
	return NewDispatcher(DispatcherConfig{
		Email:  email,
		InApp:  inApp,
		Users:  users,
		Sender: types.SenderIdentity{Name: "AgencyDesk", Address: "no-reply@agencydesk.io"},
	})
}

func approvalEvent(recipients ...string) Event {
	taskID := "task-1"
	return Event{
		Type:             types.EventApprovalRequested,
		AgencyID:         "agency-1",
		RecipientUserIDs: recipients,
		Subject:          "Approval requested",
		Body:             "A task is waiting for your approval.",
		TaskID:           &taskID,
	}
}

func TestDispatchDeliversBothChannels(t *testing.T) {
	email := &mockEmailProvider{}
	inApp := &mockInAppStore{}
	users := &mockDirectory{emails: map[string]string{
		"u1": "u1@example.com",
		"u2": "u2@example.com",
	}}

	d := newTestDispatcher(email, inApp, users)
	d.Dispatch(context.Background(), approvalEvent("u1", "u2"))

	rows := inApp.rows()
	require.Len(t, rows, 2)
	assert.Equal(t, types.EventApprovalRequested, rows[0].EventType)

	sends := email.sent()
	require.Len(t, sends, 2)
	addresses := []string{sends[0].To, sends[1].To}
	assert.ElementsMatch(t, []string{"u1@example.com", "u2@example.com"}, addresses)
	assert.Equal(t, "no-reply@agencydesk.io", sends[0].From.Address)
}

func TestDispatchDedupesRecipients(t *testing.T) {
	email := &mockEmailProvider{}
	inApp := &mockInAppStore{}
	users := &mockDirectory{emails: map[string]string{"u1": "u1@example.com"}}

	d := newTestDispatcher(email, inApp, users)
	d.Dispatch(context.Background(), approvalEvent("u1", "u1", "", "u1"))

	assert.Len(t, inApp.rows(), 1)
	assert.Len(t, email.sent(), 1)
}

func TestDispatchEmptyRecipientsIsNoop(t *testing.T) {
	email := &mockEmailProvider{}
	inApp := &mockInAppStore{}
	users := &mockDirectory{emails: map[string]string{}}

	d := newTestDispatcher(email, inApp, users)
	d.Dispatch(context.Background(), approvalEvent())

	assert.Empty(t, inApp.rows())
	assert.Empty(t, email.sent())
}

func TestDispatchMissingEmailStillWritesInApp(t *testing.T) {
	email := &mockEmailProvider{}
	inApp := &mockInAppStore{}
	users := &mockDirectory{emails: map[string]string{}} // no address on file

	d := newTestDispatcher(email, inApp, users)
	d.Dispatch(context.Background(), approvalEvent("u1"))

	assert.Len(t, inApp.rows(), 1)
	assert.Empty(t, email.sent())
}

func TestDispatchEmailFailureDoesNotBlockInApp(t *testing.T) {
	email := &mockEmailProvider{err: errors.New("ses down")}
	inApp := &mockInAppStore{}
	users := &mockDirectory{emails: map[string]string{"u1": "u1@example.com"}}

	d := newTestDispatcher(email, inApp, users)
	// Must not panic or return anything; failures are logged only.
	d.Dispatch(context.Background(), approvalEvent("u1"))

	assert.Len(t, inApp.rows(), 1)
}

func TestDispatchDirectoryFailureStillWritesInApp(t *testing.T) {
	email := &mockEmailProvider{}
	inApp := &mockInAppStore{}
	users := &mockDirectory{err: errors.New("db down")}

	d := newTestDispatcher(email, inApp, users)
	d.Dispatch(context.Background(), approvalEvent("u1"))

	// Address resolution failed, so no email, but the in-app row lands.
	assert.Len(t, inApp.rows(), 1)
	assert.Empty(t, email.sent())
}
