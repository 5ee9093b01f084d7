package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/fleetgrid/ops-api/internal/models"
	"github.com/fleetgrid/ops-api/internal/store"
)

type mockAuditStore struct {
	entries      []*models.AuditLogEntry
	failed       []*models.FailedAuditLogEntry
	appendErr    error
	fallbackErr  error
	appendCalls  int
	failedCalls  int
	nextEntryID  int
}

func (m *mockAuditStore) Append(ctx context.Context, entry *models.AuditLogEntry) error {
	m.appendCalls++
	if m.appendErr != nil {
		return m.appendErr
	}
	m.nextEntryID++
	entry.ID = "audit-1"
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockAuditStore) AppendFailed(ctx context.Context, entry *models.FailedAuditLogEntry) error {
	m.failedCalls++
	if m.fallbackErr != nil {
		return m.fallbackErr
	}
	entry.ID = "failed-1"
	m.failed = append(m.failed, entry)
	return nil
}

func (m *mockAuditStore) List(ctx context.Context, limit int) ([]*models.AuditLogEntry, error) {
	return m.entries, nil
}

type auditOnlyStore struct {
	audit *mockAuditStore
}

func (s *auditOnlyStore) Claims() store.ClaimStore               { return nil }
func (s *auditOnlyStore) Notifications() store.NotificationStore { return nil }
func (s *auditOnlyStore) Invitations() store.InvitationStore     { return nil }
func (s *auditOnlyStore) Users() store.UserStore                 { return nil }
func (s *auditOnlyStore) Audit() store.AuditStore                { return s.audit }
func (s *auditOnlyStore) Vehicles() store.VehicleStore           { return nil }
func (s *auditOnlyStore) Close() error                           { return nil }
func (s *auditOnlyStore) WithTx(ctx context.Context, fn func(store.Store) error) error {
	return fn(s)
}

func TestRecordPrimaryWrite(t *testing.T) {
	mock := &mockAuditStore{}
	w := NewWriter(&auditOnlyStore{audit: mock}, nil)

	id := w.Record(context.Background(), models.AuditClaimCreated, "u1", models.RoleAdmin, "claims", "c1", map[string]any{"type": "cargo_damage"})
	if id == "" {
		t.Fatal("Record returned empty id on success")
	}
	if len(mock.entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(mock.entries))
	}
	e := mock.entries[0]
	if e.Action != models.AuditClaimCreated || e.ActorID != "u1" || e.TargetID != "c1" {
		t.Errorf("entry: %+v", e)
	}
	if mock.failedCalls != 0 {
		t.Error("fallback touched on a successful primary write")
	}
}

func TestRecordFallsBackOnce(t *testing.T) {
	mock := &mockAuditStore{appendErr: errors.New("disk full")}
	w := NewWriter(&auditOnlyStore{audit: mock}, nil)

	id := w.Record(context.Background(), models.AuditClaimApproved, "u1", models.RoleAdmin, "claims", "c1", nil)
	if id == "" {
		t.Fatal("Record returned empty id when fallback succeeded")
	}
	if len(mock.failed) != 1 {
		t.Fatalf("fallback entries = %d, want 1", len(mock.failed))
	}
	if mock.failed[0].Error != "disk full" {
		t.Errorf("fallback lost the original error: %q", mock.failed[0].Error)
	}
	if mock.failed[0].Action != models.AuditClaimApproved {
		t.Errorf("fallback action = %s", mock.failed[0].Action)
	}
}

func TestRecordDropsAfterBothTiersFail(t *testing.T) {
	mock := &mockAuditStore{
		appendErr:   errors.New("disk full"),
		fallbackErr: errors.New("still full"),
	}
	w := NewWriter(&auditOnlyStore{audit: mock}, nil)

	// Never panics, never errors; the entry is dropped.
	id := w.Record(context.Background(), models.AuditClaimRejected, "u1", models.RoleAdmin, "claims", "c1", nil)
	if id != "" {
		t.Errorf("id = %q, want empty after double failure", id)
	}
	if mock.appendCalls != 1 || mock.failedCalls != 1 {
		t.Errorf("calls: append=%d fallback=%d, want exactly one each", mock.appendCalls, mock.failedCalls)
	}
}
