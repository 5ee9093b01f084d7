package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/fleetgrid/ops-api/internal/audit"
	"github.com/fleetgrid/ops-api/internal/models"
	"github.com/fleetgrid/ops-api/internal/store"
)

// inviteMockStore implements the store.Store surface the invite service
// touches: invitations, users and audit, with fail injection on the user
// insert to exercise acceptance atomicity.
type inviteMockStore struct {
	invitations    map[string]*models.Invitation
	users          map[string]*models.User
	auditEntries   []*models.AuditLogEntry
	failedAudit    []*models.FailedAuditLogEntry
	failUserCreate bool
	nextID         int
}

func newInviteMockStore() *inviteMockStore {
	return &inviteMockStore{
		invitations: make(map[string]*models.Invitation),
		users:       make(map[string]*models.User),
	}
}

func (m *inviteMockStore) genID() string {
	m.nextID++
	return fmt.Sprintf("id-%d", m.nextID)
}

type mockInvitationStore struct{ s *inviteMockStore }

func (i mockInvitationStore) Create(ctx context.Context, invitation *models.Invitation) error {
	if invitation.ID == "" {
		invitation.ID = i.s.genID()
	}
	cp := *invitation
	i.s.invitations[invitation.ID] = &cp
	return nil
}

func (i mockInvitationStore) Get(ctx context.Context, id string) (*models.Invitation, error) {
	if inv, ok := i.s.invitations[id]; ok {
		v := *inv
		return &v, nil
	}
	return nil, nil
}

func (i mockInvitationStore) GetByToken(ctx context.Context, token string) (*models.Invitation, error) {
	for _, inv := range i.s.invitations {
		if inv.Token == token {
			v := *inv
			return &v, nil
		}
	}
	return nil, nil
}

func (i mockInvitationStore) GetPendingByEmail(ctx context.Context, email string) (*models.Invitation, error) {
	for _, inv := range i.s.invitations {
		if inv.Email == email && inv.Status == models.InvitationStatusPending {
			v := *inv
			return &v, nil
		}
	}
	return nil, nil
}

func (i mockInvitationStore) List(ctx context.Context) ([]*models.Invitation, error) {
	var out []*models.Invitation
	for _, inv := range i.s.invitations {
		v := *inv
		out = append(out, &v)
	}
	return out, nil
}

func (i mockInvitationStore) Update(ctx context.Context, invitation *models.Invitation) error {
	if _, ok := i.s.invitations[invitation.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *invitation
	i.s.invitations[invitation.ID] = &cp
	return nil
}

type mockUserStore struct{ s *inviteMockStore }

func (u mockUserStore) Create(ctx context.Context, user *models.User, password string) error {
	if u.s.failUserCreate {
		return errors.New("user insert rejected")
	}
	if user.ID == "" {
		user.ID = u.s.genID()
	}
	cp := *user
	u.s.users[user.ID] = &cp
	return nil
}

func (u mockUserStore) GetByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := u.s.users[id]; ok {
		v := *user
		return &v, nil
	}
	return nil, nil
}

func (u mockUserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, user := range u.s.users {
		if user.Email == email {
			v := *user
			return &v, nil
		}
	}
	return nil, nil
}

func (u mockUserStore) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	return nil, errors.New("not supported in mock")
}

func (u mockUserStore) List(ctx context.Context) ([]*models.User, error) { return nil, nil }

func (u mockUserStore) UpdateRole(ctx context.Context, id string, role models.Role) error {
	if user, ok := u.s.users[id]; ok {
		user.Role = role
		return nil
	}
	return store.ErrNotFound
}

func (u mockUserStore) UpdateStatus(ctx context.Context, id string, status models.UserStatus) error {
	if user, ok := u.s.users[id]; ok {
		user.Status = status
		return nil
	}
	return store.ErrNotFound
}

func (u mockUserStore) CountByRole(ctx context.Context, role models.Role) (int, error) {
	count := 0
	for _, user := range u.s.users {
		if user.Role == role {
			count++
		}
	}
	return count, nil
}

type mockAuditStore struct{ s *inviteMockStore }

func (a mockAuditStore) Append(ctx context.Context, entry *models.AuditLogEntry) error {
	if entry.ID == "" {
		entry.ID = a.s.genID()
	}
	cp := *entry
	a.s.auditEntries = append(a.s.auditEntries, &cp)
	return nil
}

func (a mockAuditStore) AppendFailed(ctx context.Context, entry *models.FailedAuditLogEntry) error {
	cp := *entry
	a.s.failedAudit = append(a.s.failedAudit, &cp)
	return nil
}

func (a mockAuditStore) List(ctx context.Context, limit int) ([]*models.AuditLogEntry, error) {
	return a.s.auditEntries, nil
}

func (m *inviteMockStore) Claims() store.ClaimStore               { return nil }
func (m *inviteMockStore) Notifications() store.NotificationStore { return nil }
func (m *inviteMockStore) Invitations() store.InvitationStore     { return mockInvitationStore{m} }
func (m *inviteMockStore) Users() store.UserStore                 { return mockUserStore{m} }
func (m *inviteMockStore) Audit() store.AuditStore                { return mockAuditStore{m} }
func (m *inviteMockStore) Vehicles() store.VehicleStore           { return nil }
func (m *inviteMockStore) Close() error                           { return nil }

// WithTx snapshots invitation and user state and restores it when fn fails.
func (m *inviteMockStore) WithTx(ctx context.Context, fn func(store.Store) error) error {
	invSnap := make(map[string]*models.Invitation, len(m.invitations))
	for id, inv := range m.invitations {
		v := *inv
		invSnap[id] = &v
	}
	userSnap := make(map[string]*models.User, len(m.users))
	for id, u := range m.users {
		v := *u
		userSnap[id] = &v
	}

	if err := fn(m); err != nil {
		m.invitations = invSnap
		m.users = userSnap
		return err
	}
	return nil
}

func newTestInviteService(st *inviteMockStore) *InviteService {
	logger := slog.Default()
	return NewInviteService(st, audit.NewWriter(st, logger), InvitationExpiry, logger)
}

func adminIssuer(st *inviteMockStore) *models.User {
	admin := &models.User{ID: "admin-1", Email: "admin@example.com", Name: "Admin", Role: models.RoleAdmin, Status: models.UserStatusActive}
	st.users[admin.ID] = admin
	return admin
}

func TestCreateInvitation(t *testing.T) {
	st := newInviteMockStore()
	svc := newTestInviteService(st)
	issuer := adminIssuer(st)
	ctx := context.Background()

	inv, err := svc.CreateInvitation(ctx, issuer, "new@example.com", models.RoleDispatcher)
	if err != nil {
		t.Fatalf("CreateInvitation: %v", err)
	}
	if inv.Status != models.InvitationStatusPending {
		t.Errorf("status = %s, want pending", inv.Status)
	}
	if len(inv.Token) != 64 {
		t.Errorf("token length = %d, want 64 hex chars", len(inv.Token))
	}
	if until := time.Until(inv.ExpiresAt); until < 71*time.Hour || until > 73*time.Hour {
		t.Errorf("expiry not ~72h out: %v", until)
	}
	if inv.InvitedByEmail != issuer.Email {
		t.Errorf("invited_by_email = %s", inv.InvitedByEmail)
	}

	if len(st.auditEntries) != 1 || st.auditEntries[0].Action != models.AuditUserInvited {
		t.Errorf("audit entries: %+v", st.auditEntries)
	}

	// Second pending invitation for the same email is refused
	if _, err := svc.CreateInvitation(ctx, issuer, "new@example.com", models.RoleManager); !errors.Is(err, ErrEmailAlreadyInvited) {
		t.Errorf("duplicate invite: got %v, want ErrEmailAlreadyInvited", err)
	}

	// Existing account is refused
	st.users["u2"] = &models.User{ID: "u2", Email: "taken@example.com"}
	if _, err := svc.CreateInvitation(ctx, issuer, "taken@example.com", models.RoleManager); err == nil {
		t.Error("inviting an existing account succeeded")
	}
}

func TestCreateInvitationValidation(t *testing.T) {
	st := newInviteMockStore()
	svc := newTestInviteService(st)
	issuer := adminIssuer(st)
	ctx := context.Background()

	if _, err := svc.CreateInvitation(ctx, issuer, "  ", models.RoleDispatcher); !errors.Is(err, ErrEmailRequired) {
		t.Errorf("blank email: got %v, want ErrEmailRequired", err)
	}
	if _, err := svc.CreateInvitation(ctx, issuer, "x@example.com", "superuser"); !errors.Is(err, ErrInvalidRole) {
		t.Errorf("bad role: got %v, want ErrInvalidRole", err)
	}

	manager := &models.User{ID: "mgr-1", Role: models.RoleManager, Status: models.UserStatusActive}
	if _, err := svc.CreateInvitation(ctx, manager, "x@example.com", models.RoleDispatcher); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("non-admin issuer: got %v, want ErrPermissionDenied", err)
	}
}

func TestInviteTokensAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, err := generateInviteToken()
		if err != nil {
			t.Fatalf("generateInviteToken: %v", err)
		}
		if seen[token] {
			t.Fatalf("duplicate token after %d draws", i)
		}
		seen[token] = true
	}
}

// Resolution classifies tokens in a fixed order: unknown tokens are
// not-found, non-pending invitations are already-used no matter how old, and
// only pending ones can be expired or valid.
func TestResolutionOrderingProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	statuses := []models.InvitationStatus{
		models.InvitationStatusPending,
		models.InvitationStatusAccepted,
		models.InvitationStatusExpired,
		models.InvitationStatusCancelled,
	}

	properties.Property("classification follows NotFound > Used > Expired > Valid", prop.ForAll(
		func(statusIdx int, hoursOffset int, knownToken bool) bool {
			st := newInviteMockStore()
			svc := newTestInviteService(st)

			status := statuses[statusIdx%len(statuses)]
			inv := &models.Invitation{
				ID:        "inv-1",
				Email:     "someone@example.com",
				Token:     "tok-1",
				Role:      models.RoleDispatcher,
				Status:    status,
				ExpiresAt: time.Now().Add(time.Duration(hoursOffset-100) * time.Hour),
			}
			st.invitations[inv.ID] = inv

			token := "tok-1"
			if !knownToken {
				token = "tok-unknown"
			}

			res, err := svc.ResolveInvitation(context.Background(), token)
			if err != nil {
				return false
			}

			switch {
			case !knownToken:
				return res.State == InviteNotFound
			case status != models.InvitationStatusPending:
				return res.State == InviteAlreadyUsed
			case time.Now().After(inv.ExpiresAt):
				return res.State == InviteExpired
			default:
				return res.State == InviteValid
			}
		},
		gen.IntRange(0, 3),
		gen.IntRange(0, 200),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestAcceptInvitation(t *testing.T) {
	st := newInviteMockStore()
	svc := newTestInviteService(st)
	issuer := adminIssuer(st)
	ctx := context.Background()

	inv, err := svc.CreateInvitation(ctx, issuer, "new@example.com", models.RoleClaimsOfficer)
	if err != nil {
		t.Fatalf("CreateInvitation: %v", err)
	}

	user, err := svc.AcceptInvitation(ctx, inv.Token, "a-strong-password")
	if err != nil {
		t.Fatalf("AcceptInvitation: %v", err)
	}
	if user.Role != models.RoleClaimsOfficer || user.Status != models.UserStatusActive {
		t.Errorf("accepted user: %+v", user)
	}
	if user.Name != "new" {
		t.Errorf("name = %q, want local part of email", user.Name)
	}
	if user.InvitedBy != issuer.Email {
		t.Errorf("invited_by = %q", user.InvitedBy)
	}

	stored, _ := st.Invitations().Get(ctx, inv.ID)
	if stored.Status != models.InvitationStatusAccepted || stored.AcceptedAt == nil {
		t.Errorf("invitation after accept: %+v", stored)
	}

	// Single use: a second accept is refused
	if _, err := svc.AcceptInvitation(ctx, inv.Token, "another-password"); !errors.Is(err, ErrInvitationUsed) {
		t.Errorf("second accept: got %v, want ErrInvitationUsed", err)
	}
}

func TestAcceptInvitationErrors(t *testing.T) {
	st := newInviteMockStore()
	svc := newTestInviteService(st)
	ctx := context.Background()

	if _, err := svc.AcceptInvitation(ctx, "nope", "pw"); !errors.Is(err, ErrInvitationNotFound) {
		t.Errorf("unknown token: got %v, want ErrInvitationNotFound", err)
	}

	st.invitations["inv-old"] = &models.Invitation{
		ID:        "inv-old",
		Email:     "late@example.com",
		Token:     "tok-old",
		Status:    models.InvitationStatusPending,
		ExpiresAt: time.Now().Add(-time.Hour),
	}
	if _, err := svc.AcceptInvitation(ctx, "tok-old", "pw"); !errors.Is(err, ErrInvitationExpired) {
		t.Errorf("expired token: got %v, want ErrInvitationExpired", err)
	}
}

func TestAcceptInvitationIsAtomic(t *testing.T) {
	st := newInviteMockStore()
	svc := newTestInviteService(st)
	issuer := adminIssuer(st)
	ctx := context.Background()

	inv, err := svc.CreateInvitation(ctx, issuer, "new@example.com", models.RoleDispatcher)
	if err != nil {
		t.Fatalf("CreateInvitation: %v", err)
	}

	st.failUserCreate = true
	if _, err := svc.AcceptInvitation(ctx, inv.Token, "pw"); err == nil {
		t.Fatal("accept succeeded despite user insert failure")
	}

	// The invitation stays pending and redeemable
	stored, _ := st.Invitations().Get(ctx, inv.ID)
	if stored.Status != models.InvitationStatusPending {
		t.Errorf("invitation status after failed accept: %s", stored.Status)
	}

	st.failUserCreate = false
	if _, err := svc.AcceptInvitation(ctx, inv.Token, "pw"); err != nil {
		t.Errorf("retry after transient failure: %v", err)
	}
}

func TestCancelInvitation(t *testing.T) {
	st := newInviteMockStore()
	svc := newTestInviteService(st)
	issuer := adminIssuer(st)
	ctx := context.Background()

	inv, err := svc.CreateInvitation(ctx, issuer, "new@example.com", models.RoleDispatcher)
	if err != nil {
		t.Fatalf("CreateInvitation: %v", err)
	}

	if err := svc.CancelInvitation(ctx, issuer, inv.ID); err != nil {
		t.Fatalf("CancelInvitation: %v", err)
	}
	stored, _ := st.Invitations().Get(ctx, inv.ID)
	if stored.Status != models.InvitationStatusCancelled {
		t.Errorf("status = %s, want cancelled", stored.Status)
	}

	// Cancelled is terminal for both cancel and accept
	if err := svc.CancelInvitation(ctx, issuer, inv.ID); !errors.Is(err, ErrNotPending) {
		t.Errorf("double cancel: got %v, want ErrNotPending", err)
	}
	if _, err := svc.AcceptInvitation(ctx, inv.Token, "pw"); !errors.Is(err, ErrInvitationUsed) {
		t.Errorf("accept after cancel: got %v, want ErrInvitationUsed", err)
	}

	if err := svc.CancelInvitation(ctx, issuer, "no-such-id"); !errors.Is(err, ErrInvitationNotFound) {
		t.Errorf("unknown id: got %v, want ErrInvitationNotFound", err)
	}
}
