package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/fleetgrid/ops-api/internal/api/middleware"
	"github.com/fleetgrid/ops-api/internal/audit"
	"github.com/fleetgrid/ops-api/internal/claims"
	"github.com/fleetgrid/ops-api/internal/models"
	"github.com/fleetgrid/ops-api/internal/store"
)

// mockStore implements store.Store for handler tests.
type mockStore struct {
	claims        map[string]*models.Claim
	history       []*models.ClaimHistoryEntry
	notifications []*models.Notification
	users         map[string]*models.User
	auditEntries  []*models.AuditLogEntry
	nextID        int
}

func newMockStore() *mockStore {
	return &mockStore{
		claims: make(map[string]*models.Claim),
		users:  make(map[string]*models.User),
	}
}

func (m *mockStore) genID() string {
	m.nextID++
	return fmt.Sprintf("id-%d", m.nextID)
}

func (m *mockStore) addUser(id string, role models.Role) {
	m.users[id] = &models.User{ID: id, Email: id + "@example.com", Role: role, Status: models.UserStatusActive}
}

type mockClaimStore struct{ s *mockStore }

func (c mockClaimStore) Create(ctx context.Context, claim *models.Claim) error {
	if claim.ID == "" {
		claim.ID = c.s.genID()
	}
	cp := *claim
	c.s.claims[claim.ID] = &cp
	return nil
}

func (c mockClaimStore) Get(ctx context.Context, id string) (*models.Claim, error) {
	if claim, ok := c.s.claims[id]; ok {
		v := *claim
		return &v, nil
	}
	return nil, nil
}

func (c mockClaimStore) List(ctx context.Context) ([]*models.Claim, error) {
	var out []*models.Claim
	for _, claim := range c.s.claims {
		v := *claim
		out = append(out, &v)
	}
	return out, nil
}

func (c mockClaimStore) ListByRequester(ctx context.Context, requesterID string) ([]*models.Claim, error) {
	var out []*models.Claim
	for _, claim := range c.s.claims {
		if claim.RequesterID == requesterID {
			v := *claim
			out = append(out, &v)
		}
	}
	return out, nil
}

func (c mockClaimStore) Transition(ctx context.Context, id string, from []models.ClaimStatus, to models.ClaimStatus, adminID, rejectionReason string, at time.Time) error {
	claim, ok := c.s.claims[id]
	if !ok {
		return store.ErrNotFound
	}
	for _, f := range from {
		if claim.Status == f {
			claim.Status = to
			claim.AdminID = adminID
			claim.RejectionReason = rejectionReason
			claim.UpdatedAt = at
			return nil
		}
	}
	return store.ErrConcurrentModification
}

func (c mockClaimStore) AppendHistory(ctx context.Context, entry *models.ClaimHistoryEntry) error {
	if entry.ID == "" {
		entry.ID = c.s.genID()
	}
	cp := *entry
	c.s.history = append(c.s.history, &cp)
	return nil
}

func (c mockClaimStore) History(ctx context.Context, claimID string) ([]*models.ClaimHistoryEntry, error) {
	var out []*models.ClaimHistoryEntry
	for _, e := range c.s.history {
		if e.ClaimID == claimID {
			v := *e
			out = append(out, &v)
		}
	}
	return out, nil
}

type mockNotificationStore struct{ s *mockStore }

func (n mockNotificationStore) Create(ctx context.Context, notification *models.Notification) error {
	if notification.ID == "" {
		notification.ID = n.s.genID()
	}
	cp := *notification
	n.s.notifications = append(n.s.notifications, &cp)
	return nil
}

func (n mockNotificationStore) ListByUser(ctx context.Context, userID string, limit int) ([]*models.Notification, error) {
	var out []*models.Notification
	for _, m := range n.s.notifications {
		if m.UserID == userID {
			v := *m
			out = append(out, &v)
		}
	}
	return out, nil
}

func (n mockNotificationStore) MarkRead(ctx context.Context, id, userID string) error {
	for _, m := range n.s.notifications {
		if m.ID == id && m.UserID == userID {
			m.Read = true
			return nil
		}
	}
	return store.ErrNotFound
}

type mockUserStore struct{ s *mockStore }

func (u mockUserStore) Create(ctx context.Context, user *models.User, password string) error {
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
	return nil, fmt.Errorf("not supported in mock")
}

func (u mockUserStore) List(ctx context.Context) ([]*models.User, error) {
	var out []*models.User
	for _, user := range u.s.users {
		v := *user
		out = append(out, &v)
	}
	return out, nil
}

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

type mockAuditStore struct{ s *mockStore }

func (a mockAuditStore) Append(ctx context.Context, entry *models.AuditLogEntry) error {
	if entry.ID == "" {
		entry.ID = a.s.genID()
	}
	cp := *entry
	a.s.auditEntries = append(a.s.auditEntries, &cp)
	return nil
}

func (a mockAuditStore) AppendFailed(ctx context.Context, entry *models.FailedAuditLogEntry) error {
	return nil
}

func (a mockAuditStore) List(ctx context.Context, limit int) ([]*models.AuditLogEntry, error) {
	return a.s.auditEntries, nil
}

func (m *mockStore) Claims() store.ClaimStore               { return mockClaimStore{m} }
func (m *mockStore) Notifications() store.NotificationStore { return mockNotificationStore{m} }
func (m *mockStore) Invitations() store.InvitationStore     { return nil }
func (m *mockStore) Users() store.UserStore                 { return mockUserStore{m} }
func (m *mockStore) Audit() store.AuditStore                { return mockAuditStore{m} }
func (m *mockStore) Vehicles() store.VehicleStore           { return nil }

func (m *mockStore) WithTx(ctx context.Context, fn func(store.Store) error) error {
	return fn(m)
}

func (m *mockStore) Close() error {
	return nil
}

func newClaimsTestHandler(st *mockStore) *ClaimsHandler {
	logger := slog.Default()
	svc := claims.NewService(st, audit.NewWriter(st, logger), nil, nil, logger)
	return NewClaimsHandler(st, svc, nil, logger)
}

func authedRequest(method, target string, body []byte, userID string) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	return req.WithContext(middleware.WithUserID(req.Context(), userID))
}

func withClaimID(req *http.Request, claimID string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("claimID", claimID)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func createClaimViaHandler(t *testing.T, handler *ClaimsHandler, userID, claimType string) *models.Claim {
	t.Helper()
	body, _ := json.Marshal(CreateClaimRequest{Type: claimType, Description: "d"})
	rr := httptest.NewRecorder()
	handler.Create(rr, authedRequest("POST", "/v1/claims", body, userID))
	if rr.Code != http.StatusCreated {
		t.Fatalf("create returned %d: %s", rr.Code, rr.Body.String())
	}
	var claim models.Claim
	json.NewDecoder(rr.Body).Decode(&claim)
	return &claim
}

// genUserSuffix generates short identifier suffixes.
func genUserSuffix() gopter.Gen {
	return gen.RegexMatch("[a-z][a-z0-9]{3,10}")
}

// Requesters without view_all_claims see exactly their own claims; reviewers
// with it see everything.
func TestClaimListVisibilityProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("dispatchers see own claims, managers see all", prop.ForAll(
		func(suffixA, suffixB string, countA, countB int) bool {
			if suffixA == suffixB {
				return true
			}
			userA := "disp-" + suffixA
			userB := "disp-" + suffixB

			st := newMockStore()
			st.addUser(userA, models.RoleDispatcher)
			st.addUser(userB, models.RoleDispatcher)
			st.addUser("mgr-1", models.RoleManager)
			handler := newClaimsTestHandler(st)

			for i := 0; i < countA; i++ {
				createClaimViaHandler(t, handler, userA, fmt.Sprintf("type-a-%d", i))
			}
			for i := 0; i < countB; i++ {
				createClaimViaHandler(t, handler, userB, fmt.Sprintf("type-b-%d", i))
			}

			list := func(userID string) []*models.Claim {
				rr := httptest.NewRecorder()
				handler.List(rr, authedRequest("GET", "/v1/claims", nil, userID))
				if rr.Code != http.StatusOK {
					return nil
				}
				var out []*models.Claim
				json.NewDecoder(rr.Body).Decode(&out)
				return out
			}

			ownA := list(userA)
			if len(ownA) != countA {
				return false
			}
			for _, c := range ownA {
				if c.RequesterID != userA {
					return false
				}
			}

			all := list("mgr-1")
			return len(all) == countA+countB
		},
		genUserSuffix(),
		genUserSuffix(),
		gen.IntRange(0, 5),
		gen.IntRange(0, 5),
	))

	properties.TestingRun(t)
}

func TestClaimLifecycleThroughHandlers(t *testing.T) {
	st := newMockStore()
	st.addUser("disp-1", models.RoleDispatcher)
	st.addUser("admin-1", models.RoleAdmin)
	handler := newClaimsTestHandler(st)

	claim := createClaimViaHandler(t, handler, "disp-1", "cargo_damage")

	// Dispatchers cannot approve
	rr := httptest.NewRecorder()
	handler.Approve(rr, withClaimID(authedRequest("POST", "/v1/claims/"+claim.ID+"/approve", nil, "disp-1"), claim.ID))
	if rr.Code != http.StatusForbidden {
		t.Errorf("dispatcher approve: %d, want 403", rr.Code)
	}

	// Reject without a reason is a 400 before any write
	body, _ := json.Marshal(RejectClaimRequest{Reason: "  "})
	rr = httptest.NewRecorder()
	handler.Reject(rr, withClaimID(authedRequest("POST", "/v1/claims/"+claim.ID+"/reject", body, "admin-1"), claim.ID))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("blank reason: %d, want 400", rr.Code)
	}

	// Admin approves
	rr = httptest.NewRecorder()
	handler.Approve(rr, withClaimID(authedRequest("POST", "/v1/claims/"+claim.ID+"/approve", nil, "admin-1"), claim.ID))
	if rr.Code != http.StatusOK {
		t.Fatalf("approve: %d: %s", rr.Code, rr.Body.String())
	}
	var approved models.Claim
	json.NewDecoder(rr.Body).Decode(&approved)
	if approved.Status != models.ClaimStatusApproved {
		t.Errorf("status = %s", approved.Status)
	}

	// A second decision conflicts
	body, _ = json.Marshal(RejectClaimRequest{Reason: "changed my mind"})
	rr = httptest.NewRecorder()
	handler.Reject(rr, withClaimID(authedRequest("POST", "/v1/claims/"+claim.ID+"/reject", body, "admin-1"), claim.ID))
	if rr.Code != http.StatusConflict {
		t.Errorf("second decision: %d, want 409", rr.Code)
	}

	// Unknown claim is a 404
	rr = httptest.NewRecorder()
	handler.Approve(rr, withClaimID(authedRequest("POST", "/v1/claims/nope/approve", nil, "admin-1"), "nope"))
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown claim: %d, want 404", rr.Code)
	}
}

func TestClaimGetAccessControl(t *testing.T) {
	st := newMockStore()
	st.addUser("disp-1", models.RoleDispatcher)
	st.addUser("disp-2", models.RoleDispatcher)
	st.addUser("mgr-1", models.RoleManager)
	handler := newClaimsTestHandler(st)

	claim := createClaimViaHandler(t, handler, "disp-1", "cargo_damage")

	get := func(userID string) int {
		rr := httptest.NewRecorder()
		handler.Get(rr, withClaimID(authedRequest("GET", "/v1/claims/"+claim.ID, nil, userID), claim.ID))
		return rr.Code
	}

	if code := get("disp-1"); code != http.StatusOK {
		t.Errorf("owner get: %d", code)
	}
	if code := get("mgr-1"); code != http.StatusOK {
		t.Errorf("manager get: %d", code)
	}
	if code := get("disp-2"); code != http.StatusForbidden {
		t.Errorf("stranger get: %d, want 403", code)
	}

	// Owner sees the history trail alongside the claim
	rr := httptest.NewRecorder()
	handler.Get(rr, withClaimID(authedRequest("GET", "/v1/claims/"+claim.ID, nil, "disp-1"), claim.ID))
	var payload struct {
		Claim   *models.Claim              `json:"claim"`
		History []*models.ClaimHistoryEntry `json:"history"`
	}
	json.NewDecoder(rr.Body).Decode(&payload)
	if payload.Claim == nil || len(payload.History) != 1 {
		t.Errorf("get payload: claim=%v history=%d", payload.Claim, len(payload.History))
	}
}

func TestDraftUnavailableWithoutAssistant(t *testing.T) {
	st := newMockStore()
	st.addUser("admin-1", models.RoleAdmin)
	handler := newClaimsTestHandler(st) // assistant is nil

	rr := httptest.NewRecorder()
	handler.Draft(rr, withClaimID(authedRequest("POST", "/v1/claims/c1/draft", nil, "admin-1"), "c1"))
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("draft without assistant: %d, want 503", rr.Code)
	}
}
