// Package claims implements the claim lifecycle: create, approve, reject,
// and AI-draft transitions over the claims collection.
//
// Every transition follows the same two-phase discipline. Phase one is a
// single transaction containing each write that must be visible together:
// the claim mutation, its history entry, and any notification to the
// requester. Phase two is a best-effort audit write that runs only after
// commit; its failure is caught and never undoes or fails phase one.
package claims

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fleetgrid/ops-api/internal/audit"
	"github.com/fleetgrid/ops-api/internal/events"
	"github.com/fleetgrid/ops-api/internal/models"
	"github.com/fleetgrid/ops-api/internal/notify"
	"github.com/fleetgrid/ops-api/internal/store"
)

// Claim lifecycle errors.
var (
	// ErrNotAuthenticated is returned when no actor identity is resolvable.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrProfileNotFound is returned when the actor has no Role Directory entry.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrClaimNotFound is returned when the claim ID does not resolve.
	ErrClaimNotFound = errors.New("claim not found")
	// ErrValidation is returned when caller-supplied data fails a precondition.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidState is returned when a transition is attempted from a
	// terminal status.
	ErrInvalidState = errors.New("claim is not in an actionable state")
	// ErrStorageWrite is returned when the store rejects the transaction.
	// The structured context is published separately on the denied-write bus.
	ErrStorageWrite = errors.New("storage write rejected")
)

// Actor is the identity performing an operation. It is threaded explicitly
// through every operation signature rather than read from ambient state, so
// authorization stays testable without global mocking.
type Actor struct {
	ID   string
	Role models.Role
}

// Service coordinates claim lifecycle transitions.
type Service struct {
	store  store.Store
	audit  *audit.Writer
	denied *events.DeniedWrites
	hub    *notify.Hub
	logger *slog.Logger
}

// NewService creates a new claim lifecycle service. The hub may be nil when
// no live notification delivery is wanted.
func NewService(st store.Store, auditWriter *audit.Writer, denied *events.DeniedWrites, hub *notify.Hub, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  st,
		audit:  auditWriter,
		denied: denied,
		hub:    hub,
		logger: logger,
	}
}

// Create files a new claim with status requested and appends the matching
// history entry atomically. No notification is sent at this point.
func (s *Service) Create(ctx context.Context, actor Actor, claimType, description string) (*models.Claim, error) {
	if actor.ID == "" {
		return nil, ErrNotAuthenticated
	}
	if strings.TrimSpace(claimType) == "" {
		return nil, fmt.Errorf("%w: claim type is required", ErrValidation)
	}

	profile, err := s.store.Users().GetByID(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, ErrProfileNotFound
	}

	now := time.Now()
	claim := &models.Claim{
		Type:        claimType,
		Description: description,
		Status:      models.ClaimStatusRequested,
		RequesterID: actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.store.WithTx(ctx, func(tx store.Store) error {
		if err := tx.Claims().Create(ctx, claim); err != nil {
			return err
		}
		return tx.Claims().AppendHistory(ctx, &models.ClaimHistoryEntry{
			ClaimID:     claim.ID,
			Action:      string(models.ClaimStatusRequested),
			By:          actor.ID,
			Details:     "claim filed",
			RequesterID: actor.ID,
			CreatedAt:   now,
		})
	})
	if err != nil {
		s.publishDenied("claims/"+claim.ID, "create", map[string]any{
			"type":         claimType,
			"description":  description,
			"requester_id": actor.ID,
		}, err)
		return nil, fmt.Errorf("%w: %v", ErrStorageWrite, err)
	}

	s.audit.Record(ctx, models.AuditClaimCreated, actor.ID, actor.Role, "claims", claim.ID, map[string]any{
		"type": claimType,
	})

	return claim, nil
}

// Approve transitions a claim to approved, stamps the acting admin, appends
// the history entry, and notifies the requester — all atomically. The audit
// event is recorded after commit and its outcome never affects the result.
func (s *Service) Approve(ctx context.Context, admin Actor, claimID string) (*models.Claim, error) {
	return s.decide(ctx, admin, claimID, models.ClaimStatusApproved, "")
}

// Reject transitions a claim to rejected with the given reason. The reason
// is required and is embedded in the requester's notification.
func (s *Service) Reject(ctx context.Context, admin Actor, claimID, reason string) (*models.Claim, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("%w: rejection reason is required", ErrValidation)
	}
	return s.decide(ctx, admin, claimID, models.ClaimStatusRejected, reason)
}

func (s *Service) decide(ctx context.Context, admin Actor, claimID string, to models.ClaimStatus, reason string) (*models.Claim, error) {
	if admin.ID == "" {
		return nil, ErrNotAuthenticated
	}

	now := time.Now()
	var claim *models.Claim
	var notification *models.Notification

	err := s.store.WithTx(ctx, func(tx store.Store) error {
		var err error
		claim, err = tx.Claims().Get(ctx, claimID)
		if err != nil {
			return err
		}
		if claim == nil {
			return ErrClaimNotFound
		}
		if !claim.Actionable() {
			return ErrInvalidState
		}

		from := []models.ClaimStatus{models.ClaimStatusRequested, models.ClaimStatusInReview}
		if err := tx.Claims().Transition(ctx, claimID, from, to, admin.ID, reason, now); err != nil {
			return err
		}
		claim.Status = to
		claim.AdminID = admin.ID
		claim.RejectionReason = reason
		claim.UpdatedAt = now

		if err := tx.Claims().AppendHistory(ctx, &models.ClaimHistoryEntry{
			ClaimID:     claimID,
			Action:      string(to),
			By:          admin.ID,
			Details:     historyDetails(to, reason),
			RequesterID: claim.RequesterID,
			CreatedAt:   now,
		}); err != nil {
			return err
		}

		notification = notificationFor(claim, reason, now)
		return tx.Notifications().Create(ctx, notification)
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrClaimNotFound), errors.Is(err, ErrInvalidState):
			return nil, err
		case errors.Is(err, store.ErrNotFound):
			return nil, ErrClaimNotFound
		case errors.Is(err, store.ErrConcurrentModification):
			// Another writer moved the claim between our read and the
			// guarded update; the second decision is rejected, not merged.
			return nil, err
		default:
			s.publishDenied("claims/"+claimID, "transition", map[string]any{
				"status":   string(to),
				"admin_id": admin.ID,
			}, err)
			return nil, fmt.Errorf("%w: %v", ErrStorageWrite, err)
		}
	}

	action := models.AuditClaimApproved
	auditContext := map[string]any{"requester_id": claim.RequesterID}
	if to == models.ClaimStatusRejected {
		action = models.AuditClaimRejected
		auditContext["reason"] = reason
	}
	s.audit.Record(ctx, action, admin.ID, admin.Role, "claims", claimID, auditContext)

	if s.hub != nil {
		s.hub.Publish(notification)
	}

	return claim, nil
}

// Draft transitions a claim from requested to in_review after an assistant
// draft was produced, stamping the acting admin. Only the workflow status is
// touched; the assistant's narrative output never lands on the claim record.
func (s *Service) Draft(ctx context.Context, admin Actor, claimID, assistantNote string) (*models.Claim, error) {
	if admin.ID == "" {
		return nil, ErrNotAuthenticated
	}

	now := time.Now()
	var claim *models.Claim

	err := s.store.WithTx(ctx, func(tx store.Store) error {
		var err error
		claim, err = tx.Claims().Get(ctx, claimID)
		if err != nil {
			return err
		}
		if claim == nil {
			return ErrClaimNotFound
		}
		if claim.Status != models.ClaimStatusRequested {
			return ErrInvalidState
		}

		from := []models.ClaimStatus{models.ClaimStatusRequested}
		if err := tx.Claims().Transition(ctx, claimID, from, models.ClaimStatusInReview, admin.ID, "", now); err != nil {
			return err
		}
		claim.Status = models.ClaimStatusInReview
		claim.AdminID = admin.ID
		claim.UpdatedAt = now

		return tx.Claims().AppendHistory(ctx, &models.ClaimHistoryEntry{
			ClaimID:     claimID,
			Action:      string(models.ClaimStatusInReview),
			By:          admin.ID,
			Details:     "draft prepared by assistant",
			RequesterID: claim.RequesterID,
			CreatedAt:   now,
		})
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrClaimNotFound), errors.Is(err, ErrInvalidState):
			return nil, err
		case errors.Is(err, store.ErrNotFound):
			return nil, ErrClaimNotFound
		case errors.Is(err, store.ErrConcurrentModification):
			return nil, err
		default:
			s.publishDenied("claims/"+claimID, "transition", map[string]any{
				"status":   string(models.ClaimStatusInReview),
				"admin_id": admin.ID,
			}, err)
			return nil, fmt.Errorf("%w: %v", ErrStorageWrite, err)
		}
	}

	s.audit.Record(ctx, models.AuditClaimDraftedAI, admin.ID, admin.Role, "claims", claimID, map[string]any{
		"note": assistantNote,
	})

	return claim, nil
}

func (s *Service) publishDenied(path, operation string, payload map[string]any, err error) {
	if s.denied == nil {
		return
	}
	s.denied.Publish(events.DeniedWrite{
		Path:      path,
		Operation: operation,
		Payload:   payload,
		Error:     err.Error(),
	})
}

func historyDetails(to models.ClaimStatus, reason string) string {
	if to == models.ClaimStatusRejected {
		return "rejected: " + reason
	}
	return "claim approved"
}

func notificationFor(claim *models.Claim, reason string, now time.Time) *models.Notification {
	if claim.Status == models.ClaimStatusRejected {
		return &models.Notification{
			UserID:    claim.RequesterID,
			Type:      models.NotificationClaimRejected,
			ClaimID:   claim.ID,
			Message:   fmt.Sprintf("Your claim %q was rejected: %s", claim.Type, reason),
			CreatedAt: now,
		}
	}
	return &models.Notification{
		UserID:    claim.RequesterID,
		Type:      models.NotificationClaimApproved,
		ClaimID:   claim.ID,
		Message:   fmt.Sprintf("Your claim %q was approved.", claim.Type),
		CreatedAt: now,
	}
}
