// Package models provides data structures for the FleetGrid operations platform.
package models

import (
	"time"
)

// ClaimStatus represents the workflow status of an insurance claim.
type ClaimStatus string

const (
	// ClaimStatusRequested indicates the claim was filed and awaits action.
	ClaimStatusRequested ClaimStatus = "requested"
	// ClaimStatusInReview indicates the claim has an AI draft attached and is under review.
	ClaimStatusInReview ClaimStatus = "in_review"
	// ClaimStatusApproved indicates the claim was approved. Terminal.
	ClaimStatusApproved ClaimStatus = "approved"
	// ClaimStatusRejected indicates the claim was rejected. Terminal.
	ClaimStatusRejected ClaimStatus = "rejected"
)

// Claim represents an insurance claim filed against a shipment.
type Claim struct {
	ID              string      `json:"id"`
	Type            string      `json:"type"`
	Description     string      `json:"description"`
	Status          ClaimStatus `json:"status"`
	RequesterID     string      `json:"requester_id"`
	AdminID         string      `json:"admin_id,omitempty"`
	RejectionReason string      `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// IsTerminal returns true if no further transitions are allowed.
func (c *Claim) IsTerminal() bool {
	return c.Status == ClaimStatusApproved || c.Status == ClaimStatusRejected
}

// Actionable returns true if the claim can still be approved or rejected.
func (c *Claim) Actionable() bool {
	return c.Status == ClaimStatusRequested || c.Status == ClaimStatusInReview
}

// ClaimHistoryEntry is an append-only record of a single claim transition.
// Exactly one entry is written per transition, in the same transaction as
// the claim mutation itself.
type ClaimHistoryEntry struct {
	ID          string    `json:"id"`
	ClaimID     string    `json:"claim_id"`
	Action      string    `json:"action"`
	By          string    `json:"by"`
	Details     string    `json:"details,omitempty"`
	RequesterID string    `json:"requester_id"`
	CreatedAt   time.Time `json:"created_at"`
}
