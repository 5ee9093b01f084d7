package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fleetgrid/ops-api/internal/models"
)

// ETARequest is the input to the ETA recalculation flow.
type ETARequest struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	Position    string `json:"position"`
	Conditions  string `json:"conditions"`
}

// ETAResult is the schema-validated output of the ETA flow.
type ETAResult struct {
	ETAHours   float64  `json:"eta_hours"`
	Confidence float64  `json:"confidence"`
	Factors    []string `json:"factors"`
}

// RecalculateETA estimates remaining transit time for a shipment.
func (s *Service) RecalculateETA(ctx context.Context, req ETARequest) (*ETAResult, error) {
	if req.Origin == "" || req.Destination == "" {
		return nil, fmt.Errorf("origin and destination are required")
	}

	user := fmt.Sprintf(s.prompts.ETA.User, req.Origin, req.Destination, req.Position, req.Conditions)
	raw, err := s.completer.Complete(ctx, s.prompts.ETA.System, user)
	if err != nil {
		return nil, fmt.Errorf("eta flow: %w", err)
	}

	var result ETAResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("eta flow: invalid model output: %w", err)
	}
	if result.ETAHours < 0 {
		return nil, fmt.Errorf("eta flow: negative eta in model output")
	}
	if result.Confidence < 0 || result.Confidence > 1 {
		return nil, fmt.Errorf("eta flow: confidence out of range")
	}
	return &result, nil
}

// DispatchRequest is the input to the route scoring flow.
type DispatchRequest struct {
	Route         string `json:"route"`
	CargoWeightKg int    `json:"cargo_weight_kg"`
}

// VehicleScore is one vehicle's suitability for a route.
type VehicleScore struct {
	VehicleID string  `json:"vehicle_id"`
	Score     float64 `json:"score"`
	Rationale string  `json:"rationale"`
}

// DispatchResult is the schema-validated output of the route scoring flow.
type DispatchResult struct {
	Scores []VehicleScore `json:"scores"`
}

// ScoreDispatchRoute scores the given vehicles for a route. Callers pass
// the candidate vehicles; typically the available portion of the fleet.
func (s *Service) ScoreDispatchRoute(ctx context.Context, req DispatchRequest, vehicles []*models.Vehicle) (*DispatchResult, error) {
	if req.Route == "" {
		return nil, fmt.Errorf("route is required")
	}
	if len(vehicles) == 0 {
		return nil, fmt.Errorf("no candidate vehicles")
	}

	var sb strings.Builder
	known := make(map[string]bool, len(vehicles))
	for _, v := range vehicles {
		known[v.ID] = true
		fmt.Fprintf(&sb, "- id=%s name=%s capacity_kg=%d carrier=%s\n", v.ID, v.Name, v.CapacityKg, v.Carrier)
	}

	user := fmt.Sprintf(s.prompts.Dispatch.User, req.Route, req.CargoWeightKg, sb.String())
	raw, err := s.completer.Complete(ctx, s.prompts.Dispatch.System, user)
	if err != nil {
		return nil, fmt.Errorf("dispatch flow: %w", err)
	}

	var result DispatchResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("dispatch flow: invalid model output: %w", err)
	}

	// Drop hallucinated vehicles and clamp scores
	valid := result.Scores[:0]
	for _, sc := range result.Scores {
		if !known[sc.VehicleID] {
			continue
		}
		if sc.Score < 0 {
			sc.Score = 0
		}
		if sc.Score > 100 {
			sc.Score = 100
		}
		valid = append(valid, sc)
	}
	result.Scores = valid
	return &result, nil
}

// ClaimDraft is the schema-validated output of the claim drafting flow.
type ClaimDraft struct {
	Summary            string   `json:"summary"`
	SuggestedCategory  string   `json:"suggested_category"`
	MissingInformation []string `json:"missing_information"`
}

// DraftClaim produces an adjuster-facing draft for a claim. The draft is
// returned to the caller for display; only the workflow transition it
// triggers is ever persisted on the claim.
func (s *Service) DraftClaim(ctx context.Context, claim *models.Claim) (*ClaimDraft, error) {
	user := fmt.Sprintf(s.prompts.Claim.User, claim.Type, claim.Description)
	raw, err := s.completer.Complete(ctx, s.prompts.Claim.System, user)
	if err != nil {
		return nil, fmt.Errorf("claim draft flow: %w", err)
	}

	var draft ClaimDraft
	if err := json.Unmarshal([]byte(raw), &draft); err != nil {
		return nil, fmt.Errorf("claim draft flow: invalid model output: %w", err)
	}
	if strings.TrimSpace(draft.Summary) == "" {
		return nil, fmt.Errorf("claim draft flow: empty summary in model output")
	}
	return &draft, nil
}

// RiskRequest is the input to the cross-carrier risk aggregation flow.
type RiskRequest struct {
	Signals []string `json:"signals"`
}

// CarrierRisk is one carrier's aggregated risk assessment.
type CarrierRisk struct {
	Carrier   string   `json:"carrier"`
	RiskLevel string   `json:"risk_level"`
	Drivers   []string `json:"drivers"`
}

// RiskResult is the schema-validated output of the risk flow.
type RiskResult struct {
	Carriers []CarrierRisk `json:"carriers"`
}

var validRiskLevels = map[string]bool{"low": true, "medium": true, "high": true}

// AggregateRisk aggregates risk signals across carriers.
func (s *Service) AggregateRisk(ctx context.Context, req RiskRequest) (*RiskResult, error) {
	if len(req.Signals) == 0 {
		return nil, fmt.Errorf("at least one signal is required")
	}

	user := fmt.Sprintf(s.prompts.Risk.User, "- "+strings.Join(req.Signals, "\n- "))
	raw, err := s.completer.Complete(ctx, s.prompts.Risk.System, user)
	if err != nil {
		return nil, fmt.Errorf("risk flow: %w", err)
	}

	var result RiskResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("risk flow: invalid model output: %w", err)
	}
	for _, c := range result.Carriers {
		if !validRiskLevels[c.RiskLevel] {
			return nil, fmt.Errorf("risk flow: invalid risk level %q in model output", c.RiskLevel)
		}
	}
	return &result, nil
}
