package service

import (
	"fmt"
	"slices"

	"github.com/noah-isme/factory-ops-api/internal/models"
	appErrors "github.com/noah-isme/factory-ops-api/pkg/errors"
)

// defaultTransitions lists the allowed manual status moves per record kind.
var defaultTransitions = map[models.RecordKind]map[string][]string{
	models.KindJigRequest: {
		"REQUEST":     {"IN_PROGRESS", "HOLD", "REJECTED"},
		"IN_PROGRESS": {"RECEIVING", "COMPLETED", "HOLD", "REJECTED"},
		"RECEIVING":   {"IN_PROGRESS", "COMPLETED", "HOLD"},
		"COMPLETED":   {"RECEIVING"},
		"HOLD":        {"REQUEST", "IN_PROGRESS", "RECEIVING", "REJECTED"},
		"REJECTED":    {"REQUEST"},
	},
	models.KindSampleRequest: {
		"REQUEST":     {"IN_PROGRESS", "HOLD", "REJECTED"},
		"IN_PROGRESS": {"COMPLETED", "HOLD"},
		"HOLD":        {"REQUEST", "IN_PROGRESS", "REJECTED"},
		"REJECTED":    {"REQUEST"},
	},
	models.KindProductionRequest: {
		"REQUEST":     {"SCHEDULED", "HOLD", "CANCELLED"},
		"SCHEDULED":   {"IN_PROGRESS", "HOLD", "CANCELLED"},
		"IN_PROGRESS": {"COMPLETED", "HOLD"},
		"HOLD":        {"SCHEDULED", "IN_PROGRESS", "CANCELLED"},
	},
	models.KindQualityInspection: {
		"PENDING":     {"IN_PROGRESS", "HOLD"},
		"IN_PROGRESS": {"PASSED", "FAILED", "HOLD"},
		"HOLD":        {"IN_PROGRESS"},
		"FAILED":      {"IN_PROGRESS"},
	},
}

// TransitionPolicy decides whether a manual status change is legal. A
// disabled policy allows any status to follow any other.
type TransitionPolicy struct {
	enabled bool
	graph   map[models.RecordKind]map[string][]string
}

// NewTransitionPolicy constructs the policy over the default graph.
func NewTransitionPolicy(enabled bool) *TransitionPolicy {
	return &TransitionPolicy{enabled: enabled, graph: defaultTransitions}
}

// Enabled reports whether the graph is enforced.
func (p *TransitionPolicy) Enabled() bool {
	return p != nil && p.enabled
}

// Allowed lists the statuses reachable from from, or nil when unrestricted.
func (p *TransitionPolicy) Allowed(kind models.RecordKind, from string) []string {
	if !p.Enabled() {
		return nil
	}
	return slices.Clone(p.graph[kind][from])
}

// Check returns ErrInvalidTransition when from → to is not in the graph.
// Re-asserting the current status and roles that may bypass the graph always pass.
func (p *TransitionPolicy) Check(kind models.RecordKind, from, to string, role models.UserRole) error {
	if !p.Enabled() || from == to || role.CanBypassTransitions() {
		return nil
	}
	if slices.Contains(p.graph[kind][from], to) {
		return nil
	}
	return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("%s cannot move from %s to %s", kind.Label(), from, to))
}
