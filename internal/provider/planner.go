package provider

import "context"

// ConceptDescriptor is the planned identity of an app: what it is, how it
// should look, and the prompt context shared by all downstream asset calls.
type ConceptDescriptor struct {
	Name        string   `json:"name"`
	Tagline     string   `json:"tagline"`
	Description string   `json:"description"`
	VisualStyle string   `json:"visualStyle"`
	ColorHints  []string `json:"colorHints,omitempty"`
}

// UnitDescriptor describes one screen to generate.
type UnitDescriptor struct {
	Name   string `json:"name"`
	Prompt string `json:"prompt"`
}

// StructurePlan is the planned screen set for an app. Unit order is
// authoritative: the first unit is generated ahead of the rest and used as the
// style reference for every later screen.
type StructurePlan struct {
	Units             []UnitDescriptor `json:"units"`
	SharedLayoutNotes string           `json:"sharedLayoutNotes"`
}

// Planner abstracts the concept/structure planning provider.
type Planner interface {
	PlanConcept(ctx context.Context, description string, hints []string) (ConceptDescriptor, error)
	PlanStructure(ctx context.Context, concept ConceptDescriptor, targetCount int) (StructurePlan, error)
}

// PlaceholderPlanner is a stub implementation until provider wiring is added.
type PlaceholderPlanner struct{}

// PlanConcept returns ErrNotImplemented.
func (PlaceholderPlanner) PlanConcept(ctx context.Context, description string, hints []string) (ConceptDescriptor, error) {
	_ = ctx
	_ = description
	_ = hints
	return ConceptDescriptor{}, ErrNotImplemented
}

// PlanStructure returns ErrNotImplemented.
func (PlaceholderPlanner) PlanStructure(ctx context.Context, concept ConceptDescriptor, targetCount int) (StructurePlan, error) {
	_ = ctx
	_ = concept
	_ = targetCount
	return StructurePlan{}, ErrNotImplemented
}
