package ai

import (
	"context"
)

// Verdict is the tri-state outcome of evaluating one criterion.
type Verdict string

const (
	VerdictEligible   Verdict = "eligible"
	VerdictIneligible Verdict = "ineligible"
	VerdictUnknown    Verdict = "unknown"
)

// Request pairs one eligibility criterion with the patient's masked
// profile text for a classification call.
type Request struct {
	ProfileText   string
	CriterionText string
	// Polarity is "inclusion" or "exclusion"; it is surfaced to the model
	// so an exclusion criterion that applies is judged ineligible.
	Polarity string
}

// Assessment is the validated result of one classification call.
type Assessment struct {
	Verdict    Verdict
	Confidence float64
	Rationale  string
	// Raw keeps the unmodified backend response for debugging.
	Raw string
}

// Classifier evaluates a single criterion against a patient profile.
// Implementations wrap an external classification backend and must only
// return assessments that passed strict schema validation.
type Classifier interface {
	Classify(ctx context.Context, req Request) (*Assessment, error)
	Provider() string
	Model() string
}
