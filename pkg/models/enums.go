package models

// ClaimType classifies a claim for downstream scheduling.
type ClaimType string

const (
	// ClaimTypeGoal is a vague or aspirational objective that cannot be
	// verified as complete.
	ClaimTypeGoal ClaimType = "goal"
	// ClaimTypePromise is a future deliverable with an explicit deadline and
	// a measurable outcome.
	ClaimTypePromise ClaimType = "promise"
	// ClaimTypeStatement is a verifiable assertion about what is or was done.
	ClaimTypeStatement ClaimType = "statement"
)

// Priority is the operational priority of a claim.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Mechanism is an optional routing hint describing how a claim is executed.
type Mechanism string

const (
	MechanismDirectAction Mechanism = "direct_action"
	MechanismDirective    Mechanism = "directive"
	MechanismEnforcement  Mechanism = "enforcement"
	MechanismFunding      Mechanism = "funding"
	MechanismRulemaking   Mechanism = "rulemaking"
	MechanismLitigation   Mechanism = "litigation"
	MechanismOversight    Mechanism = "oversight"
	MechanismOther        Mechanism = "other"
)

// RoundupKind is the horizon a roundup covers.
type RoundupKind string

const (
	RoundupDaily   RoundupKind = "daily"
	RoundupWeekly  RoundupKind = "weekly"
	RoundupMonthly RoundupKind = "monthly"
	RoundupYearly  RoundupKind = "yearly"
)

// Check-in verdict values for promise and goal updates. Fact checks use the
// wider category set declared on FactCheckResponseOutput; Update.Verdict
// stores whichever the producing request used.
const (
	VerdictComplete   = "complete"
	VerdictInProgress = "in_progress"
	VerdictFailed     = "failed"
)
