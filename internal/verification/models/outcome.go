package models

// Outcome summarizes what the engine did with one event. It is used for
// logging and as a metrics label.
type Outcome string

const (
	OutcomeIgnored         Outcome = "ignored"
	OutcomeTracked         Outcome = "tracked"
	OutcomeAlreadyVerified Outcome = "already_verified"
	OutcomeExempt          Outcome = "exempt"
	OutcomePending         Outcome = "pending"
	OutcomeChallenged      Outcome = "challenged"
	OutcomePassed          Outcome = "passed"
	OutcomeRejected        Outcome = "rejected"
	OutcomeRestricted      Outcome = "restricted"
	OutcomeVerified        Outcome = "verified"
	OutcomeForgotten       Outcome = "forgotten"
	OutcomeFailed          Outcome = "failed"
)
